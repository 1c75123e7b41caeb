package errors

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func decode(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestWriteErrorResponse(t *testing.T) {
	h := NewHandler(zap.NewNop())
	rec := httptest.NewRecorder()

	h.WriteErrorResponse(rec, http.StatusBadRequest, ErrorCodeInvalidRequest, "count must be between 1 and 30", "req-1")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	resp := decode(t, rec)
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, ErrorCodeInvalidRequest, resp.ErrorCode)
	assert.Equal(t, "count must be between 1 and 30", resp.Message)
	assert.Equal(t, "req-1", resp.RequestID)
}

func TestWriteHelpers(t *testing.T) {
	h := NewHandler(zap.NewNop())

	tests := []struct {
		name       string
		write      func(w http.ResponseWriter)
		wantStatus int
		wantCode   ErrorCode
	}{
		{
			name:       "validation",
			write:      func(w http.ResponseWriter) { h.WriteValidationError(w, "bad input", "") },
			wantStatus: http.StatusBadRequest,
			wantCode:   ErrorCodeInvalidRequest,
		},
		{
			name:       "internal",
			write:      func(w http.ResponseWriter) { h.WriteInternalError(w, "boom", "") },
			wantStatus: http.StatusInternalServerError,
			wantCode:   ErrorCodeInternalError,
		},
		{
			name:       "no connection",
			write:      func(w http.ResponseWriter) { h.WriteNoConnection(w, "not connected", "") },
			wantStatus: http.StatusServiceUnavailable,
			wantCode:   ErrorCodeNoConnection,
		},
		{
			name:       "run active",
			write:      func(w http.ResponseWriter) { h.WriteRunActive(w, "") },
			wantStatus: http.StatusConflict,
			wantCode:   ErrorCodeRunActive,
		},
		{
			name:       "not found",
			write:      func(w http.ResponseWriter) { h.WriteNotFound(w, "no such code", "") },
			wantStatus: http.StatusNotFound,
			wantCode:   ErrorCodeNotFound,
		},
		{
			name:       "forbidden",
			write:      func(w http.ResponseWriter) { h.WriteForbidden(w, "invalid code", "") },
			wantStatus: http.StatusForbidden,
			wantCode:   ErrorCodeForbidden,
		},
		{
			name:       "rate limited",
			write:      func(w http.ResponseWriter) { h.WriteRateLimitedError(w, "") },
			wantStatus: http.StatusTooManyRequests,
			wantCode:   ErrorCodeRateLimited,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.write(rec)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantCode, decode(t, rec).ErrorCode)
		})
	}
}
