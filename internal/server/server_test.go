package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/groupforge/groupforge/internal/accesscode"
	"github.com/groupforge/groupforge/internal/config"
	"github.com/groupforge/groupforge/internal/credential"
	"github.com/groupforge/groupforge/internal/metrics"
	"github.com/groupforge/groupforge/internal/platform"
	"github.com/groupforge/groupforge/internal/provision"
	"github.com/groupforge/groupforge/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type noopDialer struct{}

func (noopDialer) Dial(ctx context.Context, creds *platform.Credentials, ev platform.Events) (platform.Conn, error) {
	return nil, context.DeadlineExceeded
}

func newTestServer(t *testing.T) *Server {
	t.Helper()

	dir := t.TempDir()
	logger := zap.NewNop()
	m := metrics.NewMetrics()

	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.RateLimiter.Enabled = false

	creds, err := credential.NewStore(filepath.Join(dir, "sessions"), logger)
	require.NoError(t, err)

	sessions := session.NewManager(session.NewRegistry(), creds, noopDialer{},
		cfg.Delays, time.Second, logger, m)

	runner := provision.NewRunner(cfg.Delays, time.Second,
		provision.NewArtifactWriter(filepath.Join(dir, "links"), logger), logger, m)

	access := accesscode.NewStore(
		filepath.Join(dir, "auth_codes.json"),
		filepath.Join(dir, "notice.json"),
		cfg.Access.AdminCode, logger)

	srv := NewServer(cfg, sessions, runner, access,
		func(ctx context.Context) error { return nil }, m, logger)
	srv.SetupRoutes()
	return srv
}

func TestRouting(t *testing.T) {
	srv := newTestServer(t)
	h := srv.GetHandler()

	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
	}{
		{"root", http.MethodGet, "/", http.StatusOK},
		{"ping", http.MethodGet, "/ping", http.StatusOK},
		{"health", http.MethodGet, "/health", http.StatusOK},
		{"ready", http.MethodGet, "/ready", http.StatusOK},
		{"status needs tenant", http.MethodGet, "/api/status", http.StatusBadRequest},
		{"qr needs tenant", http.MethodGet, "/api/qr", http.StatusBadRequest},
		{"notice", http.MethodGet, "/api/notice", http.StatusOK},
		{"admin users", http.MethodGet, "/api/admin/users", http.StatusOK},
		{"unknown endpoint", http.MethodGet, "/api/nope", http.StatusNotFound},
		{"method not allowed", http.MethodDelete, "/api/status", http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestRequestIDHeaderOnResponses(t *testing.T) {
	srv := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.GetHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))

	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestLoginThroughRouter(t *testing.T) {
	srv := newTestServer(t)

	body := strings.NewReader(`{"code":"9209778319"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/login", body)
	rec := httptest.NewRecorder()
	srv.GetHandler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"isAdmin":true`)
}

func TestCreateGroupsRejectedWithoutConnection(t *testing.T) {
	srv := newTestServer(t)

	body := strings.NewReader(`{"userId":"u1","name":"Team","count":2}`)
	req := httptest.NewRequest(http.MethodPost, "/api/create-groups", body)
	rec := httptest.NewRecorder()
	srv.GetHandler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "NO_CONNECTION")
}
