// Package errors provides error handling and the standard HTTP error
// response format for the GroupForge server.
package errors

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// ErrorCode represents application-specific error codes.
type ErrorCode string

const (
	// General errors
	ErrorCodeUnknown        ErrorCode = "UNKNOWN"
	ErrorCodeInvalidRequest ErrorCode = "INVALID_REQUEST"
	ErrorCodeInternalError  ErrorCode = "INTERNAL_ERROR"
	ErrorCodeRateLimited    ErrorCode = "RATE_LIMITED"
	ErrorCodeNotFound       ErrorCode = "NOT_FOUND"

	// Session errors
	ErrorCodeNoConnection ErrorCode = "NO_CONNECTION"
	ErrorCodeLoggedOut    ErrorCode = "LOGGED_OUT"

	// Provisioning errors
	ErrorCodeRunActive ErrorCode = "RUN_ACTIVE"

	// Access errors
	ErrorCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrorCodeForbidden    ErrorCode = "FORBIDDEN"
)

// ErrorResponse represents the standard error response format.
type ErrorResponse struct {
	Status    string    `json:"status"`
	ErrorCode ErrorCode `json:"error_code"`
	Message   string    `json:"message"`
	RequestID string    `json:"request_id,omitempty"`
}

// Handler provides error handling functionality.
type Handler struct {
	logger *zap.Logger
}

// NewHandler creates a new error handler.
func NewHandler(logger *zap.Logger) *Handler {
	return &Handler{
		logger: logger,
	}
}

// WriteErrorResponse writes a formatted error response to the HTTP response writer.
func (h *Handler) WriteErrorResponse(w http.ResponseWriter, statusCode int, errorCode ErrorCode, message string, requestID string) {
	h.logger.Warn("HTTP error response",
		zap.Int("status_code", statusCode),
		zap.String("error_code", string(errorCode)),
		zap.String("message", message),
		zap.String("request_id", requestID),
	)

	resp := ErrorResponse{
		Status:    "error",
		ErrorCode: errorCode,
		Message:   message,
		RequestID: requestID,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(resp)
}

// WriteValidationError writes a validation error response.
func (h *Handler) WriteValidationError(w http.ResponseWriter, message string, requestID string) {
	h.WriteErrorResponse(w, http.StatusBadRequest, ErrorCodeInvalidRequest, message, requestID)
}

// WriteInternalError writes an internal error response.
func (h *Handler) WriteInternalError(w http.ResponseWriter, message string, requestID string) {
	h.WriteErrorResponse(w, http.StatusInternalServerError, ErrorCodeInternalError, message, requestID)
}

// WriteNoConnection writes a service unavailable response for a tenant
// without a live platform connection.
func (h *Handler) WriteNoConnection(w http.ResponseWriter, message string, requestID string) {
	h.WriteErrorResponse(w, http.StatusServiceUnavailable, ErrorCodeNoConnection, message, requestID)
}

// WriteRunActive writes a conflict response for a tenant with a
// provisioning run already in flight.
func (h *Handler) WriteRunActive(w http.ResponseWriter, requestID string) {
	h.WriteErrorResponse(w, http.StatusConflict, ErrorCodeRunActive,
		"a group creation run is already in progress for this user", requestID)
}

// WriteNotFound writes a not found response.
func (h *Handler) WriteNotFound(w http.ResponseWriter, message string, requestID string) {
	h.WriteErrorResponse(w, http.StatusNotFound, ErrorCodeNotFound, message, requestID)
}

// WriteForbidden writes a forbidden response.
func (h *Handler) WriteForbidden(w http.ResponseWriter, message string, requestID string) {
	h.WriteErrorResponse(w, http.StatusForbidden, ErrorCodeForbidden, message, requestID)
}

// WriteRateLimitedError writes a rate limit exceeded response.
func (h *Handler) WriteRateLimitedError(w http.ResponseWriter, requestID string) {
	h.WriteErrorResponse(w, http.StatusTooManyRequests, ErrorCodeRateLimited, "rate limit exceeded", requestID)
}
