// Package handler provides HTTP request handlers for the GroupForge server.
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/groupforge/groupforge/internal/accesscode"
	"github.com/groupforge/groupforge/internal/config"
	apierrors "github.com/groupforge/groupforge/internal/errors"
	"github.com/groupforge/groupforge/internal/platform"
	"github.com/groupforge/groupforge/internal/provision"
	"github.com/groupforge/groupforge/internal/session"
	"go.uber.org/zap"
)

// Handlers contains all HTTP handlers and their dependencies.
type Handlers struct {
	sessions     *session.Manager
	runner       *provision.Runner
	gate         *provision.Gate
	access       *accesscode.Store
	errorHandler *apierrors.Handler
	logger       *zap.Logger
	maxGroups    int
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(
	sessions *session.Manager,
	runner *provision.Runner,
	gate *provision.Gate,
	access *accesscode.Store,
	errorHandler *apierrors.Handler,
	logger *zap.Logger,
	cfg config.ProvisionConfig,
) *Handlers {
	return &Handlers{
		sessions:     sessions,
		runner:       runner,
		gate:         gate,
		access:       access,
		errorHandler: errorHandler,
		logger:       logger,
		maxGroups:    cfg.MaxGroups,
	}
}

// Root handles GET / requests.
func (h *Handlers) Root(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "Server is live")
}

// Ping handles GET /ping requests.
func (h *Handlers) Ping(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

// GetQR handles GET /api/qr requests. The first request for an unknown
// tenant starts the session; the QR arrives on a later poll.
func (h *Handlers) GetQR(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")

	tenantID := h.tenantFromRequest(r)
	if tenantID == "" {
		h.errorHandler.WriteValidationError(w, "User ID is required", requestID)
		return
	}

	if !h.sessions.Known(tenantID) {
		if err := h.sessions.Start(tenantID); err != nil {
			h.logger.Warn("session start failed",
				zap.String("tenant_id", tenantID), zap.Error(err))
		}
		h.writeJSONResponse(w, http.StatusOK, map[string]string{"qr": ""})
		return
	}

	h.writeJSONResponse(w, http.StatusOK, map[string]string{
		"qr": h.sessions.Artifact(tenantID).QR,
	})
}

// GetPairingCode handles GET /api/pairing-code requests.
func (h *Handlers) GetPairingCode(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")

	tenantID := h.tenantFromRequest(r)
	if tenantID == "" {
		h.errorHandler.WriteValidationError(w, "User ID is required", requestID)
		return
	}

	if !h.sessions.Known(tenantID) {
		if err := h.sessions.Start(tenantID); err != nil {
			h.logger.Warn("session start failed",
				zap.String("tenant_id", tenantID), zap.Error(err))
		}
		h.writeJSONResponse(w, http.StatusOK, map[string]string{"pairingCode": ""})
		return
	}

	h.writeJSONResponse(w, http.StatusOK, map[string]string{
		"pairingCode": h.sessions.Artifact(tenantID).PairingCode,
	})
}

// UsePairingCode handles POST /api/use-pairing-code requests.
func (h *Handlers) UsePairingCode(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")

	var req struct {
		UserID      string `json:"userId"`
		PhoneNumber string `json:"phoneNumber"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.errorHandler.WriteValidationError(w, "invalid request body", requestID)
		return
	}

	tenantID := h.tenantID(r, req.UserID)
	if tenantID == "" {
		h.errorHandler.WriteValidationError(w, "User ID is required", requestID)
		return
	}

	phone := provision.NormalizeContact(req.PhoneNumber)
	if phone == "" {
		h.errorHandler.WriteValidationError(w, "phone number is required", requestID)
		return
	}

	if !h.sessions.Known(tenantID) {
		if err := h.sessions.Start(tenantID); err != nil {
			h.logger.Warn("session start failed",
				zap.String("tenant_id", tenantID), zap.Error(err))
		}
	}

	code, err := h.sessions.RequestPairingCode(r.Context(), tenantID, phone)
	if err != nil {
		h.errorHandler.WriteNoConnection(w, "could not request pairing code, try again shortly", requestID)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"success":     true,
		"pairingCode": code,
	})
}

// GetStatus handles GET /api/status requests.
func (h *Handlers) GetStatus(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")

	tenantID := h.tenantFromRequest(r)
	if tenantID == "" {
		h.errorHandler.WriteValidationError(w, "User ID is required", requestID)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, h.sessions.Status(tenantID))
}

// Restart handles POST /api/restart requests.
func (h *Handlers) Restart(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")

	var req struct {
		UserID string `json:"userId"`
	}
	// The body is optional when the header carries the tenant.
	_ = json.NewDecoder(r.Body).Decode(&req)

	tenantID := h.tenantID(r, req.UserID)
	if tenantID == "" {
		h.errorHandler.WriteValidationError(w, "User ID is required", requestID)
		return
	}

	if err := h.sessions.Restart(tenantID); err != nil {
		h.errorHandler.WriteInternalError(w, "failed to restart connection", requestID)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "connection restarted",
	})
}

// createGroupsRequest is the POST /api/create-groups body.
type createGroupsRequest struct {
	UserID           string `json:"userId"`
	Name             string `json:"name"`
	Count            int    `json:"count"`
	AdminNumber      string `json:"adminNumber"`
	GroupDescription string `json:"groupDescription"`
	GroupImage       string `json:"groupImage"`
	GroupImageName   string `json:"groupImageName"`
}

// CreateGroups handles POST /api/create-groups requests. On success the
// response is a server-sent event stream; every progress event is written
// as one data frame and flushed immediately.
func (h *Handlers) CreateGroups(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")

	var req createGroupsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.errorHandler.WriteValidationError(w, "invalid request body", requestID)
		return
	}

	tenantID := h.tenantID(r, req.UserID)
	if tenantID == "" {
		h.errorHandler.WriteValidationError(w, "User ID is required", requestID)
		return
	}

	if req.Name == "" || req.Count < 1 || req.Count > h.maxGroups {
		h.errorHandler.WriteValidationError(w,
			fmt.Sprintf("invalid group name or count, count must be between 1 and %d", h.maxGroups),
			requestID)
		return
	}

	if req.GroupImage != "" {
		if _, err := provision.DecodeImage(req.GroupImage); err != nil {
			h.errorHandler.WriteValidationError(w, "invalid group image payload", requestID)
			return
		}
	}

	if !h.gate.Acquire(tenantID) {
		h.errorHandler.WriteRunActive(w, requestID)
		return
	}
	defer h.gate.Release(tenantID)

	if h.sessions.Conn(tenantID) == nil {
		h.errorHandler.WriteNoConnection(w, "not connected for this user", requestID)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.errorHandler.WriteInternalError(w, "streaming not supported", requestID)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	job := provision.NewJob(tenantID, req.Name, req.Count,
		req.AdminNumber, req.GroupDescription, req.GroupImage, req.GroupImageName)

	// The provider re-resolves the handle per group so a mid-run disconnect
	// aborts the remainder instead of using a dead socket.
	events := h.runner.Run(r.Context(), job, func() platform.Conn {
		return h.sessions.Conn(tenantID)
	})

	for event := range events {
		data, err := json.Marshal(event)
		if err != nil {
			h.logger.Error("failed to encode progress event", zap.Error(err))
			continue
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			// Client went away; drain the stream so the run finishes its
			// bookkeeping and the gate is released cleanly.
			h.logger.Info("client disconnected mid-stream",
				zap.String("tenant_id", tenantID))
			for range events {
			}
			return
		}
		flusher.Flush()
	}
}

// Login handles POST /api/login requests.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")

	var req struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.errorHandler.WriteValidationError(w, "invalid request body", requestID)
		return
	}

	ok, isAdmin := h.access.Login(req.Code)
	if !ok {
		h.errorHandler.WriteForbidden(w, "invalid code", requestID)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"isAdmin": isAdmin,
	})
}

// GetUsers handles GET /api/admin/users requests.
func (h *Handlers) GetUsers(w http.ResponseWriter, r *http.Request) {
	h.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"users": h.access.Users(),
	})
}

// AddUser handles POST /api/admin/add-user requests.
func (h *Handlers) AddUser(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")

	var req struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.errorHandler.WriteValidationError(w, "invalid request body", requestID)
		return
	}

	if err := h.access.AddUser(req.Code); err != nil {
		switch {
		case errors.Is(err, accesscode.ErrInvalidCode), errors.Is(err, accesscode.ErrDuplicate):
			h.errorHandler.WriteValidationError(w, err.Error(), requestID)
		default:
			h.errorHandler.WriteInternalError(w, "failed to add user", requestID)
		}
		return
	}

	h.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "user added successfully",
	})
}

// RemoveUser handles POST /api/admin/remove-user requests.
func (h *Handlers) RemoveUser(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")

	var req struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.errorHandler.WriteValidationError(w, "invalid request body", requestID)
		return
	}

	if err := h.access.RemoveUser(req.Code); err != nil {
		switch {
		case errors.Is(err, accesscode.ErrAdminCode):
			h.errorHandler.WriteValidationError(w, err.Error(), requestID)
		case errors.Is(err, accesscode.ErrNotFound):
			h.errorHandler.WriteNotFound(w, err.Error(), requestID)
		default:
			h.errorHandler.WriteInternalError(w, "failed to remove user", requestID)
		}
		return
	}

	h.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "user removed successfully",
	})
}

// GetNotice handles GET /api/notice requests.
func (h *Handlers) GetNotice(w http.ResponseWriter, r *http.Request) {
	h.writeJSONResponse(w, http.StatusOK, map[string]string{
		"notice": h.access.Notice(),
	})
}

// UpdateNotice handles POST /api/admin/update-notice requests.
func (h *Handlers) UpdateNotice(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")

	var req struct {
		Notice *string `json:"notice"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Notice == nil {
		h.errorHandler.WriteValidationError(w, "invalid notice format", requestID)
		return
	}

	if err := h.access.UpdateNotice(*req.Notice); err != nil {
		h.errorHandler.WriteInternalError(w, "failed to update notice", requestID)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "notice updated successfully",
	})
}

// tenantFromRequest resolves the tenant for GET endpoints: the User-Id
// header wins, the userId query parameter is the fallback.
func (h *Handlers) tenantFromRequest(r *http.Request) string {
	if id := r.Header.Get("User-Id"); id != "" {
		return id
	}
	return r.URL.Query().Get("userId")
}

// tenantID resolves the tenant for POST endpoints, where the body may also
// carry it.
func (h *Handlers) tenantID(r *http.Request, bodyUserID string) string {
	if id := h.tenantFromRequest(r); id != "" {
		return id
	}
	return bodyUserID
}

// writeJSONResponse writes a JSON response to the HTTP response writer.
func (h *Handlers) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
	}
}
