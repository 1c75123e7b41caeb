// Package health provides health check endpoints for the GroupForge server.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Probe checks one backing dependency, typically the storage directories.
type Probe func(ctx context.Context) error

// HealthCheck manages health check functionality.
type HealthCheck struct {
	probe         Probe
	logger        *zap.Logger
	started       time.Time
	mu            sync.RWMutex
	ready         bool
	lastCheck     time.Time
	checkInterval time.Duration
}

// NewHealthCheck creates a new HealthCheck instance and starts the
// background probe loop.
func NewHealthCheck(probe Probe, logger *zap.Logger) *HealthCheck {
	hc := &HealthCheck{
		probe:         probe,
		logger:        logger,
		started:       time.Now(),
		ready:         false,
		checkInterval: 5 * time.Second,
	}

	go hc.backgroundCheck()

	return hc
}

// LivenessResponse represents the response for the liveness check.
type LivenessResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Uptime    string `json:"uptime"`
}

// ReadinessResponse represents the response for the readiness check.
type ReadinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
	Error  string            `json:"error,omitempty"`
}

// LivenessHandler handles GET /health requests.
// Returns 200 OK if the process is running.
func (hc *HealthCheck) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	resp := LivenessResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Uptime:    time.Since(hc.started).Round(time.Second).String(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resp)
}

// ReadinessHandler handles GET /ready requests.
// Returns 200 OK if the service can handle requests (storage is reachable).
func (hc *HealthCheck) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	hc.mu.RLock()
	isReady := hc.ready
	hc.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")

	if isReady {
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(ReadinessResponse{
			Status: "ready",
			Checks: map[string]string{"storage": "healthy"},
		})
		return
	}

	// Perform a fresh check if not ready
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := hc.probe(ctx); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(ReadinessResponse{
			Status: "not_ready",
			Checks: map[string]string{"storage": "unhealthy"},
			Error:  err.Error(),
		})
		return
	}

	hc.mu.Lock()
	hc.ready = true
	hc.lastCheck = time.Now()
	hc.mu.Unlock()

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(ReadinessResponse{
		Status: "ready",
		Checks: map[string]string{"storage": "healthy"},
	})
}

// backgroundCheck performs periodic health checks.
func (hc *HealthCheck) backgroundCheck() {
	ticker := time.NewTicker(hc.checkInterval)
	defer ticker.Stop()

	for range ticker.C {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := hc.probe(ctx)
		cancel()

		hc.mu.Lock()
		if err != nil {
			hc.ready = false
			hc.logger.Warn("health check failed", zap.Error(err))
		} else {
			hc.ready = true
		}
		hc.lastCheck = time.Now()
		hc.mu.Unlock()
	}
}

// IsReady returns the current readiness status.
func (hc *HealthCheck) IsReady() bool {
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	return hc.ready
}

// SetReady sets the readiness status (for testing).
func (hc *HealthCheck) SetReady(ready bool) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.ready = ready
}
