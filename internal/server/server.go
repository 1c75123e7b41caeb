// Package server provides the HTTP server implementation for GroupForge.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/groupforge/groupforge/internal/accesscode"
	"github.com/groupforge/groupforge/internal/config"
	apierrors "github.com/groupforge/groupforge/internal/errors"
	"github.com/groupforge/groupforge/internal/handler"
	"github.com/groupforge/groupforge/internal/health"
	"github.com/groupforge/groupforge/internal/metrics"
	"github.com/groupforge/groupforge/internal/middleware"
	"github.com/groupforge/groupforge/internal/provision"
	"github.com/groupforge/groupforge/internal/session"
	"go.uber.org/zap"
)

// Server represents the HTTP server.
type Server struct {
	router       *mux.Router
	httpServer   *http.Server
	handlers     *handler.Handlers
	healthCheck  *health.HealthCheck
	errorHandler *apierrors.Handler
	metrics      *metrics.Metrics
	logger       *zap.Logger
	cfg          *config.Config
}

// NewServer creates a new HTTP server.
func NewServer(
	cfg *config.Config,
	sessions *session.Manager,
	runner *provision.Runner,
	access *accesscode.Store,
	probe health.Probe,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Server {
	router := mux.NewRouter()
	errorHandler := apierrors.NewHandler(logger)
	handlers := handler.NewHandlers(sessions, runner, provision.NewGate(),
		access, errorHandler, logger, cfg.Provision)
	healthCheck := health.NewHealthCheck(probe, logger)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return &Server{
		router:       router,
		httpServer:   httpServer,
		handlers:     handlers,
		healthCheck:  healthCheck,
		errorHandler: errorHandler,
		metrics:      m,
		logger:       logger,
		cfg:          cfg,
	}
}

// SetupRoutes configures all HTTP routes.
func (s *Server) SetupRoutes() {
	// Setup middleware chain
	middlewareChain := []func(http.Handler) http.Handler{
		middleware.Recovery(s.logger),
		middleware.RequestID,
		middleware.Logging(s.logger),
		middleware.CORS([]string{"*"}),
	}

	if s.cfg.Metrics.Enabled {
		middlewareChain = append(middlewareChain, metrics.Middleware(s.metrics))
	}

	// Add rate limiter if enabled
	if s.cfg.RateLimiter.Enabled {
		rateLimiter := middleware.NewRateLimiter(
			s.cfg.RateLimiter.RequestsPerSecond,
			s.cfg.RateLimiter.BurstSize,
			s.logger,
		)
		middlewareChain = append(middlewareChain, rateLimiter.Limit)
	}

	// Apply middleware to router
	chain := middleware.Chain(middlewareChain...)
	s.router.Use(func(next http.Handler) http.Handler {
		return chain(next)
	})

	// Liveness endpoints
	s.router.HandleFunc("/", s.handlers.Root).Methods(http.MethodGet)
	s.router.HandleFunc("/ping", s.handlers.Ping).Methods(http.MethodGet)
	s.router.HandleFunc("/health", s.healthCheck.LivenessHandler).Methods(http.MethodGet)
	s.router.HandleFunc("/ready", s.healthCheck.ReadinessHandler).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api").Subrouter()

	// Connection lifecycle
	api.HandleFunc("/qr", s.handlers.GetQR).Methods(http.MethodGet)
	api.HandleFunc("/pairing-code", s.handlers.GetPairingCode).Methods(http.MethodGet)
	api.HandleFunc("/use-pairing-code", s.handlers.UsePairingCode).Methods(http.MethodPost)
	api.HandleFunc("/status", s.handlers.GetStatus).Methods(http.MethodGet)
	api.HandleFunc("/restart", s.handlers.Restart).Methods(http.MethodPost)

	// Group provisioning
	api.HandleFunc("/create-groups", s.handlers.CreateGroups).Methods(http.MethodPost)

	// Access codes and notice
	api.HandleFunc("/login", s.handlers.Login).Methods(http.MethodPost)
	api.HandleFunc("/notice", s.handlers.GetNotice).Methods(http.MethodGet)

	admin := api.PathPrefix("/admin").Subrouter()
	admin.HandleFunc("/users", s.handlers.GetUsers).Methods(http.MethodGet)
	admin.HandleFunc("/add-user", s.handlers.AddUser).Methods(http.MethodPost)
	admin.HandleFunc("/remove-user", s.handlers.RemoveUser).Methods(http.MethodPost)
	admin.HandleFunc("/update-notice", s.handlers.UpdateNotice).Methods(http.MethodPost)

	// Not found handler
	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		s.errorHandler.WriteErrorResponse(w, http.StatusNotFound, apierrors.ErrorCodeNotFound, "endpoint not found", requestID)
	})

	// Method not allowed handler
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		s.errorHandler.WriteErrorResponse(w, http.StatusMethodNotAllowed, apierrors.ErrorCodeInvalidRequest, "method not allowed", requestID)
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server",
		zap.Int("port", s.cfg.Server.Port),
	)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// GetHandler returns the http.Handler for the server.
func (s *Server) GetHandler() http.Handler {
	return s.router
}
