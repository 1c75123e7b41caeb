// Package metrics provides Prometheus metrics for the GroupForge server.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Metrics holds all Prometheus metrics.
type Metrics struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	requestsInFlight prometheus.Gauge

	sessionsConnected   prometheus.Gauge
	disconnectsTotal    *prometheus.CounterVec
	reconnectsScheduled *prometheus.CounterVec
	logoutsTotal        prometheus.Counter

	runsActive   prometheus.Gauge
	runDuration  prometheus.Histogram
	groupsTotal  *prometheus.CounterVec
	healthStatus prometheus.Gauge
}

var globalMetrics *Metrics

// NewMetrics creates and registers Prometheus metrics.
func NewMetrics() *Metrics {
	if globalMetrics != nil {
		return globalMetrics
	}

	globalMetrics = &Metrics{
		requestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "groupforge_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		requestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "groupforge_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path", "status"},
		),
		requestsInFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "groupforge_http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed",
			},
		),
		sessionsConnected: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "groupforge_sessions_connected",
				Help: "Number of tenant sessions currently connected",
			},
		),
		disconnectsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "groupforge_disconnects_total",
				Help: "Total connection closures by classified cause",
			},
			[]string{"cause"},
		),
		reconnectsScheduled: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "groupforge_reconnects_scheduled_total",
				Help: "Total automatic reconnects scheduled by cause",
			},
			[]string{"cause"},
		),
		logoutsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "groupforge_logouts_total",
				Help: "Total fatal logouts that erased tenant credentials",
			},
		),
		runsActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "groupforge_provision_runs_active",
				Help: "Number of provisioning runs currently in progress",
			},
		),
		runDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "groupforge_provision_run_duration_seconds",
				Help:    "Provisioning run duration in seconds",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
			},
		),
		groupsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "groupforge_groups_total",
				Help: "Total groups provisioned by outcome",
			},
			[]string{"outcome"},
		),
		healthStatus: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "groupforge_health_status",
				Help: "Health status of the server (1 = healthy, 0 = unhealthy)",
			},
		),
	}

	return globalMetrics
}

// RecordHTTPRequest records metrics for an HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path string, statusCode int, duration time.Duration) {
	status := strconv.Itoa(statusCode)
	m.requestsTotal.WithLabelValues(method, path, status).Inc()
	m.requestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// IncRequestsInFlight increments the in-flight requests counter.
func (m *Metrics) IncRequestsInFlight() {
	m.requestsInFlight.Inc()
}

// DecRequestsInFlight decrements the in-flight requests counter.
func (m *Metrics) DecRequestsInFlight() {
	m.requestsInFlight.Dec()
}

// SessionConnected adjusts the connected-session gauge.
func (m *Metrics) SessionConnected(connected bool) {
	if connected {
		m.sessionsConnected.Inc()
	} else {
		m.sessionsConnected.Dec()
	}
}

// RecordDisconnect counts a classified connection closure.
func (m *Metrics) RecordDisconnect(cause string) {
	m.disconnectsTotal.WithLabelValues(cause).Inc()
}

// RecordReconnect counts a scheduled automatic reconnect.
func (m *Metrics) RecordReconnect(cause string) {
	m.reconnectsScheduled.WithLabelValues(cause).Inc()
}

// RecordLogout counts a fatal logout.
func (m *Metrics) RecordLogout() {
	m.logoutsTotal.Inc()
}

// RunStarted marks a provisioning run as active.
func (m *Metrics) RunStarted() {
	m.runsActive.Inc()
}

// RunFinished marks a provisioning run as finished and records its duration.
func (m *Metrics) RunFinished(duration time.Duration) {
	m.runsActive.Dec()
	m.runDuration.Observe(duration.Seconds())
}

// RecordGroup counts one provisioned group by outcome ("success" or "failed").
func (m *Metrics) RecordGroup(outcome string) {
	m.groupsTotal.WithLabelValues(outcome).Inc()
}

// SetHealthStatus sets the health status.
func (m *Metrics) SetHealthStatus(healthy bool) {
	if healthy {
		m.healthStatus.Set(1)
	} else {
		m.healthStatus.Set(0)
	}
}

// Server provides a separate HTTP server for Prometheus metrics.
type Server struct {
	server *http.Server
	logger *zap.Logger
}

// NewServer creates a new metrics server.
func NewServer(port int, path string, logger *zap.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.Handler())

	return &Server{
		server: &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: mux,
		},
		logger: logger,
	}
}

// Start starts the metrics server.
func (s *Server) Start() error {
	s.logger.Info("starting metrics server", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the metrics server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Middleware creates middleware that records HTTP metrics.
func Middleware(m *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m.IncRequestsInFlight()
			defer m.DecRequestsInFlight()

			start := time.Now()
			rw := &metricsResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			m.RecordHTTPRequest(r.Method, r.URL.Path, rw.statusCode, time.Since(start))
		})
	}
}

// metricsResponseWriter wraps http.ResponseWriter to capture the status code.
type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

// WriteHeader captures the status code.
func (rw *metricsResponseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush forwards Flush so streamed responses keep working behind the wrapper.
func (rw *metricsResponseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
