package session

import (
	"context"
	"fmt"
	"time"

	"github.com/groupforge/groupforge/internal/config"
	"github.com/groupforge/groupforge/internal/credential"
	"github.com/groupforge/groupforge/internal/metrics"
	"github.com/groupforge/groupforge/internal/platform"
	"go.uber.org/zap"
)

// Status is the externally visible connection state of a tenant.
type Status struct {
	Connected          bool `json:"connected"`
	HasPendingArtifact bool `json:"hasQR"`
}

// Manager is the connection state machine. It drives one session per tenant:
// start, authenticate, classify disconnects, reconnect or halt. It is the only
// component that touches a tenant's credential material.
type Manager struct {
	registry *Registry
	creds    *credential.Store
	dialer   platform.Dialer
	delays   config.DelayConfig
	timeout  time.Duration
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

// NewManager creates a connection manager.
func NewManager(
	registry *Registry,
	creds *credential.Store,
	dialer platform.Dialer,
	delays config.DelayConfig,
	callTimeout time.Duration,
	logger *zap.Logger,
	m *metrics.Metrics,
) *Manager {
	return &Manager{
		registry: registry,
		creds:    creds,
		dialer:   dialer,
		delays:   delays,
		timeout:  callTimeout,
		logger:   logger,
		metrics:  m,
	}
}

// Start opens a connection for the tenant. It is a no-op when a start is
// already in flight or the tenant is connected; the transitioning guard makes
// concurrent calls safe. Dial failures schedule one retry.
func (m *Manager) Start(tenantID string) error {
	if tenantID == "" {
		return fmt.Errorf("tenant id is required")
	}

	sess := m.registry.GetOrCreate(tenantID)

	sess.mu.Lock()
	if sess.transitioning || sess.state == StateStarting || sess.state == StateConnected {
		sess.mu.Unlock()
		return nil
	}
	sess.transitioning = true
	sess.state = StateStarting
	sess.generation++
	gen := sess.generation
	prior := sess.conn
	sess.conn = nil
	sess.mu.Unlock()

	// A new start always supersedes the previous handle and its bindings.
	if prior != nil {
		if err := prior.Close(); err != nil {
			m.logger.Warn("failed to close superseded connection",
				zap.String("tenant_id", tenantID), zap.Error(err))
		}
	}

	creds, err := m.creds.Load(tenantID)
	if err != nil {
		m.finishStart(sess, StateIdle)
		return fmt.Errorf("failed to load credentials: %w", err)
	}

	ev := platform.Events{
		Artifact: func(a platform.Artifact) { m.onArtifact(sess, gen, a) },
		Opened:   func() { m.onOpened(sess, gen, creds) },
		Closed:   func(code platform.ReasonCode) { m.onClosed(sess, gen, code) },
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	conn, err := m.dialer.Dial(ctx, creds, ev)
	if err != nil {
		m.finishStart(sess, StateIdle)
		m.logger.Error("dial failed",
			zap.String("tenant_id", tenantID), zap.Error(err))
		m.scheduleReconnect(tenantID, platform.CauseConnectionLost)
		return fmt.Errorf("failed to connect tenant %s: %w", tenantID, err)
	}

	sess.mu.Lock()
	if gen != sess.generation {
		// Superseded while dialing; the fresher start owns the session now.
		sess.mu.Unlock()
		conn.Close()
		return nil
	}
	sess.conn = conn
	sess.transitioning = false
	sess.mu.Unlock()

	m.logger.Info("connection attempt started", zap.String("tenant_id", tenantID))
	return nil
}

// Restart forcibly closes any live handle, wipes in-memory state and persisted
// credentials, then begins a fully fresh authentication cycle after the
// quiescence delay. Safe to call with no prior session.
func (m *Manager) Restart(tenantID string) error {
	if tenantID == "" {
		return fmt.Errorf("tenant id is required")
	}

	m.logger.Info("forcing connection restart", zap.String("tenant_id", tenantID))

	sess := m.registry.GetOrCreate(tenantID)

	sess.mu.Lock()
	sess.generation++ // discard event bindings of whatever was live
	prior := sess.conn
	wasConnected := sess.state == StateConnected
	sess.conn = nil
	sess.state = StateIdle
	sess.artifact = platform.Artifact{}
	sess.transitioning = false
	sess.mu.Unlock()

	if wasConnected {
		m.metrics.SessionConnected(false)
	}
	if prior != nil {
		if err := prior.Close(); err != nil {
			m.logger.Warn("failed to close connection on restart",
				zap.String("tenant_id", tenantID), zap.Error(err))
		}
	}

	if err := m.creds.Erase(tenantID); err != nil {
		return fmt.Errorf("failed to erase credentials: %w", err)
	}

	go func() {
		time.Sleep(m.delays.RestartQuiesce)
		if err := m.Start(tenantID); err != nil {
			m.logger.Error("restart dial failed",
				zap.String("tenant_id", tenantID), zap.Error(err))
		}
	}()

	return nil
}

// Status reports the classified connection state, never raw platform errors.
func (m *Manager) Status(tenantID string) Status {
	sess, ok := m.registry.Get(tenantID)
	if !ok {
		return Status{}
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return Status{
		Connected:          sess.state == StateConnected,
		HasPendingArtifact: !sess.artifact.Empty(),
	}
}

// State returns the lifecycle state of a tenant.
func (m *Manager) State(tenantID string) State {
	sess, ok := m.registry.Get(tenantID)
	if !ok {
		return StateIdle
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.state
}

// Artifact returns the pending auth artifact, if any.
func (m *Manager) Artifact(tenantID string) platform.Artifact {
	sess, ok := m.registry.Get(tenantID)
	if !ok {
		return platform.Artifact{}
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.artifact
}

// Known reports whether the tenant has a session record.
func (m *Manager) Known(tenantID string) bool {
	_, ok := m.registry.Get(tenantID)
	return ok
}

// Conn returns the live connection handle, or nil whenever the tenant is not
// connected.
func (m *Manager) Conn(tenantID string) platform.Conn {
	sess, ok := m.registry.Get(tenantID)
	if !ok {
		return nil
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.state != StateConnected {
		return nil
	}
	return sess.conn
}

// RequestPairingCode asks the platform for a pairing code on the current dial
// and records it as the pending auth artifact. It works on a connection that
// is still authenticating, unlike Conn which requires the connected state.
func (m *Manager) RequestPairingCode(ctx context.Context, tenantID, phone string) (string, error) {
	sess, ok := m.registry.Get(tenantID)
	if !ok {
		return "", fmt.Errorf("no session for tenant %s", tenantID)
	}

	sess.mu.Lock()
	conn := sess.conn
	sess.mu.Unlock()
	if conn == nil {
		return "", fmt.Errorf("no connection attempt in progress for tenant %s", tenantID)
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	code, err := conn.RequestPairingCode(ctx, phone)
	if err != nil {
		return "", fmt.Errorf("failed to request pairing code: %w", err)
	}

	sess.mu.Lock()
	sess.artifact = platform.Artifact{PairingCode: code}
	sess.mu.Unlock()

	m.logger.Info("pairing code issued", zap.String("tenant_id", tenantID))
	return code, nil
}

// onArtifact stores a newly issued auth artifact, superseding any previous one.
func (m *Manager) onArtifact(sess *Session, gen uint64, a platform.Artifact) {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if gen != sess.generation {
		return
	}
	sess.artifact = a
	m.logger.Info("auth artifact issued", zap.String("tenant_id", sess.tenantID))
}

// onOpened marks the session connected and persists the credential material.
func (m *Manager) onOpened(sess *Session, gen uint64, creds *platform.Credentials) {
	sess.mu.Lock()
	if gen != sess.generation {
		sess.mu.Unlock()
		return
	}
	sess.state = StateConnected
	sess.artifact = platform.Artifact{}
	sess.transitioning = false
	sess.mu.Unlock()

	m.metrics.SessionConnected(true)
	m.logger.Info("connection opened", zap.String("tenant_id", sess.tenantID))

	if err := m.creds.Save(sess.tenantID, creds); err != nil {
		m.logger.Error("failed to persist credentials",
			zap.String("tenant_id", sess.tenantID), zap.Error(err))
	}
}

// onClosed classifies the close reason and decides whether to reconnect, halt,
// or log the tenant out. This table is the correctness core of the lifecycle
// manager.
func (m *Manager) onClosed(sess *Session, gen uint64, code platform.ReasonCode) {
	cause := platform.Classify(code)

	sess.mu.Lock()
	if gen != sess.generation {
		sess.mu.Unlock()
		return
	}
	wasConnected := sess.state == StateConnected
	sess.conn = nil
	sess.transitioning = false

	if cause.Fatal() {
		sess.state = StateLoggedOut
		sess.artifact = platform.Artifact{}
	} else {
		sess.state = StateIdle
	}
	sess.mu.Unlock()

	if wasConnected {
		m.metrics.SessionConnected(false)
	}
	m.metrics.RecordDisconnect(cause.String())

	m.logger.Warn("connection closed",
		zap.String("tenant_id", sess.tenantID),
		zap.Int("reason_code", int(code)),
		zap.String("cause", cause.String()))

	switch cause {
	case platform.CauseLoggedOut:
		// The platform invalidated the session; reconnecting with the same
		// credentials would be rejected forever.
		m.metrics.RecordLogout()
		if err := m.creds.Erase(sess.tenantID); err != nil {
			m.logger.Error("failed to erase credentials after logout",
				zap.String("tenant_id", sess.tenantID), zap.Error(err))
		}
	case platform.CauseReplaced:
		// Another client owns the session. Auto-reconnecting here starts a
		// fight over the session; the operator must restart deliberately.
		m.logger.Warn("connection replaced elsewhere, not reconnecting",
			zap.String("tenant_id", sess.tenantID))
	default:
		m.scheduleReconnect(sess.tenantID, cause)
	}
}

// scheduleReconnect arms exactly one reconnect attempt with the backoff for
// the given cause.
func (m *Manager) scheduleReconnect(tenantID string, cause platform.Cause) {
	backoff := m.backoffFor(cause)
	m.metrics.RecordReconnect(cause.String())
	m.logger.Info("reconnect scheduled",
		zap.String("tenant_id", tenantID),
		zap.String("cause", cause.String()),
		zap.Duration("backoff", backoff))

	time.AfterFunc(backoff, func() {
		if err := m.Start(tenantID); err != nil {
			m.logger.Error("reconnect failed",
				zap.String("tenant_id", tenantID), zap.Error(err))
		}
	})
}

// backoffFor returns the fixed backoff for a transient cause.
func (m *Manager) backoffFor(cause platform.Cause) time.Duration {
	switch cause {
	case platform.CauseRestartRequired:
		return m.delays.ReconnectRestart
	case platform.CauseConnectionLost:
		return m.delays.ReconnectLost
	case platform.CauseTimedOut:
		return m.delays.ReconnectTimeout
	default:
		return m.delays.ReconnectUnknown
	}
}

// finishStart clears the transitioning guard after a failed start.
func (m *Manager) finishStart(sess *Session, state State) {
	sess.mu.Lock()
	sess.transitioning = false
	sess.state = state
	sess.mu.Unlock()
}
