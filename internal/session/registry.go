// Package session owns the per-tenant connection lifecycle: one registry of
// tenant sessions and a state machine that starts, classifies disconnects,
// reconnects, and tears down the single live connection each tenant gets.
package session

import (
	"sync"

	"github.com/groupforge/groupforge/internal/platform"
)

// State is the lifecycle state of a tenant session.
type State int

const (
	// StateIdle means no connection attempt is in flight.
	StateIdle State = iota
	// StateStarting means a dial is in progress; a pending auth artifact on
	// the session marks the awaiting-authorization sub-state.
	StateStarting
	// StateConnected means the connection handle is live and authenticated.
	StateConnected
	// StateLoggedOut is terminal until an operator restarts the tenant.
	StateLoggedOut
)

// String returns the state name used in logs.
func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateConnected:
		return "connected"
	case StateLoggedOut:
		return "logged_out"
	default:
		return "idle"
	}
}

// Session is the record for one tenant. All fields are guarded by mu and
// mutated only by the Manager. The connection handle is exclusively owned:
// starting a new one supersedes the prior handle wholesale, and the generation
// counter discards events from superseded bindings.
type Session struct {
	mu sync.Mutex

	tenantID      string
	state         State
	transitioning bool
	conn          platform.Conn
	artifact      platform.Artifact
	generation    uint64
}

// TenantID returns the session's tenant identifier.
func (s *Session) TenantID() string {
	return s.tenantID
}

// Registry maps tenant ids to session records. It supports safe concurrent
// insertion and lookup; registry-wide operations never block on a single
// tenant's long-running connect sequence, which serializes on the session's
// own mutex.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// GetOrCreate returns the session for a tenant, creating it on first access.
// It never overwrites an existing live session. There is no external delete:
// teardown is internal to the state machine.
func (r *Registry) GetOrCreate(tenantID string) *Session {
	r.mu.RLock()
	sess, ok := r.sessions[tenantID]
	r.mu.RUnlock()
	if ok {
		return sess
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if sess, ok := r.sessions[tenantID]; ok {
		return sess
	}
	sess = &Session{tenantID: tenantID, state: StateIdle}
	r.sessions[tenantID] = sess
	return sess
}

// Get returns the session for a tenant if one exists.
func (r *Registry) Get(tenantID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.sessions[tenantID]
	return sess, ok
}

// Len returns the number of known tenants.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
