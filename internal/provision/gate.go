package provision

import "sync"

// Gate enforces single-flight provisioning per tenant. Interleaved writes
// through one connection handle corrupt platform-side ordering assumptions,
// so a second run for a tenant is rejected while one is active. Different
// tenants proceed independently.
type Gate struct {
	mu     sync.Mutex
	active map[string]struct{}
}

// NewGate creates an empty gate.
func NewGate() *Gate {
	return &Gate{active: make(map[string]struct{})}
}

// Acquire reserves the tenant's run slot. It returns false when a run is
// already active for that tenant.
func (g *Gate) Acquire(tenantID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.active[tenantID]; busy {
		return false
	}
	g.active[tenantID] = struct{}{}
	return true
}

// Release frees the tenant's run slot.
func (g *Gate) Release(tenantID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.active, tenantID)
}
