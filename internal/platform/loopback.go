package platform

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// LoopbackDialer is an in-memory implementation of the capability surface.
// It simulates the platform handshake: an unregistered tenant gets a QR
// artifact and connects once the pairing window elapses, a registered tenant
// connects immediately. It backs local development and demos; no traffic
// leaves the process.
type LoopbackDialer struct {
	// PairingWindow is how long an unregistered tenant waits between the
	// artifact and the open event.
	PairingWindow time.Duration
}

// NewLoopbackDialer creates a loopback dialer with a short pairing window.
func NewLoopbackDialer() *LoopbackDialer {
	return &LoopbackDialer{PairingWindow: 2 * time.Second}
}

// Dial opens a simulated connection and drives the event bindings.
func (d *LoopbackDialer) Dial(ctx context.Context, creds *Credentials, ev Events) (Conn, error) {
	conn := &loopbackConn{
		done:   make(chan struct{}),
		groups: make(map[string]string),
	}

	go func() {
		if !creds.Registered {
			if ev.Artifact != nil {
				ev.Artifact(Artifact{QR: "loopback-" + uuid.New().String()})
			}
			select {
			case <-time.After(d.PairingWindow):
			case <-conn.done:
				return
			}
			creds.Registered = true
			if creds.Keys == nil {
				creds.Keys = make(map[string]string)
			}
			creds.Keys["device"] = uuid.New().String()
		}
		if ev.Opened != nil {
			ev.Opened()
		}
	}()

	return conn, nil
}

// loopbackConn fulfils every platform call from process memory.
type loopbackConn struct {
	mu     sync.Mutex
	closed bool
	done   chan struct{}
	groups map[string]string
}

func (c *loopbackConn) CreateGroup(ctx context.Context, name string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return "", fmt.Errorf("connection closed")
	}
	id := uuid.New().String()
	c.groups[id] = name
	return id, nil
}

func (c *loopbackConn) SetPermission(ctx context.Context, groupID string, s Setting) error {
	return c.requireGroup(groupID)
}

func (c *loopbackConn) SetDescription(ctx context.Context, groupID, desc string) error {
	return c.requireGroup(groupID)
}

func (c *loopbackConn) SetPicture(ctx context.Context, groupID string, img []byte) error {
	return c.requireGroup(groupID)
}

func (c *loopbackConn) InviteLink(ctx context.Context, groupID string) (string, error) {
	if err := c.requireGroup(groupID); err != nil {
		return "", err
	}
	return "https://invite.loopback/" + groupID, nil
}

func (c *loopbackConn) AddParticipant(ctx context.Context, groupID, contact string) error {
	return c.requireGroup(groupID)
}

func (c *loopbackConn) PromoteParticipant(ctx context.Context, groupID, contact string) error {
	return c.requireGroup(groupID)
}

func (c *loopbackConn) SendDirectMessage(ctx context.Context, contact, text string) error {
	return nil
}

func (c *loopbackConn) CheckPresence(ctx context.Context, number string) (bool, error) {
	return true, nil
}

func (c *loopbackConn) RequestPairingCode(ctx context.Context, phone string) (string, error) {
	code := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", ""))[:8]
	return code[:4] + "-" + code[4:], nil
}

func (c *loopbackConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.done)
	}
	return nil
}

func (c *loopbackConn) requireGroup(groupID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("connection closed")
	}
	if _, ok := c.groups[groupID]; !ok {
		return fmt.Errorf("unknown group %s", groupID)
	}
	return nil
}
