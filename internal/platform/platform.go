// Package platform defines the connection capability consumed by the session
// manager and the provisioning pipeline. It is the only boundary to the
// messaging platform's wire protocol: the rest of the system drives these
// interfaces and reacts to their events without knowing how frames move.
package platform

import "context"

// Setting is a group-level permission toggle.
type Setting string

const (
	// SettingUnlocked lets every member edit group info and add members.
	SettingUnlocked Setting = "unlocked"
	// SettingOpenMessaging lets every member send messages.
	SettingOpenMessaging Setting = "not_announcement"
)

// Artifact is the pending authentication artifact presented to the end user
// to authorize a new connection. QR and PairingCode are mutually exclusive.
type Artifact struct {
	QR          string `json:"qr,omitempty"`
	PairingCode string `json:"pairingCode,omitempty"`
}

// Empty reports whether no artifact is pending.
func (a Artifact) Empty() bool {
	return a.QR == "" && a.PairingCode == ""
}

// Events carries the three reactions a dial binds to the new connection.
// Callbacks may be invoked from the connection's own goroutines.
type Events struct {
	Artifact func(Artifact)
	Opened   func()
	Closed   func(ReasonCode)
}

// Credentials is the opaque per-tenant auth material handed to Dial. The
// session manager persists whatever the connection puts here; the platform
// binding owns the contents.
type Credentials struct {
	Registered bool              `json:"registered"`
	Keys       map[string]string `json:"keys,omitempty"`
}

// Dialer opens authenticated connections. Implementations wrap the actual
// protocol client; tests inject fakes.
type Dialer interface {
	Dial(ctx context.Context, creds *Credentials, ev Events) (Conn, error)
}

// Conn is a live, authenticated session handle. All operations must respect
// the context deadline; a stuck call blocks the caller's whole sequential run.
type Conn interface {
	// CreateGroup creates an empty group and returns its platform identifier.
	CreateGroup(ctx context.Context, name string) (string, error)
	// SetPermission applies a group permission toggle.
	SetPermission(ctx context.Context, groupID string, s Setting) error
	// SetDescription sets the group description.
	SetDescription(ctx context.Context, groupID, description string) error
	// SetPicture sets the group picture from raw image bytes.
	SetPicture(ctx context.Context, groupID string, image []byte) error
	// InviteLink returns the shareable invite link for the group.
	InviteLink(ctx context.Context, groupID string) (string, error)
	// AddParticipant adds a contact to the group.
	AddParticipant(ctx context.Context, groupID, contact string) error
	// PromoteParticipant promotes a group member to admin.
	PromoteParticipant(ctx context.Context, groupID, contact string) error
	// SendDirectMessage sends a one-to-one text message.
	SendDirectMessage(ctx context.Context, contact, text string) error
	// CheckPresence reports whether a numeric contact is registered on the
	// platform.
	CheckPresence(ctx context.Context, number string) (bool, error)
	// RequestPairingCode asks the platform for a numeric pairing code bound
	// to the given phone number, as an alternative to scanning a QR.
	RequestPairingCode(ctx context.Context, phone string) (string, error)
	// Close tears the connection down.
	Close() error
}
