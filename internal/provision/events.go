// Package provision implements the sequential group-creation workflow: one
// create-configure-publish cycle per group over a tenant's live connection,
// with inter-group pacing and an ordered progress event stream.
package provision

import "fmt"

// EventType identifies a progress event kind.
type EventType string

const (
	EventStart       EventType = "start"
	EventDescription EventType = "description"
	EventImage       EventType = "image"
	EventAdmin       EventType = "admin"
	EventLink        EventType = "link"
	EventFailed      EventType = "failed"
	EventWait        EventType = "wait"
	EventError       EventType = "error"
	EventComplete    EventType = "complete"
)

// Action is the sub-phase of a description, image, or admin event.
type Action string

const (
	ActionSetting Action = "setting"
	ActionSuccess Action = "success"
	ActionFailed  Action = "failed"
	ActionAdding  Action = "adding"
	ActionResult  Action = "result"
	ActionError   Action = "error"
)

// AdminStatus is the outcome class of the admin-promotion sub-step.
type AdminStatus string

const (
	AdminSuccess  AdminStatus = "success"
	AdminInvited  AdminStatus = "invited"
	AdminSkipped  AdminStatus = "skipped"
	AdminNotFound AdminStatus = "not_found"
	AdminFailed   AdminStatus = "failed"
	AdminError    AdminStatus = "error"
)

// AdminOutcome is the tagged result of the admin-promotion sub-step, always
// carrying a human-readable reason.
type AdminOutcome struct {
	Status AdminStatus `json:"status"`
	Reason string      `json:"reason,omitempty"`
}

// Message renders the outcome for the progress stream.
func (o AdminOutcome) Message(adminNumber, groupName string) string {
	switch o.Status {
	case AdminSuccess:
		return fmt.Sprintf("%s successfully added and promoted to admin in %s", adminNumber, groupName)
	case AdminInvited:
		return fmt.Sprintf("%s has been sent an invite link for %s (will be promoted after joining)", adminNumber, groupName)
	case AdminSkipped:
		return fmt.Sprintf("skipped adding %s to %s: %s", adminNumber, groupName, o.Reason)
	case AdminNotFound:
		return fmt.Sprintf("%s not found on the platform, skipped for %s", adminNumber, groupName)
	case AdminFailed:
		return fmt.Sprintf("failed to add %s to %s: %s", adminNumber, groupName, o.Reason)
	case AdminError:
		return fmt.Sprintf("error adding %s to %s: %s", adminNumber, groupName, o.Reason)
	default:
		return fmt.Sprintf("unknown admin status for %s in %s", adminNumber, groupName)
	}
}

// Event is one frame of the progress stream. The stream for a run is ordered
// and append-only: a start event, per-group sub-events, a link or failed event
// per group, wait events between groups, and exactly one terminal complete
// event. No event is ever re-sent or retracted.
type Event struct {
	Type   EventType `json:"type"`
	Action Action    `json:"action,omitempty"`

	GroupName string `json:"groupName,omitempty"`
	GroupID   string `json:"groupId,omitempty"`
	Link      string `json:"link,omitempty"`

	Current int `json:"current,omitempty"`
	Total   int `json:"total,omitempty"`

	// start event fields
	TotalGroups int    `json:"totalGroups,omitempty"`
	StartNumber int    `json:"startNumber,omitempty"`
	BaseName    string `json:"baseName,omitempty"`

	// wait event field
	DelaySeconds float64 `json:"delaySeconds,omitempty"`

	// admin / link event fields
	AdminNumber       string        `json:"adminNumber,omitempty"`
	AdminStatus       *AdminOutcome `json:"adminStatus,omitempty"`
	AddMembersWarning bool          `json:"addMembersWarning,omitempty"`
	Warnings          []string      `json:"warnings,omitempty"`

	// complete event fields
	Success          bool     `json:"success,omitempty"`
	TotalRequested   int      `json:"totalRequested,omitempty"`
	SuccessfulGroups int      `json:"successfulGroups,omitempty"`
	FailedGroups     int      `json:"failedGroups,omitempty"`
	Failed           []string `json:"failed,omitempty"`

	Error   string `json:"error,omitempty"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message,omitempty"`
}

// GroupResult is one created group in the accumulated result list handed to
// the artifact writer.
type GroupResult struct {
	GroupName    string        `json:"groupName"`
	Link         string        `json:"link"`
	GroupID      string        `json:"groupId"`
	AdminOutcome *AdminOutcome `json:"adminOutcome,omitempty"`
	Warnings     []string      `json:"warnings,omitempty"`
}
