package platform

// ReasonCode is the raw, platform-supplied cause of a connection closure.
type ReasonCode int

// Known close status codes emitted by the platform.
const (
	ReasonLoggedOut       ReasonCode = 401
	ReasonForbidden       ReasonCode = 403
	ReasonTimedOut        ReasonCode = 408
	ReasonConnectionLost  ReasonCode = 428
	ReasonReplaced        ReasonCode = 440
	ReasonRestartRequired ReasonCode = 515
)

// Cause is the classified disconnect cause. The classification table is the
// core correctness contract of the lifecycle manager: treating a fatal cause
// as transient produces an infinite reconnect loop against a platform that
// keeps rejecting the session, and treating a transient cause as fatal throws
// away perfectly good credentials.
type Cause int

const (
	// CauseUnknown covers unclassified codes; retried with the longest backoff.
	CauseUnknown Cause = iota
	// CauseLoggedOut is fatal: the platform invalidated the session.
	CauseLoggedOut
	// CauseRestartRequired is transient; the platform asks for a fresh dial.
	CauseRestartRequired
	// CauseConnectionLost is transient network loss.
	CauseConnectionLost
	// CauseTimedOut is a transient keepalive or dial timeout.
	CauseTimedOut
	// CauseReplaced means another client took over the session. Reconnecting
	// automatically would fight that client over the session forever, so it
	// requires a manual restart.
	CauseReplaced
)

// String returns the cause name used in logs and metrics labels.
func (c Cause) String() string {
	switch c {
	case CauseLoggedOut:
		return "logged_out"
	case CauseRestartRequired:
		return "restart_required"
	case CauseConnectionLost:
		return "connection_lost"
	case CauseTimedOut:
		return "timed_out"
	case CauseReplaced:
		return "replaced"
	default:
		return "unknown"
	}
}

// Fatal reports whether the cause invalidates the persisted credentials.
func (c Cause) Fatal() bool {
	return c == CauseLoggedOut
}

// Classify maps a raw close status to its handling class.
func Classify(code ReasonCode) Cause {
	switch code {
	case ReasonLoggedOut, ReasonForbidden:
		return CauseLoggedOut
	case ReasonRestartRequired:
		return CauseRestartRequired
	case ReasonConnectionLost:
		return CauseConnectionLost
	case ReasonTimedOut:
		return CauseTimedOut
	case ReasonReplaced:
		return CauseReplaced
	default:
		return CauseUnknown
	}
}
