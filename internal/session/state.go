package session

// State is the lifecycle state of a guarded session.
type State int

const (
	// StateSignedOut means no token is held.
	StateSignedOut State = iota
	// StateActive means a token is held and the context is in the foreground.
	StateActive
	// StateAway means a token is held and the context went to the background.
	StateAway
	// StateExpired means the session was dropped by the inactivity timeout.
	StateExpired
)

// String returns the state name used in logs.
func (s State) String() string {
	switch s {
	case StateSignedOut:
		return "signed_out"
	case StateActive:
		return "active"
	case StateAway:
		return "away"
	case StateExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Authenticated reports whether the state holds a token.
func (s State) Authenticated() bool {
	return s == StateActive || s == StateAway
}

// Visibility is the foreground state reported by the host.
type Visibility int

const (
	Visible Visibility = iota
	Hidden
)

// ParseVisibility maps the browser's document.visibilityState values.
func ParseVisibility(s string) (Visibility, bool) {
	switch s {
	case "visible":
		return Visible, true
	case "hidden":
		return Hidden, true
	default:
		return Visible, false
	}
}

// Event is reported to the guard's observer.
type Event string

const (
	EventLogin        Event = "login"
	EventLogout       Event = "logout"
	EventExpired      Event = "expired"
	EventRemoteLogin  Event = "remote_login"
	EventRemoteLogout Event = "remote_logout"
)
