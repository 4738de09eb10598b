// Package tabs connects a browser tab to its server-side session guard over a
// websocket. The tab reports visibility, focus and unload; the server answers
// with the authentication state and navigation orders.
package tabs

// Client message types.
const (
	TypeHello      = "hello"
	TypeVisibility = "visibility"
	TypeFocus      = "focus"
	TypeUnload     = "unload"
)

// Server message types.
const (
	TypeAuth     = "auth"
	TypeNavigate = "navigate"
	TypeError    = "error"
)

// ClientMessage is sent by the tab.
type ClientMessage struct {
	Type string `json:"type"`
	// Protected is set on hello when the page shows protected content.
	Protected bool `json:"protected,omitempty"`
	// State is "visible" or "hidden" on visibility.
	State string `json:"state,omitempty"`
}

// ServerMessage is sent to the tab.
type ServerMessage struct {
	Type          string `json:"type"`
	Authenticated *bool  `json:"authenticated,omitempty"`
	Path          string `json:"path,omitempty"`
	Replace       bool   `json:"replace,omitempty"`
	Message       string `json:"message,omitempty"`
}

func authMessage(authenticated bool) ServerMessage {
	return ServerMessage{Type: TypeAuth, Authenticated: &authenticated}
}

func navigateMessage(path string) ServerMessage {
	return ServerMessage{Type: TypeNavigate, Path: path, Replace: true}
}

func errorMessage(msg string) ServerMessage {
	return ServerMessage{Type: TypeError, Message: msg}
}
