package models

// SessionState is the dialogue position of one chat conversation.
type SessionState string

const (
	StateIdle             SessionState = "idle"
	StateAwaitingLogin    SessionState = "awaiting_login"
	StateAwaitingPassword SessionState = "awaiting_password"
)

// ChatSession is the per-chat conversational state. TempLogin is held
// only between the login and password turns; UserID is set only once
// the session is authenticated and back in idle.
type ChatSession struct {
	ChatKey      string       `json:"chat_key"`
	State        SessionState `json:"state"`
	TempLogin    string       `json:"temp_login,omitempty"`
	UserID       string       `json:"user_id,omitempty"`
	ActiveSiteID string       `json:"active_site_id,omitempty"`
}

// Authenticated reports whether the session is linked to a CRM user.
func (s *ChatSession) Authenticated() bool {
	return s.UserID != ""
}
