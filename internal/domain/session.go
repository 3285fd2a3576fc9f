package domain

// DefaultSessionID is used when a request carries no tab session identifier.
const DefaultSessionID = "default"

// Session identifies the authenticated user and browser tab an operation runs
// for. It is passed explicitly into every persistence call.
type Session struct {
	UserID    string
	SessionID string
}

// Authenticated reports whether the session carries a user.
func (s Session) Authenticated() bool {
	return s.UserID != ""
}

// Key returns a stable map key for the user/tab pair.
func (s Session) Key() string {
	sid := s.SessionID
	if sid == "" {
		sid = DefaultSessionID
	}
	return s.UserID + ":" + sid
}
