// Package types holds the data model shared by the tandem server and
// its clients.
package types

// Session is one conversation. IDs descend, so a plain key listing
// yields newest-first order.
type Session struct {
	ID        string        `json:"id"`
	Title     string        `json:"title"`
	Directory string        `json:"directory,omitempty"`
	Share     *SessionShare `json:"share,omitempty"`
	Time      SessionTime   `json:"time"`
}

// SessionTime carries session timestamps in unix milliseconds.
type SessionTime struct {
	Created int64 `json:"created"`
	Updated int64 `json:"updated"`
}

// SessionShare records that a session has been shared.
type SessionShare struct {
	Token string `json:"token"`
	URL   string `json:"url,omitempty"`
}

// Shared reports whether the session currently carries a share token.
func (s *Session) Shared() bool {
	return s.Share != nil && s.Share.Token != ""
}
