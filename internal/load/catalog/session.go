package catalog

import (
	"net/http"

	"github.com/google/uuid"
)

// Session is the private state of one simulated user.
//
// A Session is owned by exactly one goroutine and is not safe for
// concurrent use.
type Session struct {
	// ID correlates log lines for one simulated user.
	ID string

	token         string
	lastProductID string
}

// NewSession creates an unauthenticated session with a fresh ID.
func NewSession() *Session {
	return &Session{ID: uuid.NewString()}
}

// Token returns the bearer token, if one has been captured.
func (s *Session) Token() (string, bool) {
	return s.token, s.token != ""
}

// SetToken stores the bearer token. Empty tokens are ignored.
func (s *Session) SetToken(token string) {
	if token != "" {
		s.token = token
	}
}

// Authenticated reports whether the session holds a token.
func (s *Session) Authenticated() bool {
	return s.token != ""
}

// LastProductID returns the id captured from the latest product listing.
func (s *Session) LastProductID() (string, bool) {
	return s.lastProductID, s.lastProductID != ""
}

// SetLastProductID remembers a product id for later detail views.
func (s *Session) SetLastProductID(id string) {
	if id != "" {
		s.lastProductID = id
	}
}

// Headers builds the per-request headers derived from session state.
// A new header map is returned on every call.
func (s *Session) Headers() http.Header {
	h := make(http.Header)
	h.Set("Accept", "application/json")
	if s.token != "" {
		h.Set("Authorization", "Bearer "+s.token)
	}
	return h
}
