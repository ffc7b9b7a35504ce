package session

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"
)

// tokenBytes is the token entropy in bytes before base64url encoding.
const tokenBytes = 32

// Session is the server-side state for one client.
type Session struct {
	// Token is the opaque identifier carried in the client cookie.
	Token string `json:"-"`

	// Authenticated reports whether the client has presented valid
	// credentials during this session's lifetime.
	Authenticated bool `json:"authenticated"`

	// ExpiresAt is the sliding expiration deadline.
	ExpiresAt time.Time `json:"expiresAt"`

	// CreatedAt is when the session was first issued.
	CreatedAt time.Time `json:"createdAt"`
}

// Expired reports whether the session is past its deadline. An expired
// session must be treated identically to no session.
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// newToken generates a cryptographically random session token.
func newToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
