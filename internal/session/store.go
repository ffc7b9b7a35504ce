package session

import (
	"context"
	"errors"
)

// ErrNotFound is returned for tokens that were never issued or whose
// session has expired.
var ErrNotFound = errors.New("session not found")

// Store is the session persistence contract. Implementations must be
// safe for concurrent use: touch and authentication-flip operations on
// the same token must not lose updates (duplicate browser tabs).
//
// The in-process memory store is the default; the interface exists so
// an external key-value backend can be substituted without touching the
// auth gate.
type Store interface {
	// Get returns the session for a token, or ErrNotFound if the token
	// was never issued or the session has expired. Expired sessions are
	// removed lazily on access.
	Get(ctx context.Context, token string) (*Session, error)

	// Create issues a new unauthenticated session with a fresh token
	// and a full TTL window.
	Create(ctx context.Context) (*Session, error)

	// Touch extends the session's expiration to now+TTL.
	Touch(ctx context.Context, token string) error

	// SetAuthenticated flips the authenticated flag and extends the
	// expiration window.
	SetAuthenticated(ctx context.Context, token string, authenticated bool) error

	// Delete removes a session. Deleting an unknown token is not an error.
	Delete(ctx context.Context, token string) error

	// Len returns the number of live sessions.
	Len(ctx context.Context) (int, error)

	// Close releases any resources held by the store.
	Close() error
}
