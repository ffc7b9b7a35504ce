package auth

import (
	"crypto/subtle"
	"strings"
	"sync/atomic"

	"golang.org/x/crypto/bcrypt"
)

// Verifier checks extracted credentials against the single configured
// pair. The pair is swappable at runtime for config hot reload.
type Verifier struct {
	creds atomic.Pointer[Credentials]
}

// NewVerifier creates a verifier for the configured pair. The password
// may be plaintext or a bcrypt hash.
func NewVerifier(username, password string) *Verifier {
	v := &Verifier{}
	v.SetCredentials(username, password)
	return v
}

// SetCredentials atomically replaces the configured pair.
func (v *Verifier) SetCredentials(username, password string) {
	v.creds.Store(&Credentials{Username: username, Password: password})
}

// Verify reports whether the pair matches the configured credentials.
// Comparison is constant-time; both fields are always compared so the
// timing does not reveal which one mismatched.
func (v *Verifier) Verify(c Credentials) bool {
	cfg := v.creds.Load()

	userOK := subtle.ConstantTimeCompare([]byte(c.Username), []byte(cfg.Username)) == 1

	var passOK bool
	if isBcryptHash(cfg.Password) {
		passOK = bcrypt.CompareHashAndPassword([]byte(cfg.Password), []byte(c.Password)) == nil
	} else {
		passOK = subtle.ConstantTimeCompare([]byte(c.Password), []byte(cfg.Password)) == 1
	}

	return userOK && passOK
}

// isBcryptHash reports whether the configured password is stored as a
// bcrypt hash rather than plaintext.
func isBcryptHash(s string) bool {
	return strings.HasPrefix(s, "$2a$") ||
		strings.HasPrefix(s, "$2b$") ||
		strings.HasPrefix(s, "$2y$")
}
