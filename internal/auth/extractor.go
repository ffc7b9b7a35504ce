package auth

import (
	"encoding/base64"
	"net/http"
	"strings"
)

// Credentials is a username/password pair extracted from a request.
type Credentials struct {
	Username string
	Password string
}

// Extractor attempts to pull credentials out of a request using one
// encoding. Extractors are tried in order; the first success wins.
type Extractor interface {
	// Name identifies the extractor in logs.
	Name() string

	// Extract returns the credentials and true on success. Decode
	// errors and missing fields report false, never an error.
	Extract(r *http.Request) (Credentials, bool)
}

// DefaultExtractors returns the supported encodings in priority order:
// the Basic header first, then the base64-per-field form body.
func DefaultExtractors() []Extractor {
	return []Extractor{
		BasicExtractor{},
		FormExtractor{},
	}
}

// Extract runs the extractors in order and returns the first match.
func Extract(r *http.Request, extractors []Extractor) (Credentials, bool) {
	for _, e := range extractors {
		if creds, ok := e.Extract(r); ok {
			return creds, true
		}
	}
	return Credentials{}, false
}

// BasicExtractor decodes an HTTP Basic Authorization header:
// base64(username:password), split on the first colon so the password
// may itself contain colons.
type BasicExtractor struct{}

// Name implements Extractor.
func (BasicExtractor) Name() string { return "basic" }

// Extract implements Extractor.
func (BasicExtractor) Extract(r *http.Request) (Credentials, bool) {
	header := r.Header.Get("Authorization")
	const prefix = "Basic "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return Credentials{}, false
	}

	decoded, err := base64.StdEncoding.DecodeString(header[len(prefix):])
	if err != nil {
		return Credentials{}, false
	}

	username, password, found := strings.Cut(string(decoded), ":")
	if !found {
		return Credentials{}, false
	}

	return Credentials{Username: username, Password: password}, true
}

// FormExtractor decodes form fields that are individually
// base64-encoded (not the combined pair). Used when no Basic header is
// present, matching the login page's submission encoding.
type FormExtractor struct{}

// Name implements Extractor.
func (FormExtractor) Name() string { return "form" }

// Extract implements Extractor.
func (FormExtractor) Extract(r *http.Request) (Credentials, bool) {
	userB64 := r.PostFormValue("username")
	passB64 := r.PostFormValue("password")
	if userB64 == "" || passB64 == "" {
		return Credentials{}, false
	}

	username, err := base64.StdEncoding.DecodeString(userB64)
	if err != nil {
		return Credentials{}, false
	}
	password, err := base64.StdEncoding.DecodeString(passB64)
	if err != nil {
		return Credentials{}, false
	}

	return Credentials{Username: string(username), Password: string(password)}, true
}
