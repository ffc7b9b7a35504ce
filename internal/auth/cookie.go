package auth

import (
	"context"
	"net/http"
)

// SessionToken returns the session token from the request cookie, or
// empty if the cookie is absent.
func SessionToken(r *http.Request, cookieName string) string {
	cookie, err := r.Cookie(cookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// SetSessionCookie issues the session cookie. HttpOnly keeps the token
// away from page scripts; Secure is set when the client connection is
// over TLS. No MaxAge is set: the cookie is session-scoped and the
// store's sliding expiration governs lifetime, so an active user is
// never cut off at a fixed wall-clock mark after login.
func SetSessionCookie(w http.ResponseWriter, r *http.Request, cookieName, token string, trustForwarded bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   requestIsTLS(r, trustForwarded),
	})
}

// requestIsTLS reports whether the client reached us over HTTPS. The
// X-Forwarded-Proto header is consulted only when a trusted proxy in
// front of us is configured, since clients can set it themselves.
func requestIsTLS(r *http.Request, trustForwarded bool) bool {
	if r.TLS != nil {
		return true
	}
	return trustForwarded && r.Header.Get("X-Forwarded-Proto") == "https"
}

type userContextKey struct{}

// userCell lets the gate record the authenticated user into a context
// installed higher up the middleware chain, so the access logger sees
// it after the handler returns.
type userCell struct {
	user string
}

// WithUserCell installs an empty user slot in the context.
func WithUserCell(ctx context.Context) context.Context {
	return context.WithValue(ctx, userContextKey{}, &userCell{})
}

// SetUser records the authenticated username in the context's user
// slot. Returns false when no slot is installed.
func SetUser(ctx context.Context, user string) bool {
	cell, ok := ctx.Value(userContextKey{}).(*userCell)
	if !ok {
		return false
	}
	cell.user = user
	return true
}

// UserFromContext returns the authenticated username, or empty for
// anonymous requests.
func UserFromContext(ctx context.Context) string {
	if cell, ok := ctx.Value(userContextKey{}).(*userCell); ok {
		return cell.user
	}
	return ""
}
