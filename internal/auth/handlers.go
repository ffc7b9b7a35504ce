package auth

import (
	"encoding/json"
	"net"
	"net/http"

	"github.com/avlabs/authgate/internal/observability"
	"github.com/avlabs/authgate/internal/session"
)

// LoginLimiter throttles login attempts per client.
type LoginLimiter interface {
	Allow(clientIP string) bool
}

// AuthMetrics records login attempt outcomes.
type AuthMetrics interface {
	RecordAuthAttempt(result string)
}

// Handlers implements the login lifecycle endpoints.
type Handlers struct {
	store          session.Store
	verifier       *Verifier
	cookieName     string
	trustForwarded bool
	extractors     []Extractor
	limiter        LoginLimiter
	metrics        AuthMetrics
	clientIP       func(*http.Request) string
	logger         observability.Logger
}

// HandlerOption is a functional option for configuring the handlers.
type HandlerOption func(*Handlers)

// WithHandlerLogger sets the logger for the handlers.
func WithHandlerLogger(logger observability.Logger) HandlerOption {
	return func(h *Handlers) {
		h.logger = logger
	}
}

// WithLoginLimiter throttles POST /login per client IP.
func WithLoginLimiter(limiter LoginLimiter) HandlerOption {
	return func(h *Handlers) {
		h.limiter = limiter
	}
}

// WithAuthMetrics records login outcomes.
func WithAuthMetrics(m AuthMetrics) HandlerOption {
	return func(h *Handlers) {
		h.metrics = m
	}
}

// WithExtractors overrides the credential extractor chain.
func WithExtractors(extractors []Extractor) HandlerOption {
	return func(h *Handlers) {
		h.extractors = extractors
	}
}

// WithClientIPFunc overrides client IP extraction.
func WithClientIPFunc(fn func(*http.Request) string) HandlerOption {
	return func(h *Handlers) {
		h.clientIP = fn
	}
}

// WithTrustedProxyHeaders trusts X-Forwarded-Proto from a proxy in
// front of this one when deciding the Secure cookie flag.
func WithTrustedProxyHeaders(trust bool) HandlerOption {
	return func(h *Handlers) {
		h.trustForwarded = trust
	}
}

// NewHandlers creates the login lifecycle handlers.
func NewHandlers(store session.Store, verifier *Verifier, cookieName string, opts ...HandlerOption) *Handlers {
	h := &Handlers{
		store:      store,
		verifier:   verifier,
		cookieName: cookieName,
		extractors: DefaultExtractors(),
		clientIP:   remoteIP,
		logger:     observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// remoteIP strips the port from RemoteAddr. Forwarded headers are not
// trusted for throttling decisions.
func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// isAJAX reports whether the client asked for a JSON response instead
// of a browser redirect.
func isAJAX(r *http.Request) bool {
	return r.Header.Get("X-Requested-With") == "XMLHttpRequest"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Login handles POST /login: extract credentials, verify them, and flip
// the session to authenticated. Browser clients get redirects, AJAX
// clients (X-Requested-With) get JSON.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	clientIP := h.clientIP(r)
	if h.limiter != nil && !h.limiter.Allow(clientIP) {
		h.logger.Warn("login rate limited",
			observability.String("client_ip", clientIP),
		)
		writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "too many login attempts"})
		return
	}

	ctx := r.Context()
	creds, extracted := Extract(r, h.extractors)

	sess := h.EnsureSession(w, r)
	if sess == nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "session unavailable"})
		return
	}

	if !extracted || !h.verifier.Verify(creds) {
		if h.metrics != nil {
			h.metrics.RecordAuthAttempt("failure")
		}
		h.logger.Info("login failed",
			observability.String("client_ip", clientIP),
			observability.String("user", creds.Username),
		)
		if isAJAX(r) {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "error": "invalid credentials"})
			return
		}
		http.Redirect(w, r, LoginPath+"?error=1", http.StatusFound)
		return
	}

	if err := h.store.SetAuthenticated(ctx, sess.Token, true); err != nil {
		h.logger.Error("failed to authenticate session", observability.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "session unavailable"})
		return
	}

	if h.metrics != nil {
		h.metrics.RecordAuthAttempt("success")
	}
	h.logger.Info("login succeeded",
		observability.String("client_ip", clientIP),
		observability.String("user", creds.Username),
	)

	if isAJAX(r) {
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
		return
	}
	http.Redirect(w, r, "/", http.StatusFound)
}

// EnsureSession returns the request's live session, issuing a fresh
// unauthenticated one (and its cookie) for clients without a valid
// token. The login page calls it on first contact so every client holds
// a session before credentials are ever submitted.
func (h *Handlers) EnsureSession(w http.ResponseWriter, r *http.Request) *session.Session {
	ctx := r.Context()

	if token := SessionToken(r, h.cookieName); token != "" {
		if sess, err := h.store.Get(ctx, token); err == nil {
			return sess
		}
	}

	sess, err := h.store.Create(ctx)
	if err != nil {
		h.logger.Error("failed to create session", observability.Error(err))
		return nil
	}
	SetSessionCookie(w, r, h.cookieName, sess.Token, h.trustForwarded)
	return sess
}

// Logout flips the session back to unauthenticated and redirects to the
// login page. The token itself stays valid, so a later login reuses the
// same session identifier.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	if token := SessionToken(r, h.cookieName); token != "" {
		if err := h.store.SetAuthenticated(r.Context(), token, false); err != nil {
			h.logger.Debug("logout on dead session", observability.Error(err))
		}
	}
	http.Redirect(w, r, LoginPath, http.StatusFound)
}

// KeepAlive extends the session's sliding window without a full
// authenticated request. The login page's timer calls it before the
// inactivity warning fires.
func (h *Handlers) KeepAlive(w http.ResponseWriter, r *http.Request) {
	if token := SessionToken(r, h.cookieName); token != "" {
		if err := h.store.Touch(r.Context(), token); err != nil {
			h.logger.Debug("keep-alive on dead session", observability.Error(err))
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Profile returns the authenticated user. The gate guarantees only
// authenticated requests reach it.
func (h *Handlers) Profile(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	if user == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"user": user})
}
