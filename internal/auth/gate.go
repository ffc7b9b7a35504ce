package auth

import (
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/avlabs/authgate/internal/observability"
	"github.com/avlabs/authgate/internal/session"
)

// Decision classifies an inbound request.
type Decision int

const (
	// DecisionPublic allows the request without a session.
	DecisionPublic Decision = iota

	// DecisionAuthenticated allows the request with a valid
	// authenticated session.
	DecisionAuthenticated

	// DecisionDenied redirects the request to the login page.
	DecisionDenied
)

// String returns the string representation of the decision.
func (d Decision) String() string {
	switch d {
	case DecisionPublic:
		return "public"
	case DecisionAuthenticated:
		return "authenticated"
	case DecisionDenied:
		return "denied"
	default:
		return "unknown"
	}
}

// LoginPath is where denied requests are redirected.
const LoginPath = "/login"

// builtinPublicPaths are always servable without a session: the login
// flow itself, static assets, and the operational endpoints.
var builtinPublicPaths = []string{
	"/login",
	"/logout",
	"/keep-alive",
	"/health",
	"/ready",
	"/metrics",
	"/favicon.ico",
	"/static/",
}

// publicSet is an immutable snapshot of the public whitelist, swapped
// atomically on config reload. Entries ending in "/" match as prefixes.
type publicSet struct {
	exact    map[string]struct{}
	prefixes []string
}

func newPublicSet(paths []string) *publicSet {
	ps := &publicSet{exact: make(map[string]struct{})}
	for _, p := range paths {
		if strings.HasSuffix(p, "/") {
			ps.prefixes = append(ps.prefixes, p)
		} else {
			ps.exact[p] = struct{}{}
		}
	}
	return ps
}

func (ps *publicSet) contains(path string) bool {
	if _, ok := ps.exact[path]; ok {
		return true
	}
	for _, prefix := range ps.prefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// Gate classifies every inbound request as public, authenticated, or
// denied, consulting the session store for non-public paths.
type Gate struct {
	store      session.Store
	cookieName string
	public     atomic.Pointer[publicSet]
	username   atomic.Pointer[string]
	logger     observability.Logger
}

// GateOption is a functional option for configuring the gate.
type GateOption func(*Gate)

// WithGateLogger sets the logger for the gate.
func WithGateLogger(logger observability.Logger) GateOption {
	return func(g *Gate) {
		g.logger = logger
	}
}

// WithPublicPaths appends extra public paths to the built-in whitelist.
func WithPublicPaths(paths []string) GateOption {
	return func(g *Gate) {
		g.SetPublicPaths(paths)
	}
}

// NewGate creates an auth gate backed by the given session store. The
// username is recorded in request context on authenticated requests so
// the access log can attribute traffic.
func NewGate(store session.Store, cookieName, username string, opts ...GateOption) *Gate {
	g := &Gate{
		store:      store,
		cookieName: cookieName,
		logger:     observability.NopLogger(),
	}
	g.public.Store(newPublicSet(builtinPublicPaths))
	g.username.Store(&username)

	for _, opt := range opts {
		opt(g)
	}
	return g
}

// SetPublicPaths replaces the extra public paths, keeping the built-in
// whitelist. Safe to call concurrently with request handling.
func (g *Gate) SetPublicPaths(paths []string) {
	all := make([]string, 0, len(builtinPublicPaths)+len(paths))
	all = append(all, builtinPublicPaths...)
	all = append(all, paths...)
	g.public.Store(newPublicSet(all))
}

// SetUsername updates the username recorded for authenticated requests.
func (g *Gate) SetUsername(username string) {
	g.username.Store(&username)
}

// Classify resolves the request's decision. For non-public paths the
// session cookie is resolved and, when found, touched to extend the
// sliding window, even for requests that end up denied. Any request
// reaching the store extends its session.
func (g *Gate) Classify(r *http.Request) (Decision, *session.Session) {
	if g.public.Load().contains(r.URL.Path) {
		return DecisionPublic, nil
	}

	token := SessionToken(r, g.cookieName)
	if token == "" {
		return DecisionDenied, nil
	}

	ctx := r.Context()
	sess, err := g.store.Get(ctx, token)
	if err != nil {
		// Expired and never-issued tokens are the same thing here.
		return DecisionDenied, nil
	}

	if err := g.store.Touch(ctx, token); err != nil {
		g.logger.Debug("session touch failed", observability.Error(err))
	}

	if sess.Authenticated {
		return DecisionAuthenticated, sess
	}
	return DecisionDenied, sess
}

// Middleware enforces the gate: public requests pass through,
// authenticated requests pass with the user recorded in context, and
// everything else is redirected to the login page. The redirect applies
// to every denied path, API calls included; the proxy assumes browser
// clients.
func (g *Gate) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			decision, _ := g.Classify(r)
			switch decision {
			case DecisionPublic:
				next.ServeHTTP(w, r)
			case DecisionAuthenticated:
				ctx := r.Context()
				if !SetUser(ctx, *g.username.Load()) {
					ctx = WithUserCell(ctx)
					SetUser(ctx, *g.username.Load())
					r = r.WithContext(ctx)
				}
				next.ServeHTTP(w, r)
			default:
				g.logger.Debug("request denied",
					observability.String("path", r.URL.Path),
					observability.String("method", r.Method),
				)
				http.Redirect(w, r, LoginPath, http.StatusFound)
			}
		})
	}
}
