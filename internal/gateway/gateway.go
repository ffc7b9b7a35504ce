// Package gateway wires the proxy's HTTP surface: the login flow,
// operational endpoints, embedded static assets, and the authenticated
// catch-all that forwards to the upstream.
package gateway

import (
	"context"
	"embed"
	"errors"
	"io/fs"
	"net"
	"net/http"
	"time"

	"github.com/avlabs/authgate/internal/auth"
	"github.com/avlabs/authgate/internal/config"
	"github.com/avlabs/authgate/internal/health"
	"github.com/avlabs/authgate/internal/middleware"
	"github.com/avlabs/authgate/internal/observability"
	"github.com/avlabs/authgate/internal/proxy"
)

//go:embed static
var staticFS embed.FS

// readHeaderTimeout bounds slow-header clients on the listener.
const readHeaderTimeout = 10 * time.Second

// Components are the wired collaborators the gateway serves.
type Components struct {
	Gate      *auth.Gate
	Handlers  *auth.Handlers
	Forwarder *proxy.Forwarder
	Checker   *health.Checker
	Metrics   *observability.Metrics
}

// Gateway is the HTTP server for the proxy.
type Gateway struct {
	cfg     *config.Config
	logger  observability.Logger
	handler http.Handler
	server  *http.Server
}

// New creates the gateway and builds its handler chain.
func New(cfg *config.Config, logger observability.Logger, c Components) *Gateway {
	g := &Gateway{
		cfg:    cfg,
		logger: logger,
	}
	g.handler = buildHandler(c, logger)
	g.server = &http.Server{
		Addr:              cfg.Listen,
		Handler:           g.handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return g
}

// buildHandler assembles the route table and middleware chain. The gate
// wraps everything: public paths pass through it untouched, everything
// else needs an authenticated session before the mux is consulted.
func buildHandler(c Components, logger observability.Logger) http.Handler {
	mux := http.NewServeMux()

	// First contact issues the unauthenticated session along with the
	// login page, so the client always holds a token before submitting
	// credentials.
	mux.HandleFunc("GET /login", func(w http.ResponseWriter, r *http.Request) {
		c.Handlers.EnsureSession(w, r)
		serveLoginPage(w, r)
	})
	mux.HandleFunc("POST /login", c.Handlers.Login)
	mux.HandleFunc("GET /logout", c.Handlers.Logout)
	mux.HandleFunc("GET /keep-alive", c.Handlers.KeepAlive)
	mux.HandleFunc("GET /profile", c.Handlers.Profile)
	mux.HandleFunc("GET /health", c.Checker.Health)
	mux.HandleFunc("GET /ready", c.Checker.Ready)
	mux.Handle("GET /metrics", c.Metrics.Handler())
	mux.HandleFunc("GET /favicon.ico", serveFavicon)

	staticContent, err := fs.Sub(staticFS, "static")
	if err != nil {
		// The embed directive guarantees the directory exists.
		panic(err)
	}
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(staticContent)))

	// Everything else is proxied, subject to gating.
	mux.Handle("/", c.Forwarder)

	return chain(mux,
		middleware.RequestID(),
		middleware.Metrics(c.Metrics),
		middleware.AccessLog(logger),
		middleware.Recovery(logger),
		c.Gate.Middleware(),
	)
}

// chain applies middlewares so the first listed is the outermost.
func chain(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// serveLoginPage serves the embedded login page.
func serveLoginPage(w http.ResponseWriter, r *http.Request) {
	page, err := staticFS.ReadFile("static/login.html")
	if err != nil {
		http.Error(w, "login page unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(page)
}

// serveFavicon answers favicon requests without hitting the upstream.
func serveFavicon(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

// Handler returns the fully assembled handler. Used by tests.
func (g *Gateway) Handler() http.Handler {
	return g.handler
}

// Start begins serving. It returns once the listener is bound; serve
// errors after that are logged.
func (g *Gateway) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.server.Addr)
	if err != nil {
		return err
	}

	g.logger.Info("gateway listening",
		observability.String("addr", ln.Addr().String()),
	)

	go func() {
		if err := g.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("gateway serve failed", observability.Error(err))
		}
	}()

	return nil
}

// Stop gracefully shuts the server down.
func (g *Gateway) Stop(ctx context.Context) error {
	g.logger.Info("gateway stopping")
	return g.server.Shutdown(ctx)
}
