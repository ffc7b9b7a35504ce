package proxy

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/avlabs/authgate/internal/observability"
)

// hopHeaders are headers that should not be forwarded.
var hopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// strippedRequestHeaders are removed before forwarding so backend CSRF
// and referrer checks never see the proxy's own host.
var strippedRequestHeaders = []string{
	"Origin",
	"Referer",
}

// DefaultUpstreamTimeout bounds a single forward when no timeout is
// configured.
const DefaultUpstreamTimeout = 30 * time.Second

// Circuit breaker defaults: trip after a majority of recent forwards
// fail, retry after a cool-off.
const (
	breakerMinRequests  = 5
	breakerFailureRatio = 0.5
	breakerCoolOff      = 15 * time.Second
	breakerHalfOpenMax  = 3
)

// HealthGate exposes the cached upstream health state.
type HealthGate interface {
	IsUp() bool
}

// BreakerStateFunc is called when the circuit breaker changes state.
// State values: 0=closed, 1=half-open, 2=open.
type BreakerStateFunc func(state int)

// Forwarder proxies requests to the single configured upstream.
type Forwarder struct {
	target         *url.URL
	proxy          *httputil.ReverseProxy
	health         HealthGate
	breaker        *gobreaker.CircuitBreaker
	timeout        time.Duration
	trustForwarded bool
	logger         observability.Logger
	ws             *websocketRelay
	onState        BreakerStateFunc
	rewriter       *Rewriter
}

// ForwarderOption is a functional option for configuring the forwarder.
type ForwarderOption func(*Forwarder)

// WithForwarderLogger sets the logger for the forwarder.
func WithForwarderLogger(logger observability.Logger) ForwarderOption {
	return func(f *Forwarder) {
		f.logger = logger
	}
}

// WithTransport sets the transport used for forwards.
func WithTransport(transport http.RoundTripper) ForwarderOption {
	return func(f *Forwarder) {
		f.proxy.Transport = transport
	}
}

// WithHealthGate short-circuits forwards to the maintenance page when
// the cached upstream state is down.
func WithHealthGate(gate HealthGate) ForwarderOption {
	return func(f *Forwarder) {
		f.health = gate
	}
}

// WithUpstreamTimeout bounds each forward.
func WithUpstreamTimeout(timeout time.Duration) ForwarderOption {
	return func(f *Forwarder) {
		f.timeout = timeout
	}
}

// WithRewriter sets the response rewriter.
func WithRewriter(rw *Rewriter) ForwarderOption {
	return func(f *Forwarder) {
		f.rewriter = rw
		f.proxy.ModifyResponse = rw.ModifyResponse
	}
}

// WithBreakerStateCallback reports circuit breaker transitions.
func WithBreakerStateCallback(fn BreakerStateFunc) ForwarderOption {
	return func(f *Forwarder) {
		f.onState = fn
	}
}

// WithTrustedProxyHeaders trusts X-Forwarded-Proto from a proxy in
// front of this one when deriving the client-facing scheme.
func WithTrustedProxyHeaders(trust bool) ForwarderOption {
	return func(f *Forwarder) {
		f.trustForwarded = trust
	}
}

// forwardErrorKey carries a per-request error slot so the proxy's
// ErrorHandler can report transport failures back to the circuit
// breaker wrapping the forward.
type forwardErrorKey struct{}

// NewForwarder creates a forwarder for the upstream base URL.
func NewForwarder(target *url.URL, opts ...ForwarderOption) *Forwarder {
	f := &Forwarder{
		target:  target,
		timeout: DefaultUpstreamTimeout,
		logger:  observability.NopLogger(),
	}

	f.proxy = &httputil.ReverseProxy{
		Director:      f.director,
		ErrorHandler:  f.errorHandler,
		FlushInterval: -1, // Immediate flush for streamed responses
	}

	for _, opt := range opts {
		opt(f)
	}

	f.ws = &websocketRelay{logger: f.logger}

	f.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "upstream",
		MaxRequests: breakerHalfOpenMax,
		Timeout:     breakerCoolOff,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= breakerMinRequests && ratio >= breakerFailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			f.logger.Info("upstream circuit breaker state change",
				observability.String("from", from.String()),
				observability.String("to", to.String()),
			)
			if f.onState != nil {
				f.onState(breakerStateValue(to))
			}
		},
	})

	return f
}

// breakerStateValue maps gobreaker states onto stable metric values.
func breakerStateValue(s gobreaker.State) int {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	default:
		return 2
	}
}

// ServeHTTP implements http.Handler.
func (f *Forwarder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if f.health != nil && !f.health.IsUp() {
		f.logger.Debug("upstream down, serving maintenance page",
			observability.String("path", r.URL.Path),
		)
		ServeMaintenance(w)
		return
	}

	if isWebSocketUpgrade(r) {
		f.ws.relay(w, r, f.target)
		return
	}

	ctx := r.Context()
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}
	ctx = withClientOrigin(ctx, clientScheme(r, f.trustForwarded), r.Host)

	var forwardErr error
	ctx = context.WithValue(ctx, forwardErrorKey{}, &forwardErr)
	r = r.WithContext(ctx)

	_, err := f.breaker.Execute(func() (any, error) {
		f.proxy.ServeHTTP(w, r)
		return nil, forwardErr
	})

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		// Breaker rejected before anything was written.
		ServeMaintenance(w)
	}
}

// director rewrites the outbound request toward the upstream. The path
// and query are preserved verbatim; only the origin changes.
func (f *Forwarder) director(req *http.Request) {
	originalHost := req.Header.Get("X-Forwarded-Host")
	if originalHost == "" {
		originalHost = req.Host
	}

	req.URL.Scheme = f.target.Scheme
	req.URL.Host = f.target.Host
	req.Host = f.target.Host

	for _, h := range strippedRequestHeaders {
		req.Header.Del(h)
	}
	for _, h := range hopHeaders {
		req.Header.Del(h)
	}

	if clientIP, _, err := net.SplitHostPort(req.RemoteAddr); err == nil {
		if prior := req.Header.Get("X-Forwarded-For"); prior != "" {
			clientIP = prior + ", " + clientIP
		}
		req.Header.Set("X-Forwarded-For", clientIP)
	}

	origin, ok := clientOriginFrom(req.Context())
	if ok {
		req.Header.Set("X-Forwarded-Proto", origin.scheme)
		req.Header.Set("X-Forwarded-Host", origin.host)
	} else {
		req.Header.Set("X-Forwarded-Host", originalHost)
	}
}

// errorHandler handles failures during the forward itself, distinct
// from the pre-flight health gate. The client sees the same maintenance
// page either way; the breaker sees the error via the context slot.
func (f *Forwarder) errorHandler(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, context.Canceled) && r.Context().Err() != nil {
		// Client went away mid-forward. Not an upstream failure, so it
		// must not count toward the breaker, and there is nothing
		// useful to write.
		return
	}

	if slot, ok := r.Context().Value(forwardErrorKey{}).(*error); ok {
		*slot = err
	}

	f.logger.Error("upstream forward failed",
		observability.String("path", r.URL.Path),
		observability.String("method", r.Method),
		observability.Error(err),
	)
	ServeMaintenance(w)
}

// clientScheme is the scheme the client used to reach the proxy. The
// inbound X-Forwarded-Proto header is honored only when a trusted proxy
// sits in front, since clients can set it themselves.
func clientScheme(r *http.Request, trustForwarded bool) string {
	if r.TLS != nil {
		return "https"
	}
	if trustForwarded && r.Header.Get("X-Forwarded-Proto") == "https" {
		return "https"
	}
	return "http"
}

// isWebSocketUpgrade reports whether the request asks for a WebSocket
// upgrade.
func isWebSocketUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket") &&
		strings.Contains(strings.ToLower(r.Header.Get("Connection")), "upgrade")
}
