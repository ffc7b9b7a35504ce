package proxy

import (
	"bytes"
	"context"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/avlabs/authgate/internal/observability"
)

// bodyCloseTag is the marker the UI fragment is injected before.
const bodyCloseTag = "</body>"

// defaultFragment is the UI overlay injected into proxied HTML pages: a
// small user menu plus a session-timeout warning script that pings the
// keep-alive endpoint.
const defaultFragment = `<div id="authgate-menu" style="position:fixed;top:8px;right:8px;z-index:99999;font-family:system-ui,sans-serif;font-size:13px;background:rgba(255,255,255,.95);border:1px solid #d4d4d8;border-radius:6px;padding:4px 10px">
<a href="/profile" style="margin-right:8px">Profile</a><a href="/logout">Sign out</a>
</div>
<script>
(function(){
  var warnAfter = 110 * 60 * 1000;
  var timer = setTimeout(function(){
    if (confirm("Your session is about to expire. Stay signed in?")) {
      fetch("/keep-alive").then(function(){ location.reload(); });
    }
  }, warnAfter);
  document.addEventListener("click", function(){
    clearTimeout(timer);
    fetch("/keep-alive");
  }, {once: true});
})();
</script>
`

type clientOriginKey struct{}

// clientOrigin is the scheme and host the client used to reach the
// proxy, as opposed to the upstream origin the request is forwarded to.
type clientOrigin struct {
	scheme string
	host   string
}

// withClientOrigin stashes the client-facing origin before the request
// is rewritten toward the upstream, so response rewriting can restore
// it.
func withClientOrigin(ctx context.Context, scheme, host string) context.Context {
	return context.WithValue(ctx, clientOriginKey{}, clientOrigin{scheme: scheme, host: host})
}

func clientOriginFrom(ctx context.Context) (clientOrigin, bool) {
	origin, ok := ctx.Value(clientOriginKey{}).(clientOrigin)
	return origin, ok
}

// Rewriter post-processes upstream responses: Location headers are
// pointed back at the proxy's origin, and HTML bodies get the UI
// fragment injected. Everything else passes through untouched so
// non-HTML payloads keep streaming.
type Rewriter struct {
	fragment []byte
	logger   observability.Logger
}

// RewriterOption is a functional option for configuring the rewriter.
type RewriterOption func(*Rewriter)

// WithRewriterLogger sets the logger for the rewriter.
func WithRewriterLogger(logger observability.Logger) RewriterOption {
	return func(rw *Rewriter) {
		rw.logger = logger
	}
}

// WithFragment overrides the injected HTML fragment.
func WithFragment(fragment string) RewriterOption {
	return func(rw *Rewriter) {
		rw.fragment = []byte(fragment)
	}
}

// NewRewriter creates a response rewriter.
func NewRewriter(opts ...RewriterOption) *Rewriter {
	rw := &Rewriter{
		fragment: []byte(defaultFragment),
		logger:   observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(rw)
	}
	return rw
}

// ModifyResponse implements the httputil.ReverseProxy hook. Buffering
// happens only for HTML; any other content type leaves the body reader
// alone and the proxy streams it.
func (rw *Rewriter) ModifyResponse(resp *http.Response) error {
	rw.rewriteLocation(resp)

	if isHTML(resp.Header.Get("Content-Type")) {
		return rw.injectFragment(resp)
	}
	return nil
}

// rewriteLocation replaces the Location header's scheme and host with
// the proxy's own, preserving path and query, so redirects never leak
// the backend's origin. Malformed or relative values pass through
// unchanged.
func (rw *Rewriter) rewriteLocation(resp *http.Response) {
	loc := resp.Header.Get("Location")
	if loc == "" {
		return
	}

	u, err := url.Parse(loc)
	if err != nil || !u.IsAbs() {
		return
	}

	origin, ok := clientOriginFrom(resp.Request.Context())
	if !ok {
		return
	}

	u.Scheme = origin.scheme
	u.Host = origin.host
	resp.Header.Set("Location", u.String())
}

// injectFragment buffers the HTML body and splices the fragment in
// before the closing body tag. Content-Length is stripped because the
// body length changed; the transport recomputes framing.
func (rw *Rewriter) injectFragment(resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	closeErr := resp.Body.Close()
	if err != nil {
		return err
	}
	if closeErr != nil {
		rw.logger.Debug("closing upstream body", observability.Error(closeErr))
	}

	idx := lastIndexFold(body, bodyCloseTag)
	if idx >= 0 {
		injected := make([]byte, 0, len(body)+len(rw.fragment))
		injected = append(injected, body[:idx]...)
		injected = append(injected, rw.fragment...)
		injected = append(injected, body[idx:]...)
		body = injected
	}

	resp.Body = io.NopCloser(bytes.NewReader(body))
	resp.ContentLength = -1
	resp.Header.Del("Content-Length")
	return nil
}

// isHTML reports whether the content type indicates an HTML body.
func isHTML(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.HasPrefix(contentType, "text/html")
	}
	return mediaType == "text/html"
}

// lastIndexFold finds the last case-insensitive occurrence of an ASCII
// substring.
func lastIndexFold(b []byte, sub string) int {
	return bytes.LastIndex(bytes.ToLower(b), []byte(strings.ToLower(sub)))
}
