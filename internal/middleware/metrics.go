package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/avlabs/authgate/internal/observability"
)

// routeLabel maps request paths onto a small fixed label set so metric
// cardinality stays bounded regardless of upstream URL shape.
func routeLabel(path string) string {
	switch path {
	case "/login", "/logout", "/keep-alive", "/profile",
		"/health", "/ready", "/metrics", "/favicon.ico":
		return strings.TrimPrefix(path, "/")
	}
	if strings.HasPrefix(path, "/static/") {
		return "static"
	}
	return "proxy"
}

// Metrics returns a middleware that records request counts and
// durations.
func Metrics(m *observability.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rw := &responseWriter{
				ResponseWriter: w,
				status:         http.StatusOK,
			}

			next.ServeHTTP(rw, r)

			m.RecordRequest(r.Method, routeLabel(r.URL.Path), rw.status, time.Since(start))
		})
	}
}
