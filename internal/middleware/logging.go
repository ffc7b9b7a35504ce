package middleware

import (
	"net"
	"net/http"
	"time"

	"github.com/avlabs/authgate/internal/auth"
	"github.com/avlabs/authgate/internal/observability"
)

// responseWriter wraps http.ResponseWriter to capture status and size.
type responseWriter struct {
	http.ResponseWriter
	status int
	size   int
}

// WriteHeader captures the status code.
func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// Write captures the response size.
func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.size += n
	return n, err
}

// Flush implements http.Flusher for streaming support.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// ClientIP returns the request's direct peer address with the port
// stripped. Forwarded headers are not trusted.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// AccessLog returns a middleware that writes one structured entry per
// request: timestamp, client IP, user, method, path, status, duration.
func AccessLog(logger observability.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Install the user slot so the gate can attribute the
			// request once the session is resolved.
			r = r.WithContext(auth.WithUserCell(r.Context()))

			rw := &responseWriter{
				ResponseWriter: w,
				status:         http.StatusOK,
			}

			next.ServeHTTP(rw, r)

			user := auth.UserFromContext(r.Context())
			if user == "" {
				user = "-"
			}

			logger.Info("access",
				observability.String("client_ip", ClientIP(r)),
				observability.String("user", user),
				observability.String("method", r.Method),
				observability.String("path", r.URL.Path),
				observability.Int("status", rw.status),
				observability.Int("size", rw.size),
				observability.Duration("duration", time.Since(start)),
				observability.String("request_id", observability.RequestIDFromContext(r.Context())),
			)
		})
	}
}
