// Package health provides the liveness and readiness endpoints.
package health

import (
	"context"
	"encoding/json"
	"net/http"
)

// ProbeFunc performs a fresh synchronous upstream probe.
type ProbeFunc func(ctx context.Context) bool

// Checker serves the operational endpoints. Liveness reports only that
// the process is serving; readiness reflects a fresh upstream probe
// without touching the cached health state that gates live traffic.
type Checker struct {
	probe ProbeFunc
}

// NewChecker creates a health checker backed by the given probe.
func NewChecker(probe ProbeFunc) *Checker {
	return &Checker{probe: probe}
}

// Health handles GET /health: always 200 while the process serves.
func (c *Checker) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// Ready handles GET /ready: 200 when a fresh probe reaches the
// upstream, 503 otherwise. Used by orchestration readiness gates.
func (c *Checker) Ready(w http.ResponseWriter, r *http.Request) {
	ready := c.probe(r.Context())

	w.Header().Set("Content-Type", "application/json")
	if ready {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(map[string]bool{"ready": ready})
}
