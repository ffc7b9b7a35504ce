package middleware

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/avlabs/authgate/internal/observability"
)

// Rate limiter housekeeping constants.
const (
	// DefaultClientTTL is how long an idle client's limiter survives.
	DefaultClientTTL = 10 * time.Minute

	// cleanupInterval is how often idle limiters are swept.
	cleanupInterval = time.Minute
)

// clientEntry holds a limiter and its last access time for TTL cleanup.
type clientEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiter throttles login attempts per client IP with a token
// bucket per client.
type RateLimiter struct {
	clients   map[string]*clientEntry
	mu        sync.Mutex
	rps       rate.Limit
	burst     int
	clientTTL time.Duration
	logger    observability.Logger
	stopCh    chan struct{}
	stopOnce  sync.Once
}

// RateLimiterOption is a functional option for the rate limiter.
type RateLimiterOption func(*RateLimiter)

// WithRateLimiterLogger sets the logger for the rate limiter.
func WithRateLimiterLogger(logger observability.Logger) RateLimiterOption {
	return func(rl *RateLimiter) {
		rl.logger = logger
	}
}

// WithClientTTL overrides how long idle client limiters are kept.
func WithClientTTL(ttl time.Duration) RateLimiterOption {
	return func(rl *RateLimiter) {
		rl.clientTTL = ttl
	}
}

// NewRateLimiter creates a per-client rate limiter and starts its
// cleanup loop. Call Stop to release it.
func NewRateLimiter(rps, burst int, opts ...RateLimiterOption) *RateLimiter {
	rl := &RateLimiter{
		clients:   make(map[string]*clientEntry),
		rps:       rate.Limit(rps),
		burst:     burst,
		clientTTL: DefaultClientTTL,
		logger:    observability.NopLogger(),
		stopCh:    make(chan struct{}),
	}

	for _, opt := range opts {
		opt(rl)
	}

	go rl.cleanupLoop()

	return rl
}

// Allow reports whether the client may make another attempt.
func (rl *RateLimiter) Allow(clientIP string) bool {
	now := time.Now()

	rl.mu.Lock()
	entry, ok := rl.clients[clientIP]
	if !ok {
		entry = &clientEntry{
			limiter: rate.NewLimiter(rl.rps, rl.burst),
		}
		rl.clients[clientIP] = entry
	}
	entry.lastAccess = now
	limiter := entry.limiter
	rl.mu.Unlock()

	return limiter.Allow()
}

// Stop halts the cleanup loop.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() {
		close(rl.stopCh)
	})
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stopCh:
			return
		case <-ticker.C:
			rl.cleanup()
		}
	}
}

// cleanup drops limiters idle past the client TTL.
func (rl *RateLimiter) cleanup() {
	cutoff := time.Now().Add(-rl.clientTTL)

	rl.mu.Lock()
	for ip, entry := range rl.clients {
		if entry.lastAccess.Before(cutoff) {
			delete(rl.clients, ip)
		}
	}
	rl.mu.Unlock()
}
