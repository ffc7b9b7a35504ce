// Package prober tracks upstream reachability. A background loop
// refreshes a cached boolean that gates live traffic; a separate
// on-demand probe backs the readiness endpoint without touching the
// cache.
package prober

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/avlabs/authgate/internal/observability"
)

// Default probe configuration.
const (
	DefaultInterval = 5 * time.Second
	DefaultTimeout  = 3 * time.Second
)

// maxDrainBytes bounds how much of a probe response body is drained
// for connection reuse.
const maxDrainBytes = 4 << 10

// Prober periodically checks the upstream and caches the result.
type Prober struct {
	probeURL *url.URL
	client   *http.Client
	interval time.Duration
	timeout  time.Duration
	logger   observability.Logger
	onChange func(up bool)

	up        atomic.Bool
	mu        sync.Mutex
	running   bool
	stopCh    chan struct{}
	stoppedCh chan struct{}
}

// Option is a functional option for configuring the prober.
type Option func(*Prober)

// WithLogger sets the logger for the prober.
func WithLogger(logger observability.Logger) Option {
	return func(p *Prober) {
		p.logger = logger
	}
}

// WithHTTPClient sets the HTTP client used for probes.
func WithHTTPClient(client *http.Client) Option {
	return func(p *Prober) {
		p.client = client
	}
}

// WithInterval sets the background probe interval.
func WithInterval(interval time.Duration) Option {
	return func(p *Prober) {
		p.interval = interval
	}
}

// WithTimeout sets the per-probe timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(p *Prober) {
		p.timeout = timeout
	}
}

// WithOnChange sets a callback invoked when the cached state flips.
func WithOnChange(fn func(up bool)) Option {
	return func(p *Prober) {
		p.onChange = fn
	}
}

// New creates a prober for the upstream base URL. probePath, when not
// empty, overrides the path probed on the upstream.
func New(upstream *url.URL, probePath string, opts ...Option) *Prober {
	target := *upstream
	if probePath != "" {
		target.Path = probePath
	}

	p := &Prober{
		probeURL:  &target,
		interval:  DefaultInterval,
		timeout:   DefaultTimeout,
		logger:    observability.NopLogger(),
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.client == nil {
		p.client = &http.Client{Timeout: p.timeout}
	}

	return p
}

// IsUp returns the cached result of the most recent completed probe.
// Request handlers read this instead of probing inline.
func (p *Prober) IsUp() bool {
	return p.up.Load()
}

// ProbeOnce performs a single synchronous probe without touching the
// cached state. Any network error, timeout, or non-2xx/3xx status is a
// failure.
func (p *Prober) ProbeOnce(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.probeURL.String(), http.NoBody)
	if err != nil {
		return false
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainBytes))

	return resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusBadRequest
}

// Start performs one synchronous probe so the cache is never unset,
// then launches the background loop.
func (p *Prober) Start(ctx context.Context) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.mu.Unlock()

	p.setUp(p.ProbeOnce(ctx))
	go p.run(ctx)
}

// Stop stops the background loop.
func (p *Prober) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.mu.Unlock()

	close(p.stopCh)
	<-p.stoppedCh
}

func (p *Prober) run(ctx context.Context) {
	defer close(p.stoppedCh)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.setUp(p.ProbeOnce(ctx))
		}
	}
}

// setUp updates the cached state, logging and notifying only on
// transitions.
func (p *Prober) setUp(up bool) {
	old := p.up.Swap(up)
	if old == up {
		return
	}

	if up {
		p.logger.Info("upstream became reachable",
			observability.String("url", p.probeURL.String()),
		)
	} else {
		p.logger.Warn("upstream became unreachable",
			observability.String("url", p.probeURL.String()),
		)
	}

	if p.onChange != nil {
		p.onChange(up)
	}
}
