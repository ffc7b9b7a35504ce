package prober

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()

	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestProbeOnce(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		want   bool
	}{
		{"200 ok", http.StatusOK, true},
		{"204 no content", http.StatusNoContent, true},
		{"302 redirect", http.StatusFound, true},
		{"404 not found", http.StatusNotFound, false},
		{"500 server error", http.StatusInternalServerError, false},
		{"503 unavailable", http.StatusServiceUnavailable, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer upstream.Close()

			p := New(mustParse(t, upstream.URL), "")
			assert.Equal(t, tt.want, p.ProbeOnce(context.Background()))
		})
	}
}

func TestProbeOnce_UpstreamDown(t *testing.T) {
	t.Parallel()

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	upstream.Close()

	p := New(mustParse(t, upstream.URL), "")
	assert.False(t, p.ProbeOnce(context.Background()))
}

func TestProbeOnce_UsesProbePath(t *testing.T) {
	t.Parallel()

	var gotPath atomic.Value
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath.Store(r.URL.Path)
	}))
	defer upstream.Close()

	p := New(mustParse(t, upstream.URL), "/healthz")
	require.True(t, p.ProbeOnce(context.Background()))
	assert.Equal(t, "/healthz", gotPath.Load())
}

func TestProbeOnce_DoesNotTouchCache(t *testing.T) {
	t.Parallel()

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer upstream.Close()

	p := New(mustParse(t, upstream.URL), "")
	require.True(t, p.ProbeOnce(context.Background()))
	assert.False(t, p.IsUp())
}

func TestStart_ProbesSynchronously(t *testing.T) {
	t.Parallel()

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer upstream.Close()

	p := New(mustParse(t, upstream.URL), "", WithInterval(time.Hour))
	p.Start(context.Background())
	defer p.Stop()

	// The first probe completes before Start returns.
	assert.True(t, p.IsUp())
}

func TestStart_TracksTransitions(t *testing.T) {
	t.Parallel()

	var healthy atomic.Bool
	healthy.Store(true)
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !healthy.Load() {
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer upstream.Close()

	transitions := make(chan bool, 4)
	p := New(mustParse(t, upstream.URL), "",
		WithInterval(10*time.Millisecond),
		WithOnChange(func(up bool) { transitions <- up }),
	)
	p.Start(context.Background())
	defer p.Stop()

	// Start flips the state from its false zero value.
	assert.True(t, <-transitions)

	healthy.Store(false)
	assert.False(t, <-transitions)
	assert.False(t, p.IsUp())

	healthy.Store(true)
	assert.True(t, <-transitions)
	assert.True(t, p.IsUp())
}

func TestStop_Idempotent(t *testing.T) {
	t.Parallel()

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer upstream.Close()

	p := New(mustParse(t, upstream.URL), "", WithInterval(time.Hour))
	p.Start(context.Background())
	p.Stop()
	p.Stop()
}
