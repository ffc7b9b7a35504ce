package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a controllable time source for sliding-TTL tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestMemoryStore_CreateAndGet(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	store := NewMemoryStore(2*time.Hour, WithClock(clock.Now))
	ctx := context.Background()

	sess, err := store.Create(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, sess.Token)
	assert.False(t, sess.Authenticated)
	assert.Equal(t, clock.Now().Add(2*time.Hour), sess.ExpiresAt)

	got, err := store.Get(ctx, sess.Token)
	require.NoError(t, err)
	assert.False(t, got.Authenticated)
	assert.Equal(t, sess.ExpiresAt, got.ExpiresAt)
}

func TestMemoryStore_GetUnknownToken(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore(time.Hour)
	_, err := store.Get(context.Background(), "never-issued")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_TokensAreUnique(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore(time.Hour)
	ctx := context.Background()

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		sess, err := store.Create(ctx)
		require.NoError(t, err)
		assert.False(t, seen[sess.Token])
		seen[sess.Token] = true
	}
}

func TestMemoryStore_Expiration(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	store := NewMemoryStore(time.Hour, WithClock(clock.Now))
	ctx := context.Background()

	sess, err := store.Create(ctx)
	require.NoError(t, err)

	clock.Advance(time.Hour + time.Second)

	_, err = store.Get(ctx, sess.Token)
	assert.ErrorIs(t, err, ErrNotFound)

	// The expired entry is dropped, not just hidden.
	n, err := store.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMemoryStore_TouchSlidesExpiration(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	store := NewMemoryStore(time.Hour, WithClock(clock.Now))
	ctx := context.Background()

	sess, err := store.Create(ctx)
	require.NoError(t, err)

	// Keep touching just inside the window; the session must survive
	// far past its original deadline.
	for i := 0; i < 5; i++ {
		clock.Advance(50 * time.Minute)
		require.NoError(t, store.Touch(ctx, sess.Token))
	}

	got, err := store.Get(ctx, sess.Token)
	require.NoError(t, err)
	assert.Equal(t, clock.Now().Add(time.Hour), got.ExpiresAt)
}

func TestMemoryStore_TouchExpired(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	store := NewMemoryStore(time.Hour, WithClock(clock.Now))
	ctx := context.Background()

	sess, err := store.Create(ctx)
	require.NoError(t, err)

	clock.Advance(2 * time.Hour)
	assert.ErrorIs(t, store.Touch(ctx, sess.Token), ErrNotFound)
}

func TestMemoryStore_SetAuthenticated(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	store := NewMemoryStore(time.Hour, WithClock(clock.Now))
	ctx := context.Background()

	sess, err := store.Create(ctx)
	require.NoError(t, err)

	require.NoError(t, store.SetAuthenticated(ctx, sess.Token, true))

	got, err := store.Get(ctx, sess.Token)
	require.NoError(t, err)
	assert.True(t, got.Authenticated)

	// Logout clears the flag but keeps the session alive.
	require.NoError(t, store.SetAuthenticated(ctx, sess.Token, false))

	got, err = store.Get(ctx, sess.Token)
	require.NoError(t, err)
	assert.False(t, got.Authenticated)
}

func TestMemoryStore_SetAuthenticatedExpired(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	store := NewMemoryStore(time.Hour, WithClock(clock.Now))
	ctx := context.Background()

	sess, err := store.Create(ctx)
	require.NoError(t, err)

	clock.Advance(2 * time.Hour)
	assert.ErrorIs(t, store.SetAuthenticated(ctx, sess.Token, true), ErrNotFound)
}

func TestMemoryStore_Delete(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore(time.Hour)
	ctx := context.Background()

	sess, err := store.Create(ctx)
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, sess.Token))
	_, err = store.Get(ctx, sess.Token)
	assert.ErrorIs(t, err, ErrNotFound)

	// Deleting an unknown token is not an error.
	assert.NoError(t, store.Delete(ctx, "unknown"))
}

func TestMemoryStore_GetReturnsCopy(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore(time.Hour)
	ctx := context.Background()

	sess, err := store.Create(ctx)
	require.NoError(t, err)

	got, err := store.Get(ctx, sess.Token)
	require.NoError(t, err)
	got.Authenticated = true

	again, err := store.Get(ctx, sess.Token)
	require.NoError(t, err)
	assert.False(t, again.Authenticated)
}

func TestMemoryStore_ConcurrentAccess(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore(time.Hour)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sess, err := store.Create(ctx)
			require.NoError(t, err)
			require.NoError(t, store.Touch(ctx, sess.Token))
			require.NoError(t, store.SetAuthenticated(ctx, sess.Token, true))
			_, err = store.Get(ctx, sess.Token)
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	n, err := store.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 20, n)
}
