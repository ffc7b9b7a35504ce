package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisTestStore(t *testing.T, ttl time.Duration) (Store, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStore(client, ttl)
	t.Cleanup(func() { _ = store.Close() })
	return store, mr
}

func TestRedisStore_CreateAndGet(t *testing.T) {
	t.Parallel()

	store, mr := newRedisTestStore(t, time.Hour)
	ctx := context.Background()

	sess, err := store.Create(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, sess.Token)

	got, err := store.Get(ctx, sess.Token)
	require.NoError(t, err)
	assert.Equal(t, sess.Token, got.Token)
	assert.False(t, got.Authenticated)

	// The key carries the sliding TTL.
	assert.Equal(t, time.Hour, mr.TTL(keyPrefix+sess.Token))
}

func TestRedisStore_GetUnknownToken(t *testing.T) {
	t.Parallel()

	store, _ := newRedisTestStore(t, time.Hour)
	_, err := store.Get(context.Background(), "never-issued")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStore_Expiration(t *testing.T) {
	t.Parallel()

	store, mr := newRedisTestStore(t, time.Hour)
	ctx := context.Background()

	sess, err := store.Create(ctx)
	require.NoError(t, err)

	mr.FastForward(time.Hour + time.Second)

	_, err = store.Get(ctx, sess.Token)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStore_TouchResetsTTL(t *testing.T) {
	t.Parallel()

	store, mr := newRedisTestStore(t, time.Hour)
	ctx := context.Background()

	sess, err := store.Create(ctx)
	require.NoError(t, err)

	mr.FastForward(50 * time.Minute)
	require.NoError(t, store.Touch(ctx, sess.Token))
	assert.Equal(t, time.Hour, mr.TTL(keyPrefix+sess.Token))

	mr.FastForward(50 * time.Minute)
	_, err = store.Get(ctx, sess.Token)
	assert.NoError(t, err)
}

func TestRedisStore_SetAuthenticated(t *testing.T) {
	t.Parallel()

	store, _ := newRedisTestStore(t, time.Hour)
	ctx := context.Background()

	sess, err := store.Create(ctx)
	require.NoError(t, err)

	require.NoError(t, store.SetAuthenticated(ctx, sess.Token, true))

	got, err := store.Get(ctx, sess.Token)
	require.NoError(t, err)
	assert.True(t, got.Authenticated)

	require.NoError(t, store.SetAuthenticated(ctx, sess.Token, false))

	got, err = store.Get(ctx, sess.Token)
	require.NoError(t, err)
	assert.False(t, got.Authenticated)
}

func TestRedisStore_Delete(t *testing.T) {
	t.Parallel()

	store, _ := newRedisTestStore(t, time.Hour)
	ctx := context.Background()

	sess, err := store.Create(ctx)
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, sess.Token))
	_, err = store.Get(ctx, sess.Token)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStore_Len(t *testing.T) {
	t.Parallel()

	store, _ := newRedisTestStore(t, time.Hour)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := store.Create(ctx)
		require.NoError(t, err)
	}

	n, err := store.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestRedisStore_TokenNotStoredInValue(t *testing.T) {
	t.Parallel()

	store, mr := newRedisTestStore(t, time.Hour)
	ctx := context.Background()

	sess, err := store.Create(ctx)
	require.NoError(t, err)

	raw, err := mr.Get(keyPrefix + sess.Token)
	require.NoError(t, err)
	assert.NotContains(t, raw, sess.Token)
}
