package lock

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"manimrender/internal/pkg/errors"
)

func newRedis(t *testing.T) *redis.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	container, err := tcredis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)
	opts, err := redis.ParseURL(uri)
	require.NoError(t, err)

	rdb := redis.NewClient(opts)
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestAcquireRelease(t *testing.T) {
	rdb := newRedis(t)
	ctx := context.Background()

	l, err := Acquire(ctx, rdb, "manimrender:lock", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "manimrender:lock", l.Key())

	_, err = Acquire(ctx, rdb, "manimrender:lock", time.Minute)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeLocked))
	assert.Equal(t, 0, errors.ExitCode(err))

	require.NoError(t, l.Release(ctx))

	again, err := Acquire(ctx, rdb, "manimrender:lock", time.Minute)
	require.NoError(t, err)
	require.NoError(t, again.Release(ctx))
}

func TestReleaseAfterTakeover(t *testing.T) {
	rdb := newRedis(t)
	ctx := context.Background()

	l, err := Acquire(ctx, rdb, "k", time.Minute)
	require.NoError(t, err)

	// Simulate expiry and another run taking the key.
	require.NoError(t, rdb.Set(ctx, "k", "someone-else", time.Minute).Err())

	err = l.Release(ctx)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeConflict))

	v, err := rdb.Get(ctx, "k").Result()
	require.NoError(t, err)
	assert.Equal(t, "someone-else", v)
}

func TestLockExpires(t *testing.T) {
	rdb := newRedis(t)
	ctx := context.Background()

	_, err := Acquire(ctx, rdb, "short", 200*time.Millisecond)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		l, err := Acquire(ctx, rdb, "short", time.Minute)
		return err == nil && l != nil
	}, 5*time.Second, 100*time.Millisecond)
}

func TestRefreshExtendsLock(t *testing.T) {
	rdb := newRedis(t)
	ctx := context.Background()

	l, err := Acquire(ctx, rdb, "manimrender:lock", 600*time.Millisecond)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		time.Sleep(300 * time.Millisecond)
		require.NoError(t, l.Refresh(ctx))
	}

	// 900ms after acquiring, past the original TTL.
	_, err = Acquire(ctx, rdb, "manimrender:lock", time.Minute)
	assert.True(t, errors.IsCode(err, errors.CodeLocked), "got %v", err)
	require.NoError(t, l.Release(ctx))
}

func TestRefreshAfterExpiry(t *testing.T) {
	rdb := newRedis(t)
	ctx := context.Background()

	l, err := Acquire(ctx, rdb, "manimrender:lock", 200*time.Millisecond)
	require.NoError(t, err)
	time.Sleep(400 * time.Millisecond)

	other, err := Acquire(ctx, rdb, "manimrender:lock", time.Minute)
	require.NoError(t, err)

	err = l.Refresh(ctx)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeConflict))

	ttl, err := rdb.PTTL(ctx, "manimrender:lock").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, 30*time.Second, "the new holder's TTL is untouched")
	require.NoError(t, other.Release(ctx))
}
