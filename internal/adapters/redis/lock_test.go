package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intakehq/intake/internal/adapters/redis"
)

func newLocker(t *testing.T) (*miniredis.Miniredis, *redis.Locker) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	return mr, redis.NewLocker(client, "intake:")
}

func TestLockerAcquireAndRelease(t *testing.T) {
	mr, locker := newLocker(t)
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "session-1", 5*time.Second)
	require.NoError(t, err)
	assert.True(t, mr.Exists("intake:lock:session-1"))

	require.NoError(t, unlock(ctx))
	assert.False(t, mr.Exists("intake:lock:session-1"))
}

func TestLockerContention(t *testing.T) {
	mr, locker := newLocker(t)
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "shared", 5*time.Second)
	require.NoError(t, err)

	// A second holder blocks until its context expires.
	short, cancel := context.WithTimeout(ctx, 300*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(short, "shared", 5*time.Second)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, unlock(ctx))

	unlock2, err := locker.Lock(ctx, "shared", 5*time.Second)
	require.NoError(t, err)
	defer func() { _ = unlock2(ctx) }()
	assert.True(t, mr.Exists("intake:lock:shared"))
}

func TestUnlockIsScopedToHolder(t *testing.T) {
	mr, locker := newLocker(t)
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "scoped", time.Second)
	require.NoError(t, err)

	// The lock expires and another holder takes it; the stale unlock must
	// not release the new holder's lock.
	mr.FastForward(2 * time.Second)
	unlock2, err := locker.Lock(ctx, "scoped", 5*time.Second)
	require.NoError(t, err)

	require.NoError(t, unlock(ctx))
	assert.True(t, mr.Exists("intake:lock:scoped"), "stale unlock must not delete the current lock")

	require.NoError(t, unlock2(ctx))
	assert.False(t, mr.Exists("intake:lock:scoped"))
}
