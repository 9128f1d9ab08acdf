package research

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcRedis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping redis test in short mode")
	}
	ctx := context.Background()
	c, err := tcRedis.RunContainer(ctx, testcontainers.WithWaitStrategy(wait.ForListeningPort("6379/tcp")))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Terminate(ctx) })
	host, err := c.Host(ctx)
	require.NoError(t, err)
	port, err := c.MappedPort(ctx, "6379")
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: fmt.Sprintf("%s:%s", host, port.Port())})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestRedisLockerRenewsHeldLock(t *testing.T) {
	rdb := newTestRedis(t)
	ctx := context.Background()
	l := NewRedisLocker(rdb, 300*time.Millisecond)

	release, ok, err := l.Acquire(ctx, "job-1")
	require.NoError(t, err)
	require.True(t, ok)

	// well past the TTL; only renewal keeps the key alive
	time.Sleep(time.Second)
	_, ok, err = l.Acquire(ctx, "job-1")
	require.NoError(t, err)
	assert.False(t, ok, "lock should still be held after its TTL")

	release()
	release()
	again, ok, err := l.Acquire(ctx, "job-1")
	require.NoError(t, err)
	require.True(t, ok)
	again()
}

func TestRedisLockerLeavesForeignLockAlone(t *testing.T) {
	rdb := newTestRedis(t)
	ctx := context.Background()
	l := NewRedisLocker(rdb, time.Minute)

	release, ok, err := l.Acquire(ctx, "job-2")
	require.NoError(t, err)
	require.True(t, ok)

	// simulate expiry followed by another replica taking the lock
	require.NoError(t, rdb.Set(ctx, lockPrefix+"job-2", "other-owner", time.Minute).Err())
	release()

	owner, err := rdb.Get(ctx, lockPrefix+"job-2").Result()
	require.NoError(t, err)
	assert.Equal(t, "other-owner", owner)
}
