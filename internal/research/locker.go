package research

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Locker guards a job against concurrent execution across replicas.
type Locker interface {
	// Acquire returns ok=false when another holder owns the job.
	Acquire(ctx context.Context, jobID string) (release func(), ok bool, err error)
}

const lockPrefix = "research:lock:"

// releaseScript deletes the key only while it still carries our token, so an
// expired lock taken over by another replica is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// renewScript extends the TTL only while the key still carries our token.
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RedisLocker implements Locker with SETNX and a TTL. A held lock is renewed
// every TTL/3 until released, so long-running jobs keep it.
type RedisLocker struct {
	Rdb *redis.Client
	TTL time.Duration
}

func NewRedisLocker(rdb *redis.Client, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &RedisLocker{Rdb: rdb, TTL: ttl}
}

func (l *RedisLocker) Acquire(ctx context.Context, jobID string) (func(), bool, error) {
	key := lockPrefix + jobID
	token := uuid.NewString()
	ok, err := l.Rdb.SetNX(ctx, key, token, l.TTL).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	stop := make(chan struct{})
	go l.renew(key, token, stop)

	var once sync.Once
	release := func() {
		once.Do(func() {
			close(stop)
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = releaseScript.Run(ctx, l.Rdb, []string{key}, token).Err()
		})
	}
	return release, true, nil
}

func (l *RedisLocker) renew(key, token string, stop <-chan struct{}) {
	ticker := time.NewTicker(l.TTL / 3)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			n, err := renewScript.Run(ctx, l.Rdb, []string{key}, token, l.TTL.Milliseconds()).Int()
			cancel()
			if err == nil && n == 0 {
				// lock expired and was taken over
				return
			}
		}
	}
}
