package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// Lease makes the drain a singleton. Acquire reports false without error
// when someone else holds it.
type Lease interface {
	Acquire(ctx context.Context) (release func(), ok bool, err error)
}

// LocalLease serialises drains inside one process.
type LocalLease struct {
	mu sync.Mutex
}

func (l *LocalLease) Acquire(context.Context) (func(), bool, error) {
	if !l.mu.TryLock() {
		return nil, false, nil
	}
	return l.mu.Unlock, true, nil
}

// releaseScript deletes the key only if it still carries our token, so a
// drain that outlived its TTL cannot drop a lease someone else now holds.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLease serialises drains across processes sharing one Redis.
type RedisLease struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewRedisLease creates a lease on key. ttl should comfortably exceed one
// full batch including send timeouts.
func NewRedisLease(client *redis.Client, key string, ttl time.Duration) *RedisLease {
	return &RedisLease{client: client, key: key, ttl: ttl}
}

func (l *RedisLease) Acquire(ctx context.Context) (func(), bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to acquire drain lease: %w", err)
	}
	if !ok {
		return nil, false, nil
	}
	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = releaseScript.Run(ctx, l.client, []string{l.key}, token).Err()
	}
	return release, true, nil
}
