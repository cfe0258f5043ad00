package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Redis wraps redis client.
type Redis struct {
	Client *redis.Client
}

// NewRedis connects to redis with short timeouts.
func NewRedis(addr string) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
	})
	return &Redis{Client: client}
}

// Healthy verifies redis connectivity.
func (r *Redis) Healthy(ctx context.Context) bool {
	if r == nil || r.Client == nil {
		return false
	}
	return r.Client.Ping(ctx).Err() == nil
}

// Close closes the client.
func (r *Redis) Close() error {
	if r == nil || r.Client == nil {
		return nil
	}
	return r.Client.Close()
}

// ErrLockTimeout is returned when the lock could not be taken before the context ended.
var ErrLockTimeout = errors.New("write lock not acquired")

// releaseScript deletes the lock only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is a single-key lock shared by every API replica.
type RedisLocker struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	retry  time.Duration
}

// NewRedisLocker builds a lock on key. The ttl bounds how long a crashed
// holder can block other writers.
func NewRedisLocker(client *redis.Client, key string, ttl time.Duration) *RedisLocker {
	if key == "" {
		key = "attendance:write-lock"
	}
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &RedisLocker{client: client, key: key, ttl: ttl, retry: 25 * time.Millisecond}
}

// Lock polls SET NX until it wins or ctx is done.
func (l *RedisLocker) Lock(ctx context.Context) (func(), error) {
	token := uuid.NewString()
	for {
		ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %v", ErrLockTimeout, ctx.Err())
			}
			return nil, fmt.Errorf("redis lock: %w", err)
		}
		if ok {
			return func() { l.release(token) }, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", ErrLockTimeout, ctx.Err())
		case <-time.After(l.retry):
		}
	}
}

func (l *RedisLocker) release(token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := releaseScript.Run(ctx, l.client, []string{l.key}, token).Err(); err != nil {
		log.Printf("redis unlock %s failed: %v", l.key, err)
	}
}
