package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/aimd54/hero-rewards/pkg/logger"
)

const (
	keyPrefix     = "hero-rewards:lock:"
	retryInterval = 25 * time.Millisecond
)

// releaseScript deletes the lock only if it still carries our token.
// KEYS[1] = lock key
// ARGV[1] = owner token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a Locker shared by every engine instance using the same Redis.
// Locks expire after ttl so a crashed holder cannot wedge a consumer.
type Redis struct {
	client redis.UniversalClient
	wait   time.Duration
	ttl    time.Duration
	log    *logger.Logger
}

// NewRedis creates a distributed locker.
func NewRedis(client redis.UniversalClient, wait, ttl time.Duration, log *logger.Logger) *Redis {
	return &Redis{client: client, wait: wait, ttl: ttl, log: log}
}

// Lock implements Locker.
func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := keyPrefix + key
	token := uuid.NewString()

	var deadline <-chan time.Time
	if r.wait > 0 {
		timer := time.NewTimer(r.wait)
		defer timer.Stop()
		deadline = timer.C
	}

	ticker := time.NewTicker(retryInterval)
	defer ticker.Stop()

	for {
		ok, err := r.client.SetNX(ctx, redisKey, token, r.ttl).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
		}
		if ok {
			return r.releaser(redisKey, token), nil
		}

		select {
		case <-ticker.C:
		case <-deadline:
			return nil, ErrTimeout
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (r *Redis) releaser(redisKey, token string) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()

			deleted, err := releaseScript.Run(ctx, r.client, []string{redisKey}, token).Int()
			if err != nil {
				r.log.Warn().Err(err).Str("key", redisKey).Msg("Failed to release lock")
				return
			}
			if deleted == 0 {
				r.log.Warn().Str("key", redisKey).Msg("Lock expired before release")
			}
		})
	}
}
