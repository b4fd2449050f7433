package idempotency

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	minRetryInterval = 10 * time.Millisecond
	maxRetryInterval = 250 * time.Millisecond
)

// releaseScript deletes the key only if it still holds our value, so an
// expired lock taken over by another instance is never released by us.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisGuard is a Guard shared across server instances. Locks expire after
// ttl so a crashed holder cannot block a key forever.
type RedisGuard struct {
	client redis.UniversalClient
	ttl    time.Duration
	prefix string
	logger *zap.Logger
}

func NewRedisGuard(client redis.UniversalClient, ttl time.Duration, logger *zap.Logger) *RedisGuard {
	return &RedisGuard{
		client: client,
		ttl:    ttl,
		prefix: "lock:",
		logger: logger,
	}
}

// Acquire polls SET NX with exponential backoff. Waiting is bounded by the
// lock ttl as well as ctx.
func (g *RedisGuard) Acquire(ctx context.Context, key string) (func(), error) {
	redisKey := g.prefix + key
	value := uuid.NewString()

	waitCtx, cancel := context.WithTimeout(ctx, g.ttl)
	defer cancel()

	interval := minRetryInterval
	for {
		ok, err := g.client.SetNX(waitCtx, redisKey, value, g.ttl).Result()
		if err != nil {
			if waitCtx.Err() != nil {
				return nil, errors.Join(ErrLockTimeout, waitCtx.Err())
			}
			return nil, fmt.Errorf("failed to acquire idempotency lock: %w", err)
		}
		if ok {
			break
		}

		select {
		case <-waitCtx.Done():
			return nil, errors.Join(ErrLockTimeout, waitCtx.Err())
		case <-time.After(interval):
		}

		interval *= 2
		if interval > maxRetryInterval {
			interval = maxRetryInterval
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			if err := releaseScript.Run(ctx, g.client, []string{redisKey}, value).Err(); err != nil {
				// The lock still expires after ttl
				g.logger.Warn("Failed to release idempotency lock",
					zap.String("key", redisKey),
					zap.Error(err),
				)
			}
		})
	}, nil
}
