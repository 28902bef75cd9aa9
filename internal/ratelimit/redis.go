package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "deploybot:ratelimit:"

// Redis limits calls across every replica sharing the Redis server.
type Redis struct {
	limiter *redis_rate.Limiter
	key     string
	maxRPS  int
	logger  *slog.Logger
}

func NewRedisLimiter(client *redis.Client, name string, maxRPS int, logger *slog.Logger) *Redis {
	if maxRPS < 1 {
		maxRPS = 1
	}
	return &Redis{
		limiter: redis_rate.NewLimiter(client),
		key:     redisKeyPrefix + name,
		maxRPS:  maxRPS,
		logger:  logger,
	}
}

func (r *Redis) Take(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	for {
		res, err := r.limiter.Allow(ctx, r.key, redis_rate.PerSecond(r.maxRPS))
		if err != nil {
			return time.Since(start), fmt.Errorf("rate limiter: %w", err)
		}
		if res.Allowed > 0 {
			return time.Since(start), nil
		}

		r.logger.Debug("throttled", "key", r.key, "retry_after", res.RetryAfter)
		select {
		case <-ctx.Done():
			return time.Since(start), ctx.Err()
		case <-time.After(res.RetryAfter):
		}
	}
}
