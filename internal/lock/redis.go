package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "deploybot:lock:"

// Redis locks across every replica sharing the Redis server. The lock
// expires after ttl so a crashed replica cannot hold a workload forever.
type Redis struct {
	client  *redislock.Client
	ttl     time.Duration
	timeout time.Duration
	backoff time.Duration
}

func NewRedis(client redis.UniversalClient, ttl, timeout time.Duration) *Redis {
	return &Redis{
		client:  redislock.New(client),
		ttl:     ttl,
		timeout: timeout,
		backoff: 250 * time.Millisecond,
	}
}

func (r *Redis) Acquire(ctx context.Context, key string) (Lease, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	l, err := r.client.Obtain(ctx, redisKeyPrefix+key, r.ttl, &redislock.Options{
		RetryStrategy: redislock.LinearBackoff(r.backoff),
	})
	if err != nil {
		if errors.Is(err, redislock.ErrNotObtained) || errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s", ErrBusy, key)
		}
		return nil, fmt.Errorf("failed to obtain lock: %w", err)
	}
	return redisLease{lock: l}, nil
}

type redisLease struct {
	lock *redislock.Lock
}

func (l redisLease) Release(ctx context.Context) error {
	if err := l.lock.Release(ctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
		return err
	}
	return nil
}
