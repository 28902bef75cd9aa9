// Package ratelimit throttles calls to collaborators.
package ratelimit

import (
	"context"
	"time"
)

// Limiter blocks until one more call is allowed and returns how long it waited.
type Limiter interface {
	Take(ctx context.Context) (time.Duration, error)
}
