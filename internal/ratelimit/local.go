package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Local limits calls within this process.
type Local struct {
	*rate.Limiter
}

func NewLocalLimiter(maximumRPS float64, burst int) Local {
	if burst < 1 {
		burst = 1
	}
	return Local{Limiter: rate.NewLimiter(rate.Limit(maximumRPS), burst)}
}

func (l Local) Take(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := l.Wait(ctx); err != nil {
		return time.Since(start), err
	}
	return time.Since(start), nil
}
