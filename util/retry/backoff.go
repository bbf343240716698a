package retry

import (
	"context"
	"time"
)

// sleepFunc is swapped out by tests to observe waits instead of taking them.
var sleepFunc = func(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// BackoffAndSleep waits for (multiplier*retries + 1) units of durationType,
// returning early with the context error on cancellation. This is the linear
// schedule; Retry uses it when WithBackoffMultiplier selected it.
func BackoffAndSleep(ctx context.Context, retries int, backoffMultiplier int, durationType time.Duration) error {
	backoff := (backoffMultiplier * retries) + 1

	return sleepFunc(ctx, time.Duration(backoff)*durationType)
}

// CappedExponentialBackoff multiplies the current backoff by backoffFactor,
// clamped to maxBackoff.
func CappedExponentialBackoff(currentBackoff time.Duration, backoffFactor float64, maxBackoff time.Duration) time.Duration {
	nextBackoff := time.Duration(float64(currentBackoff) * backoffFactor)
	if nextBackoff > maxBackoff {
		return maxBackoff
	}

	return nextBackoff
}
