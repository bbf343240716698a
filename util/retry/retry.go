// Package retry runs an operation until it succeeds, the attempt budget is
// spent, or its failure is classified as not worth retrying. Backoff is
// exponential with a cap and uniform jitter; a linear schedule is kept for
// callers that predate the jittered default.
package retry

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/dashbridge/creditbridge/ulogger"
)

type retryOptions struct {
	retryCount          int
	backoffMultiplier   int
	backoffDurationType time.Duration
	backoffFactor       float64
	maxBackoff          time.Duration
	message             string
	exponential         bool
	infiniteRetry       bool
	retryPredicate      func(failure error) bool
	onRetry             func(attempt, maxAttempts int, failure error) error
}

// Options mutates the retry configuration. Later options win, so a caller
// can append overrides to a preconfigured policy.
type Options func(*retryOptions)

func defaultRetryOptions() *retryOptions {
	return &retryOptions{
		retryCount:          3,
		backoffMultiplier:   1,
		backoffDurationType: 1 * time.Second,
		backoffFactor:       2.0,
		maxBackoff:          10 * time.Second,
		message:             "retrying",
		exponential:         true,
	}
}

// WithRetryCount sets the total attempt budget. Values below 1 are treated
// as 1: the operation always runs at least once.
func WithRetryCount(count int) Options {
	return func(o *retryOptions) {
		if count < 1 {
			count = 1
		}

		o.retryCount = count
	}
}

// WithBackoffDurationType sets the base delay, the wait after the first
// failed attempt.
func WithBackoffDurationType(d time.Duration) Options {
	return func(o *retryOptions) {
		o.backoffDurationType = d
	}
}

// WithBackoffMultiplier switches to the linear schedule: the wait after
// attempt i is (multiplier*i + 1) base durations.
func WithBackoffMultiplier(multiplier int) Options {
	return func(o *retryOptions) {
		o.backoffMultiplier = multiplier
		o.exponential = false
	}
}

// WithExponentialBackoff selects the default capped exponential schedule.
func WithExponentialBackoff() Options {
	return func(o *retryOptions) {
		o.exponential = true
	}
}

// WithBackoffFactor sets the exponential growth factor.
func WithBackoffFactor(factor float64) Options {
	return func(o *retryOptions) {
		o.backoffFactor = factor
	}
}

// WithMaxBackoff caps a single wait. Jitter is applied after the cap, so the
// observed wait can reach 1.5x this value.
func WithMaxBackoff(d time.Duration) Options {
	return func(o *retryOptions) {
		o.maxBackoff = d
	}
}

// WithMessage sets the prefix for retry log lines.
func WithMessage(message string) Options {
	return func(o *retryOptions) {
		o.message = message
	}
}

// WithInfiniteRetry ignores the attempt budget. The predicate and the
// context still end the loop.
func WithInfiniteRetry() Options {
	return func(o *retryOptions) {
		o.infiniteRetry = true
	}
}

// WithRetryPredicate gates each retry on the failure: a false verdict
// propagates the failure immediately, after exactly the one attempt that
// produced it. A nil predicate retries every failure.
func WithRetryPredicate(predicate func(failure error) bool) Options {
	return func(o *retryOptions) {
		o.retryPredicate = predicate
	}
}

// WithOnRetry installs a callback invoked synchronously before each wait
// with the attempt number just failed (1-based), the attempt budget (0 when
// infinite) and the failure. A non-nil return aborts the whole operation
// with that error.
func WithOnRetry(cb func(attempt, maxAttempts int, failure error) error) Options {
	return func(o *retryOptions) {
		o.onRetry = cb
	}
}

// WithNotify forwards attempt state to a fire-and-forget sink, typically a
// websocket hub. Unlike WithOnRetry the sink cannot abort the operation.
func WithNotify(sink func(attempt, maxAttempts int, failure error)) Options {
	return func(o *retryOptions) {
		o.onRetry = func(attempt, maxAttempts int, failure error) error {
			sink(attempt, maxAttempts, failure)

			return nil
		}
	}
}

// Retry runs f until it succeeds or the options end the loop. The wait
// before retry i+1 is min(base*factor^i, maxBackoff) plus a uniform random
// jitter of up to half that, unless the linear schedule was selected. The
// context is honoured before each attempt and during every wait; its error
// is returned as-is.
func Retry[T any](ctx context.Context, logger ulogger.Logger, f func() (T, error), opts ...Options) (T, error) {
	options := defaultRetryOptions()
	for _, opt := range opts {
		opt(options)
	}

	var (
		result T
		err    error
	)

	maxAttempts := options.retryCount
	if options.infiniteRetry {
		maxAttempts = 0
	}

	currentBackoff := min(options.backoffDurationType, options.maxBackoff)

	for attempt := 0; options.infiniteRetry || attempt < options.retryCount; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			logger.Errorf("%s: context done, stopping retries: %v", options.message, ctxErr)
			return result, ctxErr
		}

		result, err = f()
		if err == nil {
			return result, nil
		}

		if !options.infiniteRetry && attempt == options.retryCount-1 {
			break
		}

		if options.retryPredicate != nil && !options.retryPredicate(err) {
			logger.Warnf("%s: attempt %d failed and is not retryable: %v", options.message, attempt+1, err)
			return result, err
		}

		if options.onRetry != nil {
			if cbErr := options.onRetry(attempt+1, maxAttempts, err); cbErr != nil {
				logger.Warnf("%s: retry callback failed on attempt %d: %v", options.message, attempt+1, cbErr)
				return result, cbErr
			}
		}

		logger.Warnf("%s (attempt %d): %v", options.message, attempt+1, err)

		var sleepErr error

		if options.exponential {
			sleepErr = sleepFunc(ctx, jittered(currentBackoff))
			currentBackoff = CappedExponentialBackoff(currentBackoff, options.backoffFactor, options.maxBackoff)
		} else {
			sleepErr = BackoffAndSleep(ctx, attempt, options.backoffMultiplier, options.backoffDurationType)
		}

		if sleepErr != nil {
			return result, sleepErr
		}
	}

	return result, err
}

// jittered adds a uniform random delay of up to half the base, so
// simultaneous retry loops against the same struggling collaborator spread
// out instead of thundering back together.
func jittered(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}

	return d + time.Duration(rand.Int64N(int64(d)/2+1))
}
