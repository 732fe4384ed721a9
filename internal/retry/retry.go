// Package retry provides a bounded-retry executor with exponential backoff
// and a per-attempt timeout, built on cenkalti/backoff.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Config bounds a retried operation. Delay before attempt n (n>=2) is
// min(BaseDelay * 2^(n-2), MaxDelay). Timeout applies to each attempt
// individually; a non-responding attempt counts as a failed attempt.
type Config struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Timeout     time.Duration
}

// TaskCreation is the policy used when creating destination tasks.
var TaskCreation = Config{
	MaxAttempts: 3,
	BaseDelay:   time.Second,
	MaxDelay:    5 * time.Second,
	Timeout:     15 * time.Second,
}

// Validation is the lighter policy used for connectivity and lookup calls.
var Validation = Config{
	MaxAttempts: 2,
	BaseDelay:   time.Second,
	MaxDelay:    5 * time.Second,
	Timeout:     15 * time.Second,
}

// Permanent marks err as non-retryable; Do returns it without further
// attempts.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Do runs op until it succeeds, returns a permanent error, or MaxAttempts is
// exhausted, in which case the last error is returned. The context passed to
// op carries the per-attempt timeout.
func Do[T any](ctx context.Context, cfg Config, op func(context.Context) (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.BaseDelay
	b.RandomizationFactor = 0
	b.Multiplier = 2
	b.MaxInterval = cfg.MaxDelay
	b.MaxElapsedTime = 0

	attempts := uint64(0)
	if cfg.MaxAttempts > 1 {
		attempts = uint64(cfg.MaxAttempts - 1)
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(b, attempts), ctx)

	return backoff.RetryWithData(func() (T, error) {
		attemptCtx := ctx
		if cfg.Timeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, cfg.Timeout)
			defer cancel()
		}
		return op(attemptCtx)
	}, policy)
}
