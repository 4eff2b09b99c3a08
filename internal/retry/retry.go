// Package retry implements bounded exponential backoff for transient
// store failures. Retrying is safe because every progress operation is
// idempotent: a retried apply or reverse can never double-count.
package retry

import (
	"context"
	"math/rand"
	"time"
)

const (
	DefaultMaxAttempts = 3
	defaultBaseDelay   = 50 * time.Millisecond
	jitterFactor       = 0.3
)

// Do runs fn, retrying with exponential backoff and jitter while
// shouldRetry reports the returned error as retryable. Delays double per
// attempt (50 ms, 100 ms plus up to 30% jitter by default). Cancellation
// is honored between attempts only; a running attempt is never interrupted
// mid-transaction.
func Do(ctx context.Context, fn func(ctx context.Context) error, shouldRetry func(error) bool) error {
	return DoN(ctx, DefaultMaxAttempts, fn, shouldRetry)
}

// DoN is Do with an explicit attempt budget.
func DoN(ctx context.Context, maxAttempts int, fn func(ctx context.Context) error, shouldRetry func(error) bool) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			delay := defaultBaseDelay * time.Duration(1<<(attempt-1))
			jitter := time.Duration(rand.Float64() * float64(delay) * jitterFactor) //nolint:gosec // jitter does not need crypto randomness
			select {
			case <-time.After(delay + jitter):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !shouldRetry(lastErr) {
			return lastErr
		}
	}

	return lastErr
}
