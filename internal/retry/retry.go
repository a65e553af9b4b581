// Package retry runs an operation with exponential backoff until it
// succeeds, fails permanently, or runs out of attempts. Webhook delivery
// uses it to paper over transient endpoint failures.
package retry

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

// PermanentError marks an error that retrying cannot fix.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so Do stops immediately instead of retrying.
func Permanent(err error) error {
	return &PermanentError{Err: err}
}

// Do runs fn up to maxAttempts times. The delay before attempt n is
// baseDelay doubled n-1 times, with up to 25% random jitter either way so
// synchronized callers spread out. A nil return, a permanent error, or
// context cancellation ends the loop early.
func Do(ctx context.Context, maxAttempts int, baseDelay time.Duration, fn func() error) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; ; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		var pe *PermanentError
		if errors.As(lastErr, &pe) {
			return pe.Err
		}
		if attempt == maxAttempts {
			return lastErr
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff(baseDelay, attempt)):
		}
	}
}

func backoff(base time.Duration, attempt int) time.Duration {
	d := base << (attempt - 1)
	if d <= 0 {
		return 0
	}
	// Jitter in [-25%, +25%].
	spread := int64(d) / 2
	if spread <= 0 {
		return d
	}
	return d - time.Duration(spread)/2 + time.Duration(rand.Int64N(spread))
}
