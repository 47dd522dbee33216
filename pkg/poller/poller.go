// Package poller waits on externally observed conditions with bounded attempts.
package poller

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrTimeoutExceeded matches any *TimeoutExceededError
var ErrTimeoutExceeded = errors.New("timeout exceeded")

// TimeoutExceededError is returned when a poll runs out of attempts
type TimeoutExceededError struct {
	Attempts int
	Elapsed  time.Duration
	// LastErr is the last transient error reported by the check, if any
	LastErr error
}

func (e *TimeoutExceededError) Error() string {
	if e.LastErr != nil {
		return fmt.Sprintf("timeout exceeded after %d attempts in %v: last error: %v", e.Attempts, e.Elapsed, e.LastErr)
	}
	return fmt.Sprintf("timeout exceeded after %d attempts in %v", e.Attempts, e.Elapsed)
}

func (e *TimeoutExceededError) Is(target error) bool {
	return target == ErrTimeoutExceeded
}

func (e *TimeoutExceededError) Unwrap() error {
	return e.LastErr
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks a check error as final: the poll stops and returns it unwrapped.
// Errors not marked permanent are treated as transient and polling continues.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// CheckFunc is one observation of the awaited condition.
// It returns done=true with the observed value once the condition holds.
type CheckFunc[T any] func(ctx context.Context) (value T, done bool, err error)

// PollUntil invokes check up to maxAttempts times, waiting interval between
// attempts, and returns the first value for which check reports done.
// The wait is a timer select so that the caller's goroutine is parked, and
// cancelling ctx aborts the poll at any suspension point with ctx.Err().
func PollUntil[T any](ctx context.Context, check CheckFunc[T], maxAttempts int, interval time.Duration) (T, error) {
	var zero T
	if maxAttempts < 1 {
		return zero, fmt.Errorf("maxAttempts must be at least 1, got %d", maxAttempts)
	}

	start := time.Now()
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		value, done, err := check(ctx)
		if err != nil {
			var perm *permanentError
			if errors.As(err, &perm) {
				return zero, perm.err
			}
			lastErr = err
		} else if done {
			return value, nil
		}

		if attempt == maxAttempts {
			break
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}

	return zero, &TimeoutExceededError{
		Attempts: maxAttempts,
		Elapsed:  time.Since(start),
		LastErr:  lastErr,
	}
}
