package crawler

import (
	"context"
	"time"
)

// Default retry settings.
const (
	// DefaultMaxRetries is the number of attempts made for each backend call.
	DefaultMaxRetries = 3

	// DefaultBackoff is the fixed pause between two attempts.
	DefaultBackoff = 1 * time.Second
)

// RetryPolicy describes how transient backend failures are retried.
//
// Design decision: We use a fixed backoff rather than an exponential one
// because:
//  1. Retry counts are small (1-3), so growth would barely matter
//  2. The worst-case time per job stays easy to reason about
//     (MaxRetries x Backoff)
type RetryPolicy struct {
	// MaxRetries is the total number of attempts, including the first one.
	// Values below 1 are treated as 1.
	MaxRetries int

	// Backoff is the pause between two attempts.
	Backoff time.Duration
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: DefaultMaxRetries,
		Backoff:    DefaultBackoff,
	}
}

// attempts returns the effective number of attempts.
func (p RetryPolicy) attempts() int {
	if p.MaxRetries < 1 {
		return 1
	}
	return p.MaxRetries
}

// do calls fn until it succeeds or the attempts run out.
// It returns the number of attempts made and, on failure, a *TransientError
// wrapping the last error. A cancelled context cuts the backoff sleep short
// and ends the loop.
func (p RetryPolicy) do(ctx context.Context, op, target string, fn func() error) (int, error) {
	limit := p.attempts()

	var err error
	attempt := 0
	for attempt < limit {
		attempt++
		if err = fn(); err == nil {
			return attempt, nil
		}
		if attempt == limit {
			break
		}

		if p.Backoff > 0 {
			timer := time.NewTimer(p.Backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return attempt, &TransientError{Op: op, Path: target, Attempts: attempt, Err: ctx.Err()}
			case <-timer.C:
			}
		} else if ctx.Err() != nil {
			return attempt, &TransientError{Op: op, Path: target, Attempts: attempt, Err: ctx.Err()}
		}
	}

	return attempt, &TransientError{Op: op, Path: target, Attempts: attempt, Err: err}
}
