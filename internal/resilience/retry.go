// Package resilience centralizes the retry policy used by every
// network-calling component. Callers inject one Policy instead of scattering
// ad-hoc backoff loops across call sites.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// ErrMaxAttemptsExceeded wraps the last error once the attempt budget is spent.
var ErrMaxAttemptsExceeded = errors.New("max retry attempts exceeded")

// Policy configures retry behavior.
type Policy struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	Jitter        bool
}

// DefaultPolicy provides the service-wide defaults.
func DefaultPolicy() *Policy {
	return &Policy{
		MaxAttempts:   3,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2.0,
		Jitter:        true,
	}
}

// Permanent marks an error as not retryable; Do stops immediately.
type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent wraps err so Do fails fast instead of burning attempts.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Do executes fn until it succeeds, the attempt budget is spent, fn returns a
// Permanent error, or ctx is cancelled.
func (p *Policy) Do(ctx context.Context, fn func() error) error {
	if p == nil {
		p = DefaultPolicy()
	}

	var lastErr error
	delay := p.InitialDelay

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := fn()
		if err == nil {
			return nil
		}
		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		lastErr = err

		if attempt == p.MaxAttempts {
			break
		}

		if attempt > 1 {
			delay = time.Duration(float64(delay) * p.BackoffFactor)
			if delay > p.MaxDelay {
				delay = p.MaxDelay
			}
		}

		wait := delay
		if p.Jitter {
			// up to 10% spread to avoid synchronized retries
			wait += time.Duration(rand.Int63n(int64(delay)/10 + 1))
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return fmt.Errorf("%w after %d attempts: %v", ErrMaxAttemptsExceeded, p.MaxAttempts, lastErr)
}
