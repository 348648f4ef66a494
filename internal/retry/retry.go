// Package retry provides an explicit retry policy for calls to remote services.
package retry

import (
	"context"
	"fmt"
	"time"
)

// Policy describes how many times a call is attempted and how long to wait between attempts.
// The delay before attempt n (n >= 2) is BaseDelay * Multiplier^(n-2), capped at MaxDelay.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
	MaxDelay    time.Duration
}

// DefaultPolicy returns 3 attempts with 500ms base delay doubling up to 10s.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		Multiplier:  2,
		MaxDelay:    10 * time.Second,
	}
}

// Attempts returns the number of attempts the policy allows (at least one).
func (p Policy) Attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// Delay returns the wait before the given attempt number (1-based).
func (p Policy) Delay(attempt int) time.Duration {
	if attempt <= 1 || p.BaseDelay <= 0 {
		return 0
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	d := float64(p.BaseDelay)
	for i := 2; i < attempt; i++ {
		d *= mult
		if p.MaxDelay > 0 && d >= float64(p.MaxDelay) {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && time.Duration(d) > p.MaxDelay {
		return p.MaxDelay
	}
	return time.Duration(d)
}

// ExhaustedError is returned when every attempt allowed by the policy failed.
type ExhaustedError struct {
	Attempts int
	Cause    error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("gave up after %d attempts: %v", e.Attempts, e.Cause)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Cause
}

// Classifier reports whether an error is worth another attempt.
type Classifier func(err error) bool

// Do runs fn until it succeeds, returns a non-retryable error, the policy is exhausted,
// or ctx is done. The attempt number passed to fn is 1-based.
// A non-retryable error is returned as is; exhaustion is reported as *ExhaustedError.
func Do(ctx context.Context, p Policy, retryable Classifier, fn func(ctx context.Context, attempt int) error) error {
	attempts := p.Attempts()
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if wait := p.Delay(attempt); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				if lastErr != nil {
					return fmt.Errorf("%w (last error: %v)", ctx.Err(), lastErr)
				}
				return ctx.Err()
			case <-timer.C:
			}
		}

		err := fn(ctx, attempt)
		if err == nil {
			return nil
		}
		lastErr = err
		if retryable == nil || !retryable(err) {
			return err
		}
		if ctx.Err() != nil {
			return err
		}
	}
	return &ExhaustedError{Attempts: attempts, Cause: lastErr}
}
