package httputil

import (
	"context"
	"errors"
	"time"
)

// RetryableError marks a failure as transient. Only errors carrying this
// marker are attempted again by [Retry] and [Policy.Do].
type RetryableError struct{ Err error }

func (e *RetryableError) Error() string { return e.Err.Error() }
func (e *RetryableError) Unwrap() error { return e.Err }

// Retryable marks err as transient. Retryable(nil) is nil.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &RetryableError{Err: err}
}

// IsRetryable reports whether any error in err's chain is a [RetryableError].
func IsRetryable(err error) bool {
	var re *RetryableError
	return errors.As(err, &re)
}

// Policy is a retry budget: how often to try and how long to wait before
// the first repeat. The wait doubles after every failed attempt up to
// MaxDelay, or [DefaultMaxDelay] when MaxDelay is zero.
type Policy struct {
	Attempts int
	Delay    time.Duration
	MaxDelay time.Duration
}

// DefaultMaxDelay caps the wait between attempts.
const DefaultMaxDelay = 30 * time.Second

// DefaultPolicy tries three times, waiting 1s and then 2s.
var DefaultPolicy = Policy{Attempts: 3, Delay: time.Second, MaxDelay: DefaultMaxDelay}

// Do calls fn until it succeeds, fails permanently or the budget is spent.
// The zero Policy behaves like [DefaultPolicy]. The last error is returned,
// or the context error when ctx ends while waiting.
func (p Policy) Do(ctx context.Context, fn func() error) error {
	if p.Attempts <= 0 {
		p = DefaultPolicy
	}
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := fn()
		if err == nil || !IsRetryable(err) || attempt >= p.Attempts {
			return err
		}

		timer := time.NewTimer(p.backoff(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// backoff returns the wait after failed attempt n, counting from 1.
func (p Policy) backoff(n int) time.Duration {
	limit := p.MaxDelay
	if limit <= 0 {
		limit = DefaultMaxDelay
	}
	wait := p.Delay
	for i := 1; i < n && wait < limit; i++ {
		wait *= 2
	}
	return min(wait, limit)
}

// Retry is shorthand for Policy{attempts, delay}.Do with at least one
// attempt.
func Retry(ctx context.Context, attempts int, delay time.Duration, fn func() error) error {
	return Policy{Attempts: max(attempts, 1), Delay: delay}.Do(ctx, fn)
}
