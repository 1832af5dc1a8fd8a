package util

import (
	"context"
	"errors"
	"time"
)

// permanentError marks an error that retrying cannot fix.
type permanentError struct{ err error }

func (p permanentError) Error() string { return p.err.Error() }
func (p permanentError) Unwrap() error { return p.err }

// Permanent wraps err so that Retry returns it without another attempt.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// Backoff configures Retry.
type Backoff struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration // zero is uncapped
}

// Retry calls fn until it succeeds, returns a Permanent error, or the
// attempts are used up, doubling the delay between attempts. It returns the
// last error, unwrapped from Permanent, or ctx.Err() when ctx ends first.
func Retry(ctx context.Context, b Backoff, fn func(ctx context.Context) error) error {
	if b.Attempts <= 0 {
		b.Attempts = 1
	}
	var err error
	delay := b.BaseDelay

	for attempt := 0; attempt < b.Attempts; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		var perm permanentError
		if errors.As(err, &perm) {
			return perm.err
		}

		// No sleep after the last failed attempt.
		if attempt < b.Attempts-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
			if b.MaxDelay > 0 && delay > b.MaxDelay {
				delay = b.MaxDelay
			}
		}
	}
	return err
}
