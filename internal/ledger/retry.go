package ledger

import (
	"context"
	"errors"
	"time"
)

// Retry runs fn up to attempts times, doubling the delay between tries
// starting from base. Only failures marked ErrUnavailable are retried;
// everything else, including context cancellation, returns immediately.
// Reads go through Retry; writes never do, they re-enter through the
// commit token instead.
func Retry(ctx context.Context, attempts int, base time.Duration, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}
	if base <= 0 {
		base = 250 * time.Millisecond
	}
	delay := base
	var err error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
		if err = fn(); err == nil {
			return nil
		}
		if !errors.Is(err, ErrUnavailable) {
			return err
		}
	}
	return err
}
