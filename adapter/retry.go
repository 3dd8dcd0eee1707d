package adapter

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// publishBackoff is the delay before the first retry; it doubles on
// each subsequent attempt.
const publishBackoff = 500 * time.Millisecond

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as non-retriable for PublishWithRetry.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// PublishWithRetry calls publish up to 1+retries times with exponential
// backoff between attempts. It stops early on success, on context
// cancellation, or on an error marked Permanent.
func PublishWithRetry(ctx context.Context, retries int, publish func(context.Context) error) error {
	attempts := 1 + retries
	var lastErr error

	for i := range attempts {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("publish canceled: %w", err)
		}
		if i > 0 {
			backoff := publishBackoff << uint(i-1)
			select {
			case <-ctx.Done():
				return fmt.Errorf("publish canceled during backoff: %w", ctx.Err())
			case <-time.After(backoff):
			}
		}

		lastErr = publish(ctx)
		if lastErr == nil {
			return nil
		}
		var perm *permanentError
		if errors.As(lastErr, &perm) {
			return fmt.Errorf("non-retriable: %w", perm.err)
		}
	}

	return fmt.Errorf("%d attempts failed: %w", attempts, lastErr)
}
