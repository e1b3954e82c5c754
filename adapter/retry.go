package adapter

import (
	"context"
	"fmt"
	"time"
)

// DefaultBackoff is the delay before the first retry. It doubles per retry.
const DefaultBackoff = 500 * time.Millisecond

// Retry calls op up to 1+retries times, sleeping backoff, 2*backoff, ...
// between attempts. A permanent error stops retrying immediately.
// name prefixes returned errors.
func Retry(ctx context.Context, name string, retries int, backoff time.Duration, op func(ctx context.Context) error, permanent func(error) bool) error {
	if backoff <= 0 {
		backoff = DefaultBackoff
	}
	attempts := 1 + retries

	var lastErr error
	for i := range attempts {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s: context canceled: %w", name, err)
		}

		if i > 0 {
			timer := time.NewTimer(backoff << uint(i-1))
			select {
			case <-ctx.Done():
				timer.Stop()
				return fmt.Errorf("%s: context canceled during backoff: %w", name, ctx.Err())
			case <-timer.C:
			}
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if permanent != nil && permanent(lastErr) {
			return fmt.Errorf("%s: non-retriable error: %w", name, lastErr)
		}
	}
	return fmt.Errorf("%s: failed after %d attempts: %w", name, attempts, lastErr)
}
