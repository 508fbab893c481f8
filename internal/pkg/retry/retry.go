package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Do calls op up to attempts times with a fixed delay between failures.
// It returns nil on the first success, the last error once attempts are
// exhausted, or ctx.Err() if the context ends while waiting. Errors wrapped
// with Permanent are returned immediately.
func Do(ctx context.Context, attempts int, delay time.Duration, op func(ctx context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(delay), uint64(attempts-1)),
		ctx,
	)
	return backoff.Retry(func() error { return op(ctx) }, policy)
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}
