package database

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const defaultInitAttempts = 5

// RetryInit runs a store-initialization step with bounded exponential
// backoff. After the attempt cap is exhausted the last error surfaces
// wrapped so callers can fail startup with a clear message.
func RetryInit(ctx context.Context, name string, op func(ctx context.Context) error) error {
	return RetryInitAttempts(ctx, name, defaultInitAttempts, op)
}

// RetryInitAttempts is RetryInit with an explicit attempt cap.
func RetryInitAttempts(ctx context.Context, name string, attempts uint64, op func(ctx context.Context) error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 250 * time.Millisecond
	policy.MaxInterval = 5 * time.Second

	wrapped := backoff.WithMaxRetries(backoff.WithContext(policy, ctx), attempts-1)

	err := backoff.Retry(func() error {
		return op(ctx)
	}, wrapped)
	if err != nil {
		return fmt.Errorf("%s initialization failed after %d attempts: %w", name, attempts, err)
	}
	return nil
}
