package llm

import (
	"context"
	"math/rand"
	"time"
)

// RetryPolicy bounds the retry loop for transient backend failures.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Jitter      bool
}

// DefaultRetryPolicy mirrors the backend discipline: 3 attempts, doubling
// delay starting at one second, with jitter.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second, Jitter: true}
}

// Do runs fn under the retry policy. Only errors Retryable reports as
// transient are retried; the last error is returned once attempts are
// exhausted. Delays double per attempt: base, 2*base, 4*base, ...
func Do[T any](ctx context.Context, policy RetryPolicy, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}
	if policy.BaseDelay <= 0 {
		policy.BaseDelay = time.Second
	}

	var lastErr error
	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := policy.BaseDelay << (attempt - 1)
			if half := int64(policy.BaseDelay) / 2; policy.Jitter && half > 0 {
				delay += time.Duration(rand.Int63n(half))
			}
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(delay):
			}
		}

		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !Retryable(err) {
			return zero, err
		}
	}
	return zero, lastErr
}
