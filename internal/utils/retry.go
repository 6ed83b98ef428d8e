package utils

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

var ErrTryAgain = errors.New("please try again")

// RetryOnce runs fn and, if it fails with a retryable error, runs it one more time
// after delay. The final failure is wrapped with ErrTryAgain; a non-retryable
// failure is returned as is.
func RetryOnce(ctx context.Context, delay time.Duration, retryable func(error) bool, fn func(context.Context) error) error {
	var (
		last      error
		permanent bool
	)
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(delay), 1), ctx)
	err := backoff.Retry(func() error {
		last = fn(ctx)
		if last != nil && retryable != nil && !retryable(last) {
			permanent = true
			return backoff.Permanent(last)
		}
		return last
	}, policy)
	switch {
	case err == nil:
		return nil
	case permanent:
		return last
	case last == nil:
		return fmt.Errorf("%w: %w", ErrTryAgain, err)
	default:
		return fmt.Errorf("%w: %w", ErrTryAgain, last)
	}
}
