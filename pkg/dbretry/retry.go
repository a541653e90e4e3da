package dbretry

import (
	"context"
	"time"

	"anoa.com/casethreads/pkg/apperror"
	"github.com/cenkalti/backoff/v4"
)

// Policy controls the exponential backoff used around store operations.
type Policy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsedTime  time.Duration
	MaxRetries      uint64
}

// DefaultPolicy retries a transient failure exactly once.
var DefaultPolicy = Policy{
	InitialInterval: 200 * time.Millisecond,
	MaxInterval:     2 * time.Second,
	MaxElapsedTime:  15 * time.Second,
	MaxRetries:      1,
}

// Operation runs op and retries it according to DefaultPolicy when it fails
// with apperror.ErrStoreUnavailable. Any other error stops immediately.
func Operation[T any](ctx context.Context, op func(context.Context) (T, error)) (T, error) {
	return WithPolicy(ctx, DefaultPolicy, op)
}

// Do is Operation for calls without a result.
func Do(ctx context.Context, op func(context.Context) error) error {
	_, err := Operation(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

func WithPolicy[T any](ctx context.Context, p Policy, op func(context.Context) (T, error)) (T, error) {
	var result T

	b := backoff.WithMaxRetries(backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(p.InitialInterval),
		backoff.WithMaxInterval(p.MaxInterval),
		backoff.WithMaxElapsedTime(p.MaxElapsedTime),
	), p.MaxRetries)

	err := backoff.Retry(func() error {
		var err error
		result, err = op(ctx)
		if err != nil && !apperror.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(b, ctx))

	return result, err
}

// WithPolicyDo is WithPolicy for calls without a result.
func WithPolicyDo(ctx context.Context, p Policy, op func(context.Context) error) error {
	_, err := WithPolicy(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}
