// Package retry bounds transient provider failures with exponential backoff.
// Only errors classified as transient are retried; exhausted retries surface
// as model.ErrRetrievalUnavailable.
package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/mercasmart/catalog-search/internal/model"
)

// Policy configures the retry loop.
type Policy struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultPolicy mirrors the provider client defaults: 3 retries.
func DefaultPolicy() Policy {
	return Policy{MaxRetries: 3, InitialInterval: 500 * time.Millisecond, MaxInterval: 5 * time.Second}
}

func (p Policy) backOff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.InitialInterval
	exp.Multiplier = 2
	exp.MaxInterval = p.MaxInterval
	if exp.MaxInterval < exp.InitialInterval {
		exp.MaxInterval = exp.InitialInterval
	}
	exp.MaxElapsedTime = 0
	exp.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(max(p.MaxRetries, 0))), ctx)
}

// Do runs op until it succeeds, fails with a non-transient error, or the
// retry budget is spent.
func Do[T any](ctx context.Context, p Policy, log zerolog.Logger, op func(ctx context.Context) (T, error)) (T, error) {
	attempts := 0
	v, err := backoff.RetryNotifyWithData(func() (T, error) {
		attempts++
		v, err := op(ctx)
		if err != nil && !model.IsTransient(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, p.backOff(ctx), func(err error, wait time.Duration) {
		log.Warn().Err(err).Int("attempt", attempts).Dur("wait", wait).Msg("transient provider error; retrying")
	})
	if err != nil && model.IsTransient(err) {
		return v, fmt.Errorf("%w after %d attempts: %w", model.ErrRetrievalUnavailable, attempts, err)
	}
	return v, err
}
