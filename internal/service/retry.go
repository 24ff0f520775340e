package service

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy bounds how often a step is attempted and how long to wait in
// between. Multiplier > 1 grows the wait exponentially up to MaxBackoff.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
	Multiplier  float64
	MaxBackoff  time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, Backoff: 200 * time.Millisecond, Multiplier: 2, MaxBackoff: 2 * time.Second}
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	var b backoff.BackOff
	if p.Multiplier > 1 {
		eb := backoff.NewExponentialBackOff()
		eb.InitialInterval = p.Backoff
		eb.Multiplier = p.Multiplier
		eb.RandomizationFactor = 0
		eb.MaxElapsedTime = 0
		if p.MaxBackoff > 0 {
			eb.MaxInterval = p.MaxBackoff
		}
		eb.Reset()
		b = eb
	} else {
		b = backoff.NewConstantBackOff(p.Backoff)
	}
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx)
}

// Do runs fn until it succeeds, returns an error retryable rejects, or the
// attempts run out. The last error is returned unchanged.
func (p RetryPolicy) Do(ctx context.Context, retryable func(error) bool, fn func(attempt int) error) error {
	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := fn(attempt)
		if err != nil && !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, p.backOff(ctx))
}
