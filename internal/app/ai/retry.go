package ai

import (
	"context"
	"time"

	"github.com/cenkalti/backoff"
)

// RetryPolicy controls how often a failing engine call is retried before the
// gateway falls back.
type RetryPolicy struct {
	MaxRetries          uint64
	InitialInterval     time.Duration
	MaxInterval         time.Duration
	Multiplier          float64
	RandomizationFactor float64
}

// DefaultRetryPolicy retries once after roughly half a second.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:          1,
		InitialInterval:     500 * time.Millisecond,
		MaxInterval:         5 * time.Second,
		Multiplier:          2,
		RandomizationFactor: 0.5,
	}
}

// NoRetry performs a single attempt.
func NoRetry() RetryPolicy { return RetryPolicy{} }

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		exp.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		exp.MaxInterval = p.MaxInterval
	}
	if p.Multiplier > 0 {
		exp.Multiplier = p.Multiplier
	}
	exp.RandomizationFactor = p.RandomizationFactor
	// Attempts are bounded by MaxRetries rather than elapsed time.
	exp.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(exp, p.MaxRetries), ctx)
}

// Do runs op until it succeeds, the retries are exhausted or ctx is done.
// The last error is returned.
func (p RetryPolicy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	return backoff.Retry(func() error { return op(ctx) }, p.backOff(ctx))
}
