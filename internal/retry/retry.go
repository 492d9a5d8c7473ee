// Package retry provides the single retry/backoff policy applied at the
// remote store, discovery source, and metrics lookup call boundaries.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/GhUserLiu/paperflow/internal/domain"
)

// Policy parameterizes retries: total attempts, backoff shape, and which
// errors are worth another attempt. Rejections (4xx, malformed payloads) are
// never retried; context cancellation always stops immediately.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts uint64

	// InitialInterval is the first backoff delay.
	InitialInterval time.Duration

	// Multiplier is the backoff growth factor between attempts.
	Multiplier float64

	// Retryable decides whether an error is worth another attempt.
	// Defaults to IsTransient.
	Retryable func(error) bool
}

// DefaultPolicy returns the policy used against external APIs: three
// attempts with exponential backoff starting at one second.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:     3,
		InitialInterval: time.Second,
		Multiplier:      2.0,
	}
}

// IsTransient reports whether err is a transient remote failure (network
// error, 5xx, or upstream rate limiting).
func IsTransient(err error) bool {
	return errors.Is(err, domain.ErrUnavailable) || errors.Is(err, domain.ErrRateLimited)
}

// Do runs op, retrying per the policy. It returns the first non-retryable
// error as soon as it occurs, or the last error once attempts are exhausted.
func (p Policy) Do(ctx context.Context, op func() error) error {
	retryable := p.Retryable
	if retryable == nil {
		retryable = IsTransient
	}

	attempts := p.MaxAttempts
	if attempts == 0 {
		attempts = 1
	}

	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.Multiplier > 0 {
		b.Multiplier = p.Multiplier
	}
	b.Reset()

	wrapped := func() error {
		err := op()
		if err == nil {
			return nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return backoff.Permanent(err)
		}
		if !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	return backoff.Retry(wrapped, backoff.WithContext(backoff.WithMaxRetries(b, attempts-1), ctx))
}
