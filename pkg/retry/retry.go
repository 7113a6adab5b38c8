// Package retry provides the shared retry policy and a circuit breaker
// for calls to external dependencies (feeds, OpenAI, Notion, HTTP peers).
package retry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy controls how Do spaces attempts. Delays grow exponentially from
// BaseDelay by BackoffFactor, are capped at ten times BaseDelay, and carry
// ±10% jitter.
type Policy struct {
	MaxRetries    int
	BaseDelay     time.Duration
	BackoffFactor float64
}

// DefaultPolicy matches the service settings defaults.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:    3,
		BaseDelay:     time.Second,
		BackoffFactor: 2.0,
	}
}

func (p Policy) normalized() Policy {
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = time.Second
	}
	if p.BackoffFactor < 1 {
		p.BackoffFactor = 2.0
	}
	return p
}

// Permanent marks err as non-retryable: Do returns it immediately without
// consuming further attempts.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Do runs fn up to MaxRetries+1 times, sleeping between attempts. It
// returns nil on the first success, the context error if ctx ends during a
// wait, and the last attempt's error once retries are exhausted.
func Do(ctx context.Context, p Policy, logger *slog.Logger, operation string, fn func(context.Context) error) error {
	p = p.normalized()

	expBackoff := &backoff.ExponentialBackOff{
		InitialInterval:     p.BaseDelay,
		RandomizationFactor: 0.1,
		Multiplier:          p.BackoffFactor,
		MaxInterval:         10 * p.BaseDelay,
		Clock:               backoff.SystemClock,
		Stop:                backoff.Stop,
	}

	attempts := 1
	notify := func(err error, next time.Duration) {
		logger.Warn("Operation failed, retrying",
			"operation", operation,
			"attempt", attempts,
			"max_attempts", p.MaxRetries+1,
			"retry_in", next,
			"error", err)
		attempts++
	}

	err := backoff.RetryNotify(
		func() error { return fn(ctx) },
		backoff.WithContext(backoff.WithMaxRetries(expBackoff, uint64(p.MaxRetries)), ctx),
		notify,
	)
	if err != nil {
		logger.Error("Operation failed",
			"operation", operation,
			"attempts", attempts,
			"error", err)
		return fmt.Errorf("%s: %w", operation, err)
	}
	return nil
}
