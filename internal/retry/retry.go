// Package retry runs an operation with exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy controls how many times a chunk translation is attempted and how
// long to wait between attempts.
type Policy struct {
	MaxAttempts int           `mapstructure:"max_retries" json:"max_retries"`
	MinDelay    time.Duration `mapstructure:"retry_delay" json:"retry_delay"`
	MaxDelay    time.Duration `mapstructure:"max_retry_delay" json:"max_retry_delay"`
	Multiplier  float64       `mapstructure:"retry_multiplier" json:"retry_multiplier"`
}

func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		MinDelay:    2 * time.Second,
		MaxDelay:    30 * time.Second,
		Multiplier:  2,
	}
}

func (p Policy) Validate() error {
	switch {
	case p.MaxAttempts < 1:
		return fmt.Errorf("max_retries must be at least 1, got %d", p.MaxAttempts)
	case p.MinDelay < 0:
		return fmt.Errorf("retry_delay must not be negative")
	case p.MaxDelay < p.MinDelay:
		return fmt.Errorf("max_retry_delay (%s) is below retry_delay (%s)", p.MaxDelay, p.MinDelay)
	case p.Multiplier < 1:
		return fmt.Errorf("retry_multiplier must be at least 1, got %g", p.Multiplier)
	}
	return nil
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return backoff.Permanent(err)
}

// Do calls op until it succeeds, returns a permanent error, the attempts are
// exhausted or ctx is done. attempt starts at 1. notify, when set, is told
// about every failure that will be retried. The returned count is the number
// of retries performed (attempts minus one).
func Do(ctx context.Context, p Policy, op func(ctx context.Context, attempt int) error, notify func(err error, wait time.Duration)) (int, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.MinDelay
	b.MaxInterval = p.MaxDelay
	b.Multiplier = p.Multiplier
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()

	attempts := max(p.MaxAttempts, 1)
	var policy backoff.BackOff = backoff.WithMaxRetries(b, uint64(attempts-1))
	policy = backoff.WithContext(policy, ctx)

	attempt := 0
	err := backoff.RetryNotify(func() error {
		attempt++
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		return op(ctx, attempt)
	}, policy, func(err error, wait time.Duration) {
		if notify != nil {
			notify(err, wait)
		}
	})

	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		err = perm.Err
	}
	if err != nil && ctx.Err() != nil && !errors.Is(err, ctx.Err()) {
		err = fmt.Errorf("%w: %v", ctx.Err(), err)
	}
	return max(attempt-1, 0), err
}
