package retry_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/valpere/infinitran/internal/retry"
)

func fastPolicy(attempts int) retry.Policy {
	return retry.Policy{MaxAttempts: attempts, MinDelay: time.Millisecond, MaxDelay: 4 * time.Millisecond, Multiplier: 2}
}

func TestDo_SucceedsAfterTransientFailures(t *testing.T) {
	var calls atomic.Int32
	var notified atomic.Int32
	retries, err := retry.Do(context.Background(), fastPolicy(3), func(ctx context.Context, attempt int) error {
		if calls.Add(1) < 3 {
			return errors.New("503")
		}
		return nil
	}, func(err error, wait time.Duration) { notified.Add(1) })

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if retries != 2 || calls.Load() != 3 || notified.Load() != 2 {
		t.Errorf("retries=%d calls=%d notified=%d", retries, calls.Load(), notified.Load())
	}
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	var calls atomic.Int32
	boom := errors.New("boom")
	retries, err := retry.Do(context.Background(), fastPolicy(3), func(ctx context.Context, attempt int) error {
		calls.Add(1)
		return boom
	}, nil)

	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if calls.Load() != 3 || retries != 2 {
		t.Errorf("calls=%d retries=%d, want 3 and 2", calls.Load(), retries)
	}
}

func TestDo_PermanentStopsImmediately(t *testing.T) {
	var calls atomic.Int32
	denied := errors.New("401 unauthorized")
	retries, err := retry.Do(context.Background(), fastPolicy(5), func(ctx context.Context, attempt int) error {
		calls.Add(1)
		return retry.Permanent(denied)
	}, nil)

	if !errors.Is(err, denied) {
		t.Fatalf("expected the wrapped error, got %v", err)
	}
	if calls.Load() != 1 || retries != 0 {
		t.Errorf("calls=%d retries=%d, want 1 and 0", calls.Load(), retries)
	}
}

func TestDo_AttemptNumbers(t *testing.T) {
	var seen []int
	_, _ = retry.Do(context.Background(), fastPolicy(3), func(ctx context.Context, attempt int) error {
		seen = append(seen, attempt)
		return errors.New("again")
	}, nil)
	if len(seen) != 3 || seen[0] != 1 || seen[2] != 3 {
		t.Errorf("attempts = %v", seen)
	}
}

func TestDo_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls atomic.Int32
	_, err := retry.Do(ctx, fastPolicy(3), func(ctx context.Context, attempt int) error {
		calls.Add(1)
		return nil
	}, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls.Load() != 0 {
		t.Errorf("operation should not run on a cancelled context, ran %d times", calls.Load())
	}
}

func TestPolicy_Validate(t *testing.T) {
	tests := []struct {
		name    string
		policy  retry.Policy
		wantErr bool
	}{
		{"default", retry.DefaultPolicy(), false},
		{"zero attempts", retry.Policy{MaxAttempts: 0, MaxDelay: time.Second, Multiplier: 2}, true},
		{"max below min", retry.Policy{MaxAttempts: 1, MinDelay: time.Second, MaxDelay: time.Millisecond, Multiplier: 2}, true},
		{"shrinking multiplier", retry.Policy{MaxAttempts: 1, MaxDelay: time.Second, Multiplier: 0.5}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.policy.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestPermanent_Nil(t *testing.T) {
	if retry.Permanent(nil) != nil {
		t.Error("Permanent(nil) should be nil")
	}
}
