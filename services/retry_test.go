package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"avolve-rewards/rewards"
)

var fastRetry = RetryPolicy{MaxRetries: 3, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}

func TestRetryPolicy_RetriesTransientOnly(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		calls int
	}{
		{"transient exhausts retries", rewards.NewError(rewards.ErrTransient, "op", "", nil), 4},
		{"permanent stops at once", rewards.NewError(rewards.ErrNotEligible, "op", "", nil), 1},
		{"validation stops at once", rewards.Validation("op", "bad"), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := fastRetry.do(context.Background(), func() error {
				calls++
				return tt.err
			})
			if !errors.Is(err, rewards.KindOf(tt.err)) {
				t.Errorf("expected %v, got %v", tt.err, err)
			}
			if calls != tt.calls {
				t.Errorf("expected %d calls, got %d", tt.calls, calls)
			}
		})
	}
}

func TestRetryPolicy_StopsOnSuccess(t *testing.T) {
	calls := 0
	err := fastRetry.do(context.Background(), func() error {
		calls++
		if calls < 2 {
			return rewards.NewError(rewards.ErrTransient, "op", "", nil)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 2 {
		t.Errorf("expected 2 calls, got %d", calls)
	}
}

func TestRetryPolicy_ZeroMeansSingleAttempt(t *testing.T) {
	calls := 0
	_ = RetryPolicy{}.do(context.Background(), func() error {
		calls++
		return rewards.NewError(rewards.ErrTransient, "op", "", nil)
	})
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestRetryPolicy_HonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	slow := RetryPolicy{MaxRetries: 5, InitialInterval: time.Second, MaxInterval: time.Second}
	_ = slow.do(ctx, func() error {
		calls++
		return rewards.NewError(rewards.ErrTransient, "op", "", nil)
	})
	if calls > 1 {
		t.Errorf("expected no retries after cancel, got %d calls", calls)
	}
}
