package services

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"avolve-rewards/rewards"
)

func sequentialKeys() func() string {
	var n int32
	return func() string {
		return fmt.Sprintf("key-%d", atomic.AddInt32(&n, 1))
	}
}

func TestClaimAction_Transitions(t *testing.T) {
	tests := []struct {
		name   string
		result error
		want   ClaimState
	}{
		{"success", nil, ClaimSucceeded},
		{"rejected", rewards.NewError(rewards.ErrAlreadyActed, "op", "already claimed", nil), ClaimRejected},
		{"transient", rewards.NewError(rewards.ErrTransient, "op", "timed out", nil), ClaimTransientFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newClaimAction()
			if _, err := a.Begin(sequentialKeys()); err != nil {
				t.Fatalf("begin: %v", err)
			}
			if got := a.Finish(tt.result, testNow); got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
			if tt.result != nil {
				if _, reason := a.State(); reason == "" {
					t.Error("expected a failure reason")
				}
			}
		})
	}
}

func TestClaimAction_BlocksUntilSettled(t *testing.T) {
	keys := sequentialKeys()
	a := newClaimAction()
	_, _ = a.Begin(keys)

	if _, err := a.Begin(keys); !errors.Is(err, rewards.ErrAlreadyActed) {
		t.Fatalf("expected already acted while submitting, got %v", err)
	}
	a.Finish(nil, testNow)
	if _, err := a.Begin(keys); !errors.Is(err, rewards.ErrAlreadyActed) {
		t.Fatalf("expected already acted before settle, got %v", err)
	}
	a.Settle()
	if st, _ := a.State(); st != ClaimIdle {
		t.Fatalf("expected idle after settle, got %s", st)
	}
	if _, err := a.Begin(keys); err != nil {
		t.Errorf("expected begin after settle to succeed, got %v", err)
	}
}

func TestClaimAction_TransientRetryKeepsKey(t *testing.T) {
	keys := sequentialKeys()
	a := newClaimAction()
	first, _ := a.Begin(keys)
	a.Finish(rewards.NewError(rewards.ErrTransient, "op", "", nil), testNow)

	a.Settle()
	if st, _ := a.State(); st != ClaimTransientFailure {
		t.Errorf("settle must not clear a transient failure, got %s", st)
	}
	retry, err := a.Begin(keys)
	if err != nil {
		t.Fatalf("expected retry to be allowed, got %v", err)
	}
	if retry != first {
		t.Errorf("expected retry to reuse key %q, got %q", first, retry)
	}

	a.Finish(nil, testNow)
	a.Settle()
	next, _ := a.Begin(keys)
	if next == first {
		t.Errorf("expected a new key after the action settled, got %q again", next)
	}
}

func TestClaimActions_SingleWinner(t *testing.T) {
	reg := newClaimActions()
	keys := sequentialKeys()

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, err := reg.begin("daily:u1:c1", testNow, keys); err == nil {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("expected exactly 1 winner, got %d", wins)
	}
}

func TestClaimActions_ReleaseForgetsIdle(t *testing.T) {
	reg := newClaimActions()
	keys := sequentialKeys()

	a, _, _ := reg.begin("k", testNow, keys)
	a.Finish(nil, testNow)
	if !reg.awaitingRefresh("k") {
		t.Error("expected a finished action to await its refresh")
	}
	reg.release("k")
	if len(reg.m) != 0 {
		t.Errorf("expected idle action to be dropped, %d left", len(reg.m))
	}

	b, _, _ := reg.begin("k", testNow, keys)
	b.Finish(rewards.NewError(rewards.ErrTransient, "op", "", nil), testNow)
	reg.release("k")
	if st, _ := reg.state("k"); st != ClaimTransientFailure {
		t.Errorf("expected transient failure to be kept, got %s", st)
	}
}

func TestClaimActions_PrunesStaleTransientFailures(t *testing.T) {
	reg := newClaimActions()
	keys := sequentialKeys()

	old, _, _ := reg.begin("old", testNow, keys)
	old.Finish(rewards.NewError(rewards.ErrTransient, "op", "", nil), testNow)
	recent, _, _ := reg.begin("recent", testNow, keys)
	recent.Finish(rewards.NewError(rewards.ErrTransient, "op", "", nil), testNow.Add(50*time.Minute))

	later := testNow.Add(failedActionRetention + time.Minute)
	if _, _, err := reg.begin("other", later, keys); err != nil {
		t.Fatalf("begin: %v", err)
	}

	if st, _ := reg.state("old"); st != ClaimIdle {
		t.Errorf("expected stale failure to be forgotten, got %s", st)
	}
	if st, _ := reg.state("recent"); st != ClaimTransientFailure {
		t.Errorf("expected recent failure to be kept, got %s", st)
	}
}
