package services

import (
	"sync"
	"time"

	"avolve-rewards/rewards"
)

// ClaimState is the lifecycle of one claim/transfer action.
type ClaimState string

const (
	ClaimIdle             ClaimState = "idle"
	ClaimSubmitting       ClaimState = "submitting"
	ClaimSucceeded        ClaimState = "succeeded"
	ClaimRejected         ClaimState = "rejected"
	ClaimTransientFailure ClaimState = "transient_failure"
)

// failedActionRetention is how long a transient failure keeps its idempotency
// key for a manual retry before it is forgotten.
const failedActionRetention = time.Hour

// ClaimAction guards a single mutating action.
//
//	Idle → Submitting → Succeeded | Rejected | TransientFailure
//
// TransientFailure may be retried directly and keeps the idempotency key of
// the failed submission. Succeeded and Rejected only return to Idle through
// Settle, once the authoritative state has been re-read.
type ClaimAction struct {
	mu       sync.Mutex
	state    ClaimState
	reason   string
	key      string
	failedAt time.Time
}

func newClaimAction() *ClaimAction {
	return &ClaimAction{state: ClaimIdle}
}

// Begin moves the action to Submitting and returns the idempotency key the
// submission must carry. From Idle a new key is drawn from newKey; a retry
// after a transient failure reuses the previous key. It fails with
// ErrAlreadyActed while a submission is in flight or its outcome is still
// being reconciled.
func (a *ClaimAction) Begin(newKey func() string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch a.state {
	case ClaimIdle:
		a.key = newKey()
	case ClaimTransientFailure:
		if a.key == "" {
			a.key = newKey()
		}
	case ClaimSubmitting:
		return "", rewards.NewError(rewards.ErrAlreadyActed, "submit", "this action is already being submitted", nil)
	default:
		return "", rewards.NewError(rewards.ErrAlreadyActed, "submit", "this action was just completed and is being refreshed", nil)
	}
	a.state = ClaimSubmitting
	a.reason = ""
	a.failedAt = time.Time{}
	return a.key, nil
}

// Finish records the outcome of the submission at now and returns the new state.
func (a *ClaimAction) Finish(err error, now time.Time) ClaimState {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state != ClaimSubmitting {
		return a.state
	}
	switch {
	case err == nil:
		a.state = ClaimSucceeded
	case rewards.Retryable(err):
		a.state = ClaimTransientFailure
		a.reason = rewards.ReasonOf(err)
		a.failedAt = now
	default:
		a.state = ClaimRejected
		a.reason = rewards.ReasonOf(err)
	}
	return a.state
}

// Settle returns a finished action to Idle after the snapshot refresh and
// drops its idempotency key.
func (a *ClaimAction) Settle() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state == ClaimSucceeded || a.state == ClaimRejected {
		a.state = ClaimIdle
		a.key = ""
	}
}

// State returns the current state and, for failures, the user-facing reason.
func (a *ClaimAction) State() (ClaimState, string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state, a.reason
}

func (a *ClaimAction) awaitingRefresh() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state == ClaimSucceeded || a.state == ClaimRejected
}

func (a *ClaimAction) staleAt(cutoff time.Time) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state == ClaimTransientFailure && a.failedAt.Before(cutoff)
}

// claimActions tracks actions by key. Idle actions are dropped, and transient
// failures are dropped once older than retention.
type claimActions struct {
	mu        sync.Mutex
	m         map[string]*ClaimAction
	retention time.Duration
}

func newClaimActions() *claimActions {
	return &claimActions{m: make(map[string]*ClaimAction), retention: failedActionRetention}
}

func (c *claimActions) begin(key string, now time.Time, newKey func() string) (*ClaimAction, string, error) {
	c.mu.Lock()
	c.pruneLocked(now)
	a, ok := c.m[key]
	if !ok {
		a = newClaimAction()
		c.m[key] = a
	}
	c.mu.Unlock()

	idem, err := a.Begin(newKey)
	if err != nil {
		return nil, "", err
	}
	return a, idem, nil
}

func (c *claimActions) pruneLocked(now time.Time) {
	cutoff := now.Add(-c.retention)
	for k, a := range c.m {
		if a.staleAt(cutoff) {
			delete(c.m, k)
		}
	}
}

func (c *claimActions) state(key string) (ClaimState, string) {
	c.mu.Lock()
	a, ok := c.m[key]
	c.mu.Unlock()
	if !ok {
		return ClaimIdle, ""
	}
	return a.State()
}

// awaitingRefresh reports whether the action under key finished but has not
// been reconciled against a fresh snapshot yet.
func (c *claimActions) awaitingRefresh(key string) bool {
	c.mu.Lock()
	a, ok := c.m[key]
	c.mu.Unlock()
	return ok && a.awaitingRefresh()
}

// release settles the action under key and forgets it once it is back to Idle.
func (c *claimActions) release(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	a, ok := c.m[key]
	if !ok {
		return
	}
	a.Settle()
	if st, _ := a.State(); st == ClaimIdle {
		delete(c.m, key)
	}
}
