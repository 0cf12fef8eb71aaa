package services

import (
	"sync"
	"time"
)

// Claim update kinds.
const (
	UpdateDailyClaim  = "daily_claim"
	UpdateRewardClaim = "reward_claim"
	UpdateTransfer    = "transfer"
)

// ClaimUpdate is published after a mutation has been accepted by the backend.
// Amount is whatever the backend reported; zero when it reported nothing.
type ClaimUpdate struct {
	UserID string    `json:"user_id"`
	Kind   string    `json:"kind"`
	ID     string    `json:"id"`
	Amount int64     `json:"amount"`
	At     time.Time `json:"at"`
}

// ClaimFeed fans claim updates out to subscribers. The zero value is ready to use.
type ClaimFeed struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]func(ClaimUpdate)
}

// NewClaimFeed creates an empty feed.
func NewClaimFeed() *ClaimFeed {
	return &ClaimFeed{}
}

// Subscribe registers cb and returns a function that removes it.
// Calling the returned function more than once is a no-op.
func (f *ClaimFeed) Subscribe(cb func(ClaimUpdate)) func() {
	f.mu.Lock()
	if f.subs == nil {
		f.subs = make(map[int]func(ClaimUpdate))
	}
	id := f.nextID
	f.nextID++
	f.subs[id] = cb
	f.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, id)
			f.mu.Unlock()
		})
	}
}

// Publish delivers u to every subscriber synchronously, outside the lock so
// callbacks may subscribe or unsubscribe.
func (f *ClaimFeed) Publish(u ClaimUpdate) {
	f.mu.RLock()
	subs := make([]func(ClaimUpdate), 0, len(f.subs))
	for _, cb := range f.subs {
		subs = append(subs, cb)
	}
	f.mu.RUnlock()

	for _, cb := range subs {
		cb(u)
	}
}

// Len returns the number of active subscribers.
func (f *ClaimFeed) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs)
}
