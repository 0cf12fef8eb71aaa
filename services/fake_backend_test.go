package services

import (
	"context"
	"net/http"
	"sync"
	"time"

	"avolve-rewards/models"
)

// fakeBackend is an in-memory Backend that enforces claim uniqueness and
// balance checks the way a real backend must, and counts calls.
type fakeBackend struct {
	mu sync.Mutex

	claims    map[string]*models.ClaimEvent
	history   []time.Time
	points    []models.RolePoints
	activity  []models.ActivityRecord
	rewards   map[string]*models.Reward
	balances  map[string]map[string]int64 // user -> token -> balance
	event     []models.GroupEventParticipant
	required  int
	completed int

	requiredErr  error
	balancesErr  error
	completedErr error
	claimErrs    []error // returned in order by ClaimDaily before real handling
	transferErrs []error

	lastLimit int

	calls    map[string]int
	keys     map[string][]string // op -> idempotency keys seen
	seenKeys map[string]bool
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		claims:   make(map[string]*models.ClaimEvent),
		rewards:  make(map[string]*models.Reward),
		balances: make(map[string]map[string]int64),
		required: 3,
		calls:    make(map[string]int),
		keys:     make(map[string][]string),
		seenKeys: make(map[string]bool),
	}
}

func (f *fakeBackend) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeBackend) record(op string) {
	f.calls[op]++
}

func (f *fakeBackend) balance(user, token string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balances[user][token]
}

func (f *fakeBackend) setBalance(user, token string, amount int64) {
	if f.balances[user] == nil {
		f.balances[user] = make(map[string]int64)
	}
	f.balances[user][token] = amount
}

func (f *fakeBackend) ListDailyClaims(ctx context.Context, userID string, now time.Time) ([]models.ClaimEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("ListDailyClaims")
	var out []models.ClaimEvent
	for _, c := range f.claims {
		if c.UserID == userID && c.ExpiresAt.After(now) {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (f *fakeBackend) ListClaimHistory(ctx context.Context, userID string, since time.Time) ([]time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("ListClaimHistory")
	return append([]time.Time(nil), f.history...), nil
}

func (f *fakeBackend) ClaimDaily(ctx context.Context, userID, claimID, idempotencyKey string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("ClaimDaily")
	f.keys["ClaimDaily"] = append(f.keys["ClaimDaily"], idempotencyKey)

	if len(f.claimErrs) > 0 {
		err := f.claimErrs[0]
		f.claimErrs = f.claimErrs[1:]
		return err
	}
	if f.seenKeys[idempotencyKey] {
		return nil
	}

	c, ok := f.claims[claimID]
	if !ok || c.UserID != userID {
		return &BackendError{Status: http.StatusNotFound, Code: CodeNotFound, Message: "claim not found"}
	}
	if c.Claimed {
		return &BackendError{Status: http.StatusConflict, Code: CodeAlreadyClaimed, Message: "this daily reward has already been claimed"}
	}
	now := time.Now()
	c.Claimed = true
	c.ClaimedAt = &now
	f.setBalance(userID, string(c.TokenType), f.balances[userID][string(c.TokenType)]+c.Amount)
	f.seenKeys[idempotencyKey] = true
	return nil
}

func (f *fakeBackend) GetRolePoints(ctx context.Context, userID string) ([]models.RolePoints, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("GetRolePoints")
	return append([]models.RolePoints(nil), f.points...), nil
}

func (f *fakeBackend) GetRoleHistory(ctx context.Context, userID string, limit int) ([]models.ActivityRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("GetRoleHistory")
	f.lastLimit = limit
	return append([]models.ActivityRecord(nil), f.activity...), nil
}

func (f *fakeBackend) ListRewards(ctx context.Context, userID string) ([]models.Reward, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("ListRewards")
	var out []models.Reward
	for _, r := range f.rewards {
		if r.UserID == userID {
			cp := *r
			cp.CanClaim = !cp.IsClaimed
			out = append(out, cp)
		}
	}
	return out, nil
}

func (f *fakeBackend) ClaimTokenReward(ctx context.Context, userID, rewardID, idempotencyKey string) (models.ClaimRewardResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("ClaimTokenReward")

	r, ok := f.rewards[rewardID]
	if !ok || r.UserID != userID {
		return models.ClaimRewardResult{}, &BackendError{Status: http.StatusNotFound, Code: CodeNotFound, Message: "reward not found"}
	}
	if r.IsClaimed {
		return models.ClaimRewardResult{Success: false, Message: "reward already claimed", Code: CodeAlreadyClaimed}, nil
	}
	if p := r.RequirementsProgress; p != nil && !p.Met() {
		return models.ClaimRewardResult{Success: false, Message: "requirements not met"}, nil
	}
	r.IsClaimed = true
	f.setBalance(userID, r.TokenSymbol, f.balances[userID][r.TokenSymbol]+r.Amount)
	return models.ClaimRewardResult{Success: true, Amount: r.Amount, Message: "claimed"}, nil
}

func (f *fakeBackend) GetBalances(ctx context.Context, userID string) ([]models.TokenBalance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("GetBalances")
	if f.balancesErr != nil {
		return nil, f.balancesErr
	}
	var out []models.TokenBalance
	for token, amount := range f.balances[userID] {
		out = append(out, models.TokenBalance{UserID: userID, TokenSymbol: token, Balance: amount})
	}
	return out, nil
}

func (f *fakeBackend) TransferTokens(ctx context.Context, req models.TransferRequest, idempotencyKey string) (models.TransferResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("TransferTokens")
	f.keys["TransferTokens"] = append(f.keys["TransferTokens"], idempotencyKey)

	if len(f.transferErrs) > 0 {
		err := f.transferErrs[0]
		f.transferErrs = f.transferErrs[1:]
		return models.TransferResult{}, err
	}

	have := f.balances[req.FromUserID][req.TokenID]
	if have < req.Amount {
		return models.TransferResult{}, &BackendError{Status: http.StatusPaymentRequired, Code: CodeInsufficientBalance, Message: "insufficient balance"}
	}
	f.setBalance(req.FromUserID, req.TokenID, have-req.Amount)
	f.setBalance(req.ToUserID, req.TokenID, f.balances[req.ToUserID][req.TokenID]+req.Amount)
	nb := have - req.Amount
	return models.TransferResult{Success: true, NewBalance: &nb}, nil
}

func (f *fakeBackend) GetGroupEventRewards(ctx context.Context, eventID string) ([]models.GroupEventParticipant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("GetGroupEventRewards")
	return append([]models.GroupEventParticipant(nil), f.event...), nil
}

func (f *fakeBackend) GetRequiredChallenges(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("GetRequiredChallenges")
	if f.requiredErr != nil {
		return 0, f.requiredErr
	}
	return f.required, nil
}

func (f *fakeBackend) CountCompletedChallenges(ctx context.Context, userID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("CountCompletedChallenges")
	if f.completedErr != nil {
		return 0, f.completedErr
	}
	return f.completed, nil
}
