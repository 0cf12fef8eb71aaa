package services

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"avolve-rewards/models"
	"avolve-rewards/rewards"
)

const (
	// DefaultCallTimeout bounds a single backend attempt.
	DefaultCallTimeout = 12 * time.Second

	defaultHistoryLimit = 20
	maxHistoryLimit     = 100

	// streakLookback is how far back claim history is read for streaks.
	streakLookback = 400 * 24 * time.Hour
)

// Snapshot is the last authoritative view of a user's reward state.
type Snapshot struct {
	UserID     string                `json:"user_id"`
	Claims     []models.ClaimEvent   `json:"claims"`
	RolePoints []models.RolePoints   `json:"role_points"`
	Rewards    []models.Reward       `json:"rewards"`
	Balances   []models.TokenBalance `json:"balances"`
	FetchedAt  time.Time             `json:"fetched_at"`
}

// RewardLedgerClient is the I/O boundary around a Backend. It validates
// input before any network call, normalises failures into the rewards error
// taxonomy and caches the last snapshot per user. It never computes balances.
type RewardLedgerClient struct {
	backend Backend
	feed    *ClaimFeed
	retry   RetryPolicy
	timeout time.Duration
	streaks rewards.StreakCalculator
	now     func() time.Time
	newKey  func() string
	log     *log.Entry

	actions *claimActions

	mu        sync.RWMutex
	snapshots map[string]Snapshot
}

// ClientOption configures a RewardLedgerClient.
type ClientOption func(*RewardLedgerClient)

// WithFeed publishes claim updates to feed instead of a private one.
func WithFeed(feed *ClaimFeed) ClientOption {
	return func(c *RewardLedgerClient) { c.feed = feed }
}

func WithRetryPolicy(p RetryPolicy) ClientOption {
	return func(c *RewardLedgerClient) { c.retry = p }
}

// WithTimeout sets the per-attempt timeout. Non-positive values are ignored.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *RewardLedgerClient) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithStreakCalculator(calc rewards.StreakCalculator) ClientOption {
	return func(c *RewardLedgerClient) { c.streaks = calc }
}

func WithClock(now func() time.Time) ClientOption {
	return func(c *RewardLedgerClient) { c.now = now }
}

func WithLogger(l *log.Entry) ClientOption {
	return func(c *RewardLedgerClient) { c.log = l }
}

// WithIdempotencyKeys overrides how idempotency keys are generated.
func WithIdempotencyKeys(gen func() string) ClientOption {
	return func(c *RewardLedgerClient) { c.newKey = gen }
}

// NewRewardLedgerClient wires a client around backend.
func NewRewardLedgerClient(backend Backend, opts ...ClientOption) *RewardLedgerClient {
	c := &RewardLedgerClient{
		backend:   backend,
		feed:      NewClaimFeed(),
		retry:     DefaultRetryPolicy,
		timeout:   DefaultCallTimeout,
		streaks:   rewards.NewStreakCalculator(time.UTC, rewards.DailyCooldown),
		now:       time.Now,
		newKey:    uuid.NewString,
		log:       log.WithField("component", "ledger"),
		actions:   newClaimActions(),
		snapshots: make(map[string]Snapshot),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// call runs fn with a per-attempt timeout under the retry policy. Only
// transient failures are retried.
func call[T any](ctx context.Context, c *RewardLedgerClient, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := c.retry.do(ctx, func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		v, err := fn(attemptCtx)
		if err != nil {
			return normalizeError(op, err)
		}
		out = v
		return nil
	})
	if err != nil {
		return out, normalizeError(op, err)
	}
	return out, nil
}

func requireID(op, field, value string) error {
	if strings.TrimSpace(value) == "" {
		return rewards.Validation(op, field+" is required")
	}
	return nil
}

// FetchDailyClaims returns the user's open claim windows, earliest expiry first.
// The backend filters by expiry; rows that slipped through are dropped here too.
func (c *RewardLedgerClient) FetchDailyClaims(ctx context.Context, userID string) ([]models.ClaimEvent, error) {
	const op = "fetch daily claims"
	if err := requireID(op, "user id", userID); err != nil {
		return nil, err
	}

	now := c.now()
	claims, err := call(ctx, c, op, func(ctx context.Context) ([]models.ClaimEvent, error) {
		return c.backend.ListDailyClaims(ctx, userID, now)
	})
	if err != nil {
		return nil, err
	}
	if err := validateRecords(op, claims); err != nil {
		return nil, err
	}

	open := make([]models.ClaimEvent, 0, len(claims))
	for _, claim := range claims {
		if claim.UserID != userID || claim.Expired(now) {
			continue
		}
		open = append(open, claim)
	}
	sort.SliceStable(open, func(i, j int) bool { return open[i].ExpiresAt.Before(open[j].ExpiresAt) })
	return open, nil
}

// ClaimDaily claims one daily window. A second call for the same window fails
// with rewards.ErrAlreadyActed, whether the first is still in flight or done.
func (c *RewardLedgerClient) ClaimDaily(ctx context.Context, userID, claimID string) error {
	const op = "claim daily"
	if err := requireID(op, "user id", userID); err != nil {
		return err
	}
	if err := requireID(op, "claim id", claimID); err != nil {
		return err
	}

	actionKey := "daily:" + userID + ":" + claimID
	c.reconcile(ctx, actionKey, userID)

	if claim, ok := c.cachedClaim(userID, claimID); ok && claim.Claimed {
		return rewards.NewError(rewards.ErrAlreadyActed, op, "this daily reward has already been claimed", nil)
	}

	action, key, err := c.actions.begin(actionKey, c.now(), c.newKey)
	if err != nil {
		return err
	}

	_, err = call(ctx, c, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.backend.ClaimDaily(ctx, userID, claimID, key)
	})

	if c.settle(ctx, actionKey, action, err, userID) == ClaimSucceeded {
		var amount int64
		if claim, ok := c.cachedClaim(userID, claimID); ok {
			amount = claim.Amount
		}
		c.feed.Publish(ClaimUpdate{UserID: userID, Kind: UpdateDailyClaim, ID: claimID, Amount: amount, At: c.now()})
		c.log.WithFields(log.Fields{"user_id": userID, "claim_id": claimID}).Info("daily reward claimed")
	}
	return err
}

// GetRolePoints returns the user's points per role in models.Roles order.
func (c *RewardLedgerClient) GetRolePoints(ctx context.Context, userID string) ([]models.RolePoints, error) {
	const op = "get role points"
	if err := requireID(op, "user id", userID); err != nil {
		return nil, err
	}

	points, err := call(ctx, c, op, func(ctx context.Context) ([]models.RolePoints, error) {
		return c.backend.GetRolePoints(ctx, userID)
	})
	if err != nil {
		return nil, err
	}
	if err := validateRecords(op, points); err != nil {
		return nil, err
	}

	order := make(map[models.RoleType]int, len(models.Roles))
	for i, r := range models.Roles {
		order[r] = i
	}
	sort.SliceStable(points, func(i, j int) bool { return order[points[i].RoleType] < order[points[j].RoleType] })
	return points, nil
}

// GetRoleHistory returns up to limit activity records, most recent first.
// limit defaults to 20 and is capped at 100.
func (c *RewardLedgerClient) GetRoleHistory(ctx context.Context, userID string, limit int) ([]models.ActivityRecord, error) {
	const op = "get role history"
	if err := requireID(op, "user id", userID); err != nil {
		return nil, err
	}
	switch {
	case limit <= 0:
		limit = defaultHistoryLimit
	case limit > maxHistoryLimit:
		limit = maxHistoryLimit
	}

	records, err := call(ctx, c, op, func(ctx context.Context) ([]models.ActivityRecord, error) {
		return c.backend.GetRoleHistory(ctx, userID, limit)
	})
	if err != nil {
		return nil, err
	}
	if err := validateRecords(op, records); err != nil {
		return nil, err
	}

	sort.SliceStable(records, func(i, j int) bool { return records[i].CreatedAt.After(records[j].CreatedAt) })
	if len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// GetAvailableRewards returns the user's rewards with CanClaim recomputed.
func (c *RewardLedgerClient) GetAvailableRewards(ctx context.Context, userID string) ([]models.Reward, error) {
	const op = "get available rewards"
	if err := requireID(op, "user id", userID); err != nil {
		return nil, err
	}

	list, err := call(ctx, c, op, func(ctx context.Context) ([]models.Reward, error) {
		return c.backend.ListRewards(ctx, userID)
	})
	if err != nil {
		return nil, err
	}
	if err := validateRecords(op, list); err != nil {
		return nil, err
	}
	return rewards.ApplyClaimability(list, c.now()), nil
}

// ClaimTokenReward claims a reward. A rejected claim returns the backend's
// result (Success=false) together with a classified error; nothing is credited.
func (c *RewardLedgerClient) ClaimTokenReward(ctx context.Context, userID, rewardID string) (models.ClaimRewardResult, error) {
	const op = "claim token reward"
	if err := requireID(op, "user id", userID); err != nil {
		return models.ClaimRewardResult{Message: rewards.ReasonOf(err)}, err
	}
	if err := requireID(op, "reward id", rewardID); err != nil {
		return models.ClaimRewardResult{Message: rewards.ReasonOf(err)}, err
	}

	actionKey := "reward:" + userID + ":" + rewardID
	c.reconcile(ctx, actionKey, userID)

	if r, ok := c.cachedReward(userID, rewardID); ok && r.IsClaimed {
		msg := "this reward has already been claimed"
		return models.ClaimRewardResult{Message: msg, Code: CodeAlreadyClaimed},
			rewards.NewError(rewards.ErrAlreadyActed, op, msg, nil)
	}

	action, key, err := c.actions.begin(actionKey, c.now(), c.newKey)
	if err != nil {
		return models.ClaimRewardResult{Message: rewards.ReasonOf(err)}, err
	}

	res, err := call(ctx, c, op, func(ctx context.Context) (models.ClaimRewardResult, error) {
		res, err := c.backend.ClaimTokenReward(ctx, userID, rewardID, key)
		if err == nil && !res.Success {
			return res, rejectionError(op, res.Code, res.Message)
		}
		return res, err
	})
	if err != nil {
		res.Success = false
		if res.Message == "" {
			res.Message = rewards.ReasonOf(err)
		}
	}

	if c.settle(ctx, actionKey, action, err, userID) == ClaimSucceeded {
		c.feed.Publish(ClaimUpdate{UserID: userID, Kind: UpdateRewardClaim, ID: rewardID, Amount: res.Amount, At: c.now()})
		c.log.WithFields(log.Fields{"user_id": userID, "reward_id": rewardID, "amount": res.Amount}).Info("token reward claimed")
	}
	return res, err
}

// GetBalances returns the user's authoritative token balances.
func (c *RewardLedgerClient) GetBalances(ctx context.Context, userID string) ([]models.TokenBalance, error) {
	const op = "get balances"
	if err := requireID(op, "user id", userID); err != nil {
		return nil, err
	}
	return call(ctx, c, op, func(ctx context.Context) ([]models.TokenBalance, error) {
		return c.backend.GetBalances(ctx, userID)
	})
}

func validateTransfer(op string, req models.TransferRequest) error {
	if err := requireID(op, "sender", req.FromUserID); err != nil {
		return err
	}
	if err := requireID(op, "recipient", req.ToUserID); err != nil {
		return err
	}
	if err := requireID(op, "token", req.TokenID); err != nil {
		return err
	}
	if req.Amount <= 0 {
		return rewards.Validation(op, "amount must be greater than zero")
	}
	if req.FromUserID == req.ToUserID {
		return rewards.Validation(op, "you cannot transfer tokens to yourself")
	}
	return nil
}

// TransferTokens moves tokens between users. Input is validated before any
// network call; the balance check itself is the backend's.
func (c *RewardLedgerClient) TransferTokens(ctx context.Context, req models.TransferRequest) (models.TransferResult, error) {
	const op = "transfer tokens"
	if err := validateTransfer(op, req); err != nil {
		return models.TransferResult{Message: rewards.ReasonOf(err)}, err
	}

	actionKey := "transfer:" + req.FromUserID + ":" + TransferActionID(req)
	c.reconcile(ctx, actionKey, req.FromUserID)

	action, key, err := c.actions.begin(actionKey, c.now(), c.newKey)
	if err != nil {
		return models.TransferResult{Message: rewards.ReasonOf(err)}, err
	}

	res, err := call(ctx, c, op, func(ctx context.Context) (models.TransferResult, error) {
		res, err := c.backend.TransferTokens(ctx, req, key)
		if err == nil && !res.Success {
			return res, rejectionError(op, res.Code, res.Message)
		}
		return res, err
	})
	if err != nil {
		res.Success = false
		res.NewBalance = nil
		if res.Message == "" {
			res.Message = rewards.ReasonOf(err)
		}
	}

	c.invalidate(req.ToUserID)
	if c.settle(ctx, actionKey, action, err, req.FromUserID) == ClaimSucceeded {
		at := c.now()
		c.feed.Publish(ClaimUpdate{UserID: req.FromUserID, Kind: UpdateTransfer, ID: req.TokenID, Amount: -req.Amount, At: at})
		c.feed.Publish(ClaimUpdate{UserID: req.ToUserID, Kind: UpdateTransfer, ID: req.TokenID, Amount: req.Amount, At: at})
		c.log.WithFields(log.Fields{
			"from_user_id": req.FromUserID,
			"to_user_id":   req.ToUserID,
			"token":        req.TokenID,
			"amount":       req.Amount,
		}).Info("tokens transferred")
	}
	return res, err
}

// TransferActionID identifies a transfer among the sender's actions. A retry of
// the same recipient, token and amount after a transient failure is the same
// logical transfer and carries the same idempotency key.
func TransferActionID(req models.TransferRequest) string {
	return req.ToUserID + ":" + req.TokenID + ":" + strconv.FormatInt(req.Amount, 10)
}

// CanAfford is an optimistic pre-check against the cached snapshot. known is
// false when no snapshot exists. It is never an authorisation decision.
func (c *RewardLedgerClient) CanAfford(userID, tokenSymbol string, amount int64) (affordable, known bool) {
	snap, ok := c.Snapshot(userID)
	if !ok {
		return false, false
	}
	for _, b := range snap.Balances {
		if b.TokenSymbol == tokenSymbol {
			return b.Balance >= amount, true
		}
	}
	return false, true
}

// GetGroupEventRewards lists participants by rank with their payout. Where the
// backend has not computed a payout yet, the rank estimate is used and flagged.
func (c *RewardLedgerClient) GetGroupEventRewards(ctx context.Context, eventID string) ([]models.GroupEventReward, error) {
	const op = "get group event rewards"
	if err := requireID(op, "event id", eventID); err != nil {
		return nil, err
	}

	participants, err := call(ctx, c, op, func(ctx context.Context) ([]models.GroupEventParticipant, error) {
		return c.backend.GetGroupEventRewards(ctx, eventID)
	})
	if err != nil {
		return nil, err
	}
	if err := validateRecords(op, participants); err != nil {
		return nil, err
	}

	out := make([]models.GroupEventReward, 0, len(participants))
	for _, p := range participants {
		final := rankEstimate(p.Rank).Reconcile(p.Reward)
		out = append(out, models.GroupEventReward{
			UserID:    p.UserID,
			Rank:      p.Rank,
			Amount:    final.Amount,
			Estimated: !final.Authoritative,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := out[i].Rank, out[j].Rank
		if (ri < 1) != (rj < 1) {
			return ri >= 1
		}
		if ri != rj {
			return ri < rj
		}
		return out[i].UserID < out[j].UserID
	})
	return out, nil
}

// rankEstimate is the fallback payout for a rank the backend has not paid yet.
// Unranked participants are estimated at 0 and ranks past
// rewards.MaxEstimatedRank at the estimate for that rank.
func rankEstimate(rank int) rewards.AmountEstimate {
	if rank < 1 {
		return rewards.AmountEstimate{}
	}
	if rank > rewards.MaxEstimatedRank {
		rank = rewards.MaxEstimatedRank
	}
	est, err := rewards.EstimateRankReward(rank)
	if err != nil {
		return rewards.AmountEstimate{}
	}
	return est
}

// CheckTeamEligibility evaluates the team creation gate. A threshold that
// cannot be read yields a degraded, ineligible result rather than an error.
func (c *RewardLedgerClient) CheckTeamEligibility(ctx context.Context, userID string) (models.TeamEligibility, error) {
	const op = "check team eligibility"
	if err := requireID(op, "user id", userID); err != nil {
		return models.TeamEligibility{}, err
	}

	completed, err := call(ctx, c, op, func(ctx context.Context) (int, error) {
		return c.backend.CountCompletedChallenges(ctx, userID)
	})
	if err != nil {
		return models.TeamEligibility{}, err
	}

	required, lookupErr := call(ctx, c, op, func(ctx context.Context) (int, error) {
		return c.backend.GetRequiredChallenges(ctx)
	})
	if lookupErr != nil {
		c.log.WithError(lookupErr).WithField("user_id", userID).Warn("team threshold unavailable, failing closed")
	}
	return rewards.CheckTeamCreation(completed, required, lookupErr), nil
}

// EnsureTeamEligible returns nil only when the user may create a team.
func (c *RewardLedgerClient) EnsureTeamEligible(ctx context.Context, userID string) error {
	e, err := c.CheckTeamEligibility(ctx, userID)
	if err != nil {
		return err
	}
	return rewards.TeamDecision(e).Err("create team")
}

// CheckContentUnlock evaluates a token-gated resource against the user's
// current balances. A token counts as owned when its balance is positive.
func (c *RewardLedgerClient) CheckContentUnlock(ctx context.Context, userID string, token models.TokenType) (rewards.UnlockDecision, error) {
	const op = "check content unlock"
	if err := requireID(op, "user id", userID); err != nil {
		return rewards.UnlockDecision{}, err
	}
	if err := requireID(op, "token", string(token)); err != nil {
		return rewards.UnlockDecision{}, err
	}

	balances, err := c.GetBalances(ctx, userID)
	if err != nil {
		return rewards.UnlockDecision{}, err
	}
	owned := make([]models.TokenType, 0, len(balances))
	for _, b := range balances {
		if b.Balance > 0 {
			owned = append(owned, models.TokenType(b.TokenSymbol))
		}
	}
	return rewards.CheckContentUnlock(token, owned), nil
}

// GetClaimStreak computes the user's daily claim streak as of now.
func (c *RewardLedgerClient) GetClaimStreak(ctx context.Context, userID string) (rewards.StreakSummary, error) {
	const op = "get claim streak"
	if err := requireID(op, "user id", userID); err != nil {
		return rewards.StreakSummary{}, err
	}

	now := c.now()
	history, err := call(ctx, c, op, func(ctx context.Context) ([]time.Time, error) {
		return c.backend.ListClaimHistory(ctx, userID, now.Add(-streakLookback))
	})
	if err != nil {
		return rewards.StreakSummary{}, err
	}
	return c.streaks.Calculate(history, now), nil
}

// Refresh re-reads the user's state from the backend and caches it. On error
// the previous snapshot, if any, is left untouched.
func (c *RewardLedgerClient) Refresh(ctx context.Context, userID string) (Snapshot, error) {
	claims, err := c.FetchDailyClaims(ctx, userID)
	if err != nil {
		return Snapshot{}, err
	}
	points, err := c.GetRolePoints(ctx, userID)
	if err != nil {
		return Snapshot{}, err
	}
	list, err := c.GetAvailableRewards(ctx, userID)
	if err != nil {
		return Snapshot{}, err
	}
	balances, err := c.GetBalances(ctx, userID)
	if err != nil {
		return Snapshot{}, err
	}

	snap := Snapshot{
		UserID:     userID,
		Claims:     claims,
		RolePoints: points,
		Rewards:    list,
		Balances:   balances,
		FetchedAt:  c.now(),
	}
	c.mu.Lock()
	c.snapshots[userID] = snap
	c.mu.Unlock()
	return snap, nil
}

// Snapshot returns the cached snapshot for userID.
func (c *RewardLedgerClient) Snapshot(userID string) (Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	snap, ok := c.snapshots[userID]
	return snap, ok
}

// OnClaimUpdated registers cb for claim updates and returns its unsubscribe func.
func (c *RewardLedgerClient) OnClaimUpdated(cb func(ClaimUpdate)) func() {
	return c.feed.Subscribe(cb)
}

// Feed exposes the client's claim feed.
func (c *RewardLedgerClient) Feed() *ClaimFeed {
	return c.feed
}

// ActionState reports the state of an in-flight or recently failed action.
// kind is one of "daily", "reward" or "transfer"; for transfers ownerID is the
// sender and id is TransferActionID.
func (c *RewardLedgerClient) ActionState(kind, ownerID, id string) (ClaimState, string) {
	return c.actions.state(kind + ":" + ownerID + ":" + id)
}

// settle records the outcome of a mutation. Accepted and rejected outcomes
// return to Idle only once a fresh snapshot has been read; until then the
// action keeps blocking resubmission and reconcile retries the refresh.
func (c *RewardLedgerClient) settle(ctx context.Context, actionKey string, action *ClaimAction, err error, userID string) ClaimState {
	state := action.Finish(err, c.now())
	if state == ClaimTransientFailure {
		c.log.WithError(err).WithField("action", actionKey).Warn("mutation failed transiently")
		return state
	}

	c.invalidate(userID)
	if _, rerr := c.Refresh(ctx, userID); rerr != nil {
		c.log.WithError(rerr).WithFields(log.Fields{"user_id": userID, "action": actionKey}).
			Warn("snapshot refresh after mutation failed, action stays settled")
		return state
	}
	c.actions.release(actionKey)
	return state
}

// reconcile finishes a settled action whose post-mutation refresh failed.
func (c *RewardLedgerClient) reconcile(ctx context.Context, actionKey, userID string) {
	if !c.actions.awaitingRefresh(actionKey) {
		return
	}
	if _, err := c.Refresh(ctx, userID); err != nil {
		c.log.WithError(err).WithField("action", actionKey).Warn("snapshot still unavailable")
		return
	}
	c.actions.release(actionKey)
}

func (c *RewardLedgerClient) invalidate(userID string) {
	c.mu.Lock()
	delete(c.snapshots, userID)
	c.mu.Unlock()
}

func (c *RewardLedgerClient) cachedClaim(userID, claimID string) (models.ClaimEvent, bool) {
	snap, ok := c.Snapshot(userID)
	if !ok {
		return models.ClaimEvent{}, false
	}
	for _, claim := range snap.Claims {
		if claim.ID == claimID {
			return claim, true
		}
	}
	return models.ClaimEvent{}, false
}

func (c *RewardLedgerClient) cachedReward(userID, rewardID string) (models.Reward, bool) {
	snap, ok := c.Snapshot(userID)
	if !ok {
		return models.Reward{}, false
	}
	for _, r := range snap.Rewards {
		if r.ID == rewardID {
			return r, true
		}
	}
	return models.Reward{}, false
}
