// services/store_backend.go
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"avolve-rewards/models"
	"avolve-rewards/rewards"
)

// Postgres error codes the store reacts to.
const (
	pgDataExceptionClass   = "22"
	pgUniqueViolation      = "23505"
	pgCheckViolation       = "23514"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

// StoreBackend is the self-hosted ledger on Postgres. Every mutation runs in
// one transaction that locks the rows it changes, so the per-window claim
// uniqueness and the balance check hold under concurrent requests.
type StoreBackend struct {
	DB       *gorm.DB
	Location *time.Location
	Now      func() time.Time
}

func NewStoreBackend(db *gorm.DB, loc *time.Location) *StoreBackend {
	if loc == nil {
		loc = time.UTC
	}
	return &StoreBackend{DB: db, Location: loc, Now: time.Now}
}

// Migrate creates or updates every ledger table.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Member{},
		&models.ClaimEvent{},
		&models.RolePoints{},
		&models.ActivityRecord{},
		&models.Reward{},
		&models.TokenBalance{},
		&models.TokenTransfer{},
		&models.IdempotencyRecord{},
		&models.GroupEventParticipant{},
		&models.AppSetting{},
		&models.ChallengeCompletion{},
	)
}

// storeError maps database failures onto backend errors.
func storeError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &BackendError{Status: http.StatusNotFound, Code: CodeNotFound, Message: "record not found"}
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return &BackendError{Status: http.StatusConflict, Code: CodeAlreadyClaimed, Message: "this action has already been performed"}
		case pgCheckViolation:
			return &BackendError{Status: http.StatusPaymentRequired, Code: CodeInsufficientBalance, Message: "insufficient balance"}
		case pgSerializationFailure, pgDeadlockDetected:
			return &BackendError{Status: http.StatusServiceUnavailable, Code: CodeUnavailable, Message: "the ledger is busy, please try again"}
		}
		// malformed ids and out-of-range values
		if strings.HasPrefix(pgErr.Code, pgDataExceptionClass) {
			return &BackendError{Status: http.StatusBadRequest, Message: "invalid identifier or value"}
		}
	}
	return err
}

// replay returns the stored response for key, if any, into out.
func replay(tx *gorm.DB, key string, out any) (bool, error) {
	if key == "" {
		return false, nil
	}
	var rec models.IdempotencyRecord
	err := tx.Where("key = ?", key).Limit(1).Find(&rec).Error
	if err != nil {
		return false, err
	}
	if rec.Key == "" {
		return false, nil
	}
	if out != nil {
		if err := json.Unmarshal([]byte(rec.Response), out); err != nil {
			return false, fmt.Errorf("corrupt idempotency record %s: %w", key, err)
		}
	}
	return true, nil
}

func remember(tx *gorm.DB, key, op, userID string, response any) error {
	if key == "" {
		return nil
	}
	raw, err := json.Marshal(response)
	if err != nil {
		return err
	}
	return tx.Create(&models.IdempotencyRecord{Key: key, Operation: op, UserID: userID, Response: string(raw)}).Error
}

func credit(tx *gorm.DB, userID, token string, amount int64, now time.Time) error {
	return tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "token_symbol"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"balance":    gorm.Expr("token_balances.balance + EXCLUDED.balance"),
			"updated_at": now,
		}),
	}).Create(&models.TokenBalance{UserID: userID, TokenSymbol: token, Balance: amount, UpdatedAt: now}).Error
}

func addRolePoints(tx *gorm.DB, userID string, role models.RoleType, points int64, now time.Time) error {
	return tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "role_type"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"points":         gorm.Expr("role_points.points + EXCLUDED.points"),
			"last_action_at": now,
			"updated_at":     now,
		}),
	}).Create(&models.RolePoints{UserID: userID, RoleType: role, Points: points, LastActionAt: &now}).Error
}

func (s *StoreBackend) ListDailyClaims(ctx context.Context, userID string, now time.Time) ([]models.ClaimEvent, error) {
	var claims []models.ClaimEvent
	err := s.DB.WithContext(ctx).
		Where("user_id = ? AND expires_at > ?", userID, now).
		Order("expires_at asc").
		Find(&claims).Error
	return claims, storeError(err)
}

func (s *StoreBackend) ListClaimHistory(ctx context.Context, userID string, since time.Time) ([]time.Time, error) {
	var times []time.Time
	err := s.DB.WithContext(ctx).Model(&models.ClaimEvent{}).
		Where("user_id = ? AND claimed = ? AND claimed_at >= ?", userID, true, since).
		Order("claimed_at asc").
		Pluck("claimed_at", &times).Error
	return times, storeError(err)
}

func (s *StoreBackend) ClaimDaily(ctx context.Context, userID, claimID, idempotencyKey string) error {
	now := s.Now()
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if done, err := replay(tx, idempotencyKey, nil); err != nil || done {
			return err
		}

		var claim models.ClaimEvent
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", claimID).First(&claim).Error; err != nil {
			return err
		}
		if claim.UserID != userID {
			return &BackendError{Status: http.StatusNotFound, Code: CodeNotFound, Message: "claim not found"}
		}
		if claim.Claimed {
			return &BackendError{Status: http.StatusConflict, Code: CodeAlreadyClaimed, Message: "this daily reward has already been claimed"}
		}
		if claim.Expired(now) {
			return &BackendError{Status: http.StatusForbidden, Code: CodeNotEligible, Message: "this claim window has closed"}
		}

		res := tx.Model(&claim).Where("claimed = ?", false).
			Updates(map[string]interface{}{"claimed": true, "claimed_at": now})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return &BackendError{Status: http.StatusConflict, Code: CodeAlreadyClaimed, Message: "this daily reward has already been claimed"}
		}

		if err := credit(tx, userID, string(claim.TokenType), claim.Amount, now); err != nil {
			return err
		}
		if err := addRolePoints(tx, userID, models.RoleSubscriber, claim.Amount, now); err != nil {
			return err
		}
		if err := tx.Create(&models.ActivityRecord{
			UserID:       userID,
			RoleType:     models.RoleSubscriber,
			ActivityType: models.ActivityDailyClaim,
			TokenSymbol:  string(claim.TokenType),
			Amount:       claim.Amount,
			Points:       claim.Amount,
			Description:  "daily claim " + claim.ClaimWindow,
		}).Error; err != nil {
			return err
		}
		return remember(tx, idempotencyKey, "claim_daily", userID, struct{}{})
	})
	return storeError(err)
}

func (s *StoreBackend) GetRolePoints(ctx context.Context, userID string) ([]models.RolePoints, error) {
	var points []models.RolePoints
	err := s.DB.WithContext(ctx).Where("user_id = ?", userID).Find(&points).Error
	return points, storeError(err)
}

func (s *StoreBackend) GetRoleHistory(ctx context.Context, userID string, limit int) ([]models.ActivityRecord, error) {
	var records []models.ActivityRecord
	err := s.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc").
		Limit(limit).
		Find(&records).Error
	return records, storeError(err)
}

// ListRewards computes CanClaim server-side with the same gate the client applies.
func (s *StoreBackend) ListRewards(ctx context.Context, userID string) ([]models.Reward, error) {
	var list []models.Reward
	if err := s.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc").
		Find(&list).Error; err != nil {
		return nil, storeError(err)
	}
	now := s.Now()
	for i := range list {
		list[i].CanClaim = rewards.CheckRewardClaim(list[i], now).Allowed
	}
	return list, nil
}

func (s *StoreBackend) ClaimTokenReward(ctx context.Context, userID, rewardID, idempotencyKey string) (models.ClaimRewardResult, error) {
	now := s.Now()
	var out models.ClaimRewardResult
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if done, err := replay(tx, idempotencyKey, &out); err != nil || done {
			return err
		}

		var r models.Reward
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ? AND user_id = ?", rewardID, userID).First(&r).Error; err != nil {
			return err
		}

		if d := rewards.CheckRewardClaim(r, now); !d.Allowed {
			code := CodeNotEligible
			if d.Code == rewards.ReasonAlreadyClaimed {
				code = CodeAlreadyClaimed
			}
			out = models.ClaimRewardResult{Success: false, Message: d.Reason, Code: code}
			return remember(tx, idempotencyKey, "claim_token_reward", userID, out)
		}

		res := tx.Model(&r).Where("is_claimed = ?", false).
			Updates(map[string]interface{}{"is_claimed": true, "claimed_at": now})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			out = models.ClaimRewardResult{Success: false, Message: "this reward has already been claimed", Code: CodeAlreadyClaimed}
			return nil
		}

		role := r.RewardType.RoleFor()
		if err := credit(tx, userID, r.TokenSymbol, r.Amount, now); err != nil {
			return err
		}
		if err := addRolePoints(tx, userID, role, r.Amount, now); err != nil {
			return err
		}
		if err := tx.Create(&models.ActivityRecord{
			UserID:       userID,
			RoleType:     role,
			ActivityType: models.ActivityRewardClaim,
			TokenSymbol:  r.TokenSymbol,
			Amount:       r.Amount,
			Points:       r.Amount,
			Description:  r.Title,
		}).Error; err != nil {
			return err
		}

		out = models.ClaimRewardResult{
			Success: true,
			Amount:  r.Amount,
			Message: fmt.Sprintf("claimed %d %s", r.Amount, r.TokenSymbol),
		}
		return remember(tx, idempotencyKey, "claim_token_reward", userID, out)
	})
	return out, storeError(err)
}

func (s *StoreBackend) GetBalances(ctx context.Context, userID string) ([]models.TokenBalance, error) {
	var balances []models.TokenBalance
	err := s.DB.WithContext(ctx).Where("user_id = ?", userID).Order("token_symbol asc").Find(&balances).Error
	return balances, storeError(err)
}

// TransferTokens debits and credits in one transaction with the sender's
// balance row locked, so the balance check and the debit cannot interleave.
func (s *StoreBackend) TransferTokens(ctx context.Context, req models.TransferRequest, idempotencyKey string) (models.TransferResult, error) {
	if req.Amount <= 0 {
		return models.TransferResult{Message: "amount must be greater than zero", Code: CodeInvalidAmount}, nil
	}
	if req.FromUserID == req.ToUserID {
		return models.TransferResult{Message: "you cannot transfer tokens to yourself", Code: CodeInvalidAmount}, nil
	}

	now := s.Now()
	var out models.TransferResult
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if done, err := replay(tx, idempotencyKey, &out); err != nil || done {
			return err
		}

		var from models.TokenBalance
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ? AND token_symbol = ?", req.FromUserID, req.TokenID).
			First(&from).Error
		if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && from.Balance < req.Amount) {
			out = models.TransferResult{Message: "insufficient balance", Code: CodeInsufficientBalance}
			return nil
		}
		if err != nil {
			return err
		}

		if err := tx.Model(&models.TokenBalance{}).
			Where("user_id = ? AND token_symbol = ?", req.FromUserID, req.TokenID).
			Updates(map[string]interface{}{
				"balance":    gorm.Expr("balance - ?", req.Amount),
				"updated_at": now,
			}).Error; err != nil {
			return err
		}
		if err := credit(tx, req.ToUserID, req.TokenID, req.Amount, now); err != nil {
			return err
		}

		var key *string
		if idempotencyKey != "" {
			key = &idempotencyKey
		}
		if err := tx.Create(&models.TokenTransfer{
			FromUserID:     req.FromUserID,
			ToUserID:       req.ToUserID,
			TokenSymbol:    req.TokenID,
			Amount:         req.Amount,
			IdempotencyKey: key,
		}).Error; err != nil {
			return err
		}
		activity := []models.ActivityRecord{
			{UserID: req.FromUserID, ActivityType: models.ActivityTransferOut, TokenSymbol: req.TokenID, Amount: -req.Amount, Description: "transfer to " + req.ToUserID},
			{UserID: req.ToUserID, ActivityType: models.ActivityTransferIn, TokenSymbol: req.TokenID, Amount: req.Amount, Description: "transfer from " + req.FromUserID},
		}
		if err := tx.Create(&activity).Error; err != nil {
			return err
		}

		newBalance := from.Balance - req.Amount
		out = models.TransferResult{Success: true, NewBalance: &newBalance}
		return remember(tx, idempotencyKey, "transfer_tokens", req.FromUserID, out)
	})
	return out, storeError(err)
}

func (s *StoreBackend) GetGroupEventRewards(ctx context.Context, eventID string) ([]models.GroupEventParticipant, error) {
	var participants []models.GroupEventParticipant
	err := s.DB.WithContext(ctx).Where("event_id = ?", eventID).Order("rank asc").Find(&participants).Error
	return participants, storeError(err)
}

func (s *StoreBackend) GetRequiredChallenges(ctx context.Context) (int, error) {
	var setting models.AppSetting
	if err := s.DB.WithContext(ctx).Where("key = ?", models.SettingRequiredChallenges).First(&setting).Error; err != nil {
		return 0, storeError(err)
	}
	n, err := strconv.Atoi(setting.Value)
	if err != nil {
		return 0, rewards.NewError(rewards.ErrInvalidResponse, "get required challenges", "team challenge threshold is not a number", err)
	}
	return n, nil
}

func (s *StoreBackend) CountCompletedChallenges(ctx context.Context, userID string) (int, error) {
	var count int64
	err := s.DB.WithContext(ctx).Model(&models.ChallengeCompletion{}).Where("user_id = ?", userID).Count(&count).Error
	return int(count), storeError(err)
}

// OpenClaimWindows creates the claim window for day for every active member.
// Existing windows are left alone, so running it twice for a day is harmless.
func (s *StoreBackend) OpenClaimWindows(ctx context.Context, day time.Time, amount int64) (int64, error) {
	local := day.In(s.Location)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.Location)
	window := start.Format("2006-01-02")
	token := models.TokenForWeekday(start.Weekday())
	expires := start.AddDate(0, 0, 1)

	var members []models.Member
	if err := s.DB.WithContext(ctx).Where("account_status = ?", "active").Find(&members).Error; err != nil {
		return 0, storeError(err)
	}
	if len(members) == 0 {
		return 0, nil
	}

	claims := make([]models.ClaimEvent, 0, len(members))
	for _, m := range members {
		claims = append(claims, models.ClaimEvent{
			UserID:      m.ExternalUserID,
			ClaimWindow: window,
			TokenType:   token,
			Amount:      amount,
			ExpiresAt:   expires,
		})
	}

	res := s.DB.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}, {Name: "claim_window"}}, DoNothing: true}).
		CreateInBatches(&claims, 500)
	return res.RowsAffected, storeError(res.Error)
}

// ActivityBetween returns every activity record created in [from, to).
func (s *StoreBackend) ActivityBetween(ctx context.Context, from, to time.Time) ([]models.ActivityRecord, error) {
	var records []models.ActivityRecord
	err := s.DB.WithContext(ctx).
		Where("created_at >= ? AND created_at < ?", from, to).
		Order("created_at asc").
		Find(&records).Error
	return records, storeError(err)
}

// UpsertMembers inserts or refreshes members keyed by ExternalUserID.
// It returns how many rows were written.
func (s *StoreBackend) UpsertMembers(ctx context.Context, members []models.Member) (int, error) {
	if len(members) == 0 {
		return 0, nil
	}
	res := s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "external_user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"username", "email", "account_status", "timezone", "updated_at",
		}),
	}).Create(&members)
	return int(res.RowsAffected), storeError(res.Error)
}

// LastMemberSync returns the newest member UpdatedAt, or the zero time.
func (s *StoreBackend) LastMemberSync(ctx context.Context) (time.Time, error) {
	var last *time.Time
	err := s.DB.WithContext(ctx).Model(&models.Member{}).Select("MAX(updated_at)").Scan(&last).Error
	if err != nil || last == nil {
		return time.Time{}, storeError(err)
	}
	return *last, nil
}
