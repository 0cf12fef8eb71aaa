// services/supabase_backend.go
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"avolve-rewards/models"
	"avolve-rewards/rewards"
)

// SupabaseBackend talks to the hosted Postgres REST gateway (PostgREST) with
// the service key. Row ownership is enforced by the stored procedures, which
// receive the user id explicitly.
type SupabaseBackend struct {
	BaseURL    string
	ServiceKey string
	HTTPClient *http.Client
}

func NewSupabaseBackend(baseURL, serviceKey string, timeout time.Duration) *SupabaseBackend {
	return &SupabaseBackend{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		ServiceKey: serviceKey,
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// postgrestError is the error body PostgREST returns. Stored procedures raise
// with one of the backend codes in the hint.
type postgrestError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

func (b *SupabaseBackend) do(ctx context.Context, method, path string, query url.Values, body any, idempotencyKey string, out any) error {
	u, err := url.Parse(b.BaseURL + "/rest/v1/" + path)
	if err != nil {
		return fmt.Errorf("invalid backend URL: %w", err)
	}
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("apikey", b.ServiceKey)
	req.Header.Set("Authorization", "Bearer "+b.ServiceKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := b.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return backendErrorFromBody(resp.StatusCode, raw)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return rewards.NewError(rewards.ErrInvalidResponse, path, "the rewards service returned an unreadable response", err)
	}
	return nil
}

func backendErrorFromBody(status int, raw []byte) *BackendError {
	be := &BackendError{Status: status, Message: strings.TrimSpace(string(raw))}

	var pe postgrestError
	if err := json.Unmarshal(raw, &pe); err == nil && pe.Message != "" {
		be.Message = pe.Message
		be.Code = pe.Hint
		if be.Code == "" && pe.Code == "PGRST116" {
			be.Code = CodeNotFound
		}
	}
	if be.Message == "" {
		be.Message = http.StatusText(status)
	}
	return be
}

func (b *SupabaseBackend) rpc(ctx context.Context, fn string, params map[string]any, idempotencyKey string, out any) error {
	return b.do(ctx, http.MethodPost, "rpc/"+fn, nil, params, idempotencyKey, out)
}

func timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func (b *SupabaseBackend) ListDailyClaims(ctx context.Context, userID string, now time.Time) ([]models.ClaimEvent, error) {
	q := url.Values{}
	q.Set("select", "*")
	q.Set("user_id", "eq."+userID)
	q.Set("expires_at", "gt."+timestamp(now))
	q.Set("order", "expires_at.asc")

	var claims []models.ClaimEvent
	if err := b.do(ctx, http.MethodGet, "daily_claims", q, nil, "", &claims); err != nil {
		return nil, err
	}
	return claims, nil
}

func (b *SupabaseBackend) ListClaimHistory(ctx context.Context, userID string, since time.Time) ([]time.Time, error) {
	q := url.Values{}
	q.Set("select", "claimed_at")
	q.Set("user_id", "eq."+userID)
	q.Set("claimed", "is.true")
	q.Set("claimed_at", "gte."+timestamp(since))
	q.Set("order", "claimed_at.asc")

	var rows []struct {
		ClaimedAt *time.Time `json:"claimed_at"`
	}
	if err := b.do(ctx, http.MethodGet, "daily_claims", q, nil, "", &rows); err != nil {
		return nil, err
	}
	out := make([]time.Time, 0, len(rows))
	for _, r := range rows {
		if r.ClaimedAt != nil {
			out = append(out, *r.ClaimedAt)
		}
	}
	return out, nil
}

func (b *SupabaseBackend) ClaimDaily(ctx context.Context, userID, claimID, idempotencyKey string) error {
	return b.rpc(ctx, "claim_daily_reward", map[string]any{
		"p_claim_id": claimID,
		"p_user_id":  userID,
	}, idempotencyKey, nil)
}

func (b *SupabaseBackend) GetRolePoints(ctx context.Context, userID string) ([]models.RolePoints, error) {
	var points []models.RolePoints
	if err := b.rpc(ctx, "get_role_points", map[string]any{"p_user_id": userID}, "", &points); err != nil {
		return nil, err
	}
	return points, nil
}

func (b *SupabaseBackend) GetRoleHistory(ctx context.Context, userID string, limit int) ([]models.ActivityRecord, error) {
	q := url.Values{}
	q.Set("select", "*")
	q.Set("user_id", "eq."+userID)
	q.Set("order", "created_at.desc")
	q.Set("limit", strconv.Itoa(limit))

	var records []models.ActivityRecord
	if err := b.do(ctx, http.MethodGet, "activity_records", q, nil, "", &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (b *SupabaseBackend) ListRewards(ctx context.Context, userID string) ([]models.Reward, error) {
	var list []models.Reward
	if err := b.rpc(ctx, "get_available_rewards", map[string]any{"p_user_id": userID}, "", &list); err != nil {
		return nil, err
	}
	return list, nil
}

func (b *SupabaseBackend) ClaimTokenReward(ctx context.Context, userID, rewardID, idempotencyKey string) (models.ClaimRewardResult, error) {
	var res models.ClaimRewardResult
	err := b.rpc(ctx, "claim_token_reward", map[string]any{
		"p_reward_id": rewardID,
		"p_user_id":   userID,
	}, idempotencyKey, &res)
	return res, err
}

func (b *SupabaseBackend) GetBalances(ctx context.Context, userID string) ([]models.TokenBalance, error) {
	q := url.Values{}
	q.Set("select", "*")
	q.Set("user_id", "eq."+userID)
	q.Set("order", "token_symbol.asc")

	var balances []models.TokenBalance
	if err := b.do(ctx, http.MethodGet, "token_balances", q, nil, "", &balances); err != nil {
		return nil, err
	}
	return balances, nil
}

func (b *SupabaseBackend) TransferTokens(ctx context.Context, req models.TransferRequest, idempotencyKey string) (models.TransferResult, error) {
	var res models.TransferResult
	err := b.rpc(ctx, "transfer_tokens", map[string]any{
		"p_from_user_id": req.FromUserID,
		"p_to_user_id":   req.ToUserID,
		"p_token_id":     req.TokenID,
		"p_amount":       req.Amount,
	}, idempotencyKey, &res)
	return res, err
}

func (b *SupabaseBackend) GetGroupEventRewards(ctx context.Context, eventID string) ([]models.GroupEventParticipant, error) {
	var participants []models.GroupEventParticipant
	if err := b.rpc(ctx, "get_group_event_rewards", map[string]any{"p_event_id": eventID}, "", &participants); err != nil {
		return nil, err
	}
	return participants, nil
}

func (b *SupabaseBackend) GetRequiredChallenges(ctx context.Context) (int, error) {
	q := url.Values{}
	q.Set("select", "key,value")
	q.Set("key", "eq."+models.SettingRequiredChallenges)

	var settings []models.AppSetting
	if err := b.do(ctx, http.MethodGet, "app_settings", q, nil, "", &settings); err != nil {
		return 0, err
	}
	if len(settings) == 0 {
		return 0, &BackendError{Status: http.StatusNotFound, Code: CodeNotFound, Message: "team challenge threshold is not configured"}
	}
	return parseThreshold(settings[0].Value)
}

func parseThreshold(value string) (int, error) {
	n, err := strconv.Atoi(strings.Trim(strings.TrimSpace(value), `"`))
	if err != nil {
		return 0, rewards.NewError(rewards.ErrInvalidResponse, "get required challenges", "team challenge threshold is not a number", err)
	}
	return n, nil
}

func (b *SupabaseBackend) CountCompletedChallenges(ctx context.Context, userID string) (int, error) {
	var count int
	if err := b.rpc(ctx, "get_completed_challenge_count", map[string]any{"p_user_id": userID}, "", &count); err != nil {
		return 0, err
	}
	return count, nil
}
