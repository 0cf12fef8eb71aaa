package handlers

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"avolve-rewards/models"
	"avolve-rewards/rewards"
	"avolve-rewards/services"
)

type stubAdmin struct {
	granted   services.GrantRequest
	threshold int
	created   bool
	advanced  map[string]int64
}

func (s *stubAdmin) AdvanceRewardProgress(ctx context.Context, rewardID string, delta int64) (models.Reward, error) {
	if rewardID == "claimed" {
		return models.Reward{}, rewards.NewError(rewards.ErrAlreadyActed, "advance reward progress", "this reward has already been claimed", nil)
	}
	if s.advanced == nil {
		s.advanced = make(map[string]int64)
	}
	s.advanced[rewardID] += delta
	return models.Reward{ID: rewardID, RequirementsProgress: &models.Progress{Current: s.advanced[rewardID], Required: 3}}, nil
}

func (s *stubAdmin) GrantReward(ctx context.Context, req services.GrantRequest) (models.Reward, error) {
	s.granted = req
	return models.Reward{ID: "r1", UserID: req.UserID, TokenSymbol: req.TokenSymbol, Amount: req.Amount, RewardType: req.RewardType}, nil
}

func (s *stubAdmin) SetRequiredChallenges(ctx context.Context, n int) error {
	s.threshold = n
	return nil
}

func (s *stubAdmin) RecordChallengeCompletion(ctx context.Context, userID, challengeID string) (bool, error) {
	return s.created, nil
}

func (s *stubAdmin) OpenClaimWindows(ctx context.Context, day time.Time, amount int64) (int64, error) {
	return 3, nil
}

func adminRequest(t *testing.T, app *fiber.App, method, path, body, roles string) int {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("X-User-ID", "op1")
	req.Header.Set("X-User-Roles", roles)
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	return resp.StatusCode
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	app := fiber.New()
	SetupAdminRoutes(app, &stubAdmin{}, 10)

	if status := adminRequest(t, app, http.MethodPost, "/s/admin/claims/windows", "", "member"); status != http.StatusForbidden {
		t.Errorf("expected 403 without admin role, got %d", status)
	}
	if status := adminRequest(t, app, http.MethodPost, "/s/admin/claims/windows", "", "member, Admin"); status != http.StatusOK {
		t.Errorf("expected 200 with admin role, got %d", status)
	}
}

func TestAdminGrantReward(t *testing.T) {
	store := &stubAdmin{}
	app := fiber.New()
	SetupAdminRoutes(app, store, 10)

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"valid", `{"user_id":"7f1c7d9e-0000-4000-8000-000000000001","token_symbol":"GEN","amount":5,"reward_type":"achievement"}`, http.StatusCreated},
		{"bad user id", `{"user_id":"nope","token_symbol":"GEN","amount":5,"reward_type":"achievement"}`, http.StatusBadRequest},
		{"bad type", `{"user_id":"7f1c7d9e-0000-4000-8000-000000000001","token_symbol":"GEN","amount":5,"reward_type":"cash"}`, http.StatusBadRequest},
		{"zero amount", `{"user_id":"7f1c7d9e-0000-4000-8000-000000000001","token_symbol":"GEN","amount":0,"reward_type":"daily"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if status := adminRequest(t, app, http.MethodPost, "/s/admin/rewards", tt.body, "admin"); status != tt.status {
				t.Errorf("expected %d, got %d", tt.status, status)
			}
		})
	}
	if store.granted.Amount != 5 {
		t.Errorf("expected the valid grant to reach the store, got %+v", store.granted)
	}
}

func TestAdminThresholdAndCompletions(t *testing.T) {
	store := &stubAdmin{created: true}
	app := fiber.New()
	SetupAdminRoutes(app, store, 10)

	if status := adminRequest(t, app, http.MethodPut, "/s/admin/settings/team-threshold", `{"required":0}`, "admin"); status != http.StatusBadRequest {
		t.Errorf("expected 400 for threshold 0, got %d", status)
	}
	if status := adminRequest(t, app, http.MethodPut, "/s/admin/settings/team-threshold", `{"required":4}`, "admin"); status != http.StatusOK {
		t.Errorf("expected 200, got %d", status)
	}
	if store.threshold != 4 {
		t.Errorf("expected threshold 4, got %d", store.threshold)
	}

	if status := adminRequest(t, app, http.MethodPost, "/s/admin/challenges/completions", `{"user_id":"7f1c7d9e-0000-4000-8000-000000000001","challenge_id":"9a2b0c1d-0000-4000-8000-000000000002"}`, "admin"); status != http.StatusCreated {
		t.Errorf("expected 201 for a new completion, got %d", status)
	}
	store.created = false
	if status := adminRequest(t, app, http.MethodPost, "/s/admin/challenges/completions", `{"user_id":"7f1c7d9e-0000-4000-8000-000000000001","challenge_id":"9a2b0c1d-0000-4000-8000-000000000002"}`, "admin"); status != http.StatusOK {
		t.Errorf("expected 200 for a repeated completion, got %d", status)
	}
}

func TestAdminCompletionRejectsMalformedIDs(t *testing.T) {
	app := fiber.New()
	SetupAdminRoutes(app, &stubAdmin{created: true}, 10)

	if status := adminRequest(t, app, http.MethodPost, "/s/admin/challenges/completions", `{"user_id":"u1","challenge_id":"ch1"}`, "admin"); status != http.StatusBadRequest {
		t.Errorf("expected 400 for non-uuid ids, got %d", status)
	}
}

func TestAdminAdvanceRewardProgress(t *testing.T) {
	store := &stubAdmin{}
	app := fiber.New()
	SetupAdminRoutes(app, store, 10)

	tests := []struct {
		name   string
		path   string
		body   string
		status int
	}{
		{"advance", "/s/admin/rewards/r1/progress", `{"delta":2}`, http.StatusOK},
		{"zero delta", "/s/admin/rewards/r1/progress", `{"delta":0}`, http.StatusBadRequest},
		{"claimed reward", "/s/admin/rewards/claimed/progress", `{"delta":1}`, http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if status := adminRequest(t, app, http.MethodPost, tt.path, tt.body, "admin"); status != tt.status {
				t.Errorf("expected %d, got %d", tt.status, status)
			}
		})
	}
	if store.advanced["r1"] != 2 {
		t.Errorf("expected progress 2 for r1, got %d", store.advanced["r1"])
	}
}
