package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"avolve-rewards/models"
	"avolve-rewards/rewards"
)

func newTestSupabase(t *testing.T, h http.HandlerFunc) *SupabaseBackend {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewSupabaseBackend(srv.URL+"/", "service-key", 5*time.Second)
}

func TestSupabase_ListDailyClaimsQuery(t *testing.T) {
	now := time.Date(2025, time.June, 2, 12, 0, 0, 0, time.UTC)
	b := newTestSupabase(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rest/v1/daily_claims" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("apikey") != "service-key" || r.Header.Get("Authorization") != "Bearer service-key" {
			t.Errorf("missing service key headers: %v", r.Header)
		}
		q := r.URL.Query()
		if q.Get("user_id") != "eq.u1" {
			t.Errorf("expected user filter, got %q", q.Get("user_id"))
		}
		if q.Get("expires_at") != "gt.2025-06-02T12:00:00Z" {
			t.Errorf("expected expiry filter, got %q", q.Get("expires_at"))
		}
		_, _ = w.Write([]byte(`[{"id":"c1","user_id":"u1","token_type":"SHE","amount":10,"claimed":false,"expires_at":"2025-06-03T00:00:00Z"}]`))
	})

	claims, err := b.ListDailyClaims(context.Background(), "u1", now)
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if len(claims) != 1 || claims[0].ID != "c1" || claims[0].TokenType != models.TokenSHE || claims[0].Amount != 10 {
		t.Errorf("unexpected claims %+v", claims)
	}
}

func TestSupabase_ClaimDailySendsRPC(t *testing.T) {
	b := newTestSupabase(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/rest/v1/rpc/claim_daily_reward" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Idempotency-Key") != "key-1" {
			t.Errorf("expected idempotency key, got %q", r.Header.Get("Idempotency-Key"))
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body["p_claim_id"] != "c1" || body["p_user_id"] != "u1" {
			t.Errorf("unexpected body %v", body)
		}
		w.WriteHeader(http.StatusNoContent)
	})

	if err := b.ClaimDaily(context.Background(), "u1", "c1", "key-1"); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestSupabase_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		code   string
		msg    string
		kind   error
	}{
		{"hint code", http.StatusBadRequest, `{"code":"P0001","message":"already claimed","hint":"already_claimed"}`, CodeAlreadyClaimed, "already claimed", rewards.ErrAlreadyActed},
		{"no rows", http.StatusNotAcceptable, `{"code":"PGRST116","message":"JSON object requested, multiple (or no) rows returned"}`, CodeNotFound, "JSON object requested, multiple (or no) rows returned", rewards.ErrNotFound},
		{"plain text", http.StatusServiceUnavailable, `upstream down`, "", "upstream down", rewards.ErrTransient},
		{"empty body", http.StatusBadGateway, ``, "", "Bad Gateway", rewards.ErrTransient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newTestSupabase(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			err := b.ClaimDaily(context.Background(), "u1", "c1", "k")
			var be *BackendError
			if !errors.As(err, &be) {
				t.Fatalf("expected *BackendError, got %T %v", err, err)
			}
			if be.Status != tt.status || be.Code != tt.code || be.Message != tt.msg {
				t.Errorf("expected %d/%q/%q, got %d/%q/%q", tt.status, tt.code, tt.msg, be.Status, be.Code, be.Message)
			}
			if !errors.Is(normalizeError("claim", err), tt.kind) {
				t.Errorf("expected kind %v", tt.kind)
			}
		})
	}
}

func TestSupabase_UnreadableBody(t *testing.T) {
	b := newTestSupabase(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{not json`))
	})

	_, err := b.GetBalances(context.Background(), "u1")
	if !errors.Is(err, rewards.ErrInvalidResponse) {
		t.Errorf("expected invalid response, got %v", err)
	}
}

func TestSupabase_RequiredChallenges(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
		kind error
	}{
		{"number", `[{"key":"required_challenges_for_team","value":"5"}]`, 5, nil},
		{"json string", `[{"key":"required_challenges_for_team","value":"\"4\""}]`, 4, nil},
		{"missing", `[]`, 0, rewards.ErrNotFound},
		{"garbage", `[{"key":"required_challenges_for_team","value":"lots"}]`, 0, rewards.ErrInvalidResponse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newTestSupabase(t, func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Query().Get("key") != "eq."+models.SettingRequiredChallenges {
					t.Errorf("unexpected key filter %q", r.URL.Query().Get("key"))
				}
				_, _ = w.Write([]byte(tt.body))
			})

			got, err := b.GetRequiredChallenges(context.Background())
			if tt.kind != nil {
				if !errors.Is(normalizeError("threshold", err), tt.kind) {
					t.Errorf("expected %v, got %v", tt.kind, err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("expected %d, got %d (%v)", tt.want, got, err)
			}
		})
	}
}

func TestSupabase_TransferResult(t *testing.T) {
	b := newTestSupabase(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["p_amount"] != float64(20) || body["p_token_id"] != "GEN" {
			t.Errorf("unexpected body %v", body)
		}
		_, _ = w.Write([]byte(`{"success":true,"new_balance":30}`))
	})

	res, err := b.TransferTokens(context.Background(), models.TransferRequest{FromUserID: "a", ToUserID: "b", TokenID: "GEN", Amount: 20}, "k")
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if !res.Success || res.NewBalance == nil || *res.NewBalance != 30 {
		t.Errorf("unexpected result %+v", res)
	}
}
