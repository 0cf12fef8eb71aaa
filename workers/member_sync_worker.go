// workers/member_sync_worker.go
package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	log "github.com/sirupsen/logrus"

	"avolve-rewards/models"
)

// RemoteMember matches a profile entry returned by the sync service.
type RemoteMember struct {
	ExternalID    string    `json:"external_id"`
	Username      string    `json:"username"`
	Email         string    `json:"email"`
	AccountStatus string    `json:"account_status"`
	Timezone      *string   `json:"timezone,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// GetMemberChangesResponse is the top-level structure of the sync service response.
type GetMemberChangesResponse struct {
	Users []RemoteMember `json:"users"`
}

// MemberStore persists synced members. Implemented by services.StoreBackend.
type MemberStore interface {
	UpsertMembers(ctx context.Context, members []models.Member) (int, error)
	LastMemberSync(ctx context.Context) (time.Time, error)
}

// MemberSyncWorker mirrors platform users into the members table so the
// claim window job knows whom to open windows for.
type MemberSyncWorker struct {
	store        MemberStore
	interval     time.Duration
	baseURL      string // e.g. "http://localhost:8500"
	endpointPath string // e.g. "/api/v1/public/profiles"
	serviceToken string
	httpClient   *http.Client
}

func NewMemberSyncWorker(store MemberStore, baseURL, endpointPath, serviceToken string, interval time.Duration) *MemberSyncWorker {
	return &MemberSyncWorker{
		store:        store,
		interval:     interval,
		baseURL:      baseURL,
		endpointPath: endpointPath,
		serviceToken: serviceToken,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (w *MemberSyncWorker) Start(ctx context.Context) {
	log.Info("[SYNC] starting member sync worker")
	go w.run(ctx)
}

func (w *MemberSyncWorker) run(ctx context.Context) {
	// Initial sync (backfill) from the beginning of time
	if _, err := w.SyncOnce(ctx, time.Time{}); err != nil {
		log.WithError(err).Warn("[SYNC] initial sync failed")
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			since, err := w.store.LastMemberSync(ctx)
			if err != nil {
				log.WithError(err).Warn("[SYNC] could not read last sync time, resyncing everything")
			}
			if _, err := w.SyncOnce(ctx, since); err != nil {
				log.WithError(err).Error("[SYNC] sync batch failed")
			}
		case <-ctx.Done():
			log.Info("[SYNC] member sync worker stopped")
			return
		}
	}
}

// FetchChanges asks the sync service for members changed since.
func (w *MemberSyncWorker) FetchChanges(ctx context.Context, since time.Time) ([]RemoteMember, error) {
	base, err := url.Parse(w.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid sync service URL %q: %w", w.baseURL, err)
	}

	endpointURL := base.JoinPath(w.endpointPath)
	q := endpointURL.Query()
	q.Set("since", since.UTC().Format(time.RFC3339))
	endpointURL.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpointURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Service-Token", w.serviceToken)

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request to sync service failed: %w", err)
	}
	defer func() {
		// Always drain & close to prevent connection leaks
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("sync service returned %d: %s", resp.StatusCode, string(body))
	}

	var response GetMemberChangesResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode sync service response: %w", err)
	}
	return response.Users, nil
}

// SyncOnce fetches and stores one batch of changes, returning the number of
// members written. Entries without an external id are skipped.
func (w *MemberSyncWorker) SyncOnce(ctx context.Context, since time.Time) (int, error) {
	remote, err := w.FetchChanges(ctx, since)
	if err != nil {
		return 0, err
	}
	if len(remote) == 0 {
		log.WithField("since", since.Format(time.RFC3339)).Debug("[SYNC] no member changes")
		return 0, nil
	}

	members := make([]models.Member, 0, len(remote))
	for _, r := range remote {
		if r.ExternalID == "" {
			continue
		}
		status := r.AccountStatus
		if status == "" {
			status = "active"
		}
		members = append(members, models.Member{
			ExternalUserID: r.ExternalID,
			Username:       r.Username,
			Email:          r.Email,
			AccountStatus:  status,
			Timezone:       r.Timezone,
			UpdatedAt:      r.UpdatedAt,
		})
	}

	n, err := w.store.UpsertMembers(ctx, members)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert %d member(s): %w", len(members), err)
	}
	log.WithFields(log.Fields{"received": len(remote), "upserted": n}).Info("[SYNC] members synced")
	return n, nil
}
