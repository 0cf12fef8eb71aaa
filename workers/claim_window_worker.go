// workers/claim_window_worker.go
package workers

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
	log "github.com/sirupsen/logrus"
)

// ClaimWindowOpener creates the daily claim windows. Implemented by services.StoreBackend.
type ClaimWindowOpener interface {
	OpenClaimWindows(ctx context.Context, day time.Time, amount int64) (int64, error)
}

// ClaimWindowWorker opens one claim window per active member each day, just
// after midnight in the service timezone.
type ClaimWindowWorker struct {
	store  ClaimWindowOpener
	amount int64
	now    func() time.Time
}

func NewClaimWindowWorker(store ClaimWindowOpener, amount int64) *ClaimWindowWorker {
	return &ClaimWindowWorker{store: store, amount: amount, now: time.Now}
}

// RunOnce opens today's windows. Safe to repeat: existing windows are kept.
func (w *ClaimWindowWorker) RunOnce(ctx context.Context) error {
	day := w.now()
	created, err := w.store.OpenClaimWindows(ctx, day, w.amount)
	if err != nil {
		log.WithError(err).Error("[CLAIM_WINDOWS] failed to open daily claim windows")
		return err
	}
	log.WithFields(log.Fields{"created": created, "amount": w.amount}).Info("[CLAIM_WINDOWS] daily claim windows opened")
	return nil
}

// Register schedules RunOnce daily at midnight.
func (w *ClaimWindowWorker) Register(ctx context.Context, s gocron.Scheduler) error {
	_, err := s.NewJob(
		dailyAt(0, 0),
		gocron.NewTask(func() { _ = w.RunOnce(ctx) }),
		gocron.WithName("open-claim-windows"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	return err
}
