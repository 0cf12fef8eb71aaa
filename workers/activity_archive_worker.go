// workers/activity_archive_worker.go
package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/gosimple/slug"
	log "github.com/sirupsen/logrus"

	"avolve-rewards/models"
)

// ActivitySource reads the audit trail. Implemented by services.StoreBackend.
type ActivitySource interface {
	ActivityBetween(ctx context.Context, from, to time.Time) ([]models.ActivityRecord, error)
}

// ObjectWriter stores a blob under a key. Implemented by utils.R2Store.
type ObjectWriter interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
}

// ActivityArchive is the JSON document written for one day.
type ActivityArchive struct {
	Day        string                  `json:"day"`
	From       time.Time               `json:"from"`
	To         time.Time               `json:"to"`
	Count      int                     `json:"count"`
	Records    []models.ActivityRecord `json:"records"`
	ExportedAt time.Time               `json:"exported_at"`
}

// ActivityArchiveWorker exports the previous day's activity records to
// object storage once a day.
type ActivityArchiveWorker struct {
	source ActivitySource
	writer ObjectWriter
	prefix string
	loc    *time.Location
	now    func() time.Time
}

func NewActivityArchiveWorker(source ActivitySource, writer ObjectWriter, prefix string, loc *time.Location) *ActivityArchiveWorker {
	if loc == nil {
		loc = time.UTC
	}
	return &ActivityArchiveWorker{source: source, writer: writer, prefix: prefix, loc: loc, now: time.Now}
}

// ArchiveKey returns the object key for day, e.g.
// "activity/2025-06-01/activity-records-2025-06-01.json".
func (w *ActivityArchiveWorker) ArchiveKey(day string) string {
	return fmt.Sprintf("%s/%s/%s.json", slug.Make(w.prefix), day, slug.Make("activity records "+day))
}

// ExportDay writes every record created during the calendar day containing
// day and returns the object key. Re-running overwrites the same key.
func (w *ActivityArchiveWorker) ExportDay(ctx context.Context, day time.Time) (string, error) {
	local := day.In(w.loc)
	from := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, w.loc)
	to := from.AddDate(0, 0, 1)
	label := from.Format("2006-01-02")

	records, err := w.source.ActivityBetween(ctx, from, to)
	if err != nil {
		return "", fmt.Errorf("failed to read activity for %s: %w", label, err)
	}

	body, err := json.Marshal(ActivityArchive{
		Day:        label,
		From:       from,
		To:         to,
		Count:      len(records),
		Records:    records,
		ExportedAt: w.now(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode activity archive: %w", err)
	}

	key := w.ArchiveKey(label)
	if err := w.writer.Put(ctx, key, body, "application/json"); err != nil {
		return "", err
	}
	log.WithFields(log.Fields{"key": key, "records": len(records)}).Info("[ARCHIVE] activity exported")
	return key, nil
}

// Register schedules the export of yesterday's activity daily at 00:30.
func (w *ActivityArchiveWorker) Register(ctx context.Context, s gocron.Scheduler) error {
	_, err := s.NewJob(
		dailyAt(0, 30),
		gocron.NewTask(func() {
			if _, err := w.ExportDay(ctx, w.now().In(w.loc).AddDate(0, 0, -1)); err != nil {
				log.WithError(err).Error("[ARCHIVE] activity export failed")
			}
		}),
		gocron.WithName("archive-activity"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	return err
}
