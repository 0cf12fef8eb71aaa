// workers/scheduler.go
package workers

import (
	"time"

	"github.com/go-co-op/gocron/v2"
)

// NewScheduler returns a scheduler whose daily jobs fire in loc.
func NewScheduler(loc *time.Location) (gocron.Scheduler, error) {
	return gocron.NewScheduler(gocron.WithLocation(loc))
}

// dailyAt builds a daily job definition firing at hh:mm.
func dailyAt(hour, minute uint) gocron.JobDefinition {
	return gocron.DailyJob(1, gocron.NewAtTimes(gocron.NewAtTime(hour, minute, 0)))
}
