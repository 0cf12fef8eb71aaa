package rewards

import (
	"sort"
	"time"
)

const (
	// DailyCooldown is the minimum gap between two daily claims.
	DailyCooldown = 24 * time.Hour
	// WeeklyCheckInCooldown is the minimum gap between weekly check-ins.
	WeeklyCheckInCooldown = 6 * 24 * time.Hour
)

// StreakSummary is the result of walking a user's claim history.
type StreakSummary struct {
	CurrentStreak  int        `json:"current_streak"`
	LongestStreak  int        `json:"longest_streak"`
	NextEligibleAt time.Time  `json:"next_eligible_at"`
	LastClaimedAt  *time.Time `json:"last_claimed_at,omitempty"`
}

// StreakCalculator computes streaks over calendar days in Location.
// A nil Location means UTC.
type StreakCalculator struct {
	Location *time.Location
	Cooldown time.Duration
}

// NewStreakCalculator returns a calculator for the given timezone and cooldown.
func NewStreakCalculator(loc *time.Location, cooldown time.Duration) StreakCalculator {
	return StreakCalculator{Location: loc, Cooldown: cooldown}
}

// Calculate walks claimedAt chronologically and returns the streak state as of now.
//
// Claims on consecutive calendar days extend the running streak, several
// claims on the same day count once, and a gap of more than one day restarts
// the running streak at 1. If now is already past the day after the last
// claim, the current streak is broken (0); the longest streak is kept.
func (c StreakCalculator) Calculate(claimedAt []time.Time, now time.Time) StreakSummary {
	if len(claimedAt) == 0 {
		return StreakSummary{NextEligibleAt: now}
	}

	sorted := make([]time.Time, len(claimedAt))
	copy(sorted, claimedAt)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })

	running, longest := 0, 0
	var prevDay int64
	for i, t := range sorted {
		day := c.dayNumber(t)
		switch {
		case i == 0:
			running = 1
		case day == prevDay:
			// same calendar day: idempotent
		case day == prevDay+1:
			running++
		default:
			running = 1
		}
		if running > longest {
			longest = running
		}
		prevDay = day
	}

	last := sorted[len(sorted)-1]
	current := running
	if c.dayNumber(now)-prevDay > 1 {
		current = 0
	}

	return StreakSummary{
		CurrentStreak:  current,
		LongestStreak:  longest,
		NextEligibleAt: last.Add(c.Cooldown),
		LastClaimedAt:  &last,
	}
}

// DaysBetween returns the number of calendar days from a to b in Location.
func (c StreakCalculator) DaysBetween(a, b time.Time) int {
	return int(c.dayNumber(b) - c.dayNumber(a))
}

// dayNumber maps t to a day index in the calculator's timezone. The calendar
// date is re-anchored in UTC so DST shifts never produce 23h or 25h days.
func (c StreakCalculator) dayNumber(t time.Time) int64 {
	loc := c.Location
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix() / 86400
}

// CooldownRemaining returns how long until a claim made at last can be repeated.
// Zero means it is already allowed.
func CooldownRemaining(last time.Time, cooldown time.Duration, now time.Time) time.Duration {
	next := last.Add(cooldown)
	if !now.Before(next) {
		return 0
	}
	return next.Sub(now)
}
