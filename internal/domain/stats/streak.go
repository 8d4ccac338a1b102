package stats

import (
	"time"

	"preecode/internal/domain/model"
)

const (
	StreakStart     = "start"
	StreakKeepGoing = "keep going"
	StreakGood      = "good"
	StreakExcellent = "excellent"
)

// StreakTier picks the presentation bucket for a streak length.
func StreakTier(streak int) string {
	switch {
	case streak >= 7:
		return StreakExcellent
	case streak >= 3:
		return StreakGood
	case streak >= 1:
		return StreakKeepGoing
	default:
		return StreakStart
	}
}

// CurrentStreak counts consecutive UTC days with at least one accepted
// submission. The run must end today or yesterday, otherwise it is broken.
func CurrentStreak(subs []model.Submission, now time.Time) int {
	days := make(map[time.Time]struct{})
	for _, s := range subs {
		if s.Status != model.StatusAccepted || s.SubmittedAt.IsZero() {
			continue
		}
		days[utcDay(s.SubmittedAt)] = struct{}{}
	}
	if len(days) == 0 {
		return 0
	}

	day := utcDay(now)
	if _, ok := days[day]; !ok {
		day = day.AddDate(0, 0, -1)
		if _, ok := days[day]; !ok {
			return 0
		}
	}

	streak := 0
	for {
		if _, ok := days[day]; !ok {
			return streak
		}
		streak++
		day = day.AddDate(0, 0, -1)
	}
}

func utcDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
