// Package stats turns raw submission and practice records into the derived
// dashboard view. Everything here is pure: no I/O, no clocks except the "now"
// passed in, and malformed records degrade to zero instead of failing.
package stats

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"preecode/internal/domain/model"
)

const (
	HistogramDays       = 7
	RecentSubmissionCap = 10
	LowMasteryThreshold = 50
)

const day = 24 * time.Hour

type Input struct {
	Submissions []model.Submission
	Practices   []model.PracticeSession
	Aggregate   model.UserAggregate
	// Points overrides the formula when non-zero.
	Points     int
	Streak     int
	WeakTopics []model.WeakTopic
	Now        time.Time
}

type TopicMastery struct {
	Topic      string `json:"topic"`
	MasteryPct int    `json:"masteryPct"`
	IsLow      bool   `json:"isLow"`
}

type View struct {
	TotalSolved         int                `json:"totalSolved"`
	EasySolved          int                `json:"easySolved"`
	MediumSolved        int                `json:"mediumSolved"`
	HardSolved          int                `json:"hardSolved"`
	Points              int                `json:"points"`
	RankName            string             `json:"rankName"`
	RankLevel           int                `json:"rankLevel"`
	RankProgressPct     int                `json:"rankProgressPct"`
	NextRankAt          int                `json:"nextRankAt"`
	AccuracyPct         int                `json:"accuracyPct"`
	AcceptedCount       int                `json:"acceptedCount"`
	AttemptCount        int                `json:"attemptCount"`
	ReadinessScore      int                `json:"readinessScore"`
	WeeklyHistogram     [HistogramDays]int `json:"weeklyHistogram"`
	BestDayIndex        int                `json:"bestDayIndex"`
	ThisWeek            int                `json:"thisWeek"`
	AvgSolveTimeMinutes int                `json:"avgSolveTimeMinutes"`
	PracticeSamples     int                `json:"practiceSamples"`
	Streak              int                `json:"streak"`
	StreakTier          string             `json:"streakTier"`
	WeakTopics          []TopicMastery     `json:"weakTopics"`
	RecentSubmissions   []model.Submission `json:"recentSubmissions"`
	ComputedAt          time.Time          `json:"computedAt"`
}

// Points weights solved problems by difficulty: easy 1, medium 3, hard 5.
func Points(agg model.UserAggregate) int {
	return nonNegative(agg.EasySolved)*1 + nonNegative(agg.MediumSolved)*3 + nonNegative(agg.HardSolved)*5
}

// Accuracy is the accepted share of all attempts as a rounded percentage,
// with the accepted count and attempt count it was derived from.
func Accuracy(subs []model.Submission) (pct, accepted, attempts int) {
	attempts = len(subs)
	if attempts == 0 {
		return 0, 0, 0
	}
	for _, s := range subs {
		if s.Status == model.StatusAccepted {
			accepted++
		}
	}
	pct = int(math.Round(float64(accepted) / float64(attempts) * 100))
	return clampInt(pct, 0, 100), accepted, attempts
}

// Readiness blends accuracy with solved breadth capped at 20 problems.
func Readiness(accuracy, totalSolved int) int {
	breadth := clampInt(totalSolved, 0, 20)
	score := math.Round(float64(accuracy)*0.6 + float64(breadth)*2)
	return clampInt(int(score), 0, 100)
}

// WeeklyHistogram buckets submissions by whole days before now, oldest first.
// Index 6 is today. Anything older than 7 days or in the future is dropped.
func WeeklyHistogram(subs []model.Submission, now time.Time) [HistogramDays]int {
	var hist [HistogramDays]int
	for _, s := range subs {
		if s.SubmittedAt.IsZero() {
			continue
		}
		age := int(math.Floor(float64(now.Sub(s.SubmittedAt)) / float64(day)))
		if age < 0 || age >= HistogramDays {
			continue
		}
		hist[HistogramDays-1-age]++
	}
	return hist
}

// BestDay returns the first index holding the maximum count.
func BestDay(hist [HistogramDays]int) int {
	best := 0
	for i, n := range hist {
		if n > hist[best] {
			best = i
		}
	}
	return best
}

// AvgSolveTimeMinutes averages the "MM:SS" durations of practice sessions,
// rounded to whole minutes. Unparsable durations are skipped.
func AvgSolveTimeMinutes(practices []model.PracticeSession) (minutes, samples int) {
	var total float64
	for _, p := range practices {
		m, ok := parseMinutes(p.TimeTaken)
		if !ok {
			continue
		}
		total += m
		samples++
	}
	if samples == 0 {
		return 0, 0
	}
	return nonNegative(int(math.Round(total / float64(samples)))), samples
}

func parseMinutes(raw string) (float64, bool) {
	mm, ss, found := strings.Cut(strings.TrimSpace(raw), ":")
	if !found || strings.Contains(ss, ":") {
		return 0, false
	}
	m, err := strconv.Atoi(strings.TrimSpace(mm))
	if err != nil {
		return 0, false
	}
	s, err := strconv.Atoi(strings.TrimSpace(ss))
	if err != nil {
		return 0, false
	}
	return float64(m) + float64(s)/60, true
}

// Mastery drops 10 points per wrong answer, floored at 0.
func Mastery(wrongCount int) int {
	return clampInt(100-wrongCount*10, 0, 100)
}

func TopicMasteries(weak []model.WeakTopic) []TopicMastery {
	out := make([]TopicMastery, 0, len(weak))
	for _, w := range weak {
		if strings.TrimSpace(w.Topic) == "" {
			continue
		}
		m := Mastery(w.WrongCount)
		out = append(out, TopicMastery{Topic: w.Topic, MasteryPct: m, IsLow: m < LowMasteryThreshold})
	}
	return out
}

// Compute builds the full view. A zero Now means time.Now().
func Compute(in Input) View {
	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}

	points := in.Points
	if points == 0 {
		points = Points(in.Aggregate)
	}
	rank := RankFor(points)
	accuracy, accepted, attempts := Accuracy(in.Submissions)
	hist := WeeklyHistogram(in.Submissions, now)
	avg, samples := AvgSolveTimeMinutes(in.Practices)
	streak := nonNegative(in.Streak)

	thisWeek := 0
	for _, n := range hist {
		thisWeek += n
	}

	return View{
		TotalSolved:         nonNegative(in.Aggregate.TotalSolved),
		EasySolved:          nonNegative(in.Aggregate.EasySolved),
		MediumSolved:        nonNegative(in.Aggregate.MediumSolved),
		HardSolved:          nonNegative(in.Aggregate.HardSolved),
		Points:              points,
		RankName:            rank.Name,
		RankLevel:           rank.Level,
		RankProgressPct:     int(math.Round(rank.Progress * 100)),
		NextRankAt:          rank.NextAt,
		AccuracyPct:         accuracy,
		AcceptedCount:       accepted,
		AttemptCount:        attempts,
		ReadinessScore:      Readiness(accuracy, in.Aggregate.TotalSolved),
		WeeklyHistogram:     hist,
		BestDayIndex:        BestDay(hist),
		ThisWeek:            thisWeek,
		AvgSolveTimeMinutes: avg,
		PracticeSamples:     samples,
		Streak:              streak,
		StreakTier:          StreakTier(streak),
		WeakTopics:          TopicMasteries(in.WeakTopics),
		RecentSubmissions:   recent(in.Submissions, RecentSubmissionCap),
		ComputedAt:          now.UTC(),
	}
}

func recent(subs []model.Submission, n int) []model.Submission {
	out := make([]model.Submission, len(subs))
	copy(out, subs)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].SubmittedAt.After(out[j].SubmittedAt)
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func nonNegative(v int) int {
	if v < 0 {
		return 0
	}
	return v
}
