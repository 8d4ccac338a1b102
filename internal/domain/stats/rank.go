package stats

import "math"

// Tier is one bracket of the rank table. Max is -1 for the open-ended top tier.
type Tier struct {
	Name  string
	Min   int
	Max   int
	Level int
}

// terminalSpan is the width used to scale progress inside the open-ended top
// tier, which has no real upper bound.
const terminalSpan = 500

// Tiers is ordered by Min and covers [0, inf) without gaps.
var Tiers = []Tier{
	{Name: "Beginner", Min: 0, Max: 49, Level: 1},
	{Name: "Apprentice", Min: 50, Max: 149, Level: 2},
	{Name: "Intermediate", Min: 150, Max: 299, Level: 3},
	{Name: "Advanced", Min: 300, Max: 499, Level: 4},
	{Name: "Expert", Min: 500, Max: 999, Level: 5},
	{Name: "Master", Min: 1000, Max: -1, Level: 6},
}

type Rank struct {
	Name  string
	Level int
	// Progress toward the next tier in [0,1].
	Progress float64
	NextAt   int
}

// RankFor returns the highest tier whose Min <= points. Negative totals land in
// the first tier.
func RankFor(points int) Rank {
	idx := 0
	for i, t := range Tiers {
		if points >= t.Min {
			idx = i
		}
	}
	tier := Tiers[idx]

	next := tier.Min + terminalSpan
	if idx+1 < len(Tiers) {
		next = Tiers[idx+1].Min
	}

	progress := float64(points-tier.Min) / float64(next-tier.Min)
	return Rank{
		Name:     tier.Name,
		Level:    tier.Level,
		Progress: clampFloat(progress, 0, 1),
		NextAt:   next,
	}
}

func clampFloat(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
