package fsrs

import (
	"math"
	"math/rand"
	"time"
)

type fuzzRange struct {
	start, end float64
	factor     float64
}

var fuzzRanges = []fuzzRange{
	{2.5, 7.0, 0.15},
	{7.0, 20.0, 0.10},
	{20.0, math.Inf(1), 0.05},
}

// fuzzDelta is 1 + Σ factor * max(min(interval, end) - start, 0).
func fuzzDelta(interval float64) float64 {
	delta := 1.0
	for _, r := range fuzzRanges {
		delta += r.factor * math.Max(math.Min(interval, r.end)-r.start, 0)
	}
	return delta
}

// fuzzSeed derives a seed from the review so fuzzing stays reproducible.
func fuzzSeed(at time.Time, reps int, stability float64) int64 {
	return at.UnixNano() ^ int64(reps)<<32 ^ int64(math.Float64bits(stability)>>1)
}

// applyFuzz spreads intervals of 3+ days to avoid review clustering.
func applyFuzz(interval, maxIvl int, seed int64) int {
	if float64(interval) < 2.5 {
		return interval
	}
	ivl := float64(interval)
	delta := fuzzDelta(ivl)

	lo := max(2, int(roundHalfUp(ivl-delta)))
	hi := min(int(roundHalfUp(ivl+delta)), maxIvl)
	lo = min(lo, hi)

	rng := rand.New(rand.NewSource(seed))
	return min(lo+rng.Intn(hi-lo+1), maxIvl)
}
