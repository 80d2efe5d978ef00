package fsrs

import (
	"math"

	"github.com/conorfennell/grove/internal/domain"
)

const (
	minStability  = 0.001
	minDifficulty = 1.0
	maxDifficulty = 10.0
)

// model holds the weights plus the constants derived from them.
type model struct {
	w      [21]float64
	decay  float64 // -w[20]
	factor float64 // 0.9^(1/decay) - 1
}

func newModel(w [21]float64) model {
	decay := -w[20]
	return model{
		w:      w,
		decay:  decay,
		factor: math.Pow(0.9, 1/decay) - 1,
	}
}

// retrievability evaluates R(t, S) = (1 + factor*t/S)^decay, clamped to [0, 1].
func (m *model) retrievability(elapsedDays, stability float64) float64 {
	if elapsedDays < 0 {
		elapsedDays = 0
	}
	stability = clampStability(stability)
	r := math.Pow(1+m.factor*elapsedDays/stability, m.decay)
	if math.IsNaN(r) {
		return 0
	}
	return math.Min(math.Max(r, 0), 1)
}

// interval converts a stability into whole days at the desired retention.
func (m *model) interval(stability, desiredRetention float64, maxIvl int) int {
	ivl := stability / m.factor * (math.Pow(desiredRetention, 1/m.decay) - 1)
	return clampInterval(int(roundHalfUp(ivl)), maxIvl)
}

// initStability is S₀(G) = w[G-1].
func (m *model) initStability(r domain.Rating) float64 {
	return clampStability(m.w[r-1])
}

// initDifficulty is D₀(G) = w4 - e^(w5*(G-1)) + 1.
func (m *model) initDifficulty(r domain.Rating) float64 {
	return m.w[4] - math.Exp(m.w[5]*float64(r-1)) + 1
}

// nextDifficulty applies the rating-weighted step with linear damping, then
// reverts toward D₀(Easy).
func (m *model) nextDifficulty(d float64, r domain.Rating) float64 {
	delta := -m.w[6] * (float64(r) - 3)
	damped := d + (10-d)*delta/9
	return clampDifficulty(m.w[7]*m.initDifficulty(domain.Easy) + (1-m.w[7])*damped)
}

// shortTermStability handles reviews less than a day after the last one.
func (m *model) shortTermStability(s float64, r domain.Rating) float64 {
	inc := math.Exp(m.w[17]*(float64(r)-3+m.w[18])) * math.Pow(s, -m.w[19])
	if r >= domain.Good {
		inc = math.Max(inc, 1)
	}
	return clampStability(s * inc)
}

// recallStability grows stability after a successful recall. Lower
// retrievability at review time yields a larger gain.
func (m *model) recallStability(d, s, ret float64, r domain.Rating) float64 {
	hardPenalty, easyBonus := 1.0, 1.0
	switch r {
	case domain.Hard:
		hardPenalty = m.w[15]
	case domain.Easy:
		easyBonus = m.w[16]
	}
	return clampStability(s * (1 + math.Exp(m.w[8])*
		(11-d)*
		math.Pow(s, -m.w[9])*
		(math.Exp((1-ret)*m.w[10])-1)*
		hardPenalty*easyBonus))
}

// forgetStability is the lapse penalty, capped so a lapse never raises stability.
func (m *model) forgetStability(d, s, ret float64) float64 {
	long := m.w[11] *
		math.Pow(d, -m.w[12]) *
		(math.Pow(s+1, m.w[13]) - 1) *
		math.Exp((1-ret)*m.w[14])
	short := s / math.Exp(m.w[17]*m.w[18])
	return clampStability(math.Min(long, short))
}

func clampStability(s float64) float64 {
	if math.IsNaN(s) {
		return minStability
	}
	return math.Max(s, minStability)
}

func clampDifficulty(d float64) float64 {
	return math.Min(math.Max(d, minDifficulty), maxDifficulty)
}

func clampInterval(ivl, maxIvl int) int {
	if ivl < 1 {
		return 1
	}
	if ivl > maxIvl {
		return maxIvl
	}
	return ivl
}

// roundHalfUp rounds x to the nearest integer, halves rounding up.
func roundHalfUp(x float64) float64 {
	return math.Floor(x + 0.5)
}
