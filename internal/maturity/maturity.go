// Package maturity classifies cards into display stages for statistics.
package maturity

import "github.com/conorfennell/grove/internal/domain"

// Interval thresholds, in scheduled days, for Review-state cards.
const (
	BuddingDays = 16
	MatureDays  = 31
	MightyDays  = 62
)

// Classify maps a card's state and last scheduled interval to a maturity stage.
// Only Review cards are graded by interval; an unknown state counts as Seed.
func Classify(state domain.State, scheduledDays int) domain.Maturity {
	switch state {
	case domain.Review:
	case domain.Learning, domain.Relearning:
		return domain.Sprout
	default:
		return domain.Seed
	}
	switch {
	case scheduledDays < BuddingDays:
		return domain.Sapling
	case scheduledDays < MatureDays:
		return domain.Budding
	case scheduledDays < MightyDays:
		return domain.Mature
	default:
		return domain.Mighty
	}
}

// Distribution counts cards per maturity stage. Every stage is present in
// the result, with zero when no card falls into it.
func Distribution(cards []domain.Card) map[domain.Maturity]int {
	dist := make(map[domain.Maturity]int, len(domain.Maturities))
	for _, m := range domain.Maturities {
		dist[m] = 0
	}
	for _, c := range cards {
		dist[Classify(c.State, c.ScheduledDays)]++
	}
	return dist
}
