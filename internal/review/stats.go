package review

import (
	"context"
	"time"

	"github.com/conorfennell/grove/internal/domain"
	"github.com/conorfennell/grove/internal/maturity"
)

// DeckStats summarizes a deck for display.
type DeckStats struct {
	Deck     domain.Deck             `json:"deck"`
	Cards    int                     `json:"cards"`
	DueToday int                     `json:"due_today"`
	Maturity map[domain.Maturity]int `json:"maturity"`
	States   map[domain.State]int    `json:"states"`
}

// Stats returns counts by maturity and state plus the number of cards due
// before the end of the user's local day.
func (s *Service) Stats(ctx context.Context, userID, deckID string, now time.Time) (*DeckStats, error) {
	acct, err := s.db.GetAccount(ctx, userID)
	if err != nil {
		return nil, err
	}
	deck, err := s.db.GetDeck(ctx, userID, deckID)
	if err != nil {
		return nil, err
	}
	cards, err := s.db.ListCardsByDeck(ctx, deck.ID)
	if err != nil {
		return nil, err
	}
	due, err := s.db.CountDueCards(ctx, deck.ID, EndOfDay(now, s.health.Location(acct)))
	if err != nil {
		return nil, err
	}

	states := make(map[domain.State]int, 4)
	for _, c := range cards {
		states[c.State]++
	}
	return &DeckStats{
		Deck:     *deck,
		Cards:    len(cards),
		DueToday: due,
		Maturity: maturity.Distribution(cards),
		States:   states,
	}, nil
}
