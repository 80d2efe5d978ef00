package review

import (
	"context"
	"time"

	"github.com/conorfennell/grove/internal/domain"
	"github.com/conorfennell/grove/internal/storage"
)

// Preview returns the schedule each rating would produce at now, without
// changing anything.
func (s *Service) Preview(ctx context.Context, userID, cardID string, now time.Time) (map[domain.Rating]domain.Schedule, error) {
	card, err := s.db.GetCardForUser(ctx, userID, cardID)
	if err != nil {
		return nil, err
	}
	return s.scheduler.Preview(card.Schedule, now)
}

// Retrievability returns the card's recall probability at asOf, nil for a
// card that was never reviewed.
func (s *Service) Retrievability(ctx context.Context, userID, cardID string, asOf time.Time) (*float64, error) {
	card, err := s.db.GetCardForUser(ctx, userID, cardID)
	if err != nil {
		return nil, err
	}
	return s.scheduler.Retrievability(card.Schedule, asOf), nil
}

// History returns the card's review log, oldest first.
func (s *Service) History(ctx context.Context, userID, cardID string) ([]domain.ReviewLog, error) {
	card, err := s.db.GetCardForUser(ctx, userID, cardID)
	if err != nil {
		return nil, err
	}
	return s.db.ListReviewLogs(ctx, card.ID)
}

// RemoveCard soft-deletes a card and drops it from the health aggregates.
func (s *Service) RemoveCard(ctx context.Context, userID, cardID string, now time.Time) error {
	return s.db.InTx(ctx, func(q *storage.Queries) error {
		card, err := q.GetCardForUser(ctx, userID, cardID)
		if err != nil {
			return err
		}
		if err := q.SoftDeleteCard(ctx, card.ID, now); err != nil {
			return err
		}
		return s.health.ApplyDelta(ctx, q, userID, card.DeckID, card.Retrievability, nil, now)
	})
}

// RemoveDeck soft-deletes a deck, which hides all of its cards, and rebuilds
// the account aggregate without them.
func (s *Service) RemoveDeck(ctx context.Context, userID, deckID string, now time.Time) error {
	return s.db.InTx(ctx, func(q *storage.Queries) error {
		if err := q.SoftDeleteDeck(ctx, userID, deckID, now); err != nil {
			return err
		}
		return s.health.RecomputeAccount(ctx, q, userID)
	})
}

// DueCards returns up to limit cards of the deck due before the end of the
// user's local day, earliest first.
func (s *Service) DueCards(ctx context.Context, userID, deckID string, now time.Time, limit int) ([]domain.Card, error) {
	acct, err := s.db.GetAccount(ctx, userID)
	if err != nil {
		return nil, err
	}
	deck, err := s.db.GetDeck(ctx, userID, deckID)
	if err != nil {
		return nil, err
	}
	return s.db.ListDueCards(ctx, deck.ID, EndOfDay(now, s.health.Location(acct)), limit)
}
