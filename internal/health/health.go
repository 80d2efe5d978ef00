// Package health maintains per-card retrievability snapshots and the deck and
// account aggregates built from them.
package health

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/conorfennell/grove/internal/domain"
	"github.com/conorfennell/grove/internal/fsrs"
	"github.com/conorfennell/grove/internal/storage"
)

// Service rebuilds and incrementally maintains health aggregates.
type Service struct {
	db        *storage.DB
	scheduler *fsrs.Scheduler
	logger    *slog.Logger
	location  *time.Location
}

// NewService returns a Service. defaultTZ is used for accounts without a
// usable timezone; an empty or unknown zone means UTC.
func NewService(db *storage.DB, scheduler *fsrs.Scheduler, logger *slog.Logger, defaultTZ string) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		db:        db,
		scheduler: scheduler,
		logger:    logger,
		location:  domain.LoadLocation(defaultTZ),
	}
}

// Location returns the zone that defines the account's calendar days.
func (s *Service) Location(a *domain.Account) *time.Location {
	if a.Timezone != "" {
		return a.Location()
	}
	return s.location
}

// NeedsSync reports whether an account last synced at lastSync is stale at
// now: it never synced, or its sync happened on an earlier local date.
func NeedsSync(lastSync *time.Time, now time.Time, loc *time.Location) bool {
	if lastSync == nil {
		return true
	}
	ly, lm, ld := lastSync.In(loc).Date()
	ny, nm, nd := now.In(loc).Date()
	last := time.Date(ly, lm, ld, 0, 0, 0, 0, time.UTC)
	today := time.Date(ny, nm, nd, 0, 0, 0, 0, time.UTC)
	return last.Before(today)
}

var errFresh = errors.New("health already synced today")

// SyncAccountHealth recomputes every card snapshot and aggregate of the
// account when it has not yet been synced on now's local date. It reports
// whether a resync ran. Calling it again for the same now is a no-op.
func (s *Service) SyncAccountHealth(ctx context.Context, userID string, now time.Time) (bool, error) {
	acct, err := s.db.GetAccount(ctx, userID)
	if err != nil {
		return false, err
	}
	loc := s.Location(acct)
	if !NeedsSync(acct.LastHealthSync, now, loc) {
		return false, nil
	}

	err = s.db.InTx(ctx, func(q *storage.Queries) error {
		// Another request may have synced while we waited for the lock.
		acct, err := q.GetAccount(ctx, userID)
		if err != nil {
			return err
		}
		if !NeedsSync(acct.LastHealthSync, now, loc) {
			return errFresh
		}
		return s.resync(ctx, q, userID, now)
	})
	if errors.Is(err, errFresh) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ForceSync rebuilds the account's health regardless of when it last ran.
func (s *Service) ForceSync(ctx context.Context, userID string, now time.Time) error {
	return s.db.InTx(ctx, func(q *storage.Queries) error {
		if _, err := q.GetAccount(ctx, userID); err != nil {
			return err
		}
		return s.resync(ctx, q, userID, now)
	})
}

func (s *Service) resync(ctx context.Context, q *storage.Queries, userID string, now time.Time) error {
	decks, err := q.ListDecks(ctx, userID)
	if err != nil {
		return err
	}
	cards, err := q.ListCardsByUser(ctx, userID)
	if err != nil {
		return err
	}

	perDeck := make(map[string][]float64, len(decks))
	var all []float64
	var changed int
	for _, c := range cards {
		r := s.scheduler.Retrievability(c.Schedule, now)
		if !sameValue(c.Retrievability, r) {
			if err := q.UpdateCardRetrievability(ctx, c.ID, r); err != nil {
				return err
			}
			changed++
		}
		if r != nil {
			perDeck[c.DeckID] = append(perDeck[c.DeckID], *r)
			all = append(all, *r)
		}
	}

	for _, d := range decks {
		mean, n := Mean(perDeck[d.ID])
		if err := q.UpdateDeckHealth(ctx, d.ID, mean, n, now); err != nil {
			return err
		}
	}

	mean, n := Mean(all)
	if err := q.UpdateAccountHealth(ctx, userID, mean, n); err != nil {
		return err
	}
	if err := q.MarkHealthSynced(ctx, userID, now); err != nil {
		return err
	}

	s.logger.Info("Account health synced",
		"user", userID,
		"decks", len(decks),
		"cards", len(cards),
		"reviewed", n,
		"updated", changed,
	)
	return nil
}

// ApplyDelta folds one card's retrievability change into its deck's and
// account's aggregates. It must run inside the transaction that changed the
// card so the aggregates never drift from the cards they summarize.
func (s *Service) ApplyDelta(ctx context.Context, q *storage.Queries, userID, deckID string, before, after *float64, at time.Time) error {
	if before == nil && after == nil {
		return nil
	}

	deck, err := q.GetDeck(ctx, userID, deckID)
	if err != nil {
		return err
	}
	mean, n := IncrementalMean(deck.Retrievability, deck.ReviewedCount, before, after)
	if err := q.UpdateDeckHealth(ctx, deckID, mean, n, at); err != nil {
		return err
	}

	acct, err := q.GetAccount(ctx, userID)
	if err != nil {
		return err
	}
	mean, n = IncrementalMean(acct.Retrievability, acct.ReviewedCount, before, after)
	return q.UpdateAccountHealth(ctx, userID, mean, n)
}

// RecomputeAccount rebuilds the account aggregate from the stored card
// snapshots, used when a whole deck leaves the account.
func (s *Service) RecomputeAccount(ctx context.Context, q *storage.Queries, userID string) error {
	mean, n, err := q.UserHealth(ctx, userID)
	if err != nil {
		return err
	}
	return q.UpdateAccountHealth(ctx, userID, mean, n)
}

func sameValue(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
