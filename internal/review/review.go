// Package review applies ratings to cards: scheduling, history, and the
// incremental health update, all in one transaction.
package review

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/conorfennell/grove/internal/domain"
	"github.com/conorfennell/grove/internal/fsrs"
	"github.com/conorfennell/grove/internal/health"
	"github.com/conorfennell/grove/internal/storage"
	"github.com/go-playground/validator/v10"
)

// maxAttempts bounds retries after a lost compare-and-swap on the card.
const maxAttempts = 3

// SubmitRequest is one answer to a card.
type SubmitRequest struct {
	UserID string        `json:"-" validate:"required,uuid"`
	CardID string        `json:"-" validate:"required,uuid"`
	Answer string        `json:"answer" validate:"max=10000"`
	Rating domain.Rating `json:"rating" validate:"rating"`
	// Now defaults to the current time.
	Now time.Time `json:"-"`
}

// Outcome is the result of a submitted review.
type Outcome struct {
	Card domain.Card      `json:"card"`
	Log  domain.ReviewLog `json:"log"`
	// DueRemaining counts live cards in the same deck still due before the
	// end of the user's local day, including this card if it came due again.
	DueRemaining int  `json:"due_remaining"`
	HasMoreDue   bool `json:"has_more_due"`
}

// Service is the card lifecycle service.
type Service struct {
	db        *storage.DB
	scheduler *fsrs.Scheduler
	health    *health.Service
	validate  *validator.Validate
	logger    *slog.Logger
	now       func() time.Time
}

// NewService wires a Service.
func NewService(db *storage.DB, scheduler *fsrs.Scheduler, hs *health.Service, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterValidation("rating", func(fl validator.FieldLevel) bool {
		return domain.Rating(fl.Field().Int()).IsValid()
	})
	return &Service{
		db:        db,
		scheduler: scheduler,
		health:    hs,
		validate:  v,
		logger:    logger,
		now:       time.Now,
	}
}

// SubmitReview schedules the card for the given rating, records the review
// and updates the deck and account health. Cards that are missing, deleted
// or owned by someone else report domain.ErrNotFound.
func (s *Service) SubmitReview(ctx context.Context, req SubmitRequest) (*Outcome, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	if req.Now.IsZero() {
		req.Now = s.now()
	}
	// Storage keeps milliseconds; schedule on the instant that will be stored.
	now := req.Now.UTC().Truncate(time.Millisecond)

	var (
		out *Outcome
		err error
	)
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		out, err = s.submit(ctx, req, now)
		if !errors.Is(err, domain.ErrConflict) {
			break
		}
		s.logger.Warn("Review lost a concurrent update, retrying",
			"card", req.CardID, "attempt", attempt)
	}
	if err != nil {
		return nil, err
	}

	s.logger.Debug("Review submitted",
		"user", req.UserID,
		"card", req.CardID,
		"rating", req.Rating.String(),
		"state", out.Card.State.String(),
		"due", out.Card.Due,
		"due_remaining", out.DueRemaining,
	)
	return out, nil
}

func (s *Service) submit(ctx context.Context, req SubmitRequest, now time.Time) (*Outcome, error) {
	var out *Outcome
	err := s.db.InTx(ctx, func(q *storage.Queries) error {
		acct, err := q.GetAccount(ctx, req.UserID)
		if err != nil {
			return err
		}
		card, err := q.GetCardForUser(ctx, req.UserID, req.CardID)
		if err != nil {
			return err
		}

		next, log, err := s.scheduler.Schedule(card.Schedule, req.Rating, now)
		if err != nil {
			return err
		}

		updated := *card
		updated.Schedule = next
		updated.Retrievability = s.scheduler.Retrievability(next, now)
		updated.UpdatedAt = now
		if err := q.UpdateCardSchedule(ctx, &updated, card.Reps); err != nil {
			return err
		}

		log.CardID = card.ID
		log.Answer = req.Answer
		if err := q.InsertReviewLog(ctx, &log); err != nil {
			return err
		}

		if err := s.health.ApplyDelta(ctx, q, req.UserID, card.DeckID, card.Retrievability, updated.Retrievability, now); err != nil {
			return err
		}

		due, err := q.CountDueCards(ctx, card.DeckID, EndOfDay(now, s.health.Location(acct)))
		if err != nil {
			return err
		}

		out = &Outcome{
			Card:         updated,
			Log:          log,
			DueRemaining: due,
			HasMoreDue:   due > 0,
		}
		return nil
	})
	return out, err
}

func (s *Service) check(req SubmitRequest) error {
	err := s.validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}

	fields := make([]string, 0, len(verrs))
	rating := false
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s failed %q", fe.Field(), fe.Tag()))
		if fe.Field() == "Rating" {
			rating = true
		}
	}
	msg := strings.Join(fields, ", ")
	if rating {
		return fmt.Errorf("%w: %w: %s", domain.ErrValidation, domain.ErrInvalidRating, msg)
	}
	return fmt.Errorf("%w: %s", domain.ErrValidation, msg)
}

// EndOfDay returns the last instant of now's calendar day in loc.
func EndOfDay(now time.Time, loc *time.Location) time.Time {
	y, m, d := now.In(loc).Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, loc).Add(-time.Nanosecond)
}
