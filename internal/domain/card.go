package domain

import (
	"fmt"
	"time"
)

// Schedule holds the spaced-repetition fields of a card.
// It is the flat record persisted on the card row.
type Schedule struct {
	Due           time.Time  `json:"due"`
	Stability     float64    `json:"stability"`
	Difficulty    float64    `json:"difficulty"`
	ElapsedDays   int        `json:"elapsed_days"`
	ScheduledDays int        `json:"scheduled_days"`
	Reps          int        `json:"reps"`
	Lapses        int        `json:"lapses"`
	State         State      `json:"state"`
	LastReview    *time.Time `json:"last_review"` // nil before first review.
}

// Validate checks the internal consistency of the scheduling fields.
func (s Schedule) Validate() error {
	switch {
	case !s.State.IsValid():
		return fmt.Errorf("%w: unknown state %d", ErrValidation, int(s.State))
	case s.Stability < 0:
		return fmt.Errorf("%w: negative stability %f", ErrValidation, s.Stability)
	case s.Difficulty < 0:
		return fmt.Errorf("%w: negative difficulty %f", ErrValidation, s.Difficulty)
	case s.Reps < 0 || s.Lapses < 0:
		return fmt.Errorf("%w: negative reps/lapses %d/%d", ErrValidation, s.Reps, s.Lapses)
	case s.ElapsedDays < 0 || s.ScheduledDays < 0:
		return fmt.Errorf("%w: negative day count", ErrValidation)
	}
	return nil
}

// Basis returns the instant the card's decay curve starts from: the last
// review when known, otherwise due minus the scheduled interval.
func (s Schedule) Basis() time.Time {
	if s.LastReview != nil {
		return *s.LastReview
	}
	return s.Due.Add(-time.Duration(s.ScheduledDays) * 24 * time.Hour)
}

// Card is one flashcard together with its scheduling state.
type Card struct {
	ID          string `json:"id"`
	DeckID      string `json:"deck_id"`
	Front       string `json:"front"`
	Back        string `json:"back"`
	ContentHash string `json:"content_hash,omitempty"`
	Schedule
	// Retrievability is nil exactly when the card has never been reviewed.
	Retrievability *float64  `json:"retrievability"`
	Deleted        bool      `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// NewCard returns a never-reviewed card that is due immediately.
func NewCard(deckID, front, back string, now time.Time) Card {
	return Card{
		DeckID: deckID,
		Front:  front,
		Back:   back,
		Schedule: Schedule{
			Due:   now,
			State: New,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// ReviewLog records a single review event for a card.
// The scheduling fields are the card's state before the review was applied.
type ReviewLog struct {
	ID            string    `json:"id"`
	CardID        string    `json:"card_id"`
	Rating        Rating    `json:"rating"`
	State         State     `json:"state"`
	Due           time.Time `json:"due"`
	Stability     float64   `json:"stability"`
	Difficulty    float64   `json:"difficulty"`
	ElapsedDays   int       `json:"elapsed_days"`
	ScheduledDays int       `json:"scheduled_days"`
	Answer        string    `json:"answer"`
	ReviewedAt    time.Time `json:"reviewed_at"`
}
