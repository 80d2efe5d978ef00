package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/conorfennell/grove/internal/domain"
	"github.com/google/uuid"
)

const cardColumns = `c.id, c.deck_id, c.front, c.back, c.content_hash,
	c.due, c.stability, c.difficulty, c.elapsed_days, c.scheduled_days,
	c.reps, c.lapses, c.state, c.last_review, c.retrievability,
	c.deleted, c.created_at, c.updated_at`

func scanCard(row scanner) (*domain.Card, error) {
	var (
		c                         domain.Card
		due, createdAt, updatedAt int64
		lastReview                sql.NullInt64
		r                         sql.NullFloat64
	)
	err := row.Scan(
		&c.ID, &c.DeckID, &c.Front, &c.Back, &c.ContentHash,
		&due, &c.Stability, &c.Difficulty, &c.ElapsedDays, &c.ScheduledDays,
		&c.Reps, &c.Lapses, &c.State, &lastReview, &r,
		&c.Deleted, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.Due = fromMillis(due)
	c.LastReview = timePtr(lastReview)
	c.Retrievability = floatPtr(r)
	c.CreatedAt = fromMillis(createdAt)
	c.UpdatedAt = fromMillis(updatedAt)
	return &c, nil
}

func (q *Queries) listCards(ctx context.Context, op, query string, args ...any) ([]domain.Card, error) {
	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrap(op, err)
	}
	defer rows.Close()

	var cards []domain.Card
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, wrap("scan card row", err)
		}
		cards = append(cards, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap(op, err)
	}
	return cards, nil
}

// InsertCard inserts a new card, assigning an ID when it has none.
func (q *Queries) InsertCard(ctx context.Context, c *domain.Card) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = c.CreatedAt
	}
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO cards (
			id, deck_id, front, back, content_hash,
			due, stability, difficulty, elapsed_days, scheduled_days,
			reps, lapses, state, last_review, retrievability,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		c.ID, c.DeckID, c.Front, c.Back, c.ContentHash,
		toMillis(c.Due), c.Stability, c.Difficulty, c.ElapsedDays, c.ScheduledDays,
		c.Reps, c.Lapses, int(c.State), nullMillis(c.LastReview), nullFloat(c.Retrievability),
		toMillis(c.CreatedAt), toMillis(c.UpdatedAt),
	)
	if err != nil {
		return wrap("insert card "+c.ID, err)
	}
	return nil
}

// GetCardForUser loads a live card whose live deck is owned by userID.
// Missing, deleted and foreign cards all report ErrNotFound.
func (q *Queries) GetCardForUser(ctx context.Context, userID, cardID string) (*domain.Card, error) {
	row := q.q.QueryRowContext(ctx, `
		SELECT `+cardColumns+`
		FROM cards c
		JOIN decks d ON d.id = c.deck_id
		WHERE c.id = ? AND d.user_id = ? AND c.deleted = 0 AND d.deleted = 0
	`, cardID, userID)
	c, err := scanCard(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("card", cardID)
	}
	if err != nil {
		return nil, wrap("get card "+cardID, err)
	}
	return c, nil
}

// ListCardsByDeck returns the live cards of a deck.
func (q *Queries) ListCardsByDeck(ctx context.Context, deckID string) ([]domain.Card, error) {
	return q.listCards(ctx, "list cards of deck "+deckID, `
		SELECT `+cardColumns+`
		FROM cards c
		WHERE c.deck_id = ? AND c.deleted = 0
		ORDER BY c.created_at, c.id
	`, deckID)
}

// ListCardsByUser returns the live cards in all of the user's live decks.
func (q *Queries) ListCardsByUser(ctx context.Context, userID string) ([]domain.Card, error) {
	return q.listCards(ctx, "list cards of user "+userID, `
		SELECT `+cardColumns+`
		FROM cards c
		JOIN decks d ON d.id = c.deck_id
		WHERE d.user_id = ? AND c.deleted = 0 AND d.deleted = 0
		ORDER BY c.deck_id, c.created_at, c.id
	`, userID)
}

// UpdateCardSchedule writes the card's scheduling fields and retrievability.
// The write only lands when the stored reps still equal expectedReps;
// otherwise another review got there first and ErrConflict is returned.
func (q *Queries) UpdateCardSchedule(ctx context.Context, c *domain.Card, expectedReps int) error {
	res, err := q.q.ExecContext(ctx, `
		UPDATE cards
		SET due = ?, stability = ?, difficulty = ?, elapsed_days = ?, scheduled_days = ?,
		    reps = ?, lapses = ?, state = ?, last_review = ?, retrievability = ?, updated_at = ?
		WHERE id = ? AND reps = ? AND deleted = 0
	`,
		toMillis(c.Due), c.Stability, c.Difficulty, c.ElapsedDays, c.ScheduledDays,
		c.Reps, c.Lapses, int(c.State), nullMillis(c.LastReview), nullFloat(c.Retrievability),
		toMillis(c.UpdatedAt),
		c.ID, expectedReps,
	)
	if err != nil {
		return wrap("update card "+c.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrap("read rows affected", err)
	}
	if n == 0 {
		return fmt.Errorf("card %s changed since reps=%d: %w", c.ID, expectedReps, domain.ErrConflict)
	}
	return nil
}

// UpdateCardRetrievability overwrites only the retrievability snapshot.
// Scheduling fields are left untouched.
func (q *Queries) UpdateCardRetrievability(ctx context.Context, cardID string, r *float64) error {
	_, err := q.q.ExecContext(ctx, `
		UPDATE cards SET retrievability = ? WHERE id = ? AND deleted = 0
	`, nullFloat(r), cardID)
	if err != nil {
		return wrap("update retrievability "+cardID, err)
	}
	return nil
}

// CountDueCards counts live cards in the deck due at or before cutoff.
func (q *Queries) CountDueCards(ctx context.Context, deckID string, cutoff time.Time) (int, error) {
	var n int
	err := q.q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM cards WHERE deck_id = ? AND deleted = 0 AND due <= ?
	`, deckID, toMillis(cutoff)).Scan(&n)
	if err != nil {
		return 0, wrap("count due cards "+deckID, err)
	}
	return n, nil
}

// SoftDeleteCard tombstones a live card. Its review logs are kept.
func (q *Queries) SoftDeleteCard(ctx context.Context, cardID string, at time.Time) error {
	res, err := q.q.ExecContext(ctx, `
		UPDATE cards SET deleted = 1, deleted_at = ?, updated_at = ?
		WHERE id = ? AND deleted = 0
	`, toMillis(at), toMillis(at), cardID)
	if err != nil {
		return wrap("delete card "+cardID, err)
	}
	return expectRow(res, "card", cardID)
}

// ListDueCards returns up to limit live cards of the deck due at or before
// cutoff, earliest first.
func (q *Queries) ListDueCards(ctx context.Context, deckID string, cutoff time.Time, limit int) ([]domain.Card, error) {
	return q.listCards(ctx, "list due cards of deck "+deckID, `
		SELECT `+cardColumns+`
		FROM cards c
		WHERE c.deck_id = ? AND c.deleted = 0 AND c.due <= ?
		ORDER BY c.due, c.id
		LIMIT ?
	`, deckID, toMillis(cutoff), limit)
}
