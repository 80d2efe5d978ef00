package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/conorfennell/grove/internal/domain"
	"github.com/google/uuid"
)

const deckColumns = `d.id, d.user_id, d.name, d.retrievability, d.reviewed_count, d.deleted, d.created_at, d.updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanDeck(row scanner) (*domain.Deck, error) {
	var (
		d                    domain.Deck
		r                    sql.NullFloat64
		createdAt, updatedAt int64
	)
	if err := row.Scan(&d.ID, &d.UserID, &d.Name, &r, &d.ReviewedCount, &d.Deleted, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	d.Retrievability = floatPtr(r)
	d.CreatedAt = fromMillis(createdAt)
	d.UpdatedAt = fromMillis(updatedAt)
	return &d, nil
}

// CreateDeck inserts a new deck, assigning an ID when it has none.
func (q *Queries) CreateDeck(ctx context.Context, d *domain.Deck) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	if d.UpdatedAt.IsZero() {
		d.UpdatedAt = d.CreatedAt
	}
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO decks (id, user_id, name, retrievability, reviewed_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		d.ID,
		d.UserID,
		d.Name,
		nullFloat(d.Retrievability),
		d.ReviewedCount,
		toMillis(d.CreatedAt),
		toMillis(d.UpdatedAt),
	)
	if err != nil {
		return wrap("insert deck "+d.ID, err)
	}
	return nil
}

// GetDeck loads a live deck owned by userID. Missing, deleted and foreign
// decks all report ErrNotFound.
func (q *Queries) GetDeck(ctx context.Context, userID, deckID string) (*domain.Deck, error) {
	row := q.q.QueryRowContext(ctx, `
		SELECT `+deckColumns+`
		FROM decks d
		WHERE d.id = ? AND d.user_id = ? AND d.deleted = 0
	`, deckID, userID)
	d, err := scanDeck(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("deck", deckID)
	}
	if err != nil {
		return nil, wrap("get deck "+deckID, err)
	}
	return d, nil
}

// FindDeckByName returns the user's live deck with the given name, or nil
// when there is none.
func (q *Queries) FindDeckByName(ctx context.Context, userID, name string) (*domain.Deck, error) {
	row := q.q.QueryRowContext(ctx, `
		SELECT `+deckColumns+`
		FROM decks d
		WHERE d.user_id = ? AND d.name = ? AND d.deleted = 0
		ORDER BY d.created_at
		LIMIT 1
	`, userID, name)
	d, err := scanDeck(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrap("find deck "+name, err)
	}
	return d, nil
}

// ListDecks returns the user's live decks ordered by name.
func (q *Queries) ListDecks(ctx context.Context, userID string) ([]domain.Deck, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT `+deckColumns+`
		FROM decks d
		WHERE d.user_id = ? AND d.deleted = 0
		ORDER BY d.name, d.id
	`, userID)
	if err != nil {
		return nil, wrap("list decks", err)
	}
	defer rows.Close()

	var decks []domain.Deck
	for rows.Next() {
		d, err := scanDeck(rows)
		if err != nil {
			return nil, wrap("scan deck row", err)
		}
		decks = append(decks, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("list decks", err)
	}
	return decks, nil
}

// UpdateDeckHealth stores a deck's retrievability aggregate.
func (q *Queries) UpdateDeckHealth(ctx context.Context, deckID string, mean *float64, count int, at time.Time) error {
	res, err := q.q.ExecContext(ctx, `
		UPDATE decks SET retrievability = ?, reviewed_count = ?, updated_at = ?
		WHERE id = ? AND deleted = 0
	`, nullFloat(mean), count, toMillis(at), deckID)
	if err != nil {
		return wrap("update deck health "+deckID, err)
	}
	return expectRow(res, "deck", deckID)
}

// SoftDeleteDeck tombstones a live deck owned by userID. Its cards stay in
// place but drop out of every live query with it.
func (q *Queries) SoftDeleteDeck(ctx context.Context, userID, deckID string, at time.Time) error {
	res, err := q.q.ExecContext(ctx, `
		UPDATE decks SET deleted = 1, deleted_at = ?, updated_at = ?
		WHERE id = ? AND user_id = ? AND deleted = 0
	`, toMillis(at), toMillis(at), deckID, userID)
	if err != nil {
		return wrap("delete deck "+deckID, err)
	}
	return expectRow(res, "deck", deckID)
}

// UserHealth recomputes the account aggregate from the stored retrievability
// snapshots of every live card in the user's live decks.
func (q *Queries) UserHealth(ctx context.Context, userID string) (*float64, int, error) {
	var (
		mean  sql.NullFloat64
		count int
	)
	err := q.q.QueryRowContext(ctx, `
		SELECT AVG(c.retrievability), COUNT(c.retrievability)
		FROM cards c
		JOIN decks d ON d.id = c.deck_id
		WHERE d.user_id = ? AND d.deleted = 0 AND c.deleted = 0
	`, userID).Scan(&mean, &count)
	if err != nil {
		return nil, 0, wrap("aggregate user health "+userID, err)
	}
	return floatPtr(mean), count, nil
}
