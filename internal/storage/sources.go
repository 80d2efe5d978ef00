package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Source types.
const (
	SourceLocal = "local"
	SourceGit   = "git"
)

// Source represents a card source of a deck, either a local path or a Git URL.
type Source struct {
	ID          int64
	DeckID      string
	Path        string
	Type        string
	LastScanned *time.Time
}

// InsertSource registers a source path for a deck and returns its ID.
func (q *Queries) InsertSource(ctx context.Context, deckID, path, typ string) (int64, error) {
	res, err := q.q.ExecContext(ctx, `
		INSERT INTO deck_sources (deck_id, path, type) VALUES (?, ?, ?)
	`, deckID, path, typ)
	if err != nil {
		return 0, wrap("insert source "+path, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, wrap("get last insert ID for source "+path, err)
	}
	return id, nil
}

// FindSource retrieves a deck's source by path, or nil when it is unknown.
func (q *Queries) FindSource(ctx context.Context, deckID, path string) (*Source, error) {
	var (
		s       Source
		scanned sql.NullInt64
	)
	err := q.q.QueryRowContext(ctx, `
		SELECT id, deck_id, path, type, last_scanned
		FROM deck_sources WHERE deck_id = ? AND path = ?
	`, deckID, path).Scan(&s.ID, &s.DeckID, &s.Path, &s.Type, &scanned)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrap("find source "+path, err)
	}
	s.LastScanned = timePtr(scanned)
	return &s, nil
}

// ListSources returns every source registered for a deck.
func (q *Queries) ListSources(ctx context.Context, deckID string) ([]Source, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT id, deck_id, path, type, last_scanned
		FROM deck_sources WHERE deck_id = ?
		ORDER BY id
	`, deckID)
	if err != nil {
		return nil, wrap("list sources", err)
	}
	defer rows.Close()

	var sources []Source
	for rows.Next() {
		var (
			s       Source
			scanned sql.NullInt64
		)
		if err := rows.Scan(&s.ID, &s.DeckID, &s.Path, &s.Type, &scanned); err != nil {
			return nil, wrap("scan source row", err)
		}
		s.LastScanned = timePtr(scanned)
		sources = append(sources, s)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("list sources", err)
	}
	return sources, nil
}

// UpdateSourceLastScanned updates the last_scanned timestamp for a source.
func (q *Queries) UpdateSourceLastScanned(ctx context.Context, id int64, at time.Time) error {
	_, err := q.q.ExecContext(ctx, `
		UPDATE deck_sources SET last_scanned = ? WHERE id = ?
	`, toMillis(at), id)
	if err != nil {
		return wrap(fmt.Sprintf("update last scanned for source ID %d", id), err)
	}
	return nil
}
