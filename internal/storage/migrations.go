package storage

import "fmt"

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "users, decks, cards and review logs",
		SQL: `
CREATE TABLE users (
    id               TEXT PRIMARY KEY,
    name             TEXT NOT NULL,
    timezone         TEXT NOT NULL DEFAULT '',
    retrievability   REAL,
    reviewed_count   INTEGER NOT NULL DEFAULT 0,
    last_health_sync INTEGER,
    created_at       INTEGER NOT NULL
);

CREATE TABLE decks (
    id             TEXT PRIMARY KEY,
    user_id        TEXT NOT NULL,
    name           TEXT NOT NULL,
    retrievability REAL,
    reviewed_count INTEGER NOT NULL DEFAULT 0,
    deleted        INTEGER NOT NULL DEFAULT 0 CHECK (deleted IN (0, 1)),
    deleted_at     INTEGER,
    created_at     INTEGER NOT NULL,
    updated_at     INTEGER NOT NULL,

    FOREIGN KEY (user_id) REFERENCES users(id)
);

CREATE INDEX idx_decks_user ON decks(user_id, deleted);

-- Cards are never hard-deleted so their review history stays intact.
CREATE TABLE cards (
    id             TEXT PRIMARY KEY,
    deck_id        TEXT NOT NULL,
    front          TEXT NOT NULL,
    back           TEXT NOT NULL DEFAULT '',
    content_hash   TEXT NOT NULL DEFAULT '',

    due            INTEGER NOT NULL,
    stability      REAL NOT NULL DEFAULT 0,
    difficulty     REAL NOT NULL DEFAULT 0,
    elapsed_days   INTEGER NOT NULL DEFAULT 0,
    scheduled_days INTEGER NOT NULL DEFAULT 0,
    reps           INTEGER NOT NULL DEFAULT 0,
    lapses         INTEGER NOT NULL DEFAULT 0,
    state          INTEGER NOT NULL DEFAULT 0 CHECK (state BETWEEN 0 AND 3),
    last_review    INTEGER,
    retrievability REAL CHECK (retrievability IS NULL OR (retrievability >= 0 AND retrievability <= 1)),

    deleted        INTEGER NOT NULL DEFAULT 0 CHECK (deleted IN (0, 1)),
    deleted_at     INTEGER,
    created_at     INTEGER NOT NULL,
    updated_at     INTEGER NOT NULL,

    FOREIGN KEY (deck_id) REFERENCES decks(id)
);

CREATE INDEX idx_cards_deck_due ON cards(deck_id, deleted, due);
CREATE INDEX idx_cards_hash     ON cards(deck_id, content_hash);

CREATE TABLE review_logs (
    id             TEXT PRIMARY KEY,
    card_id        TEXT NOT NULL,
    rating         INTEGER NOT NULL CHECK (rating BETWEEN 1 AND 4),
    state          INTEGER NOT NULL,
    due            INTEGER NOT NULL,
    stability      REAL NOT NULL,
    difficulty     REAL NOT NULL,
    elapsed_days   INTEGER NOT NULL,
    scheduled_days INTEGER NOT NULL,
    answer         TEXT NOT NULL DEFAULT '',
    reviewed_at    INTEGER NOT NULL,

    FOREIGN KEY (card_id) REFERENCES cards(id)
);

CREATE INDEX idx_review_logs_card ON review_logs(card_id, reviewed_at);
`,
	},
	{
		Version:     2,
		Description: "deck_sources: markdown directories and git repos imported into decks",
		SQL: `
CREATE TABLE deck_sources (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    deck_id      TEXT NOT NULL,
    path         TEXT NOT NULL,
    type         TEXT NOT NULL CHECK (type IN ('local', 'git')),
    last_scanned INTEGER,

    UNIQUE (deck_id, path),
    FOREIGN KEY (deck_id) REFERENCES decks(id)
);
`,
	},
}

func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS schema_versions (
			version     INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at  INTEGER NOT NULL DEFAULT (strftime('%s', 'now') * 1000)
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := db.conn.QueryRow("SELECT COUNT(*) FROM schema_versions WHERE version = ?", m.Version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if count > 0 {
			continue
		}

		tx, err := db.conn.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}
		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}
		if _, err := tx.Exec(
			"INSERT INTO schema_versions (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}
	return nil
}

// SchemaVersion returns the current schema version.
func (db *DB) SchemaVersion() (int, error) {
	var version int
	err := db.conn.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_versions").Scan(&version)
	return version, err
}
