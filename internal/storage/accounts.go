package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/conorfennell/grove/internal/domain"
	"github.com/google/uuid"
)

// CreateAccount inserts a new account, assigning an ID when it has none.
func (q *Queries) CreateAccount(ctx context.Context, a *domain.Account) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO users (id, name, timezone, retrievability, reviewed_count, last_health_sync, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		a.ID,
		a.Name,
		a.Timezone,
		nullFloat(a.Retrievability),
		a.ReviewedCount,
		nullMillis(a.LastHealthSync),
		toMillis(a.CreatedAt),
	)
	if err != nil {
		return wrap("insert account "+a.ID, err)
	}
	return nil
}

// GetAccount loads an account by ID.
func (q *Queries) GetAccount(ctx context.Context, id string) (*domain.Account, error) {
	var (
		a         domain.Account
		r         sql.NullFloat64
		lastSync  sql.NullInt64
		createdAt int64
	)
	err := q.q.QueryRowContext(ctx, `
		SELECT id, name, timezone, retrievability, reviewed_count, last_health_sync, created_at
		FROM users WHERE id = ?
	`, id).Scan(&a.ID, &a.Name, &a.Timezone, &r, &a.ReviewedCount, &lastSync, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("account", id)
	}
	if err != nil {
		return nil, wrap("get account "+id, err)
	}
	a.Retrievability = floatPtr(r)
	a.LastHealthSync = timePtr(lastSync)
	a.CreatedAt = fromMillis(createdAt)
	return &a, nil
}

// UpdateAccountHealth stores the account-wide retrievability aggregate.
func (q *Queries) UpdateAccountHealth(ctx context.Context, id string, mean *float64, count int) error {
	res, err := q.q.ExecContext(ctx, `
		UPDATE users SET retrievability = ?, reviewed_count = ? WHERE id = ?
	`, nullFloat(mean), count, id)
	if err != nil {
		return wrap("update account health "+id, err)
	}
	return expectRow(res, "account", id)
}

// MarkHealthSynced records when the account's aggregates were last rebuilt.
func (q *Queries) MarkHealthSynced(ctx context.Context, id string, at time.Time) error {
	res, err := q.q.ExecContext(ctx, `
		UPDATE users SET last_health_sync = ? WHERE id = ?
	`, toMillis(at), id)
	if err != nil {
		return wrap("mark health synced "+id, err)
	}
	return expectRow(res, "account", id)
}

// SetAccountTimezone changes the IANA zone used for day boundaries.
func (q *Queries) SetAccountTimezone(ctx context.Context, id, tz string) error {
	res, err := q.q.ExecContext(ctx, `UPDATE users SET timezone = ? WHERE id = ?`, tz, id)
	if err != nil {
		return wrap("set timezone "+id, err)
	}
	return expectRow(res, "account", id)
}

func expectRow(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return wrap("read rows affected", err)
	}
	if n == 0 {
		return notFound(kind, id)
	}
	return nil
}
