package storage

import (
	"context"

	"github.com/conorfennell/grove/internal/domain"
	"github.com/google/uuid"
)

// InsertReviewLog appends an immutable review event.
func (q *Queries) InsertReviewLog(ctx context.Context, l *domain.ReviewLog) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO review_logs (
			id, card_id, rating, state, due, stability, difficulty,
			elapsed_days, scheduled_days, answer, reviewed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		l.ID, l.CardID, int(l.Rating), int(l.State), toMillis(l.Due), l.Stability, l.Difficulty,
		l.ElapsedDays, l.ScheduledDays, l.Answer, toMillis(l.ReviewedAt),
	)
	if err != nil {
		return wrap("insert review log for card "+l.CardID, err)
	}
	return nil
}

// ListReviewLogs returns a card's review history, oldest first.
func (q *Queries) ListReviewLogs(ctx context.Context, cardID string) ([]domain.ReviewLog, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT id, card_id, rating, state, due, stability, difficulty,
		       elapsed_days, scheduled_days, answer, reviewed_at
		FROM review_logs
		WHERE card_id = ?
		ORDER BY reviewed_at, rowid
	`, cardID)
	if err != nil {
		return nil, wrap("list review logs "+cardID, err)
	}
	defer rows.Close()

	var logs []domain.ReviewLog
	for rows.Next() {
		var (
			l               domain.ReviewLog
			due, reviewedAt int64
		)
		if err := rows.Scan(
			&l.ID, &l.CardID, &l.Rating, &l.State, &due, &l.Stability, &l.Difficulty,
			&l.ElapsedDays, &l.ScheduledDays, &l.Answer, &reviewedAt,
		); err != nil {
			return nil, wrap("scan review log row", err)
		}
		l.Due = fromMillis(due)
		l.ReviewedAt = fromMillis(reviewedAt)
		logs = append(logs, l)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("list review logs "+cardID, err)
	}
	return logs, nil
}
