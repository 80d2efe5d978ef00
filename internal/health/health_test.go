package health

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/conorfennell/grove/internal/domain"
	"github.com/conorfennell/grove/internal/fsrs"
	"github.com/conorfennell/grove/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

func ptr(f float64) *float64 { return &f }

type fixture struct {
	db  *storage.DB
	svc *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := storage.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return &fixture{db: db, svc: NewService(db, fsrs.DefaultScheduler(), logger, "")}
}

func (f *fixture) account(t *testing.T, id, tz string) {
	t.Helper()
	require.NoError(t, f.db.CreateAccount(context.Background(), &domain.Account{ID: id, Name: id, Timezone: tz, CreatedAt: t0}))
}

func (f *fixture) deck(t *testing.T, userID, name string) *domain.Deck {
	t.Helper()
	d := &domain.Deck{UserID: userID, Name: name, CreatedAt: t0}
	require.NoError(t, f.db.CreateDeck(context.Background(), d))
	return d
}

// reviewed inserts a Review-state card last reviewed daysAgo before t0.
func (f *fixture) reviewed(t *testing.T, deckID string, stability float64, daysAgo int) *domain.Card {
	t.Helper()
	last := t0.AddDate(0, 0, -daysAgo)
	c := domain.NewCard(deckID, "q", "a", last)
	c.State = domain.Review
	c.Stability = stability
	c.Difficulty = 5
	c.Reps = 3
	c.ScheduledDays = int(stability)
	c.LastReview = &last
	c.Due = last.AddDate(0, 0, int(stability))
	require.NoError(t, f.db.InsertCard(context.Background(), &c))
	return &c
}

func (f *fixture) fresh(t *testing.T, deckID string) *domain.Card {
	t.Helper()
	c := domain.NewCard(deckID, "new", "card", t0)
	require.NoError(t, f.db.InsertCard(context.Background(), &c))
	return &c
}

func TestSyncAccountHealth(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.account(t, "u1", "")
	a := f.deck(t, "u1", "a")
	b := f.deck(t, "u1", "b")
	c1 := f.reviewed(t, a.ID, 10, 10)
	c2 := f.reviewed(t, a.ID, 4, 1)
	f.fresh(t, a.ID)
	f.fresh(t, b.ID)

	synced, err := f.svc.SyncAccountHealth(ctx, "u1", t0)
	require.NoError(t, err)
	assert.True(t, synced)

	sched := fsrs.DefaultScheduler()
	r1 := *sched.Retrievability(c1.Schedule, t0)
	r2 := *sched.Retrievability(c2.Schedule, t0)
	assert.InDelta(t, 0.9, r1, 1e-9)

	cards, err := f.db.ListCardsByDeck(ctx, a.ID)
	require.NoError(t, err)
	for _, c := range cards {
		if c.State == domain.New {
			assert.Nil(t, c.Retrievability)
		} else {
			require.NotNil(t, c.Retrievability)
		}
	}

	deckA, err := f.db.GetDeck(ctx, "u1", a.ID)
	require.NoError(t, err)
	require.NotNil(t, deckA.Retrievability)
	assert.InDelta(t, (r1+r2)/2, *deckA.Retrievability, 1e-12)
	assert.Equal(t, 2, deckA.ReviewedCount)

	deckB, err := f.db.GetDeck(ctx, "u1", b.ID)
	require.NoError(t, err)
	assert.Nil(t, deckB.Retrievability)
	assert.Equal(t, 0, deckB.ReviewedCount)

	acct, err := f.db.GetAccount(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, acct.Retrievability)
	assert.InDelta(t, (r1+r2)/2, *acct.Retrievability, 1e-12)
	assert.Equal(t, 2, acct.ReviewedCount)
	require.NotNil(t, acct.LastHealthSync)
	assert.True(t, acct.LastHealthSync.Equal(t0))
}

func TestSyncAccountHealth_OncePerDay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.account(t, "u1", "")
	d := f.deck(t, "u1", "a")
	f.reviewed(t, d.ID, 10, 10)

	synced, err := f.svc.SyncAccountHealth(ctx, "u1", t0)
	require.NoError(t, err)
	require.True(t, synced)
	first, err := f.db.GetAccount(ctx, "u1")
	require.NoError(t, err)

	// Same instant and later the same day are no-ops.
	for _, at := range []time.Time{t0, t0.Add(13 * time.Hour)} {
		synced, err = f.svc.SyncAccountHealth(ctx, "u1", at)
		require.NoError(t, err)
		assert.False(t, synced)
	}
	again, err := f.db.GetAccount(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, *first.Retrievability, *again.Retrievability)
	assert.True(t, again.LastHealthSync.Equal(t0))

	// The next calendar day refreshes, and retrievability decays.
	synced, err = f.svc.SyncAccountHealth(ctx, "u1", t0.Add(24*time.Hour))
	require.NoError(t, err)
	assert.True(t, synced)
	next, err := f.db.GetAccount(ctx, "u1")
	require.NoError(t, err)
	assert.Less(t, *next.Retrievability, *first.Retrievability)
}

func TestForceSync_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.account(t, "u1", "")
	d := f.deck(t, "u1", "a")
	f.reviewed(t, d.ID, 3, 5)
	f.reviewed(t, d.ID, 20, 2)

	require.NoError(t, f.svc.ForceSync(ctx, "u1", t0))
	first, err := f.db.GetDeck(ctx, "u1", d.ID)
	require.NoError(t, err)

	require.NoError(t, f.svc.ForceSync(ctx, "u1", t0))
	second, err := f.db.GetDeck(ctx, "u1", d.ID)
	require.NoError(t, err)

	assert.Equal(t, *first.Retrievability, *second.Retrievability)
	assert.Equal(t, first.ReviewedCount, second.ReviewedCount)
}

func TestSyncAccountHealth_NoCards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.account(t, "u1", "")
	f.deck(t, "u1", "empty")

	synced, err := f.svc.SyncAccountHealth(ctx, "u1", t0)
	require.NoError(t, err)
	assert.True(t, synced)

	acct, err := f.db.GetAccount(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, acct.Retrievability)
	assert.Equal(t, 0, acct.ReviewedCount)
}

func TestSyncAccountHealth_UnknownAccount(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.SyncAccountHealth(context.Background(), "ghost", t0)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSyncAccountHealth_IgnoresDeletedDecks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.account(t, "u1", "")
	keep := f.deck(t, "u1", "keep")
	drop := f.deck(t, "u1", "drop")
	kept := f.reviewed(t, keep.ID, 10, 10)
	f.reviewed(t, drop.ID, 1, 30)
	require.NoError(t, f.db.SoftDeleteDeck(ctx, "u1", drop.ID, t0))

	require.NoError(t, f.svc.ForceSync(ctx, "u1", t0))
	acct, err := f.db.GetAccount(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, acct.ReviewedCount)
	want := fsrs.DefaultScheduler().Retrievability(kept.Schedule, t0)
	assert.InDelta(t, *want, *acct.Retrievability, 1e-12)
}

func TestNeedsSync(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	// 2025-06-15 03:00 UTC is still June 14th in New York.
	late := time.Date(2025, 6, 15, 3, 0, 0, 0, time.UTC)
	early := time.Date(2025, 6, 15, 5, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		last *time.Time
		now  time.Time
		loc  *time.Location
		want bool
	}{
		{name: "never synced", last: nil, now: t0, loc: time.UTC, want: true},
		{name: "same instant", last: &t0, now: t0, loc: time.UTC, want: false},
		{name: "same utc day", last: &late, now: early, loc: time.UTC, want: false},
		{name: "crosses local midnight", last: &late, now: early, loc: ny, want: true},
		{name: "previous day", last: &t0, now: t0.Add(24 * time.Hour), loc: time.UTC, want: true},
		{name: "clock went backwards", last: &t0, now: t0.Add(-48 * time.Hour), loc: time.UTC, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NeedsSync(tt.last, tt.now, tt.loc))
		})
	}
}

func TestLocation(t *testing.T) {
	svc := NewService(nil, nil, nil, "Asia/Tokyo")
	assert.Equal(t, "Asia/Tokyo", svc.Location(&domain.Account{}).String())
	assert.Equal(t, "Europe/Paris", svc.Location(&domain.Account{Timezone: "Europe/Paris"}).String())
	assert.Equal(t, "UTC", svc.Location(&domain.Account{Timezone: "Not/AZone"}).String())

	assert.Equal(t, "UTC", NewService(nil, nil, nil, "").Location(&domain.Account{}).String())
}

func TestApplyDelta(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.account(t, "u1", "")
	d := f.deck(t, "u1", "a")
	require.NoError(t, f.db.UpdateDeckHealth(ctx, d.ID, ptr(0.8), 2, t0))
	require.NoError(t, f.db.UpdateAccountHealth(ctx, "u1", ptr(0.6), 4))

	// A member moves from 0.7 to 1.0.
	err := f.db.InTx(ctx, func(q *storage.Queries) error {
		return f.svc.ApplyDelta(ctx, q, "u1", d.ID, ptr(0.7), ptr(1.0), t0)
	})
	require.NoError(t, err)

	deck, err := f.db.GetDeck(ctx, "u1", d.ID)
	require.NoError(t, err)
	assert.InDelta(t, 0.95, *deck.Retrievability, 1e-12)
	assert.Equal(t, 2, deck.ReviewedCount)

	acct, err := f.db.GetAccount(ctx, "u1")
	require.NoError(t, err)
	assert.InDelta(t, 0.675, *acct.Retrievability, 1e-12)
	assert.Equal(t, 4, acct.ReviewedCount)

	// A first review adds a member.
	err = f.db.InTx(ctx, func(q *storage.Queries) error {
		return f.svc.ApplyDelta(ctx, q, "u1", d.ID, nil, ptr(1.0), t0)
	})
	require.NoError(t, err)
	deck, err = f.db.GetDeck(ctx, "u1", d.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, deck.ReviewedCount)
	assert.InDelta(t, (0.95*2+1)/3, *deck.Retrievability, 1e-12)
}

func TestApplyDelta_ForeignDeck(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.account(t, "u1", "")
	f.account(t, "u2", "")
	d := f.deck(t, "u1", "a")

	err := f.db.InTx(ctx, func(q *storage.Queries) error {
		return f.svc.ApplyDelta(ctx, q, "u2", d.ID, nil, ptr(1), t0)
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
