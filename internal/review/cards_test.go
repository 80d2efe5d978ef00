package review

import (
	"context"
	"testing"
	"time"

	"github.com/conorfennell/grove/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPreview(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()
	c := f.card(t, f.deck.ID, t0)

	preview, err := f.svc.Preview(ctx, f.user, c.ID, t0)
	require.NoError(t, err)
	require.Len(t, preview, 4)
	assert.Equal(t, domain.Learning, preview[domain.Again].State)
	assert.Equal(t, domain.Review, preview[domain.Easy].State)

	// Previewing does not review.
	stored, err := f.db.GetCardForUser(ctx, f.user, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.Reps)

	_, err = f.svc.Preview(ctx, "someone-else", c.ID, t0)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRetrievabilityAndHistory(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()
	c := f.card(t, f.deck.ID, t0)

	r, err := f.svc.Retrievability(ctx, f.user, c.ID, t0)
	require.NoError(t, err)
	assert.Nil(t, r)

	out := f.submit(t, c.ID, domain.Easy, t0)
	r, err = f.svc.Retrievability(ctx, f.user, c.ID, t0.Add(time.Duration(out.Card.ScheduledDays)*24*time.Hour))
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.Less(t, *r, 1.0)
	assert.Greater(t, *r, 0.0)

	logs, err := f.svc.History(ctx, f.user, c.ID)
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}

func TestRemoveCard(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()
	a := f.card(t, f.deck.ID, t0)
	b := f.card(t, f.deck.ID, t0)
	f.submit(t, a.ID, domain.Good, t0)
	f.submit(t, b.ID, domain.Easy, t0)

	require.NoError(t, f.svc.RemoveCard(ctx, f.user, a.ID, t0))

	deck, err := f.db.GetDeck(ctx, f.user, f.deck.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, deck.ReviewedCount)
	acct, err := f.db.GetAccount(ctx, f.user)
	require.NoError(t, err)
	assert.Equal(t, 1, acct.ReviewedCount)

	_, err = f.svc.SubmitReview(ctx, SubmitRequest{UserID: f.user, CardID: a.ID, Rating: domain.Good, Now: t0})
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, f.svc.RemoveCard(ctx, f.user, a.ID, t0), domain.ErrNotFound)
}

func TestRemoveDeck(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()
	other := &domain.Deck{UserID: f.user, Name: "rust", CreatedAt: t0}
	require.NoError(t, f.db.CreateDeck(ctx, other))
	a := f.card(t, f.deck.ID, t0)
	b := f.card(t, other.ID, t0)
	f.submit(t, a.ID, domain.Easy, t0)
	f.submit(t, b.ID, domain.Easy, t0)

	require.NoError(t, f.svc.RemoveDeck(ctx, f.user, other.ID, t0))

	acct, err := f.db.GetAccount(ctx, f.user)
	require.NoError(t, err)
	assert.Equal(t, 1, acct.ReviewedCount)
	_, err = f.svc.Stats(ctx, f.user, other.ID, t0)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStats(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()
	a := f.card(t, f.deck.ID, t0)
	f.card(t, f.deck.ID, t0)
	f.card(t, f.deck.ID, t0.Add(72*time.Hour))
	f.submit(t, a.ID, domain.Easy, t0)

	stats, err := f.svc.Stats(ctx, f.user, f.deck.ID, t0)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Cards)
	assert.Equal(t, 1, stats.DueToday)
	assert.Equal(t, 2, stats.States[domain.New])
	assert.Equal(t, 1, stats.States[domain.Review])
	assert.Equal(t, 2, stats.Maturity[domain.Seed])
	assert.Equal(t, 1, stats.Deck.ReviewedCount)
}

func TestDueCards(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()
	late := f.card(t, f.deck.ID, t0.Add(2*time.Hour))
	early := f.card(t, f.deck.ID, t0.Add(-time.Hour))
	f.card(t, f.deck.ID, t0.Add(48*time.Hour))

	due, err := f.svc.DueCards(ctx, f.user, f.deck.ID, t0, 10)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, early.ID, due[0].ID)
	assert.Equal(t, late.ID, due[1].ID)

	due, err = f.svc.DueCards(ctx, f.user, f.deck.ID, t0, 1)
	require.NoError(t, err)
	assert.Len(t, due, 1)

	_, err = f.svc.DueCards(ctx, "someone-else", f.deck.ID, t0, 10)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
