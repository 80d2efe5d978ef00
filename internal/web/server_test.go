package web

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/conorfennell/grove/internal/domain"
	"github.com/conorfennell/grove/internal/fsrs"
	"github.com/conorfennell/grove/internal/health"
	"github.com/conorfennell/grove/internal/importer"
	"github.com/conorfennell/grove/internal/review"
	"github.com/conorfennell/grove/internal/storage"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

type fixture struct {
	srv  *Server
	db   *storage.DB
	user string
	deck *domain.Deck
	card *domain.Card
	// root is the only directory local imports may come from.
	root string
}

func testServer(t *testing.T) *fixture {
	t.Helper()
	db, err := storage.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sched := fsrs.DefaultScheduler()
	hs := health.NewService(db, sched, logger, "")
	root := t.TempDir()
	srv := NewServer(db, Services{
		Reviews: review.NewService(db, sched, hs, logger),
		Health:  hs,
		Imports: importer.NewService(db, hs, logger, t.TempDir(), importer.WithSourcesRoot(root)),
	}, logger, "test-version")
	srv.now = func() time.Time { return t0 }

	ctx := context.Background()
	acct := &domain.Account{Name: "ada", CreatedAt: t0}
	require.NoError(t, db.CreateAccount(ctx, acct))
	deck := &domain.Deck{UserID: acct.ID, Name: "go", CreatedAt: t0}
	require.NoError(t, db.CreateDeck(ctx, deck))
	card := domain.NewCard(deck.ID, "What is a goroutine?", "A lightweight thread", t0)
	require.NoError(t, db.InsertCard(ctx, &card))

	return &fixture{srv: srv, db: db, user: acct.ID, deck: deck, card: &card, root: root}
}

func (f *fixture) do(t *testing.T, method, path, user string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	if user != "" {
		req.Header.Set(UserHeader, user)
	}
	w := httptest.NewRecorder()
	f.srv.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestHealthEndpoint(t *testing.T) {
	f := testServer(t)
	w := f.do(t, "GET", "/api/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody[map[string]any](t, w)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "test-version", body["version"])
	assert.Equal(t, true, body["db"])
}

func TestRequiresUser(t *testing.T) {
	f := testServer(t)
	w := f.do(t, "GET", "/api/account", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAccount_LazySync(t *testing.T) {
	f := testServer(t)
	w := f.do(t, "GET", "/api/account", f.user, nil)
	require.Equal(t, http.StatusOK, w.Code)

	acct := decodeBody[domain.Account](t, w)
	assert.Equal(t, f.user, acct.ID)
	require.NotNil(t, acct.LastHealthSync)
	assert.True(t, acct.LastHealthSync.Equal(t0))
	assert.Nil(t, acct.Retrievability)
}

func TestAccount_Unknown(t *testing.T) {
	f := testServer(t)
	w := f.do(t, "GET", "/api/account", uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPostReview(t *testing.T) {
	f := testServer(t)
	path := "/api/cards/" + f.card.ID + "/reviews"

	w := f.do(t, "POST", path, f.user, map[string]any{"rating": "Good", "answer": "a thread"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	out := decodeBody[review.Outcome](t, w)
	assert.Equal(t, domain.Learning, out.Card.State)
	assert.Equal(t, 1, out.Card.Reps)
	assert.Equal(t, domain.Good, out.Log.Rating)
	assert.Equal(t, 1, out.DueRemaining)
	assert.True(t, out.HasMoreDue)

	// Ordinals are accepted too.
	w = f.do(t, "POST", path, f.user, map[string]any{"rating": 4})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	out = decodeBody[review.Outcome](t, w)
	assert.Equal(t, domain.Review, out.Card.State)

	w = f.do(t, "GET", path, f.user, nil)
	require.Equal(t, http.StatusOK, w.Code)
	logs := decodeBody[[]domain.ReviewLog](t, w)
	assert.Len(t, logs, 2)
}

func TestPostReview_Errors(t *testing.T) {
	f := testServer(t)
	stranger := &domain.Account{Name: "mallory", CreatedAt: t0}
	require.NoError(t, f.db.CreateAccount(context.Background(), stranger))
	path := "/api/cards/" + f.card.ID + "/reviews"

	tests := []struct {
		name string
		path string
		user string
		body any
		want int
	}{
		{name: "unknown rating name", path: path, user: f.user, body: map[string]any{"rating": "Meh"}, want: http.StatusBadRequest},
		{name: "rating out of range", path: path, user: f.user, body: map[string]any{"rating": 7}, want: http.StatusBadRequest},
		{name: "missing rating", path: path, user: f.user, body: map[string]any{"answer": "x"}, want: http.StatusBadRequest},
		{name: "unknown field", path: path, user: f.user, body: map[string]any{"rating": 3, "grade": 3}, want: http.StatusBadRequest},
		{name: "malformed card id", path: "/api/cards/nope/reviews", user: f.user, body: map[string]any{"rating": 3}, want: http.StatusBadRequest},
		{name: "unknown card", path: "/api/cards/" + uuid.NewString() + "/reviews", user: f.user, body: map[string]any{"rating": 3}, want: http.StatusNotFound},
		{name: "foreign card", path: path, user: stranger.ID, body: map[string]any{"rating": 3}, want: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(t, "POST", tt.path, tt.user, tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
			assert.NotEmpty(t, decodeBody[errorBody](t, w).Error)
		})
	}
}

func TestPreviewAndRetrievability(t *testing.T) {
	f := testServer(t)

	w := f.do(t, "GET", "/api/cards/"+f.card.ID+"/preview", f.user, nil)
	require.Equal(t, http.StatusOK, w.Code)
	preview := decodeBody[map[string]domain.Schedule](t, w)
	assert.Len(t, preview, 4)
	assert.Equal(t, domain.Review, preview["Easy"].State)

	w = f.do(t, "GET", "/api/cards/"+f.card.ID+"/retrievability", f.user, nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody[map[string]any](t, w)
	assert.Nil(t, body["retrievability"])

	f.do(t, "POST", "/api/cards/"+f.card.ID+"/reviews", f.user, map[string]any{"rating": "Easy"})
	w = f.do(t, "GET", "/api/cards/"+f.card.ID+"/retrievability?at=2025-06-20T10:00:00Z", f.user, nil)
	require.Equal(t, http.StatusOK, w.Code)
	body = decodeBody[map[string]any](t, w)
	r, ok := body["retrievability"].(float64)
	require.True(t, ok)
	assert.Greater(t, r, 0.0)
	assert.Less(t, r, 1.0)

	w = f.do(t, "GET", "/api/cards/"+f.card.ID+"/retrievability?at=yesterday", f.user, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeckEndpoints(t *testing.T) {
	f := testServer(t)

	w := f.do(t, "GET", "/api/decks", f.user, nil)
	require.Equal(t, http.StatusOK, w.Code)
	decks := decodeBody[[]domain.Deck](t, w)
	require.Len(t, decks, 1)

	w = f.do(t, "GET", "/api/decks/"+f.deck.ID+"/stats", f.user, nil)
	require.Equal(t, http.StatusOK, w.Code)
	stats := decodeBody[map[string]any](t, w)
	assert.EqualValues(t, 1, stats["cards"])
	assert.EqualValues(t, 1, stats["due_today"])
	maturity := stats["maturity"].(map[string]any)
	assert.EqualValues(t, 1, maturity["Seed"])

	w = f.do(t, "GET", "/api/decks/"+f.deck.ID+"/due?limit=5", f.user, nil)
	require.Equal(t, http.StatusOK, w.Code)
	due := decodeBody[[]domain.Card](t, w)
	require.Len(t, due, 1)
	assert.Equal(t, f.card.ID, due[0].ID)

	w = f.do(t, "GET", "/api/decks/"+f.deck.ID+"/due?limit=0", f.user, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeleteCardAndDeck(t *testing.T) {
	f := testServer(t)

	w := f.do(t, "DELETE", "/api/cards/"+f.card.ID, f.user, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = f.do(t, "GET", "/api/cards/"+f.card.ID+"/preview", f.user, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, "DELETE", "/api/decks/"+f.deck.ID, f.user, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = f.do(t, "GET", "/api/decks/"+f.deck.ID+"/stats", f.user, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestImportAndSync(t *testing.T) {
	f := testServer(t)
	dir := filepath.Join(f.root, "notes")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.md"), []byte("Q: one\nA: 1\n---\nQ: two\nA: 2\n"), 0o644))

	w := f.do(t, "POST", "/api/decks/import", f.user, map[string]string{"deck": "Notes", "source": dir})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decodeBody[importResult](t, w)
	assert.Equal(t, 2, res.Inserted)
	assert.Empty(t, res.Errors)

	w = f.do(t, "POST", "/api/decks/"+res.DeckID+"/sync", f.user, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, decodeBody[importResult](t, w).Inserted)

	// Relative sources resolve against the root.
	w = f.do(t, "POST", "/api/decks/import", f.user, map[string]string{"deck": "Notes", "source": "notes"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, res.DeckID, decodeBody[importResult](t, w).DeckID)

	w = f.do(t, "POST", "/api/decks/import", f.user, map[string]string{"deck": "Notes", "source": filepath.Join(f.root, "absent")})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestImport_OutsideSourcesRoot(t *testing.T) {
	f := testServer(t)
	outside := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(outside, "secret.md"), []byte("Q: private\nA: data\n"), 0o644))
	require.NoError(t, os.Symlink(outside, filepath.Join(f.root, "escape")))

	sources := []string{
		outside,
		"/",
		filepath.Join(outside, "absent"),
		"/no-such-dir-anywhere",
		"../" + filepath.Base(outside),
		filepath.Join(f.root, "..", filepath.Base(outside)),
		"escape",
	}
	var bodies []string
	for _, src := range sources {
		w := f.do(t, "POST", "/api/decks/import", f.user, map[string]string{"deck": "Leak", "source": src})
		assert.Equal(t, http.StatusBadRequest, w.Code, src)
		assert.NotContains(t, w.Body.String(), outside, src)
		bodies = append(bodies, w.Body.String())
	}
	for i := range bodies {
		assert.Equal(t, bodies[0], bodies[i], "%s reply differs", sources[i])
	}

	w := f.do(t, "GET", "/api/decks", f.user, nil)
	require.Equal(t, http.StatusOK, w.Code)
	for _, d := range decodeBody[[]domain.Deck](t, w) {
		assert.NotEqual(t, "Leak", d.Name)
	}
}

func TestImport_LocalSourcesDisabled(t *testing.T) {
	f := testServer(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.srv.svc.Imports = importer.NewService(f.db, f.srv.svc.Health, logger, t.TempDir(), importer.WithSourcesRoot(""))

	w := f.do(t, "POST", "/api/decks/import", f.user, map[string]string{"deck": "Notes", "source": f.root})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "git URL")
}

func TestForceSync(t *testing.T) {
	f := testServer(t)
	f.do(t, "POST", "/api/cards/"+f.card.ID+"/reviews", f.user, map[string]any{"rating": "Easy"})

	w := f.do(t, "POST", "/api/account/health/sync", f.user, nil)
	require.Equal(t, http.StatusOK, w.Code)
	acct := decodeBody[domain.Account](t, w)
	require.NotNil(t, acct.Retrievability)
	assert.InDelta(t, 1.0, *acct.Retrievability, 1e-9)
	assert.Equal(t, 1, acct.ReviewedCount)
}
