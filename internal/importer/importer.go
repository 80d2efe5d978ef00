// Package importer turns markdown notes from local directories and git
// repositories into deck cards and keeps decks in step with their sources.
package importer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/conorfennell/grove/internal/domain"
	"github.com/conorfennell/grove/internal/gitsource"
	"github.com/conorfennell/grove/internal/health"
	"github.com/conorfennell/grove/internal/knol"
	"github.com/conorfennell/grove/internal/parser"
	"github.com/conorfennell/grove/internal/storage"
)

// Result summarizes one reconciliation of a deck against its sources.
type Result struct {
	DeckID   string
	Sources  int
	Parsed   int
	Inserted int
	Removed  int
	Errors   []error
}

// Service imports notes into decks.
type Service struct {
	db       *storage.DB
	health   *health.Service
	logger   *slog.Logger
	reposDir string
	// confined restricts local sources to sourcesRoot; with an empty root
	// only git sources are accepted.
	confined    bool
	sourcesRoot string
	now         func() time.Time
	// fetch brings a git source up to date on disk.
	fetch func(ctx context.Context, logger *slog.Logger, url, path string) error
}

// Option customizes a Service.
type Option func(*Service)

// WithSourcesRoot confines local directory sources to root. Relative sources
// resolve against it. An empty root disables local sources entirely.
func WithSourcesRoot(root string) Option {
	return func(s *Service) {
		s.confined = true
		s.sourcesRoot = root
	}
}

// NewService returns a Service that clones git sources below reposDir.
// Without options any readable directory may be imported.
func NewService(db *storage.DB, hs *health.Service, logger *slog.Logger, reposDir string, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		db:       db,
		health:   hs,
		logger:   logger,
		reposDir: reposDir,
		now:      time.Now,
		fetch:    gitsource.Sync,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Import registers source (a directory or git URL) with the user's deck
// named deckName, creating the deck if needed, then syncs the deck.
func (s *Service) Import(ctx context.Context, userID, deckName, source string) (*Result, error) {
	deckName = strings.TrimSpace(deckName)
	if deckName == "" {
		return nil, fmt.Errorf("%w: deck name required", domain.ErrValidation)
	}
	typ, path, err := s.classify(source)
	if err != nil {
		return nil, err
	}

	var deckID string
	err = s.db.InTx(ctx, func(q *storage.Queries) error {
		if _, err := q.GetAccount(ctx, userID); err != nil {
			return err
		}
		deck, err := q.FindDeckByName(ctx, userID, deckName)
		if err != nil {
			return err
		}
		if deck == nil {
			now := s.now().UTC()
			deck = &domain.Deck{UserID: userID, Name: deckName, CreatedAt: now, UpdatedAt: now}
			if err := q.CreateDeck(ctx, deck); err != nil {
				return err
			}
			s.logger.Info("Created deck", "user", userID, "deck", deck.ID, "name", deckName)
		}
		deckID = deck.ID

		existing, err := q.FindSource(ctx, deck.ID, path)
		if err != nil || existing != nil {
			return err
		}
		_, err = q.InsertSource(ctx, deck.ID, path, typ)
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.SyncDeck(ctx, userID, deckID)
}

// SyncAll syncs every live deck of the user that has sources.
func (s *Service) SyncAll(ctx context.Context, userID string) ([]*Result, error) {
	decks, err := s.db.ListDecks(ctx, userID)
	if err != nil {
		return nil, err
	}
	var results []*Result
	for _, d := range decks {
		res, err := s.SyncDeck(ctx, userID, d.ID)
		if err != nil {
			return results, err
		}
		if res.Sources > 0 {
			results = append(results, res)
		}
	}
	return results, nil
}

// SyncDeck reads every source of the deck and reconciles its cards: new
// notes become New cards, and cards whose note disappeared are soft-deleted.
// When a source cannot be read, nothing is removed.
func (s *Service) SyncDeck(ctx context.Context, userID, deckID string) (*Result, error) {
	deck, err := s.db.GetDeck(ctx, userID, deckID)
	if err != nil {
		return nil, err
	}
	sources, err := s.db.ListSources(ctx, deck.ID)
	if err != nil {
		return nil, err
	}

	res := &Result{DeckID: deck.ID, Sources: len(sources)}
	if len(sources) == 0 {
		return res, nil
	}

	var notes []parser.Note
	complete := true
	for _, src := range sources {
		s.logger.Info("Syncing source", "deck", deck.ID, "id", src.ID, "type", src.Type, "path", src.Path)
		found, errs, err := s.readSource(ctx, src)
		res.Errors = append(res.Errors, errs...)
		if err != nil {
			s.logger.Error("Failed to read source", "path", src.Path, "error", err)
			res.Errors = append(res.Errors, err)
			complete = false
			continue
		}
		notes = append(notes, found...)
	}
	res.Parsed = len(notes)

	now := s.now().UTC().Truncate(time.Millisecond)
	err = s.db.InTx(ctx, func(q *storage.Queries) error {
		inserted, removed, err := s.reconcile(ctx, q, deck, notes, complete, now)
		if err != nil {
			return err
		}
		res.Inserted, res.Removed = inserted, removed
		for _, src := range sources {
			if err := q.UpdateSourceLastScanned(ctx, src.ID, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Reconciliation complete",
		"deck", deck.ID,
		"parsed_cards", res.Parsed,
		"inserted", res.Inserted,
		"orphaned_deleted", res.Removed,
		"errors", len(res.Errors),
	)
	return res, nil
}

func (s *Service) reconcile(ctx context.Context, q *storage.Queries, deck *domain.Deck, notes []parser.Note, prune bool, now time.Time) (int, int, error) {
	cards, err := q.ListCardsByDeck(ctx, deck.ID)
	if err != nil {
		return 0, 0, err
	}
	byHash := make(map[string]bool, len(cards))
	for _, c := range cards {
		if c.ContentHash != "" {
			byHash[c.ContentHash] = true
		}
	}

	found := make(map[string]bool, len(notes))
	var inserted int
	for _, n := range notes {
		hash := knol.Hash(n)
		if found[hash] {
			continue
		}
		found[hash] = true
		if byHash[hash] {
			continue
		}
		card := domain.NewCard(deck.ID, n.Question, n.Back(), now)
		card.ContentHash = hash
		if err := q.InsertCard(ctx, &card); err != nil {
			return 0, 0, err
		}
		inserted++
	}

	if !prune {
		return inserted, 0, nil
	}

	var removed int
	for _, c := range cards {
		// Cards created by hand have no hash and are never pruned.
		if c.ContentHash == "" || found[c.ContentHash] {
			continue
		}
		s.logger.Info("Orphaned card, deleting", "card", c.ID, "hash", c.ContentHash)
		if err := q.SoftDeleteCard(ctx, c.ID, now); err != nil {
			return 0, 0, err
		}
		if err := s.health.ApplyDelta(ctx, q, deck.UserID, deck.ID, c.Retrievability, nil, now); err != nil {
			return 0, 0, err
		}
		removed++
	}
	return inserted, removed, nil
}

// readSource returns the notes of one source. Per-file parse errors are
// collected; an error is returned only when the source as a whole failed.
func (s *Service) readSource(ctx context.Context, src storage.Source) ([]parser.Note, []error, error) {
	dir := src.Path
	if src.Type == storage.SourceGit {
		local, err := gitsource.LocalPath(s.reposDir, src.Path)
		if err != nil {
			return nil, nil, err
		}
		if err := s.fetch(ctx, s.logger, src.Path, local); err != nil {
			return nil, nil, err
		}
		dir = local
	}
	return walkNotes(dir)
}

func walkNotes(root string) ([]parser.Note, []error, error) {
	var (
		notes       []parser.Note
		parseErrors []error
	)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || !strings.HasSuffix(strings.ToLower(d.Name()), ".md") {
			return nil
		}
		fileNotes, err := parser.ParseFile(path)
		if err != nil {
			parseErrors = append(parseErrors, fmt.Errorf("parsing %s: %w", path, err))
			return nil
		}
		notes = append(notes, fileNotes...)
		return nil
	})
	if err != nil {
		return nil, parseErrors, fmt.Errorf("error walking directory %s: %w", root, err)
	}
	return notes, parseErrors, nil
}

// classify resolves source into a stored source type and path.
func (s *Service) classify(source string) (string, string, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return "", "", fmt.Errorf("%w: source required", domain.ErrValidation)
	}
	if gitsource.IsRemote(source) {
		if _, err := gitsource.LocalPath(s.reposDir, source); err != nil {
			return "", "", fmt.Errorf("%w: %w", domain.ErrValidation, err)
		}
		return storage.SourceGit, source, nil
	}

	if s.confined {
		path, err := s.confine(source)
		if err != nil {
			return "", "", err
		}
		return storage.SourceLocal, path, nil
	}

	abs, err := filepath.Abs(source)
	if err != nil {
		return "", "", fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}
	if err := checkDir(abs, abs); err != nil {
		return "", "", err
	}
	return storage.SourceLocal, abs, nil
}

// errOutsideRoot is returned for every local source that is not below the
// sources root, whether or not the path exists.
var errOutsideRoot = fmt.Errorf("%w: local source must be a directory below the sources root", domain.ErrValidation)

// confine resolves source below the sources root, following symlinks, and
// rejects anything that ends up outside it.
func (s *Service) confine(source string) (string, error) {
	if s.sourcesRoot == "" {
		return "", fmt.Errorf("%w: local sources are disabled, use a git URL", domain.ErrValidation)
	}
	root, err := filepath.Abs(s.sourcesRoot)
	if err != nil {
		return "", err
	}
	realRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return "", fmt.Errorf("resolve sources root: %w", err)
	}

	path := source
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}
	path = filepath.Clean(path)
	if !within(root, path) && !within(realRoot, path) {
		return "", errOutsideRoot
	}
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: source %s does not exist", domain.ErrValidation, source)
		}
		return "", errOutsideRoot
	}
	if !within(realRoot, resolved) {
		return "", errOutsideRoot
	}
	if err := checkDir(resolved, source); err != nil {
		return "", err
	}
	return resolved, nil
}

// checkDir reports whether path is an existing directory. name is the form
// of the path used in error messages.
func checkDir(path, name string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: source %s does not exist", domain.ErrValidation, name)
		}
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: source %s is not a directory", domain.ErrValidation, name)
	}
	return nil
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
