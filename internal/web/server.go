// Package web exposes the review and health services as a JSON HTTP API.
package web

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/conorfennell/grove/internal/health"
	"github.com/conorfennell/grove/internal/importer"
	"github.com/conorfennell/grove/internal/review"
	"github.com/conorfennell/grove/internal/storage"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Services are the application services the server dispatches to.
type Services struct {
	Reviews *review.Service
	Health  *health.Service
	Imports *importer.Service
}

// Server holds the dependencies for the HTTP server.
type Server struct {
	db      *storage.DB
	svc     Services
	logger  *slog.Logger
	router  chi.Router
	version string
	started time.Time
	now     func() time.Time
}

// NewServer creates and configures a new server.
func NewServer(db *storage.DB, svc Services, logger *slog.Logger, version string) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		db:      db,
		svc:     svc,
		logger:  logger,
		version: version,
		started: time.Now(),
		now:     time.Now,
	}
	s.routes()
	return s
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// routes sets up the routing for the server.
func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth())

		r.Group(func(r chi.Router) {
			r.Use(s.requireUser)
			r.Use(s.lazyHealthSync)

			r.Get("/account", s.handleGetAccount())
			r.Post("/account/health/sync", s.handleForceSync())

			r.Get("/decks", s.handleListDecks())
			r.Post("/decks/import", s.handleImport())
			r.Get("/decks/{deckID}/stats", s.handleDeckStats())
			r.Get("/decks/{deckID}/due", s.handleDueCards())
			r.Post("/decks/{deckID}/sync", s.handleSyncDeck())
			r.Delete("/decks/{deckID}", s.handleDeleteDeck())

			r.Post("/cards/{cardID}/reviews", s.handlePostReview())
			r.Get("/cards/{cardID}/reviews", s.handleListReviews())
			r.Get("/cards/{cardID}/preview", s.handlePreview())
			r.Get("/cards/{cardID}/retrievability", s.handleRetrievability())
			r.Delete("/cards/{cardID}", s.handleDeleteCard())
		})
	})

	s.router = r
}
