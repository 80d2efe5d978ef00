package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/conorfennell/grove/internal/domain"
	"github.com/conorfennell/grove/internal/review"
	"github.com/go-chi/chi/v5"
)

const maxBody = 1 << 20

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors onto status codes. Internal details of
// unexpected failures are logged, not returned.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var status int
	switch {
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrInvalidRating):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrConflict):
		status = http.StatusConflict
	default:
		s.logger.Error("Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal server error"})
		return
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: decode body: %w", domain.ErrValidation, err)
	}
	return nil
}

// asOf reads the optional RFC 3339 "at" query parameter.
func (s *Server) asOf(r *http.Request) (time.Time, error) {
	raw := r.URL.Query().Get("at")
	if raw == "" {
		return s.now(), nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: at: %w", domain.ErrValidation, err)
	}
	return t, nil
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dbOK := s.db.Ping(r.Context()) == nil
		writeJSON(w, http.StatusOK, map[string]any{
			"status":  "ok",
			"version": s.version,
			"uptime":  time.Since(s.started).Seconds(),
			"db":      dbOK,
		})
	}
}

func (s *Server) handleGetAccount() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		acct, err := s.db.GetAccount(r.Context(), userID(r))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, acct)
	}
}

// handleForceSync rebuilds the account health now, regardless of staleness.
func (s *Server) handleForceSync() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.svc.Health.ForceSync(r.Context(), userID(r), s.now()); err != nil {
			s.writeError(w, r, err)
			return
		}
		s.handleGetAccount()(w, r)
	}
}

func (s *Server) handleListDecks() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		decks, err := s.db.ListDecks(r.Context(), userID(r))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if decks == nil {
			decks = []domain.Deck{}
		}
		writeJSON(w, http.StatusOK, decks)
	}
}

func (s *Server) handleImport() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Deck   string `json:"deck"`
			Source string `json:"source"`
		}
		if err := decode(w, r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
		res, err := s.svc.Imports.Import(r.Context(), userID(r), req.Deck, req.Source)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, importBody(res))
	}
}

func (s *Server) handleSyncDeck() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := s.svc.Imports.SyncDeck(r.Context(), userID(r), chi.URLParam(r, "deckID"))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, importBody(res))
	}
}

func (s *Server) handleDeckStats() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := s.svc.Reviews.Stats(r.Context(), userID(r), chi.URLParam(r, "deckID"), s.now())
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}

func (s *Server) handleDueCards() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 20
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 || n > 500 {
				writeJSON(w, http.StatusBadRequest, errorBody{Error: "limit must be between 1 and 500"})
				return
			}
			limit = n
		}
		cards, err := s.svc.Reviews.DueCards(r.Context(), userID(r), chi.URLParam(r, "deckID"), s.now(), limit)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if cards == nil {
			cards = []domain.Card{}
		}
		writeJSON(w, http.StatusOK, cards)
	}
}

func (s *Server) handleDeleteDeck() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.svc.Reviews.RemoveDeck(r.Context(), userID(r), chi.URLParam(r, "deckID"), s.now()); err != nil {
			s.writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// handlePostReview processes a review and reports what is left for today.
func (s *Server) handlePostReview() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Answer string        `json:"answer"`
			Rating domain.Rating `json:"rating"`
		}
		if err := decode(w, r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
		out, err := s.svc.Reviews.SubmitReview(r.Context(), review.SubmitRequest{
			UserID: userID(r),
			CardID: chi.URLParam(r, "cardID"),
			Answer: req.Answer,
			Rating: req.Rating,
			Now:    s.now(),
		})
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, out)
	}
}

func (s *Server) handleListReviews() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logs, err := s.svc.Reviews.History(r.Context(), userID(r), chi.URLParam(r, "cardID"))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if logs == nil {
			logs = []domain.ReviewLog{}
		}
		writeJSON(w, http.StatusOK, logs)
	}
}

func (s *Server) handlePreview() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		at, err := s.asOf(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		preview, err := s.svc.Reviews.Preview(r.Context(), userID(r), chi.URLParam(r, "cardID"), at)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, preview)
	}
}

func (s *Server) handleRetrievability() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		at, err := s.asOf(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		rv, err := s.svc.Reviews.Retrievability(r.Context(), userID(r), chi.URLParam(r, "cardID"), at)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"card_id":        chi.URLParam(r, "cardID"),
			"as_of":          at,
			"retrievability": rv,
		})
	}
}

func (s *Server) handleDeleteCard() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.svc.Reviews.RemoveCard(r.Context(), userID(r), chi.URLParam(r, "cardID"), s.now()); err != nil {
			s.writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
