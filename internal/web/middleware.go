package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/conorfennell/grove/internal/domain"
	"github.com/go-chi/chi/v5/middleware"
)

// UserHeader carries the user ID resolved by the upstream auth proxy.
const UserHeader = "X-User-ID"

type ctxKey int

const userKey ctxKey = iota

func userID(r *http.Request) string {
	id, _ := r.Context().Value(userKey).(string)
	return id
}

// requireUser rejects requests that arrive without an authenticated user.
func (s *Server) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(UserHeader)
		if id == "" {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "missing " + UserHeader})
			return
		}
		ctx := context.WithValue(r.Context(), userKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// lazyHealthSync refreshes the account's health once per local day. It is
// best-effort: failures are logged and the request carries on.
func (s *Server) lazyHealthSync(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := userID(r)
		synced, err := s.svc.Health.SyncAccountHealth(r.Context(), id, s.now())
		switch {
		case errors.Is(err, domain.ErrNotFound):
			// Unknown account; the handler reports it.
		case err != nil:
			s.logger.Warn("Lazy health sync failed", "user", id, "error", err)
		case synced:
			s.logger.Debug("Lazy health sync ran", "user", id)
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			s.logger.Info("Request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		}()
		next.ServeHTTP(ww, r)
	})
}
