// Package api serves read-only JSON views of the rating history.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/fide-ratings/internal/model"
	"github.com/sells-group/fide-ratings/internal/store"
)

// MaxLimit caps the limit query parameter.
const MaxLimit = 1000

// Reader is the subset of store.Store the API reads from.
type Reader interface {
	GetPlayer(ctx context.Context, fideID string) (*model.Player, error)
	PlayerRankings(ctx context.Context, fideID string) ([]model.Ranking, error)
	RankingsOn(ctx context.Context, date time.Time, limit int) ([]model.Ranking, error)
	ListSyncs(ctx context.Context, limit int) ([]model.SyncEntry, error)
}

// Options configures the router.
type Options struct {
	// Metrics, if set, is mounted at /metrics.
	Metrics http.Handler
	// AllowedOrigins for CORS. Empty allows any origin.
	AllowedOrigins []string
}

type server struct {
	store Reader
	log   *zap.Logger
}

// NewRouter builds the HTTP handler for the read API.
func NewRouter(st Reader, opts Options) http.Handler {
	s := &server{
		store: st,
		log:   zap.L().With(zap.String("component", "api")),
	}

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	r.Route("/players/{fideID}", func(r chi.Router) {
		r.Get("/", s.getPlayer)
		r.Get("/rankings", s.playerRankings)
	})
	r.Get("/rankings", s.rankingsOn)
	r.Get("/syncs", s.listSyncs)

	return r
}

func (s *server) getPlayer(w http.ResponseWriter, r *http.Request) {
	p, err := s.store.GetPlayer(r.Context(), chi.URLParam(r, "fideID"))
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *server) playerRankings(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "fideID")
	if _, err := s.store.GetPlayer(r.Context(), id); err != nil {
		s.storeError(w, r, err)
		return
	}
	rankings, err := s.store.PlayerRankings(r.Context(), id)
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(rankings))
}

func (s *server) rankingsOn(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("date")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "date is required (YYYY-MM-DD)")
		return
	}
	date, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date "+strconv.Quote(raw)+" (want YYYY-MM-DD)")
		return
	}
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}

	rankings, err := s.store.RankingsOn(r.Context(), date, limit)
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(rankings))
}

func (s *server) listSyncs(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	entries, err := s.store.ListSyncs(r.Context(), limit)
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(entries))
}

func (s *server) storeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	s.log.Error("request failed",
		zap.String("path", r.URL.Path),
		zap.String("request_id", middleware.GetReqID(r.Context())),
		zap.Error(err),
	)
	writeError(w, http.StatusInternalServerError, "internal error")
}

// parseLimit reads ?limit=N. Zero or absent means the store default.
func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
		return 0, false
	}
	return min(n, MaxLimit), true
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
