package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"journal/internal/reconcile"
	"journal/internal/store"
)

// Fetcher supplies raw closed-pnl records from the upstream exchange.
type Fetcher interface {
	ClosedPnL(ctx context.Context, start, end time.Time) ([]reconcile.RawRecord, error)
}

// Server holds the HTTP server dependencies.
type Server struct {
	repo    *store.Repository
	nc      *nats.Conn
	fetcher Fetcher

	syncAccountID string
	syncHoursBack int
}

// NewServer creates a new API server. fetcher may be nil, which disables the
// sync endpoint; nc may be nil when the ingest consumer is not running.
func NewServer(repo *store.Repository, nc *nats.Conn, fetcher Fetcher, syncAccountID string, syncHoursBack int) *Server {
	if syncHoursBack <= 0 {
		syncHoursBack = 24
	}
	return &Server{
		repo:          repo,
		nc:            nc,
		fetcher:       fetcher,
		syncAccountID: syncAccountID,
		syncHoursBack: syncHoursBack,
	}
}

// Router returns the configured chi router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	// Health check
	r.Get("/health", s.handleHealth)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Import sync (POST)
		r.Post("/sync", s.handleSync)

		// Accounts and statistics
		r.Get("/accounts", s.handleListAccounts)
		r.Get("/accounts/{accountId}/stats", s.handleStats)
		r.Get("/accounts/{accountId}/trades", s.handleListTrades)
		r.Post("/accounts/{accountId}/trades", s.handleCreateTrade)
		r.Get("/accounts/{accountId}/calendar", s.handleCalendar)
		r.Get("/accounts/{accountId}/calendar/{date}", s.handleCalendarDay)
		r.Get("/accounts/{accountId}/export", s.handleExportCSV)

		// Individual trades
		r.Get("/trades/{tradeId}", s.handleGetTrade)
		r.Patch("/trades/{tradeId}", s.handleUpdateTrade)
		r.Delete("/trades/{tradeId}", s.handleDeleteTrade)

		// Key levels
		r.Get("/key-levels", s.handleListKeyLevels)
		r.Post("/key-levels", s.handleAddKeyLevel)
		r.Get("/key-levels/stats", s.handleLevelStats)
		r.Delete("/key-levels/{levelId}", s.handleDeleteKeyLevel)
	})

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
