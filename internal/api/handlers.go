package api

import (
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"

	"journal/internal/domain"
	"journal/internal/metrics"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status": "ok",
		"time":   time.Now().UTC(),
	}

	if err := s.repo.Ping(r.Context()); err != nil {
		health["status"] = "degraded"
		health["database"] = "unreachable"
		writeJSON(w, http.StatusServiceUnavailable, health)
		return
	}
	health["database"] = "ok"

	if s.nc != nil {
		if s.nc.IsConnected() {
			health["nats"] = "ok"
		} else {
			health["nats"] = "disconnected"
		}
	}

	writeJSON(w, http.StatusOK, health)
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.repo.ListAccounts(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list accounts")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"accounts": accounts})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountId")

	exists, err := s.repo.AccountExists(r.Context(), accountID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to check account")
		return
	}
	if !exists {
		writeError(w, http.StatusNotFound, "account not found")
		return
	}

	start, end, err := parseStatsRange(r.URL.Query(), time.Now())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	trades, err := s.repo.ClosedTrades(r.Context(), accountID, start, end)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load trades")
		return
	}

	// Most recent closed trades, newest first, for the dashboard strip.
	recent := make([]domain.Trade, 0, 5)
	for i := len(trades) - 1; i >= 0 && len(recent) < 5; i-- {
		recent = append(recent, trades[i])
	}

	rangeName := r.URL.Query().Get("range")
	if rangeName == "" {
		rangeName = "all"
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"account_id":    accountID,
		"range":         rangeName,
		"stats":         metrics.Compute(trades),
		"recent_trades": recent,
	})
}

// parseStatsRange resolves the range query parameters into an entry-time
// window. Named ranges are calendar-aligned in the server's local time; a
// custom range takes explicit start/end bounds, either RFC3339 or YYYY-MM-DD.
func parseStatsRange(q url.Values, now time.Time) (start, end *time.Time, err error) {
	switch q.Get("range") {
	case "", "all":
		// Explicit bounds work without a named range.
		from, err := parseTimeParam(q.Get("start"))
		if err != nil {
			return nil, nil, fmt.Errorf("invalid start: %v", err)
		}
		to, err := parseTimeParam(q.Get("end"))
		if err != nil {
			return nil, nil, fmt.Errorf("invalid end: %v", err)
		}
		return from, to, nil
	case "today":
		from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		return &from, nil, nil
	case "week":
		// Week starts Monday.
		weekday := int(now.Weekday())
		if weekday == 0 {
			weekday = 7
		}
		from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).
			AddDate(0, 0, -(weekday - 1))
		return &from, nil, nil
	case "month":
		from := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
		return &from, nil, nil
	case "custom":
		from, err := parseTimeParam(q.Get("start"))
		if err != nil {
			return nil, nil, fmt.Errorf("invalid start: %v", err)
		}
		to, err := parseTimeParam(q.Get("end"))
		if err != nil {
			return nil, nil, fmt.Errorf("invalid end: %v", err)
		}
		if from == nil && to == nil {
			return nil, nil, fmt.Errorf("custom range requires start or end")
		}
		return from, to, nil
	}
	return nil, nil, fmt.Errorf("unknown range %q", q.Get("range"))
}

func parseTimeParam(v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return &t, nil
	}
	if t, err := time.Parse("2006-01-02", v); err == nil {
		return &t, nil
	}
	return nil, fmt.Errorf("expected RFC3339 or YYYY-MM-DD, got %q", v)
}

func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountId")

	summaries, err := s.repo.DailySummaries(r.Context(), accountID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load calendar")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"account_id": accountID,
		"days":       summaries,
	})
}

func (s *Server) handleCalendarDay(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountId")
	date := chi.URLParam(r, "date")

	if _, err := time.Parse("2006-01-02", date); err != nil {
		writeError(w, http.StatusBadRequest, "invalid date, expected YYYY-MM-DD")
		return
	}

	summary, err := s.repo.DailySummary(r.Context(), accountID, date)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load day summary")
		return
	}
	trades, err := s.repo.TradesOnDay(r.Context(), accountID, date)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load day trades")
		return
	}
	if trades == nil {
		trades = []domain.Trade{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"account_id": accountID,
		"summary":    summary,
		"trades":     trades,
	})
}
