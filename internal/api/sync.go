package api

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"journal/internal/domain"
	"journal/internal/reconcile"
)

type syncRequest struct {
	HoursBack int `json:"hours_back"`
}

// handleSync pulls closed-pnl records from the exchange and runs them
// through the import reconciler. Re-running a sync over the same window is
// safe; already-imported records are counted as skipped.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	if s.fetcher == nil {
		writeError(w, http.StatusServiceUnavailable, "sync is not configured")
		return
	}

	req := syncRequest{HoursBack: s.syncHoursBack}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.HoursBack <= 0 {
		req.HoursBack = s.syncHoursBack
	}

	end := time.Now().UTC()
	start := end.Add(-time.Duration(req.HoursBack) * time.Hour)

	records, err := s.fetcher.ClosedPnL(r.Context(), start, end)
	if err != nil {
		log.Error().Err(err).Msg("closed pnl fetch failed")
		writeError(w, http.StatusBadGateway, "exchange fetch failed: "+err.Error())
		return
	}

	if _, err := s.repo.GetOrCreateAccount(r.Context(), s.syncAccountID, domain.InferAccountType(s.syncAccountID)); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to resolve account")
		return
	}

	reconciler := reconcile.New(s.repo, s.syncAccountID, "bybit")
	summary, err := reconciler.Run(r.Context(), records)
	if err != nil {
		log.Error().Err(err).Msg("import reconciliation failed")
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"error":   "import failed: " + err.Error(),
			"summary": summary,
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"account_id": s.syncAccountID,
		"hours_back": req.HoursBack,
		"summary":    summary,
	})
}
