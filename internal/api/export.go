package api

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
)

var exportHeader = []string{
	"id", "external_id", "symbol", "side", "quantity", "entry_price",
	"exit_price", "pnl", "pnl_percent", "fee", "status",
	"entry_time", "exit_time",
	"strategy", "bias", "key_level", "confirmation", "notes", "source",
}

// handleExportCSV streams all closed trades for an account as CSV, oldest
// first, honoring the same start/end filters as the stats endpoint.
func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountId")
	q := r.URL.Query()

	start, err := parseTimeParam(q.Get("start"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid start: "+err.Error())
		return
	}
	end, err := parseTimeParam(q.Get("end"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid end: "+err.Error())
		return
	}

	trades, err := s.repo.ClosedTrades(r.Context(), accountID, start, end)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load trades")
		return
	}

	filename := fmt.Sprintf("trades-%s-%s.csv", accountID, time.Now().UTC().Format("2006-01-02"))
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)

	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return
	}
	for _, t := range trades {
		row := []string{
			strconv.FormatInt(t.ID, 10),
			strPtr(t.ExternalID),
			t.Symbol,
			string(t.Side),
			formatFloat(t.Quantity),
			formatFloat(t.EntryPrice),
			floatPtr(t.ExitPrice),
			floatPtr(t.PnL),
			floatPtr(t.PnLPercent),
			formatFloat(t.Fee),
			string(t.Status),
			t.EntryTime.UTC().Format(time.RFC3339),
			timePtr(t.ExitTime),
			t.Strategy, t.Bias, t.KeyLevel, t.Confirmation, t.Notes, t.Source,
		}
		if err := cw.Write(row); err != nil {
			return
		}
	}
	cw.Flush()
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func strPtr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func floatPtr(f *float64) string {
	if f == nil {
		return ""
	}
	return formatFloat(*f)
}

func timePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
