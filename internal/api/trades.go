package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"journal/internal/domain"
	"journal/internal/store"
)

func (s *Server) handleListTrades(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountId")
	q := r.URL.Query()

	filter := store.TradeFilter{
		Symbol: q.Get("symbol"),
		Side:   q.Get("side"),
		Status: q.Get("status"),
		Cursor: q.Get("cursor"),
	}
	if limit := q.Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = n
	}
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
	filter.Start = start
	filter.End = end

	result, err := s.repo.ListTrades(r.Context(), accountID, filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list trades")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type createTradeRequest struct {
	Symbol     string   `json:"symbol"`
	Side       string   `json:"side"`
	Quantity   float64  `json:"quantity"`
	EntryPrice float64  `json:"entry_price"`
	ExitPrice  *float64 `json:"exit_price"`
	Fee        float64  `json:"fee"`
	EntryTime  *string  `json:"entry_time"`
	ExitTime   *string  `json:"exit_time"`

	Strategy     string `json:"strategy"`
	Bias         string `json:"bias"`
	KeyLevel     string `json:"key_level"`
	Confirmation string `json:"confirmation"`
	Notes        string `json:"notes"`
}

func (s *Server) handleCreateTrade(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountId")

	var req createTradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.Symbol = strings.ToUpper(strings.TrimSpace(req.Symbol))
	if req.Symbol == "" {
		writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}
	side, ok := domain.NormalizeSide(req.Side)
	if !ok {
		writeError(w, http.StatusBadRequest, "side must be long or short")
		return
	}
	if req.Quantity <= 0 {
		writeError(w, http.StatusBadRequest, "quantity must be positive")
		return
	}
	if req.EntryPrice <= 0 {
		writeError(w, http.StatusBadRequest, "entry_price must be positive")
		return
	}
	if req.ExitPrice != nil && *req.ExitPrice <= 0 {
		writeError(w, http.StatusBadRequest, "exit_price must be positive")
		return
	}

	now := time.Now().UTC()
	entryTime := now
	if req.EntryTime != nil {
		t, err := parseTimeParam(*req.EntryTime)
		if err != nil || t == nil {
			writeError(w, http.StatusBadRequest, "invalid entry_time")
			return
		}
		entryTime = *t
	}

	trade := &domain.Trade{
		AccountID:    accountID,
		Symbol:       req.Symbol,
		Side:         side,
		Quantity:     req.Quantity,
		EntryPrice:   req.EntryPrice,
		Fee:          req.Fee,
		Status:       domain.TradeStatusOpen,
		EntryTime:    entryTime,
		Strategy:     req.Strategy,
		Bias:         req.Bias,
		KeyLevel:     req.KeyLevel,
		Confirmation: req.Confirmation,
		Notes:        req.Notes,
		Source:       "manual",
	}

	// A manual entry with an exit price is journaled directly as closed.
	if req.ExitPrice != nil {
		exitTime := entryTime
		if req.ExitTime != nil {
			t, err := parseTimeParam(*req.ExitTime)
			if err != nil || t == nil {
				writeError(w, http.StatusBadRequest, "invalid exit_time")
				return
			}
			exitTime = *t
		}

		var pnl float64
		if side == domain.SideLong {
			pnl = (*req.ExitPrice - req.EntryPrice) * req.Quantity
		} else {
			pnl = (req.EntryPrice - *req.ExitPrice) * req.Quantity
		}
		pnlPercent := domain.PnLPercent(pnl, req.EntryPrice, req.Quantity)

		trade.Status = domain.TradeStatusClosed
		trade.ExitPrice = req.ExitPrice
		trade.ExitTime = &exitTime
		trade.PnL = &pnl
		trade.PnLPercent = &pnlPercent
	}

	if _, err := s.repo.GetOrCreateAccount(r.Context(), accountID, domain.InferAccountType(accountID)); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to resolve account")
		return
	}

	if _, err := s.repo.InsertTrade(r.Context(), trade); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create trade")
		return
	}
	writeJSON(w, http.StatusCreated, trade)
}

func (s *Server) handleGetTrade(w http.ResponseWriter, r *http.Request) {
	id, ok := tradeIDParam(w, r)
	if !ok {
		return
	}

	trade, err := s.repo.GetTrade(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "trade not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load trade")
		return
	}
	writeJSON(w, http.StatusOK, trade)
}

type updateTradeRequest struct {
	store.TradeUpdate
	ExitPrice *float64 `json:"exit_price"`
	ExitTime  *string  `json:"exit_time"`
}

func (s *Server) handleUpdateTrade(w http.ResponseWriter, r *http.Request) {
	id, ok := tradeIDParam(w, r)
	if !ok {
		return
	}

	var req updateTradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	// An exit price closes the trade before annotations are applied.
	if req.ExitPrice != nil {
		if *req.ExitPrice <= 0 {
			writeError(w, http.StatusBadRequest, "exit_price must be positive")
			return
		}
		exitTime := time.Now().UTC()
		if req.ExitTime != nil {
			t, err := parseTimeParam(*req.ExitTime)
			if err != nil || t == nil {
				writeError(w, http.StatusBadRequest, "invalid exit_time")
				return
			}
			exitTime = *t
		}
		if _, err := s.repo.CloseTrade(r.Context(), id, *req.ExitPrice, exitTime); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				writeError(w, http.StatusNotFound, "trade not found")
				return
			}
			writeError(w, http.StatusConflict, err.Error())
			return
		}
	}

	trade, err := s.repo.UpdateAnnotations(r.Context(), id, req.TradeUpdate)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "trade not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update trade")
		return
	}
	writeJSON(w, http.StatusOK, trade)
}

func (s *Server) handleDeleteTrade(w http.ResponseWriter, r *http.Request) {
	id, ok := tradeIDParam(w, r)
	if !ok {
		return
	}

	err := s.repo.SoftDeleteTrade(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "trade not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete trade")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func tradeIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "tradeId"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid trade id")
		return 0, false
	}
	return id, true
}
