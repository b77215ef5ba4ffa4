package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"journal/internal/domain"
)

// DailySummary aggregates one calendar day of closed trades.
type DailySummary struct {
	Date       string  `json:"date"`
	TradeCount int     `json:"trade_count"`
	WinCount   int     `json:"win_count"`
	LossCount  int     `json:"loss_count"`
	TotalPnL   float64 `json:"total_pnl"`
	WinRate    float64 `json:"win_rate"`
}

const dailySummarySelect = `
	SELECT to_char(entry_time, 'YYYY-MM-DD') AS trade_date,
		COUNT(*) AS trade_count,
		COUNT(*) FILTER (WHERE pnl > 0) AS win_count,
		COUNT(*) FILTER (WHERE pnl < 0) AS loss_count,
		COALESCE(SUM(pnl), 0) AS total_pnl
	FROM journal_trades
	WHERE account_id = $1 AND status = 'closed' AND pnl IS NOT NULL AND NOT deleted`

// DailySummaries returns per-day aggregates for the calendar view, most
// recent day first.
func (r *Repository) DailySummaries(ctx context.Context, accountID string) ([]DailySummary, error) {
	rows, err := r.pool.Query(ctx, dailySummarySelect+`
		GROUP BY trade_date
		ORDER BY trade_date DESC
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("daily summaries: %w", err)
	}
	defer rows.Close()

	summaries := []DailySummary{}
	for rows.Next() {
		var s DailySummary
		if err := rows.Scan(&s.Date, &s.TradeCount, &s.WinCount, &s.LossCount, &s.TotalPnL); err != nil {
			return nil, fmt.Errorf("scan daily summary: %w", err)
		}
		if s.TradeCount > 0 {
			s.WinRate = float64(s.WinCount) / float64(s.TradeCount) * 100
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// DailySummary returns the aggregate for a single day (YYYY-MM-DD). A day
// with no trades yields a zeroed summary, not an error.
func (r *Repository) DailySummary(ctx context.Context, accountID, date string) (*DailySummary, error) {
	var s DailySummary
	err := r.pool.QueryRow(ctx, dailySummarySelect+`
		AND to_char(entry_time, 'YYYY-MM-DD') = $2
		GROUP BY trade_date
	`, accountID, date).Scan(&s.Date, &s.TradeCount, &s.WinCount, &s.LossCount, &s.TotalPnL)
	if err == pgx.ErrNoRows {
		return &DailySummary{Date: date}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("daily summary: %w", err)
	}
	if s.TradeCount > 0 {
		s.WinRate = float64(s.WinCount) / float64(s.TradeCount) * 100
	}
	return &s, nil
}

// TradesOnDay returns all trades (open and closed) entered on the given day,
// newest first, for the calendar drill-down.
func (r *Repository) TradesOnDay(ctx context.Context, accountID, date string) ([]domain.Trade, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+tradeColumns+`
		FROM journal_trades
		WHERE account_id = $1 AND to_char(entry_time, 'YYYY-MM-DD') = $2 AND NOT deleted
		ORDER BY entry_time DESC, id DESC
	`, accountID, date)
	if err != nil {
		return nil, fmt.Errorf("trades on day: %w", err)
	}
	defer rows.Close()

	trades, err := collectTrades(rows)
	if err != nil {
		return nil, err
	}
	return trades, nil
}
