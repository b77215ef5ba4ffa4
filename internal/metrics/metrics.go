package metrics

import (
	"sort"

	"journal/internal/domain"
)

// Stats is the fixed statistics bundle computed over a set of closed trades.
// Every field is always present; an empty trade set yields the zero value so
// callers never special-case "no data".
type Stats struct {
	TotalTrades   int     `json:"total_trades"`
	WinningTrades int     `json:"winning_trades"`
	LosingTrades  int     `json:"losing_trades"`
	WinRate       float64 `json:"win_rate"`

	TotalPnL    float64 `json:"total_pnl"`
	GrossProfit float64 `json:"gross_profit"`
	GrossLoss   float64 `json:"gross_loss"`

	AvgWin       float64 `json:"avg_win"`
	AvgLoss      float64 `json:"avg_loss"`
	LargestWin   float64 `json:"largest_win"`
	LargestLoss  float64 `json:"largest_loss"`
	ProfitFactor float64 `json:"profit_factor"`
	Expectancy   float64 `json:"expectancy"`
	RiskReward   float64 `json:"risk_reward"`

	MaxDrawdown    float64 `json:"max_drawdown"`
	MaxDrawdownPct float64 `json:"max_drawdown_pct"`

	MaxConsecutiveWins   int `json:"max_consecutive_wins"`
	MaxConsecutiveLosses int `json:"max_consecutive_losses"`
}

// Compute calculates the statistics bundle over the given trades. Only
// closed, non-deleted trades with a realized pnl are counted; a pnl of
// exactly zero is neither a win nor a loss but still counts toward the
// total and breaks both streaks.
func Compute(trades []domain.Trade) Stats {
	var s Stats

	closed := make([]domain.Trade, 0, len(trades))
	for i := range trades {
		if trades[i].CountsForStats() {
			closed = append(closed, trades[i])
		}
	}
	if len(closed) == 0 {
		return s
	}

	sort.SliceStable(closed, func(i, j int) bool {
		return closed[i].EntryTime.Before(closed[j].EntryTime)
	})

	var (
		cumulative, peak         float64
		peakAtMaxDrawdown        float64
		consecWins, consecLosses int
	)

	for _, t := range closed {
		pnl := *t.PnL
		s.TotalTrades++
		s.TotalPnL += pnl

		switch {
		case pnl > 0:
			s.WinningTrades++
			s.GrossProfit += pnl
			if pnl > s.LargestWin {
				s.LargestWin = pnl
			}
			consecWins++
			consecLosses = 0
		case pnl < 0:
			s.LosingTrades++
			s.GrossLoss += -pnl
			if pnl < s.LargestLoss {
				s.LargestLoss = pnl
			}
			consecLosses++
			consecWins = 0
		default:
			consecWins = 0
			consecLosses = 0
		}
		if consecWins > s.MaxConsecutiveWins {
			s.MaxConsecutiveWins = consecWins
		}
		if consecLosses > s.MaxConsecutiveLosses {
			s.MaxConsecutiveLosses = consecLosses
		}

		// Equity curve: running cumulative pnl against its running peak.
		cumulative += pnl
		if cumulative > peak {
			peak = cumulative
		}
		if dd := peak - cumulative; dd > s.MaxDrawdown {
			s.MaxDrawdown = dd
			peakAtMaxDrawdown = peak
		}
	}

	total := float64(s.TotalTrades)
	s.WinRate = float64(s.WinningTrades) / total * 100

	if s.WinningTrades > 0 {
		s.AvgWin = s.GrossProfit / float64(s.WinningTrades)
	}
	if s.LosingTrades > 0 {
		// Signed: avg loss is negative.
		s.AvgLoss = -s.GrossLoss / float64(s.LosingTrades)
	}
	if s.GrossLoss > 0 {
		s.ProfitFactor = s.GrossProfit / s.GrossLoss
	}
	if s.AvgLoss != 0 {
		s.RiskReward = s.AvgWin / -s.AvgLoss
	}

	winProb := float64(s.WinningTrades) / total
	lossProb := float64(s.LosingTrades) / total
	s.Expectancy = winProb*s.AvgWin - lossProb*(-s.AvgLoss)

	if peakAtMaxDrawdown > 0 {
		s.MaxDrawdownPct = s.MaxDrawdown / peakAtMaxDrawdown * 100
	}

	return s
}
