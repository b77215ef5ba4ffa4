package store

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"journal/internal/domain"
)

// levelMatchTolerance is the price proximity (as a fraction of the level
// value) within which a trade counts as having touched a key level.
const levelMatchTolerance = 0.005

// KeyLevel is a user-defined price level (support, resistance, fib, pivot)
// that trades are automatically associated with.
type KeyLevel struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	Value      float64   `json:"value"`
	Category   string    `json:"category"`
	Instrument string    `json:"instrument"`
	Strength   int       `json:"strength"`
	Notes      string    `json:"notes,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// AddKeyLevel inserts a key level. Names are unique case-insensitively;
// returns false when a level with the same normalized name already exists.
// Existing trades that touched the new level are matched retroactively.
func (r *Repository) AddKeyLevel(ctx context.Context, level *KeyLevel) (bool, error) {
	if level.Category == "" {
		level.Category = "custom"
	}
	if level.Instrument == "" {
		level.Instrument = "ALL"
	}
	if level.Strength == 0 {
		level.Strength = 3
	}
	level.Instrument = strings.ToUpper(level.Instrument)

	err := r.pool.QueryRow(ctx, `
		INSERT INTO journal_key_levels (name, normalized_name, value, category, instrument, strength, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (normalized_name) DO NOTHING
		RETURNING id, created_at
	`,
		level.Name, strings.ToLower(strings.TrimSpace(level.Name)), level.Value,
		level.Category, level.Instrument, level.Strength, level.Notes,
	).Scan(&level.ID, &level.CreatedAt)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("insert key level: %w", err)
	}

	if err := r.retroactiveMatchLevel(ctx, level); err != nil {
		return true, fmt.Errorf("retroactive level matching: %w", err)
	}
	return true, nil
}

// ListKeyLevels returns key levels, optionally filtered by instrument
// (levels marked ALL always match) and category, highest value first.
func (r *Repository) ListKeyLevels(ctx context.Context, instrument, category string) ([]KeyLevel, error) {
	var conditions []string
	var args []interface{}
	argIdx := 1

	if instrument != "" {
		conditions = append(conditions, fmt.Sprintf("instrument IN ($%d, 'ALL')", argIdx))
		args = append(args, strings.ToUpper(instrument))
		argIdx++
	}
	if category != "" {
		conditions = append(conditions, fmt.Sprintf("category = $%d", argIdx))
		args = append(args, category)
		argIdx++
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	rows, err := r.pool.Query(ctx, fmt.Sprintf(`
		SELECT id, name, value, category, instrument, strength, notes, created_at
		FROM journal_key_levels
		%s
		ORDER BY value DESC
	`, where), args...)
	if err != nil {
		return nil, fmt.Errorf("list key levels: %w", err)
	}
	defer rows.Close()

	levels := []KeyLevel{}
	for rows.Next() {
		var l KeyLevel
		if err := rows.Scan(&l.ID, &l.Name, &l.Value, &l.Category, &l.Instrument,
			&l.Strength, &l.Notes, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan key level: %w", err)
		}
		levels = append(levels, l)
	}
	return levels, rows.Err()
}

// DeleteKeyLevel removes a key level and its trade associations.
func (r *Repository) DeleteKeyLevel(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, "DELETE FROM journal_key_levels WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete key level: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// LevelStat aggregates journal performance around one key level.
type LevelStat struct {
	Level      string  `json:"level"`
	Category   string  `json:"category"`
	TradeCount int     `json:"trade_count"`
	WinCount   int     `json:"win_count"`
	WinRate    float64 `json:"win_rate"`
	AvgPnL     float64 `json:"avg_pnl"`
	TotalPnL   float64 `json:"total_pnl"`
}

// LevelStats returns per-level trade statistics, most-traded level first.
func (r *Repository) LevelStats(ctx context.Context) ([]LevelStat, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT kl.name, kl.category,
			COUNT(DISTINCT t.id) AS trade_count,
			COUNT(DISTINCT t.id) FILTER (WHERE t.pnl > 0) AS win_count,
			COALESCE(AVG(t.pnl), 0) AS avg_pnl,
			COALESCE(SUM(t.pnl), 0) AS total_pnl
		FROM journal_key_levels kl
		JOIN journal_trade_levels tl ON kl.id = tl.level_id
		JOIN journal_trades t ON tl.trade_id = t.id
		WHERE NOT t.deleted
		GROUP BY kl.id
		ORDER BY trade_count DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("level stats: %w", err)
	}
	defer rows.Close()

	stats := []LevelStat{}
	for rows.Next() {
		var s LevelStat
		if err := rows.Scan(&s.Level, &s.Category, &s.TradeCount, &s.WinCount,
			&s.AvgPnL, &s.TotalPnL); err != nil {
			return nil, fmt.Errorf("scan level stat: %w", err)
		}
		if s.TradeCount > 0 {
			s.WinRate = float64(s.WinCount) / float64(s.TradeCount) * 100
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// matchTradeLevels associates a newly inserted trade with every key level
// its entry or exit price touched.
func (r *Repository) matchTradeLevels(ctx context.Context, trade *domain.Trade) error {
	levels, err := r.ListKeyLevels(ctx, trade.Symbol, "")
	if err != nil {
		return err
	}

	for _, level := range levels {
		relevance, ok := levelRelevance(level.Value, trade.EntryPrice, trade.ExitPrice)
		if !ok {
			continue
		}
		_, err := r.pool.Exec(ctx, `
			INSERT INTO journal_trade_levels (trade_id, level_id, relevance)
			VALUES ($1, $2, $3)
			ON CONFLICT (trade_id, level_id) DO NOTHING
		`, trade.ID, level.ID, relevance)
		if err != nil {
			return fmt.Errorf("link trade to level: %w", err)
		}
	}
	return nil
}

// retroactiveMatchLevel matches a newly added level against existing trades.
func (r *Repository) retroactiveMatchLevel(ctx context.Context, level *KeyLevel) error {
	rows, err := r.pool.Query(ctx, `
		SELECT id, entry_price, exit_price
		FROM journal_trades
		WHERE NOT deleted AND (symbol = $1 OR $1 = 'ALL')
	`, level.Instrument)
	if err != nil {
		return fmt.Errorf("query trades for level: %w", err)
	}
	defer rows.Close()

	type match struct {
		tradeID   int64
		relevance int
	}
	var matches []match
	for rows.Next() {
		var tradeID int64
		var entry float64
		var exit *float64
		if err := rows.Scan(&tradeID, &entry, &exit); err != nil {
			return fmt.Errorf("scan trade prices: %w", err)
		}
		if relevance, ok := levelRelevance(level.Value, entry, exit); ok {
			matches = append(matches, match{tradeID, relevance})
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, m := range matches {
		_, err := r.pool.Exec(ctx, `
			INSERT INTO journal_trade_levels (trade_id, level_id, relevance)
			VALUES ($1, $2, $3)
			ON CONFLICT (trade_id, level_id) DO NOTHING
		`, m.tradeID, level.ID, m.relevance)
		if err != nil {
			return fmt.Errorf("link trade to level: %w", err)
		}
	}
	return nil
}

// levelRelevance scores how closely a trade touched a level, 1 (edge of the
// tolerance band) to 5 (on the level). Returns false when neither the entry
// nor the exit price is within tolerance.
func levelRelevance(levelValue, entryPrice float64, exitPrice *float64) (int, bool) {
	threshold := levelValue * levelMatchTolerance
	if threshold <= 0 {
		return 0, false
	}

	minDist := math.Abs(entryPrice - levelValue)
	if exitPrice != nil {
		if d := math.Abs(*exitPrice - levelValue); d < minDist {
			minDist = d
		}
	}
	if minDist > threshold {
		return 0, false
	}

	relevance := int(5 - (minDist/threshold)*4)
	if relevance < 1 {
		relevance = 1
	}
	if relevance > 5 {
		relevance = 5
	}
	return relevance, true
}
