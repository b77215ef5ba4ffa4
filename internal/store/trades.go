package store

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog/log"

	"journal/internal/domain"
)

const tradeColumns = `id, external_id, account_id, symbol, side, quantity, entry_price,
	exit_price, pnl, pnl_percent, fee, status, entry_time, exit_time,
	strategy, bias, key_level, confirmation, notes, source, deleted, created_at`

// ErrNotFound is returned when a trade lookup matches no row.
var ErrNotFound = errors.New("not found")

// InsertTrade persists a trade and returns true if a row was inserted.
// A unique-constraint conflict on (account_id, external_id) returns false
// without error: the trade is already known, which is the reconciler's
// last line of defense against double-insertion.
func (r *Repository) InsertTrade(ctx context.Context, trade *domain.Trade) (bool, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO journal_trades (
			external_id, account_id, symbol, side, quantity, entry_price,
			exit_price, pnl, pnl_percent, fee, status, entry_time, exit_time,
			strategy, bias, key_level, confirmation, notes, source
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		ON CONFLICT (account_id, external_id) DO NOTHING
		RETURNING id, created_at
	`,
		trade.ExternalID, trade.AccountID, trade.Symbol, string(trade.Side),
		trade.Quantity, trade.EntryPrice, trade.ExitPrice, trade.PnL,
		trade.PnLPercent, trade.Fee, string(trade.Status),
		trade.EntryTime, trade.ExitTime,
		trade.Strategy, trade.Bias, trade.KeyLevel, trade.Confirmation,
		trade.Notes, trade.Source,
	).Scan(&trade.ID, &trade.CreatedAt)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return false, nil
		}
		return false, fmt.Errorf("insert trade: %w", err)
	}

	// Associate the new trade with any key levels it touched. Matching
	// failures are logged, never fatal: the trade itself is persisted.
	if err := r.matchTradeLevels(ctx, trade); err != nil {
		log.Warn().Err(err).Int64("trade_id", trade.ID).Msg("key level matching failed")
	}
	return true, nil
}

// HasExternalID reports whether any trade (soft-deleted rows included)
// carries the given external id within the account scope.
func (r *Repository) HasExternalID(ctx context.Context, accountID, externalID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM journal_trades
			WHERE account_id = $1 AND external_id = $2
		)
	`, accountID, externalID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check external id: %w", err)
	}
	return exists, nil
}

// GetTrade returns a trade by local id. Soft-deleted trades are not found.
func (r *Repository) GetTrade(ctx context.Context, id int64) (*domain.Trade, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+tradeColumns+`
		FROM journal_trades
		WHERE id = $1 AND NOT deleted
	`, id)

	trade, err := scanTrade(row)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get trade: %w", err)
	}
	return trade, nil
}

// TradeUpdate carries annotation edits; nil fields are left unchanged.
type TradeUpdate struct {
	Strategy     *string `json:"strategy"`
	Bias         *string `json:"bias"`
	KeyLevel     *string `json:"key_level"`
	Confirmation *string `json:"confirmation"`
	Notes        *string `json:"notes"`
}

// UpdateAnnotations applies annotation edits to a trade.
func (r *Repository) UpdateAnnotations(ctx context.Context, id int64, upd TradeUpdate) (*domain.Trade, error) {
	var sets []string
	var args []interface{}
	argIdx := 1

	for _, field := range []struct {
		col string
		val *string
	}{
		{"strategy", upd.Strategy},
		{"bias", upd.Bias},
		{"key_level", upd.KeyLevel},
		{"confirmation", upd.Confirmation},
		{"notes", upd.Notes},
	} {
		if field.val == nil {
			continue
		}
		sets = append(sets, fmt.Sprintf("%s = $%d", field.col, argIdx))
		args = append(args, *field.val)
		argIdx++
	}
	if len(sets) == 0 {
		return r.GetTrade(ctx, id)
	}

	args = append(args, id)
	query := fmt.Sprintf(`
		UPDATE journal_trades SET %s
		WHERE id = $%d AND NOT deleted
		RETURNING `+tradeColumns,
		strings.Join(sets, ", "), argIdx)

	trade, err := scanTrade(r.pool.QueryRow(ctx, query, args...))
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update trade: %w", err)
	}
	return trade, nil
}

// CloseTrade records an exit on an open trade, computing realized pnl from
// the stored entry, quantity, and side.
func (r *Repository) CloseTrade(ctx context.Context, id int64, exitPrice float64, exitTime time.Time) (*domain.Trade, error) {
	existing, err := r.GetTrade(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing.Status == domain.TradeStatusClosed {
		return nil, fmt.Errorf("trade %d is already closed", id)
	}

	var pnl float64
	if existing.Side == domain.SideLong {
		pnl = (exitPrice - existing.EntryPrice) * existing.Quantity
	} else {
		pnl = (existing.EntryPrice - exitPrice) * existing.Quantity
	}
	pnlPercent := domain.PnLPercent(pnl, existing.EntryPrice, existing.Quantity)

	trade, err := scanTrade(r.pool.QueryRow(ctx, `
		UPDATE journal_trades
		SET status = 'closed', exit_price = $1, exit_time = $2, pnl = $3, pnl_percent = $4
		WHERE id = $5 AND NOT deleted
		RETURNING `+tradeColumns,
		exitPrice, exitTime, pnl, pnlPercent, id))
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("close trade: %w", err)
	}
	return trade, nil
}

// SoftDeleteTrade marks a trade deleted without removing the row, so that a
// later re-import of the same external id is still recognized as known.
func (r *Repository) SoftDeleteTrade(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx,
		"UPDATE journal_trades SET deleted = TRUE WHERE id = $1 AND NOT deleted", id)
	if err != nil {
		return fmt.Errorf("soft delete trade: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ClosedTrades returns all closed trades with a realized pnl for an account,
// optionally bounded by an entry-time range, in chronological order. This is
// the aggregator's input set; soft-deleted trades are excluded.
func (r *Repository) ClosedTrades(ctx context.Context, accountID string, start, end *time.Time) ([]domain.Trade, error) {
	var conditions []string
	var args []interface{}
	argIdx := 1

	conditions = append(conditions, fmt.Sprintf("account_id = $%d", argIdx))
	args = append(args, accountID)
	argIdx++
	conditions = append(conditions, "status = 'closed'", "pnl IS NOT NULL", "NOT deleted")

	if start != nil {
		conditions = append(conditions, fmt.Sprintf("entry_time >= $%d", argIdx))
		args = append(args, *start)
		argIdx++
	}
	if end != nil {
		conditions = append(conditions, fmt.Sprintf("entry_time <= $%d", argIdx))
		args = append(args, *end)
		argIdx++
	}

	query := fmt.Sprintf(`
		SELECT `+tradeColumns+`
		FROM journal_trades
		WHERE %s
		ORDER BY entry_time ASC, id ASC
	`, strings.Join(conditions, " AND "))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("closed trades: %w", err)
	}
	defer rows.Close()

	return collectTrades(rows)
}

// TradeFilter defines filters for listing trades.
type TradeFilter struct {
	Symbol string
	Side   string
	Status string
	Start  *time.Time
	End    *time.Time
	Cursor string
	Limit  int
}

// TradeListResult contains paginated trade results.
type TradeListResult struct {
	Trades     []domain.Trade `json:"trades"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

// ListTrades returns trades for an account with filters and cursor-based
// pagination, newest entry first. Soft-deleted trades are excluded.
func (r *Repository) ListTrades(ctx context.Context, accountID string, filter TradeFilter) (*TradeListResult, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	if filter.Limit > 200 {
		filter.Limit = 200
	}

	var conditions []string
	var args []interface{}
	argIdx := 1

	conditions = append(conditions, fmt.Sprintf("account_id = $%d", argIdx))
	args = append(args, accountID)
	argIdx++
	conditions = append(conditions, "NOT deleted")

	if filter.Symbol != "" {
		conditions = append(conditions, fmt.Sprintf("symbol = $%d", argIdx))
		args = append(args, strings.ToUpper(filter.Symbol))
		argIdx++
	}
	if filter.Side != "" {
		conditions = append(conditions, fmt.Sprintf("side = $%d", argIdx))
		args = append(args, filter.Side)
		argIdx++
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, filter.Status)
		argIdx++
	}
	if filter.Start != nil {
		conditions = append(conditions, fmt.Sprintf("entry_time >= $%d", argIdx))
		args = append(args, *filter.Start)
		argIdx++
	}
	if filter.End != nil {
		conditions = append(conditions, fmt.Sprintf("entry_time <= $%d", argIdx))
		args = append(args, *filter.End)
		argIdx++
	}

	// Cursor-based pagination: cursor is base64-encoded "entry_time|id"
	if filter.Cursor != "" {
		cursorTS, cursorID, err := decodeCursor(filter.Cursor)
		if err != nil {
			return nil, fmt.Errorf("invalid cursor: %w", err)
		}
		conditions = append(conditions, fmt.Sprintf(
			"(entry_time, id) < ($%d, $%d)", argIdx, argIdx+1,
		))
		args = append(args, cursorTS, cursorID)
		argIdx += 2
	}

	query := fmt.Sprintf(`
		SELECT `+tradeColumns+`
		FROM journal_trades
		WHERE %s
		ORDER BY entry_time DESC, id DESC
		LIMIT $%d
	`, strings.Join(conditions, " AND "), argIdx)
	args = append(args, filter.Limit+1) // fetch one extra to check if there's a next page

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list trades: %w", err)
	}
	defer rows.Close()

	trades, err := collectTrades(rows)
	if err != nil {
		return nil, err
	}

	result := &TradeListResult{}
	if len(trades) > filter.Limit {
		trades = trades[:filter.Limit]
		last := trades[len(trades)-1]
		result.NextCursor = encodeCursor(last.EntryTime, last.ID)
	}
	result.Trades = trades
	if result.Trades == nil {
		result.Trades = []domain.Trade{}
	}

	return result, nil
}

func scanTrade(row pgx.Row) (*domain.Trade, error) {
	var t domain.Trade
	var side, status string
	err := row.Scan(
		&t.ID, &t.ExternalID, &t.AccountID, &t.Symbol, &side, &t.Quantity,
		&t.EntryPrice, &t.ExitPrice, &t.PnL, &t.PnLPercent, &t.Fee, &status,
		&t.EntryTime, &t.ExitTime,
		&t.Strategy, &t.Bias, &t.KeyLevel, &t.Confirmation, &t.Notes,
		&t.Source, &t.Deleted, &t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.Side = domain.Side(side)
	t.Status = domain.TradeStatus(status)
	return &t, nil
}

func collectTrades(rows pgx.Rows) ([]domain.Trade, error) {
	var trades []domain.Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		trades = append(trades, *t)
	}
	return trades, rows.Err()
}

func encodeCursor(ts time.Time, id int64) string {
	raw := fmt.Sprintf("%s|%d", ts.Format(time.RFC3339Nano), id)
	return base64.URLEncoding.EncodeToString([]byte(raw))
}

func decodeCursor(cursor string) (time.Time, int64, error) {
	raw, err := base64.URLEncoding.DecodeString(cursor)
	if err != nil {
		return time.Time{}, 0, fmt.Errorf("decode base64: %w", err)
	}
	parts := strings.SplitN(string(raw), "|", 2)
	if len(parts) != 2 {
		return time.Time{}, 0, fmt.Errorf("invalid cursor format")
	}
	ts, err := time.Parse(time.RFC3339Nano, parts[0])
	if err != nil {
		return time.Time{}, 0, fmt.Errorf("parse timestamp: %w", err)
	}
	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return time.Time{}, 0, fmt.Errorf("parse id: %w", err)
	}
	return ts, id, nil
}
