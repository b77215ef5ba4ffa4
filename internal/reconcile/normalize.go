package reconcile

import (
	"fmt"
	"strings"
	"time"

	"journal/internal/domain"
)

// Upstream field aliases, checked in order. Bybit v5 uses camelCase; the
// older fetch layer and ingest events use snake_case.
var (
	orderIDKeys     = []string{"orderId", "order_id"}
	execIDKeys      = []string{"execId", "exec_id"}
	tradeIDKeys     = []string{"tradeId", "trade_id"}
	orderLinkIDKeys = []string{"orderLinkId", "order_link_id"}

	symbolKeys   = []string{"symbol"}
	sideKeys     = []string{"side"}
	qtyKeys      = []string{"qty", "closedSize", "closed_size", "exec_qty", "quantity"}
	entryKeys    = []string{"avgEntryPrice", "avg_entry_price", "entry_price", "orderPrice"}
	exitKeys     = []string{"avgExitPrice", "avg_exit_price", "exit_price"}
	pnlKeys      = []string{"closedPnl", "closed_pnl", "pnl"}
	openFeeKeys  = []string{"openFee", "open_fee"}
	closeFeeKeys = []string{"closeFee", "close_fee"}
	feeKeys      = []string{"execFee", "exec_fee", "fees", "fee"}
	createdKeys  = []string{"createdTime", "created_time", "created_at", "createdAt", "execTime", "exec_time"}
	updatedKeys  = []string{"updatedTime", "updated_time", "updated_at", "updatedAt"}
)

// ExternalID derives the stable external identifier for a raw record.
// Upstream-provided ids are preferred (order id, execution id, trade id,
// order-link id, in that order). When none is present a composite key is
// synthesized from symbol, side, timestamps, and closed pnl — with the
// record's batch position appended, because upstream responses can contain
// records identical in every field that are still distinct executions.
// Records with no symbol or side cannot be identified and are rejected.
func ExternalID(rec RawRecord, batchIdx int) (string, error) {
	for _, keys := range [][]string{orderIDKeys, execIDKeys, tradeIDKeys, orderLinkIDKeys} {
		if id := rec.stringField(keys...); id != "" {
			return id, nil
		}
	}

	symbol := rec.stringField(symbolKeys...)
	side := rec.stringField(sideKeys...)
	if symbol == "" || side == "" {
		return "", fmt.Errorf("no upstream id and no symbol/side to synthesize one from")
	}

	created := rec.stringField(createdKeys...)
	updated := rec.stringField(updatedKeys...)
	pnl := rec.stringField(pnlKeys...)

	return fmt.Sprintf("%s|%s|%s|%s|%s#%d",
		strings.ToUpper(symbol), strings.ToLower(side), created, updated, pnl, batchIdx), nil
}

// Normalize converts one raw upstream record into a persistable closed trade.
// batchIdx is the record's position within the current fetch batch (used for
// synthesized identities); now is the processing time used as the final
// timestamp fallback. Returns an error describing why the record must be
// skipped; a returned error never aborts the surrounding batch.
func Normalize(rec RawRecord, batchIdx int, now time.Time) (*domain.Trade, error) {
	externalID, err := ExternalID(rec, batchIdx)
	if err != nil {
		return nil, err
	}

	symbol := strings.ToUpper(rec.stringField(symbolKeys...))
	if symbol == "" {
		return nil, fmt.Errorf("missing symbol")
	}

	rawSide := rec.stringField(sideKeys...)
	side, ok := domain.NormalizeSide(rawSide)
	if !ok {
		return nil, fmt.Errorf("unrecognized side %q", rawSide)
	}

	qty, _ := rec.floatField(qtyKeys...)
	entry, _ := rec.floatField(entryKeys...)
	exit, _ := rec.floatField(exitKeys...)
	pnl, pnlKnown := rec.floatField(pnlKeys...)

	fee, feeKnown := rec.floatField(feeKeys...)
	if !feeKnown {
		open, _ := rec.floatField(openFeeKeys...)
		closeF, _ := rec.floatField(closeFeeKeys...)
		fee = open + closeF
	}

	if qty <= 0 {
		return nil, fmt.Errorf("invalid quantity %v", qty)
	}
	if entry <= 0 {
		return nil, fmt.Errorf("invalid entry price %v", entry)
	}
	if exit <= 0 {
		// Recover the exit price algebraically when the pnl is known,
		// rather than discarding the record.
		if !pnlKnown {
			return nil, fmt.Errorf("invalid exit price %v and no pnl to derive it from", exit)
		}
		if side == domain.SideLong {
			exit = entry + pnl/qty
		} else {
			exit = entry - pnl/qty
		}
		if exit <= 0 {
			return nil, fmt.Errorf("derived exit price %v is not positive", exit)
		}
	}

	entryTime, ok := rec.timeField(createdKeys...)
	if !ok {
		entryTime, ok = rec.timeField(updatedKeys...)
	}
	if !ok {
		entryTime = now
	}
	exitTime, ok := rec.timeField(updatedKeys...)
	if !ok {
		exitTime = entryTime
	}

	pnlPercent := domain.PnLPercent(pnl, entry, qty)

	return &domain.Trade{
		ExternalID: &externalID,
		Symbol:     symbol,
		Side:       side,
		Quantity:   qty,
		EntryPrice: entry,
		ExitPrice:  &exit,
		PnL:        &pnl,
		PnLPercent: &pnlPercent,
		Fee:        fee,
		Status:     domain.TradeStatusClosed,
		EntryTime:  entryTime,
		ExitTime:   &exitTime,
	}, nil
}
