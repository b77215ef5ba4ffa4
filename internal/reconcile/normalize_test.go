package reconcile

import (
	"encoding/json"
	"math"
	"strings"
	"testing"
	"time"

	"journal/internal/domain"
)

func TestExternalID_PrefersUpstreamIDs(t *testing.T) {
	rec := RawRecord{
		"orderId": "ord-1",
		"execId":  "exec-1",
		"symbol":  "BTCUSDT",
		"side":    "Buy",
	}
	id, err := ExternalID(rec, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "ord-1" {
		t.Errorf("expected ord-1, got %q", id)
	}

	delete(rec, "orderId")
	id, _ = ExternalID(rec, 0)
	if id != "exec-1" {
		t.Errorf("expected exec-1 fallback, got %q", id)
	}
}

func TestExternalID_SynthesizedIncludesBatchIndex(t *testing.T) {
	rec := RawRecord{
		"symbol":      "BTCUSDT",
		"side":        "Buy",
		"closedPnl":   "42.5",
		"createdTime": "1700000000000",
	}
	id0, err := ExternalID(rec, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	id7, err := ExternalID(rec, 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id0 == id7 {
		t.Errorf("expected distinct ids per batch position, both were %q", id0)
	}
	if !strings.HasPrefix(id0, "BTCUSDT|buy|") {
		t.Errorf("expected symbol|side prefix, got %q", id0)
	}
}

func TestExternalID_RejectsUnidentifiableRecord(t *testing.T) {
	if _, err := ExternalID(RawRecord{"closedPnl": "1"}, 0); err == nil {
		t.Error("expected error for record with no id, symbol, or side")
	}
}

func TestNormalize_BybitRecord(t *testing.T) {
	now := time.Now()
	trade, err := Normalize(RawRecord{
		"orderId":       "ord-1",
		"symbol":        "btcusdt",
		"side":          "Sell",
		"qty":           "0.5",
		"avgEntryPrice": "50000",
		"avgExitPrice":  "49000",
		"closedPnl":     "500",
		"openFee":       "1.5",
		"closeFee":      "1.5",
		"createdTime":   "1700000000000",
		"updatedTime":   "1700000100000",
	}, 0, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if trade.Symbol != "BTCUSDT" {
		t.Errorf("expected uppercased symbol, got %q", trade.Symbol)
	}
	if trade.Side != domain.SideShort {
		t.Errorf("expected short for Sell, got %q", trade.Side)
	}
	if trade.Quantity != 0.5 {
		t.Errorf("expected qty 0.5, got %v", trade.Quantity)
	}
	if trade.Fee != 3 {
		t.Errorf("expected open+close fee 3, got %v", trade.Fee)
	}
	if trade.EntryTime.UnixMilli() != 1700000000000 {
		t.Errorf("expected entry from createdTime, got %v", trade.EntryTime)
	}
	if trade.ExitTime == nil || trade.ExitTime.UnixMilli() != 1700000100000 {
		t.Errorf("expected exit from updatedTime, got %v", trade.ExitTime)
	}
	if trade.PnLPercent == nil || *trade.PnLPercent != 2 {
		t.Errorf("expected pnl percent 2, got %v", trade.PnLPercent)
	}
}

func TestNormalize_DerivesExitPriceFromPnl(t *testing.T) {
	// Long: exit = entry + pnl/qty
	trade, err := Normalize(RawRecord{
		"orderId":       "ord-1",
		"symbol":        "BTCUSDT",
		"side":          "Buy",
		"qty":           "2",
		"avgEntryPrice": "50000",
		"closedPnl":     "1000",
	}, 0, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if trade.ExitPrice == nil || *trade.ExitPrice != 50500 {
		t.Errorf("expected derived exit 50500, got %v", trade.ExitPrice)
	}

	// Short: exit = entry - pnl/qty
	trade, err = Normalize(RawRecord{
		"orderId":       "ord-2",
		"symbol":        "BTCUSDT",
		"side":          "Sell",
		"qty":           "2",
		"avgEntryPrice": "50000",
		"closedPnl":     "1000",
	}, 0, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if trade.ExitPrice == nil || *trade.ExitPrice != 49500 {
		t.Errorf("expected derived exit 49500, got %v", trade.ExitPrice)
	}
}

func TestNormalize_Rejections(t *testing.T) {
	now := time.Now()
	cases := []struct {
		name string
		rec  RawRecord
	}{
		{"zero quantity", RawRecord{
			"orderId": "o", "symbol": "BTCUSDT", "side": "Buy",
			"qty": "0", "avgEntryPrice": "50000", "avgExitPrice": "51000",
		}},
		{"zero entry price", RawRecord{
			"orderId": "o", "symbol": "BTCUSDT", "side": "Buy",
			"qty": "1", "avgEntryPrice": "0", "avgExitPrice": "51000",
		}},
		{"no exit and no pnl", RawRecord{
			"orderId": "o", "symbol": "BTCUSDT", "side": "Buy",
			"qty": "1", "avgEntryPrice": "50000",
		}},
		{"derived exit not positive", RawRecord{
			"orderId": "o", "symbol": "BTCUSDT", "side": "Buy",
			"qty": "1", "avgEntryPrice": "50000", "closedPnl": "-60000",
		}},
		{"unknown side", RawRecord{
			"orderId": "o", "symbol": "BTCUSDT", "side": "hold",
			"qty": "1", "avgEntryPrice": "50000", "avgExitPrice": "51000",
		}},
	}
	for _, tc := range cases {
		if _, err := Normalize(tc.rec, 0, now); err == nil {
			t.Errorf("%s: expected rejection", tc.name)
		}
	}
}

func TestNormalize_SnakeCaseAliases(t *testing.T) {
	trade, err := Normalize(RawRecord{
		"order_id":        "ord-1",
		"symbol":          "ETHUSDT",
		"side":            "long",
		"quantity":        2.0,
		"avg_entry_price": 3000.0,
		"avg_exit_price":  3100.0,
		"closed_pnl":      200.0,
		"created_time":    "2025-06-01T10:00:00Z",
	}, 0, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if trade.Quantity != 2 || trade.EntryPrice != 3000 {
		t.Errorf("expected snake_case fields parsed, got qty=%v entry=%v",
			trade.Quantity, trade.EntryPrice)
	}
	want := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	if !trade.EntryTime.Equal(want) {
		t.Errorf("expected RFC3339 entry time %v, got %v", want, trade.EntryTime)
	}
}

func TestSafeFloat(t *testing.T) {
	cases := []struct {
		name string
		in   any
		def  float64
		want float64
	}{
		{"float", 1.5, 0, 1.5},
		{"int", 3, 0, 3},
		{"numeric string", "2.25", 0, 2.25},
		{"padded string", " 7 ", 0, 7},
		{"json number", json.Number("9.5"), 0, 9.5},
		{"nil", nil, -1, -1},
		{"garbage string", "abc", -1, -1},
		{"nan", math.NaN(), 0, 0},
		{"inf", math.Inf(1), 0, 0},
		{"bool", true, 4, 4},
	}
	for _, tc := range cases {
		if got := safeFloat(tc.in, tc.def); got != tc.want {
			t.Errorf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}

func TestCoerceTime(t *testing.T) {
	if ts, ok := coerceTime("1700000000000"); !ok || ts.UnixMilli() != 1700000000000 {
		t.Errorf("expected epoch-ms string parse, got %v ok=%v", ts, ok)
	}
	if ts, ok := coerceTime(float64(1700000000000)); !ok || ts.UnixMilli() != 1700000000000 {
		t.Errorf("expected epoch-ms float parse, got %v ok=%v", ts, ok)
	}
	if ts, ok := coerceTime("2025-06-01 10:30:00"); !ok || ts.Hour() != 10 {
		t.Errorf("expected datetime string parse, got %v ok=%v", ts, ok)
	}
	for _, bad := range []any{"0", "", "not a time", 0, -5, nil} {
		if _, ok := coerceTime(bad); ok {
			t.Errorf("expected %v to be rejected", bad)
		}
	}
}
