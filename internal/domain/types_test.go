package domain

import "testing"

func TestNormalizeSide(t *testing.T) {
	cases := []struct {
		in   string
		want Side
		ok   bool
	}{
		{"Buy", SideLong, true},
		{"buy", SideLong, true},
		{"LONG", SideLong, true},
		{"Sell", SideShort, true},
		{" short ", SideShort, true},
		{"hold", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, ok := NormalizeSide(tc.in)
		if got != tc.want || ok != tc.ok {
			t.Errorf("NormalizeSide(%q): expected (%q, %v), got (%q, %v)",
				tc.in, tc.want, tc.ok, got, ok)
		}
	}
}

func TestPnLPercent(t *testing.T) {
	if got := PnLPercent(500, 50000, 0.5); got != 2 {
		t.Errorf("expected 2, got %v", got)
	}
	if got := PnLPercent(-250, 50000, 1); got != -0.5 {
		t.Errorf("expected -0.5, got %v", got)
	}
	if got := PnLPercent(100, 0, 1); got != 0 {
		t.Errorf("expected 0 for zero position value, got %v", got)
	}
}

func TestInferAccountType(t *testing.T) {
	cases := []struct {
		id   string
		want AccountType
	}{
		{"manual", AccountTypeManual},
		{"bybit-testnet", AccountTypePaper},
		{"bybit-mainnet", AccountTypeLive},
		{"prop-firm", AccountTypeLive},
	}
	for _, tc := range cases {
		if got := InferAccountType(tc.id); got != tc.want {
			t.Errorf("InferAccountType(%q): expected %q, got %q", tc.id, tc.want, got)
		}
	}
}

func TestCountsForStats(t *testing.T) {
	pnl := 10.0
	closed := Trade{Status: TradeStatusClosed, PnL: &pnl}
	if !closed.CountsForStats() {
		t.Error("closed trade with pnl should count")
	}

	open := Trade{Status: TradeStatusOpen, PnL: &pnl}
	if open.CountsForStats() {
		t.Error("open trade should not count")
	}

	unrealized := Trade{Status: TradeStatusClosed}
	if unrealized.CountsForStats() {
		t.Error("closed trade without pnl should not count")
	}

	deleted := Trade{Status: TradeStatusClosed, PnL: &pnl, Deleted: true}
	if deleted.CountsForStats() {
		t.Error("deleted trade should not count")
	}
}
