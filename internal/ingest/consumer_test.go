package ingest

import "testing"

func TestAccountFromSubject(t *testing.T) {
	cases := []struct {
		subject string
		account string
		ok      bool
	}{
		{"journal.executions.bybit-testnet", "bybit-testnet", true},
		{"journal.executions.manual", "manual", true},
		{"journal.executions.", "", false},
		{"journal.executions.a.b", "", false},
		{"journal.orders.bybit-testnet", "", false},
		{"executions.bybit-testnet", "", false},
	}
	for _, tc := range cases {
		account, ok := AccountFromSubject(tc.subject)
		if ok != tc.ok || account != tc.account {
			t.Errorf("%q: expected (%q, %v), got (%q, %v)",
				tc.subject, tc.account, tc.ok, account, ok)
		}
	}
}
