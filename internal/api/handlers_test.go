package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"
)

func TestCreateTrade_InvalidJSON(t *testing.T) {
	srv := NewServer(nil, nil, nil, "bybit-testnet", 24)
	router := srv.Router()

	req := httptest.NewRequest("POST", "/api/v1/accounts/manual/trades", bytes.NewBufferString("not json"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestCreateTrade_ValidationErrors(t *testing.T) {
	srv := NewServer(nil, nil, nil, "bybit-testnet", 24)
	router := srv.Router()

	cases := []struct {
		name string
		body string
	}{
		{"missing symbol", `{"side":"long","quantity":1,"entry_price":50000}`},
		{"bad side", `{"symbol":"BTCUSDT","side":"hold","quantity":1,"entry_price":50000}`},
		{"zero quantity", `{"symbol":"BTCUSDT","side":"long","quantity":0,"entry_price":50000}`},
		{"zero entry price", `{"symbol":"BTCUSDT","side":"long","quantity":1,"entry_price":0}`},
		{"negative exit price", `{"symbol":"BTCUSDT","side":"long","quantity":1,"entry_price":50000,"exit_price":-1}`},
		{"bad entry time", `{"symbol":"BTCUSDT","side":"long","quantity":1,"entry_price":50000,"entry_time":"yesterday"}`},
	}
	for _, tc := range cases {
		req := httptest.NewRequest("POST", "/api/v1/accounts/manual/trades", bytes.NewBufferString(tc.body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", tc.name, w.Code)
		}
		var resp map[string]string
		json.NewDecoder(w.Body).Decode(&resp)
		if resp["error"] == "" {
			t.Errorf("%s: expected validation error message", tc.name)
		}
	}
}

func TestGetTrade_InvalidID(t *testing.T) {
	srv := NewServer(nil, nil, nil, "bybit-testnet", 24)
	router := srv.Router()

	for _, id := range []string{"abc", "-1", "0"} {
		req := httptest.NewRequest("GET", "/api/v1/trades/"+id, nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("id %q: expected 400, got %d", id, w.Code)
		}
	}
}

func TestCalendarDay_InvalidDate(t *testing.T) {
	srv := NewServer(nil, nil, nil, "bybit-testnet", 24)
	router := srv.Router()

	req := httptest.NewRequest("GET", "/api/v1/accounts/manual/calendar/june-1st", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestAddKeyLevel_ValidationErrors(t *testing.T) {
	srv := NewServer(nil, nil, nil, "bybit-testnet", 24)
	router := srv.Router()

	cases := []struct {
		name string
		body string
	}{
		{"missing name", `{"value":50000}`},
		{"zero value", `{"name":"BTC 50k","value":0}`},
		{"strength out of range", `{"name":"BTC 50k","value":50000,"strength":9}`},
	}
	for _, tc := range cases {
		req := httptest.NewRequest("POST", "/api/v1/key-levels", bytes.NewBufferString(tc.body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", tc.name, w.Code)
		}
	}
}

func TestParseStatsRange(t *testing.T) {
	// Wednesday, 2025-06-18 15:30 UTC
	now := time.Date(2025, 6, 18, 15, 30, 0, 0, time.UTC)

	q := url.Values{}
	start, end, err := parseStatsRange(q, now)
	if err != nil || start != nil || end != nil {
		t.Errorf("expected unbounded default range, got %v..%v err=%v", start, end, err)
	}

	// Explicit bounds without a named range.
	q.Set("start", "2025-06-01")
	start, end, err = parseStatsRange(q, now)
	if err != nil {
		t.Fatalf("bare start: %v", err)
	}
	if start == nil || end != nil {
		t.Errorf("bare start: expected lower bound only, got %v..%v", start, end)
	}
	q.Del("start")

	q.Set("range", "today")
	start, _, err = parseStatsRange(q, now)
	if err != nil {
		t.Fatalf("today: %v", err)
	}
	if want := time.Date(2025, 6, 18, 0, 0, 0, 0, time.UTC); !start.Equal(want) {
		t.Errorf("today: expected %v, got %v", want, *start)
	}

	q.Set("range", "week")
	start, _, err = parseStatsRange(q, now)
	if err != nil {
		t.Fatalf("week: %v", err)
	}
	if want := time.Date(2025, 6, 16, 0, 0, 0, 0, time.UTC); !start.Equal(want) {
		t.Errorf("week: expected Monday %v, got %v", want, *start)
	}

	q.Set("range", "month")
	start, _, err = parseStatsRange(q, now)
	if err != nil {
		t.Fatalf("month: %v", err)
	}
	if want := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC); !start.Equal(want) {
		t.Errorf("month: expected %v, got %v", want, *start)
	}

	q.Set("range", "custom")
	q.Set("start", "2025-01-01")
	q.Set("end", "2025-03-31")
	start, end, err = parseStatsRange(q, now)
	if err != nil {
		t.Fatalf("custom: %v", err)
	}
	if start == nil || end == nil {
		t.Fatal("custom: expected both bounds")
	}

	q.Set("start", "not-a-date")
	if _, _, err := parseStatsRange(q, now); err == nil {
		t.Error("custom: expected error for bad start")
	}

	q = url.Values{}
	q.Set("range", "custom")
	if _, _, err := parseStatsRange(q, now); err == nil {
		t.Error("custom: expected error when no bounds given")
	}

	q.Set("range", "fortnight")
	if _, _, err := parseStatsRange(q, now); err == nil {
		t.Error("expected error for unknown range")
	}
}

func TestParseStatsRange_WeekStartsMondayOnSunday(t *testing.T) {
	// Sunday belongs to the week that started the previous Monday.
	now := time.Date(2025, 6, 22, 12, 0, 0, 0, time.UTC)
	q := url.Values{}
	q.Set("range", "week")

	start, _, err := parseStatsRange(q, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := time.Date(2025, 6, 16, 0, 0, 0, 0, time.UTC); !start.Equal(want) {
		t.Errorf("expected %v, got %v", want, *start)
	}
}
