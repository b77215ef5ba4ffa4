package bybit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewClient("test-key", "test-secret", true)
	c.baseURL = srv.URL
	return c
}

func pnlResponse(cursor string, records ...map[string]interface{}) []byte {
	body, _ := json.Marshal(map[string]interface{}{
		"retCode": 0,
		"retMsg":  "OK",
		"result": map[string]interface{}{
			"list":           records,
			"nextPageCursor": cursor,
		},
	})
	return body
}

func TestClosedPnL_FetchesAllCategories(t *testing.T) {
	var gotCategories []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		category := r.URL.Query().Get("category")
		gotCategories = append(gotCategories, category)
		w.Write(pnlResponse("", map[string]interface{}{"orderId": "ord-" + category}))
	})

	end := time.Now()
	records, err := c.ClosedPnL(context.Background(), end.Add(-time.Hour), end)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected one record per category, got %d", len(records))
	}
	if len(gotCategories) != 2 || gotCategories[0] != "linear" || gotCategories[1] != "inverse" {
		t.Errorf("expected linear then inverse, got %v", gotCategories)
	}
}

func TestClosedPnL_FollowsPaginationCursor(t *testing.T) {
	var cursors []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("category") != "linear" {
			w.Write(pnlResponse(""))
			return
		}
		cursor := r.URL.Query().Get("cursor")
		cursors = append(cursors, cursor)
		switch cursor {
		case "":
			w.Write(pnlResponse("page-2", map[string]interface{}{"orderId": "ord-1"}))
		case "page-2":
			w.Write(pnlResponse("", map[string]interface{}{"orderId": "ord-2"}))
		default:
			t.Errorf("unexpected cursor %q", cursor)
		}
	})

	end := time.Now()
	records, err := c.ClosedPnL(context.Background(), end.Add(-time.Hour), end)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records across pages, got %d", len(records))
	}
	if len(cursors) != 2 {
		t.Errorf("expected 2 page requests, got %d", len(cursors))
	}
}

func TestClosedPnL_ChunksLongWindows(t *testing.T) {
	var linearRequests int
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("category") == "linear" {
			linearRequests++
		}
		w.Write(pnlResponse(""))
	})

	// 20 days needs three 7-day chunks.
	end := time.Now()
	if _, err := c.ClosedPnL(context.Background(), end.Add(-20*24*time.Hour), end); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if linearRequests != 3 {
		t.Errorf("expected 3 chunked requests, got %d", linearRequests)
	}
}

func TestClosedPnL_SignsRequests(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-BAPI-API-KEY") != "test-key" {
			t.Errorf("missing api key header")
		}
		timestamp := r.Header.Get("X-BAPI-TIMESTAMP")
		if timestamp == "" {
			t.Errorf("missing timestamp header")
		}
		recv := r.Header.Get("X-BAPI-RECV-WINDOW")
		if recv != recvWindow {
			t.Errorf("expected recv window %s, got %q", recvWindow, recv)
		}
		sign := r.Header.Get("X-BAPI-SIGN")
		want := (&Client{apiSecret: "test-secret"}).sign(timestamp + "test-key" + recv + r.URL.RawQuery)
		if sign != want {
			t.Errorf("signature mismatch: expected %s, got %s", want, sign)
		}
		w.Write(pnlResponse(""))
	})

	end := time.Now()
	if _, err := c.ClosedPnL(context.Background(), end.Add(-time.Hour), end); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestClosedPnL_APIError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"retCode":10003,"retMsg":"API key is invalid"}`)
	})

	end := time.Now()
	_, err := c.ClosedPnL(context.Background(), end.Add(-time.Hour), end)
	if err == nil {
		t.Fatal("expected error for non-zero retCode")
	}
}

func TestClosedPnL_HTTPError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	})

	end := time.Now()
	if _, err := c.ClosedPnL(context.Background(), end.Add(-time.Hour), end); err == nil {
		t.Fatal("expected error for HTTP failure")
	}
}
