// Package bybit fetches closed-pnl records from the Bybit v5 REST API.
//
// The API caps each closed-pnl query at a 7-day window and paginates with an
// opaque cursor, so a sync over a longer period issues several chunked,
// possibly overlapping requests per instrument category. The returned batch
// is the raw union of everything fetched; deduplication is the reconciler's
// job, not the client's.
package bybit

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"journal/internal/reconcile"
)

const (
	mainnetBaseURL = "https://api.bybit.com"
	testnetBaseURL = "https://api-testnet.bybit.com"

	closedPnLPath = "/v5/position/closed-pnl"

	// maxChunk is the largest time window one closed-pnl query may cover.
	maxChunk = 7 * 24 * time.Hour

	pageLimit  = 100
	recvWindow = "5000"
)

// Categories queried on every sync. Both are fetched because an account can
// hold linear and inverse positions, and the API reports them separately.
var categories = []string{"linear", "inverse"}

// APIError is a non-zero retCode returned by Bybit.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("bybit API error (retCode=%d): %s", e.Code, e.Message)
}

// Client is an authenticated Bybit v5 REST client.
type Client struct {
	apiKey     string
	apiSecret  string
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewClient creates a Bybit client for the mainnet or testnet network.
func NewClient(apiKey, apiSecret string, testnet bool) *Client {
	baseURL := mainnetBaseURL
	if testnet {
		baseURL = testnetBaseURL
	}
	return &Client{
		apiKey:     apiKey,
		apiSecret:  apiSecret,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     log.With().Str("component", "bybit").Logger(),
	}
}

// ClosedPnL fetches every closed-pnl record between start and end across all
// instrument categories, splitting the range into API-sized chunks and
// following pagination cursors. Records are returned raw; overlapping chunks
// or categories may yield duplicates.
func (c *Client) ClosedPnL(ctx context.Context, start, end time.Time) ([]reconcile.RawRecord, error) {
	var records []reconcile.RawRecord

	for _, category := range categories {
		for chunkStart := start; chunkStart.Before(end); chunkStart = chunkStart.Add(maxChunk) {
			chunkEnd := chunkStart.Add(maxChunk)
			if chunkEnd.After(end) {
				chunkEnd = end
			}

			chunk, err := c.closedPnLChunk(ctx, category, chunkStart, chunkEnd)
			if err != nil {
				return nil, fmt.Errorf("fetch %s closed pnl %s..%s: %w",
					category, chunkStart.Format(time.RFC3339), chunkEnd.Format(time.RFC3339), err)
			}
			records = append(records, chunk...)
		}
	}

	c.logger.Debug().Int("records", len(records)).Msg("fetched closed pnl")
	return records, nil
}

func (c *Client) closedPnLChunk(ctx context.Context, category string, start, end time.Time) ([]reconcile.RawRecord, error) {
	var records []reconcile.RawRecord
	cursor := ""

	for {
		params := url.Values{}
		params.Set("category", category)
		params.Set("startTime", strconv.FormatInt(start.UnixMilli(), 10))
		params.Set("endTime", strconv.FormatInt(end.UnixMilli(), 10))
		params.Set("limit", strconv.Itoa(pageLimit))
		if cursor != "" {
			params.Set("cursor", cursor)
		}

		page, next, err := c.closedPnLPage(ctx, params)
		if err != nil {
			return nil, err
		}
		records = append(records, page...)

		if next == "" {
			return records, nil
		}
		cursor = next
	}
}

func (c *Client) closedPnLPage(ctx context.Context, params url.Values) ([]reconcile.RawRecord, string, error) {
	query := params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+closedPnLPath+"?"+query, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build request: %w", err)
	}

	timestamp := strconv.FormatInt(time.Now().UnixMilli(), 10)
	req.Header.Set("X-BAPI-API-KEY", c.apiKey)
	req.Header.Set("X-BAPI-TIMESTAMP", timestamp)
	req.Header.Set("X-BAPI-RECV-WINDOW", recvWindow)
	req.Header.Set("X-BAPI-SIGN", c.sign(timestamp+c.apiKey+recvWindow+query))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("bybit HTTP %d: %s", resp.StatusCode, string(body))
	}

	var parsed struct {
		RetCode int    `json:"retCode"`
		RetMsg  string `json:"retMsg"`
		Result  struct {
			List           []reconcile.RawRecord `json:"list"`
			NextPageCursor string                `json:"nextPageCursor"`
		} `json:"result"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, "", fmt.Errorf("decode response: %w", err)
	}
	if parsed.RetCode != 0 {
		return nil, "", &APIError{Code: parsed.RetCode, Message: parsed.RetMsg}
	}

	return parsed.Result.List, parsed.Result.NextPageCursor, nil
}

func (c *Client) sign(payload string) string {
	mac := hmac.New(sha256.New, []byte(c.apiSecret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}
