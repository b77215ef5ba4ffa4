package domain

import (
	"strings"
	"time"
)

// AccountType represents the type of trading account.
type AccountType string

const (
	AccountTypeLive   AccountType = "live"
	AccountTypePaper  AccountType = "paper"
	AccountTypeManual AccountType = "manual"
)

// Side represents the trade direction.
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// TradeStatus represents the lifecycle status of a trade.
type TradeStatus string

const (
	TradeStatusOpen   TradeStatus = "open"
	TradeStatusClosed TradeStatus = "closed"
)

// Account represents a journal account scope. Imported trades are keyed to
// the account they were fetched for, manual entries to "manual".
type Account struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Type      AccountType `json:"type"`
	CreatedAt time.Time   `json:"created_at"`
}

// Trade is a single journaled trade. Exit fields and pnl are nil while the
// trade is open; only closed trades with a non-nil pnl enter statistics.
type Trade struct {
	ID         int64       `json:"id"`
	ExternalID *string     `json:"external_id,omitempty"`
	AccountID  string      `json:"account_id"`
	Symbol     string      `json:"symbol"`
	Side       Side        `json:"side"`
	Quantity   float64     `json:"quantity"`
	EntryPrice float64     `json:"entry_price"`
	ExitPrice  *float64    `json:"exit_price,omitempty"`
	PnL        *float64    `json:"pnl,omitempty"`
	PnLPercent *float64    `json:"pnl_percent,omitempty"`
	Fee        float64     `json:"fee"`
	Status     TradeStatus `json:"status"`
	EntryTime  time.Time   `json:"entry_time"`
	ExitTime   *time.Time  `json:"exit_time,omitempty"`

	// Annotation fields attached by the trader after the fact.
	Strategy     string `json:"strategy,omitempty"`
	Bias         string `json:"bias,omitempty"`
	KeyLevel     string `json:"key_level,omitempty"`
	Confirmation string `json:"confirmation,omitempty"`
	Notes        string `json:"notes,omitempty"`

	Source    string    `json:"source"`
	Deleted   bool      `json:"deleted,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// CountsForStats reports whether the trade enters aggregate statistics.
func (t *Trade) CountsForStats() bool {
	return t.Status == TradeStatusClosed && t.PnL != nil && !t.Deleted
}

// PnLPercent computes realized pnl as a percentage of position value.
// Returns 0 when the position value is zero.
func PnLPercent(pnl, entryPrice, quantity float64) float64 {
	value := entryPrice * quantity
	if value == 0 {
		return 0
	}
	return pnl / value * 100
}

// NormalizeSide maps exchange side vocabulary to the canonical Side.
// Returns false for unrecognized values.
func NormalizeSide(s string) (Side, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "buy", "long":
		return SideLong, true
	case "sell", "short":
		return SideShort, true
	}
	return "", false
}

// InferAccountType returns the account type based on the account ID.
func InferAccountType(accountID string) AccountType {
	switch {
	case accountID == "manual":
		return AccountTypeManual
	case strings.HasSuffix(accountID, "-testnet"):
		return AccountTypePaper
	}
	return AccountTypeLive
}
