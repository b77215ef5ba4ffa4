package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"journal/internal/domain"
)

// maxErrorSamples bounds the per-record error list in a Summary so that a
// large malformed batch cannot blow up the sync response.
const maxErrorSamples = 10

// TradeStore is the slice of the persistence layer the reconciler needs.
type TradeStore interface {
	// HasExternalID reports whether a trade with the given external id
	// already exists for the account, soft-deleted rows included.
	HasExternalID(ctx context.Context, accountID, externalID string) (bool, error)
	// InsertTrade persists a trade. Returns false without error when the
	// external id already exists (unique-constraint conflict).
	InsertTrade(ctx context.Context, trade *domain.Trade) (bool, error)
}

// RecordError describes one skipped record.
type RecordError struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// Summary is the aggregate result of one reconciliation pass.
type Summary struct {
	Total    int           `json:"total"`
	Inserted int           `json:"inserted"`
	Skipped  int           `json:"skipped"`
	Errors   []RecordError `json:"errors,omitempty"`
}

func (s *Summary) addError(idx int, reason string) {
	s.Skipped++
	if len(s.Errors) < maxErrorSamples {
		s.Errors = append(s.Errors, RecordError{Index: idx, Reason: reason})
	}
}

// Reconciler turns raw upstream record batches into persisted trades without
// creating duplicates, across repeated invocations and within a single batch.
// It is safe to re-run at any time: identity-based dedup against persisted
// state (soft-deleted rows included) makes reconciliation idempotent.
type Reconciler struct {
	store     TradeStore
	accountID string
	source    string
	now       func() time.Time
	logger    zerolog.Logger
}

// New creates a Reconciler scoped to one account. source is recorded on every
// imported trade as its provenance (e.g. "bybit-testnet").
func New(store TradeStore, accountID, source string) *Reconciler {
	return &Reconciler{
		store:     store,
		accountID: accountID,
		source:    source,
		now:       time.Now,
		logger:    log.With().Str("component", "reconcile").Str("account_id", accountID).Logger(),
	}
}

// Run reconciles one batch of raw records. Upstream fetch layers issue
// multiple chunked, possibly overlapping queries, so the batch passed here
// must be the union of all chunks; records that collide within the batch are
// deduplicated by a seen-set before the store is consulted.
//
// A malformed record never aborts the batch: it is counted as skipped with a
// reason. Only store failures return an error, together with the partial
// summary accumulated so far (already-inserted records stay inserted; re-runs
// are idempotent).
func (r *Reconciler) Run(ctx context.Context, records []RawRecord) (Summary, error) {
	summary := Summary{Total: len(records)}
	seen := make(map[string]struct{}, len(records))

	for i, rec := range records {
		trade, err := Normalize(rec, i, r.now())
		if err != nil {
			r.logger.Debug().Int("index", i).Err(err).Msg("skipping record")
			summary.addError(i, err.Error())
			continue
		}
		trade.AccountID = r.accountID
		trade.Source = r.source

		id := *trade.ExternalID
		if _, dup := seen[id]; dup {
			summary.Skipped++
			continue
		}
		seen[id] = struct{}{}

		known, err := r.store.HasExternalID(ctx, r.accountID, id)
		if err != nil {
			return summary, fmt.Errorf("check external id %s: %w", id, err)
		}
		if known {
			summary.Skipped++
			continue
		}

		inserted, err := r.store.InsertTrade(ctx, trade)
		if err != nil {
			return summary, fmt.Errorf("insert trade %s: %w", id, err)
		}
		if !inserted {
			// Unique-constraint conflict despite the pre-check (e.g. a
			// concurrent pass): already imported, not an error.
			summary.Skipped++
			continue
		}
		summary.Inserted++
	}

	r.logger.Info().
		Int("total", summary.Total).
		Int("inserted", summary.Inserted).
		Int("skipped", summary.Skipped).
		Msg("reconciled batch")
	return summary, nil
}
