package feed

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Upstream error conditions. Callers match with errors.Is.
var (
	// ErrUpstreamUnavailable marks a transport, auth or rate-limit failure
	// talking to the aggregator.
	ErrUpstreamUnavailable = errors.New("aggregator unavailable")

	// ErrPaginationMutation means the feed's underlying data changed while
	// paging. The sync must retry from the last persisted cursor.
	ErrPaginationMutation = errors.New("feed mutated during pagination")
)

// Transaction is one feed-side transaction record.
type Transaction struct {
	TransactionID string          `json:"transaction_id"`
	AccountID     string          `json:"account_id"`
	Amount        decimal.Decimal `json:"amount"`
	Type          string          `json:"type"`
	Date          time.Time       `json:"date"`
	Description   string          `json:"description"`
}

// RemovedTransaction identifies a transaction deleted upstream.
type RemovedTransaction struct {
	TransactionID string `json:"transaction_id"`
}

// Page is one page of incremental changes from the transaction feed.
type Page struct {
	Added      []Transaction        `json:"added"`
	Modified   []Transaction        `json:"modified"`
	Removed    []RemovedTransaction `json:"removed"`
	NextCursor string               `json:"next_cursor"`
	HasMore    bool                 `json:"has_more"`
}

// BalanceSource reports the aggregator's current balance for an account.
type BalanceSource interface {
	GetAccountBalance(ctx context.Context, accountID string) (decimal.Decimal, error)
}

// TransactionFeed pulls incremental transaction changes for a linked item.
// An empty cursor requests the full history from the beginning.
type TransactionFeed interface {
	SyncTransactions(ctx context.Context, itemID, cursor string) (*Page, error)
}
