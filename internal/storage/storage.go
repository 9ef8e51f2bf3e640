package storage

import (
	"context"
	"time"

	"github.com/finacct/balance-service/internal/models"
)

// LedgerStore persists per-account balance records.
type LedgerStore interface {
	// FindLedger returns the ledger for (user, account) or models.ErrLedgerNotFound.
	FindLedger(ctx context.Context, userID, accountID string) (*models.AccountLedger, error)
	// CreateLedger inserts a new ledger record.
	CreateLedger(ctx context.Context, ledger *models.AccountLedger) error
	// SaveLedger overwrites the ledger's mutable fields and snapshot history.
	SaveLedger(ctx context.Context, ledger *models.AccountLedger) error
	// LedgersByUser returns all ledgers owned by a user.
	LedgersByUser(ctx context.Context, userID string) ([]*models.AccountLedger, error)
}

// EntryStore persists ledger entries ingested from the aggregator feed.
type EntryStore interface {
	// EntriesByAccount returns entries for an account ordered ascending by
	// date, ties broken by external id. Either bound may be nil.
	EntriesByAccount(ctx context.Context, accountID string, from, to *time.Time) ([]models.LedgerEntry, error)
	// UpsertEntry inserts or replaces an entry keyed by its external id.
	UpsertEntry(ctx context.Context, entry models.LedgerEntry) error
	// DeleteEntry removes the entry with the given external id, if present.
	DeleteEntry(ctx context.Context, externalID string) error
}

// LinkedAccountStore exposes aggregator-side account metadata and the
// per-item sync cursor.
type LinkedAccountStore interface {
	// FindAccount returns metadata for one account or models.ErrAccountNotFound.
	FindAccount(ctx context.Context, userID, accountID string) (*models.LinkedAccount, error)
	// AccountsByUser returns all active linked accounts for a user.
	AccountsByUser(ctx context.Context, userID string) ([]models.LinkedAccount, error)
	// AccountsByItem returns all active linked accounts under an item.
	AccountsByItem(ctx context.Context, itemID string) ([]models.LinkedAccount, error)
	// ActiveItems returns every active linked item across users.
	ActiveItems(ctx context.Context) ([]models.LinkedItem, error)
	// GetCursor returns the persisted sync cursor for an item ("" if never synced).
	GetCursor(ctx context.Context, itemID string) (string, error)
	// SaveCursor durably advances the sync cursor for an item.
	SaveCursor(ctx context.Context, itemID, cursor string) error
}
