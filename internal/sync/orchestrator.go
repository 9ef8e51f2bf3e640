package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/finacct/balance-service/internal/balance"
	"github.com/finacct/balance-service/internal/events"
	"github.com/finacct/balance-service/internal/feed"
	"github.com/finacct/balance-service/internal/models"
	"github.com/finacct/balance-service/internal/storage"
	"github.com/sirupsen/logrus"
)

// After this many consecutive pagination-mutation conflicts the sync attempt
// gives up; the next run resumes from the last persisted cursor.
const maxMutationRetries = 5

// Orchestrator drives incremental ingestion of feed transactions and triggers
// balance recalculation once a sync completes.
type Orchestrator struct {
	feed     feed.TransactionFeed
	entries  storage.EntryStore
	accounts storage.LinkedAccountStore
	engine   *balance.Engine
	sink     events.Sink
	log      *logrus.Logger
}

// NewOrchestrator initializes a sync orchestrator.
func NewOrchestrator(
	transactionFeed feed.TransactionFeed,
	entries storage.EntryStore,
	accounts storage.LinkedAccountStore,
	engine *balance.Engine,
	sink events.Sink,
	log *logrus.Logger,
) *Orchestrator {
	return &Orchestrator{
		feed:     transactionFeed,
		entries:  entries,
		accounts: accounts,
		engine:   engine,
		sink:     sink,
		log:      log,
	}
}

// SyncItem pulls all pending transaction changes for one linked item. The
// cursor is persisted only after a page is fully applied, so an interrupted
// sync resumes from the last durable checkpoint. On a mutation-during-
// pagination conflict the in-flight advance is discarded and pagination
// restarts from that checkpoint.
func (o *Orchestrator) SyncItem(ctx context.Context, userID, itemID string) (*models.SyncResult, error) {
	cursor, err := o.accounts.GetCursor(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to load cursor for item %s: %w", itemID, err)
	}

	result := &models.SyncResult{ItemID: itemID}
	retries := 0
	for {
		page, err := o.feed.SyncTransactions(ctx, itemID, cursor)
		if errors.Is(err, feed.ErrPaginationMutation) {
			retries++
			if retries > maxMutationRetries {
				return nil, fmt.Errorf("sync aborted after %d pagination conflicts on item %s: %w", retries-1, itemID, err)
			}
			cursor, err = o.accounts.GetCursor(ctx, itemID)
			if err != nil {
				return nil, fmt.Errorf("failed to reload cursor for item %s: %w", itemID, err)
			}
			o.log.Warnf("Feed mutated during pagination for item %s, retrying from persisted cursor (attempt %d)", itemID, retries)
			continue
		}
		if err != nil {
			// Already-applied pages stay committed; the next sync resumes
			// from the persisted cursor.
			return nil, fmt.Errorf("sync failed for item %s: %w", itemID, err)
		}
		retries = 0

		if err := o.applyPage(ctx, page); err != nil {
			return nil, err
		}
		if err := o.accounts.SaveCursor(ctx, itemID, page.NextCursor); err != nil {
			return nil, fmt.Errorf("failed to persist cursor for item %s: %w", itemID, err)
		}
		cursor = page.NextCursor

		result.Pages++
		result.Added += len(page.Added)
		result.Modified += len(page.Modified)
		result.Removed += len(page.Removed)
		if !page.HasMore {
			break
		}
	}

	o.recalculateItem(ctx, itemID, result)
	result.CompletedAt = time.Now()

	event := events.Event{
		Type:       events.TypeSyncCompleted,
		UserID:     userID,
		ItemID:     itemID,
		OccurredAt: result.CompletedAt,
	}
	if err := o.sink.Publish(ctx, event); err != nil {
		o.log.Warnf("Failed to publish sync event for item %s: %v", itemID, err)
	}

	o.log.Infof("Sync completed for item %s: %d added, %d modified, %d removed over %d pages",
		itemID, result.Added, result.Modified, result.Removed, result.Pages)
	return result, nil
}

// SyncAllItems syncs every active linked item, continuing past per-item
// failures. Used by the background schedule.
func (o *Orchestrator) SyncAllItems(ctx context.Context) {
	items, err := o.accounts.ActiveItems(ctx)
	if err != nil {
		o.log.Errorf("Failed to list items for scheduled sync: %v", err)
		return
	}
	for _, item := range items {
		if _, err := o.SyncItem(ctx, item.UserID, item.ID); err != nil {
			o.log.Errorf("Scheduled sync failed for item %s: %v", item.ID, err)
		}
	}
}

// applyPage upserts added and modified entries and hard-deletes removed ones.
// Upserts are idempotent on the external transaction id, so a re-delivered
// page never double-counts.
func (o *Orchestrator) applyPage(ctx context.Context, page *feed.Page) error {
	for _, tx := range page.Added {
		if err := o.entries.UpsertEntry(ctx, entryFromFeed(tx)); err != nil {
			return fmt.Errorf("failed to apply added transaction %s: %w", tx.TransactionID, err)
		}
	}
	for _, tx := range page.Modified {
		if err := o.entries.UpsertEntry(ctx, entryFromFeed(tx)); err != nil {
			return fmt.Errorf("failed to apply modified transaction %s: %w", tx.TransactionID, err)
		}
	}
	for _, removed := range page.Removed {
		if err := o.entries.DeleteEntry(ctx, removed.TransactionID); err != nil {
			return fmt.Errorf("failed to remove transaction %s: %w", removed.TransactionID, err)
		}
	}
	return nil
}

// recalculateItem force-recalculates every account under the item. Failures
// are logged, never rolled back: the next calculation self-heals by replaying
// from scratch.
func (o *Orchestrator) recalculateItem(ctx context.Context, itemID string, result *models.SyncResult) {
	accounts, err := o.accounts.AccountsByItem(ctx, itemID)
	if err != nil {
		o.log.Errorf("Failed to list accounts for item %s after sync: %v", itemID, err)
		return
	}

	opts := models.CalculationOptions{
		ForceRecalculation:  true,
		IncludeSnapshots:    true,
		ReconcileExternally: true,
	}
	for _, account := range accounts {
		if _, err := o.engine.CalculateAccountBalance(ctx, account.UserID, account.AccountID, opts); err != nil {
			result.AccountsFailed++
			o.log.Errorf("Post-sync recalculation failed for account %s: %v", account.AccountID, err)
			continue
		}
		result.AccountsRecalced++
	}
}

func entryFromFeed(tx feed.Transaction) models.LedgerEntry {
	entryType := models.EntryTypeIncome
	if tx.Type == models.EntryTypeExpense || tx.Amount.IsNegative() {
		entryType = models.EntryTypeExpense
	}
	return models.LedgerEntry{
		ExternalID:  tx.TransactionID,
		AccountID:   tx.AccountID,
		Type:        entryType,
		Amount:      tx.Amount.Abs(),
		Date:        tx.Date,
		Description: tx.Description,
	}
}
