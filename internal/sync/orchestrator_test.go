package sync

import (
	"context"
	"testing"
	"time"

	"github.com/finacct/balance-service/internal/balance"
	"github.com/finacct/balance-service/internal/events"
	"github.com/finacct/balance-service/internal/feed"
	"github.com/finacct/balance-service/internal/models"
	"github.com/finacct/balance-service/internal/storage/memory"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type feedResponse struct {
	page *feed.Page
	err  error
}

// scriptedFeed returns queued responses per cursor and records every cursor
// it was called with. The last response for a cursor is sticky.
type scriptedFeed struct {
	responses map[string][]feedResponse
	cursors   []string
}

func (f *scriptedFeed) SyncTransactions(ctx context.Context, itemID, cursor string) (*feed.Page, error) {
	f.cursors = append(f.cursors, cursor)
	queue := f.responses[cursor]
	if len(queue) == 0 {
		return &feed.Page{NextCursor: cursor, HasMore: false}, nil
	}
	resp := queue[0]
	if len(queue) > 1 {
		f.responses[cursor] = queue[1:]
	}
	return resp.page, resp.err
}

type stubBalanceSource struct {
	balance decimal.Decimal
}

func (s *stubBalanceSource) GetAccountBalance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	return s.balance, nil
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func feedTx(id, accountID, entryType, amount, date string) feed.Transaction {
	d, _ := time.Parse("2006-01-02", date)
	return feed.Transaction{
		TransactionID: id,
		AccountID:     accountID,
		Type:          entryType,
		Amount:        decimal.RequireFromString(amount),
		Date:          d,
	}
}

func newTestOrchestrator(t *testing.T, script *scriptedFeed, reported string) (*Orchestrator, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	store.AddLinkedItem(models.LinkedItem{ID: "item-1", UserID: "user-1", IsActive: true})
	store.AddLinkedAccount(models.LinkedAccount{
		AccountID: "acc-1", ItemID: "item-1", UserID: "user-1",
		Name: "Checking", Currency: "USD", IsActive: true,
	})
	source := &stubBalanceSource{balance: decimal.RequireFromString(reported)}
	engine := balance.NewEngine(store, store, store, source, events.NoopSink{}, nil, testLogger())
	return NewOrchestrator(script, store, store, engine, events.NoopSink{}, testLogger()), store
}

func TestSyncItem(t *testing.T) {
	script := &scriptedFeed{responses: map[string][]feedResponse{
		"": {{page: &feed.Page{
			Added:      []feed.Transaction{feedTx("tx-1", "acc-1", models.EntryTypeIncome, "100", "2024-01-05")},
			NextCursor: "c1",
			HasMore:    true,
		}}},
		"c1": {{page: &feed.Page{
			Added:      []feed.Transaction{feedTx("tx-2", "acc-1", models.EntryTypeExpense, "40", "2024-01-08")},
			NextCursor: "c2",
			HasMore:    false,
		}}},
	}}
	orchestrator, store := newTestOrchestrator(t, script, "60")

	result, err := orchestrator.SyncItem(context.Background(), "user-1", "item-1")
	require.NoError(t, err)

	assert.Equal(t, 2, result.Added)
	assert.Equal(t, 2, result.Pages)
	assert.Equal(t, 1, result.AccountsRecalced)
	assert.Equal(t, 0, result.AccountsFailed)

	cursor, err := store.GetCursor(context.Background(), "item-1")
	require.NoError(t, err)
	assert.Equal(t, "c2", cursor)

	// Post-sync recalculation folded both entries and reconciled cleanly.
	ledger, err := store.FindLedger(context.Background(), "user-1", "acc-1")
	require.NoError(t, err)
	assert.True(t, ledger.CurrentBalance.Equal(decimal.NewFromInt(60)), "got %s", ledger.CurrentBalance)
	assert.Equal(t, models.ReconStatusReconciled, ledger.Reconciliation.Status)
	assert.NotEmpty(t, ledger.Snapshots)
}

func TestSyncItem_IdempotentRedelivery(t *testing.T) {
	page := &feed.Page{
		Added:      []feed.Transaction{feedTx("tx-1", "acc-1", models.EntryTypeIncome, "100", "2024-01-05")},
		NextCursor: "c1",
		HasMore:    false,
	}
	script := &scriptedFeed{responses: map[string][]feedResponse{
		"":   {{page: page}},
		"c1": {{page: page}}, // the feed re-delivers the same entries
	}}
	orchestrator, store := newTestOrchestrator(t, script, "100")

	_, err := orchestrator.SyncItem(context.Background(), "user-1", "item-1")
	require.NoError(t, err)
	_, err = orchestrator.SyncItem(context.Background(), "user-1", "item-1")
	require.NoError(t, err)

	entries, err := store.EntriesByAccount(context.Background(), "acc-1", nil, nil)
	require.NoError(t, err)
	require.Len(t, entries, 1, "re-delivered entry must not double-count")

	ledger, err := store.FindLedger(context.Background(), "user-1", "acc-1")
	require.NoError(t, err)
	assert.True(t, ledger.CurrentBalance.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, 1, ledger.Metadata.TotalTransactions)
}

func TestSyncItem_MutationRecovery(t *testing.T) {
	script := &scriptedFeed{responses: map[string][]feedResponse{
		"": {{page: &feed.Page{
			Added:      []feed.Transaction{feedTx("tx-1", "acc-1", models.EntryTypeIncome, "100", "2024-01-05")},
			NextCursor: "c1",
			HasMore:    true,
		}}},
		"c1": {
			{err: feed.ErrPaginationMutation},
			{page: &feed.Page{
				Added:      []feed.Transaction{feedTx("tx-2", "acc-1", models.EntryTypeIncome, "50", "2024-01-06")},
				NextCursor: "c2",
				HasMore:    false,
			}},
		},
	}}
	orchestrator, store := newTestOrchestrator(t, script, "150")

	result, err := orchestrator.SyncItem(context.Background(), "user-1", "item-1")
	require.NoError(t, err)

	// The retry resumed from the cursor persisted after page 1, not from the
	// initial cursor.
	assert.Equal(t, []string{"", "c1", "c1"}, script.cursors)
	assert.Equal(t, 2, result.Added)

	entries, err := store.EntriesByAccount(context.Background(), "acc-1", nil, nil)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "page 1 entries must not be duplicated")
}

func TestSyncItem_MutationRetryCap(t *testing.T) {
	script := &scriptedFeed{responses: map[string][]feedResponse{
		"": {{err: feed.ErrPaginationMutation}},
	}}
	orchestrator, _ := newTestOrchestrator(t, script, "0")

	_, err := orchestrator.SyncItem(context.Background(), "user-1", "item-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, feed.ErrPaginationMutation)
	assert.Len(t, script.cursors, maxMutationRetries+1)
}

func TestSyncItem_ModifiedAndRemoved(t *testing.T) {
	script := &scriptedFeed{responses: map[string][]feedResponse{
		"": {{page: &feed.Page{
			Added: []feed.Transaction{
				feedTx("tx-1", "acc-1", models.EntryTypeIncome, "100", "2024-01-05"),
				feedTx("tx-2", "acc-1", models.EntryTypeIncome, "20", "2024-01-06"),
			},
			NextCursor: "c1",
			HasMore:    false,
		}}},
		"c1": {{page: &feed.Page{
			Modified:   []feed.Transaction{feedTx("tx-1", "acc-1", models.EntryTypeIncome, "110", "2024-01-05")},
			Removed:    []feed.RemovedTransaction{{TransactionID: "tx-2"}},
			NextCursor: "c2",
			HasMore:    false,
		}}},
	}}
	orchestrator, store := newTestOrchestrator(t, script, "120")

	_, err := orchestrator.SyncItem(context.Background(), "user-1", "item-1")
	require.NoError(t, err)
	result, err := orchestrator.SyncItem(context.Background(), "user-1", "item-1")
	require.NoError(t, err)

	assert.Equal(t, 1, result.Modified)
	assert.Equal(t, 1, result.Removed)

	entries, err := store.EntriesByAccount(context.Background(), "acc-1", nil, nil)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Amount.Equal(decimal.NewFromInt(110)))

	ledger, err := store.FindLedger(context.Background(), "user-1", "acc-1")
	require.NoError(t, err)
	assert.True(t, ledger.CurrentBalance.Equal(decimal.NewFromInt(110)))
}

func TestSyncItem_UpstreamFailureKeepsAppliedPages(t *testing.T) {
	script := &scriptedFeed{responses: map[string][]feedResponse{
		"": {{page: &feed.Page{
			Added:      []feed.Transaction{feedTx("tx-1", "acc-1", models.EntryTypeIncome, "100", "2024-01-05")},
			NextCursor: "c1",
			HasMore:    true,
		}}},
		"c1": {{err: feed.ErrUpstreamUnavailable}},
	}}
	orchestrator, store := newTestOrchestrator(t, script, "100")

	_, err := orchestrator.SyncItem(context.Background(), "user-1", "item-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, feed.ErrUpstreamUnavailable)

	// Page 1 stays committed and the cursor points past it.
	entries, err := store.EntriesByAccount(context.Background(), "acc-1", nil, nil)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	cursor, err := store.GetCursor(context.Background(), "item-1")
	require.NoError(t, err)
	assert.Equal(t, "c1", cursor)
}
