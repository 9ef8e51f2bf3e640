package balance

import (
	"context"
	"testing"
	"time"

	"github.com/finacct/balance-service/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(t *testing.T, value string) time.Time {
	t.Helper()
	d, err := time.Parse("2006-01-02", value)
	require.NoError(t, err)
	return d
}

func TestGetBalanceForDateRange(t *testing.T) {
	engine, store, _ := newTestEngine(t, &stubBalanceSource{})
	seedAccount(store, "user-1", "acc-1")
	addEntry(t, store, "acc-1", "tx-1", models.EntryTypeIncome, "500", "2024-01-05")
	addEntry(t, store, "acc-1", "tx-2", models.EntryTypeExpense, "200", "2024-01-10")
	addEntry(t, store, "acc-1", "tx-3", models.EntryTypeIncome, "300", "2024-01-20")

	result, err := engine.GetBalanceForDateRange(context.Background(), "user-1", "acc-1",
		date(t, "2024-01-01"), date(t, "2024-01-15"))
	require.NoError(t, err)

	assert.True(t, result.StartingBalance.IsZero(), "starting balance, got %s", result.StartingBalance)
	assert.True(t, result.EndingBalance.Equal(decimal.NewFromInt(300)), "ending balance, got %s", result.EndingBalance)
	assert.True(t, result.PeriodIncome.Equal(decimal.NewFromInt(500)))
	assert.True(t, result.PeriodExpenses.Equal(decimal.NewFromInt(200)))
	assert.True(t, result.NetChange.Equal(decimal.NewFromInt(300)))
	assert.Equal(t, 2, result.TransactionCount)

	// One snapshot per calendar day in the range.
	require.Len(t, result.DailyBalances, 15)
	assert.True(t, result.DailyBalances[0].Balance.IsZero())
	assert.True(t, result.DailyBalances[4].Balance.Equal(decimal.NewFromInt(500)), "Jan 5 balance")
	assert.True(t, result.DailyBalances[9].Balance.Equal(decimal.NewFromInt(300)), "Jan 10 balance")
	assert.True(t, result.DailyBalances[14].Balance.Equal(decimal.NewFromInt(300)), "Jan 15 balance")
	assert.Equal(t, 1, result.DailyBalances[4].TransactionCount)
	assert.Equal(t, 0, result.DailyBalances[14].TransactionCount)
}

func TestGetBalanceForDateRange_SeedsFromEarlierEntries(t *testing.T) {
	engine, store, _ := newTestEngine(t, &stubBalanceSource{})
	seedAccount(store, "user-1", "acc-1")
	addEntry(t, store, "acc-1", "tx-0", models.EntryTypeIncome, "1000", "2023-12-01")
	addEntry(t, store, "acc-1", "tx-1", models.EntryTypeExpense, "100", "2024-01-05")

	result, err := engine.GetBalanceForDateRange(context.Background(), "user-1", "acc-1",
		date(t, "2024-01-01"), date(t, "2024-01-10"))
	require.NoError(t, err)

	assert.True(t, result.StartingBalance.Equal(decimal.NewFromInt(1000)))
	assert.True(t, result.EndingBalance.Equal(decimal.NewFromInt(900)))
	assert.Equal(t, 1, result.TransactionCount)
}

func TestGetBalanceForDateRange_InvalidRange(t *testing.T) {
	engine, store, _ := newTestEngine(t, &stubBalanceSource{})
	seedAccount(store, "user-1", "acc-1")

	_, err := engine.GetBalanceForDateRange(context.Background(), "user-1", "acc-1",
		date(t, "2024-02-01"), date(t, "2024-01-01"))
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestGetBalanceHistory_NotFound(t *testing.T) {
	engine, _, _ := newTestEngine(t, &stubBalanceSource{})

	_, err := engine.GetBalanceHistory(context.Background(), "user-1", "acc-1", models.HistoryFilter{})
	assert.ErrorIs(t, err, models.ErrLedgerNotFound)
}

func TestGetBalanceHistory_FiltersAndSorts(t *testing.T) {
	engine, store, _ := newTestEngine(t, &stubBalanceSource{})
	seedAccount(store, "user-1", "acc-1")

	ledger := &models.AccountLedger{
		ID:        "ledger-1",
		UserID:    "user-1",
		ItemID:    "item-1",
		AccountID: "acc-1",
		IsActive:  true,
		Currency:  "USD",
	}
	ledger.AppendSnapshot(models.BalanceSnapshot{Date: date(t, "2024-01-01"), Balance: decimal.NewFromInt(10), SnapshotType: models.SnapshotSync})
	ledger.AppendSnapshot(models.BalanceSnapshot{Date: date(t, "2024-01-15"), Balance: decimal.NewFromInt(20), SnapshotType: models.SnapshotManual})
	ledger.AppendSnapshot(models.BalanceSnapshot{Date: date(t, "2024-02-01"), Balance: decimal.NewFromInt(30), SnapshotType: models.SnapshotSync})
	require.NoError(t, store.CreateLedger(context.Background(), ledger))

	all, err := engine.GetBalanceHistory(context.Background(), "user-1", "acc-1", models.HistoryFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.True(t, all[0].Date.After(all[1].Date), "newest first")
	assert.True(t, all[1].Date.After(all[2].Date))

	from := date(t, "2024-01-10")
	to := date(t, "2024-01-31")
	bounded, err := engine.GetBalanceHistory(context.Background(), "user-1", "acc-1", models.HistoryFilter{From: &from, To: &to})
	require.NoError(t, err)
	require.Len(t, bounded, 1)
	assert.True(t, bounded[0].Balance.Equal(decimal.NewFromInt(20)))

	syncOnly, err := engine.GetBalanceHistory(context.Background(), "user-1", "acc-1", models.HistoryFilter{SnapshotType: models.SnapshotSync})
	require.NoError(t, err)
	assert.Len(t, syncOnly, 2)
}

func TestSetBeginningBalance_RequiresLedger(t *testing.T) {
	engine, store, _ := newTestEngine(t, &stubBalanceSource{})
	seedAccount(store, "user-1", "acc-1")

	_, err := engine.SetBeginningBalance(context.Background(), "user-1", "acc-1", decimal.NewFromInt(100), time.Time{})
	assert.ErrorIs(t, err, models.ErrLedgerNotFound)
}

func TestSetBeginningBalance(t *testing.T) {
	source := &stubBalanceSource{balance: decimal.NewFromInt(1250)}
	engine, store, _ := newTestEngine(t, source)
	seedAccount(store, "user-1", "acc-1")
	addEntry(t, store, "acc-1", "tx-1", models.EntryTypeIncome, "250", "2024-01-05")

	// First sync-driven calculation creates the ledger.
	_, err := engine.CalculateAccountBalance(context.Background(), "user-1", "acc-1", models.CalculationOptions{})
	require.NoError(t, err)

	result, err := engine.SetBeginningBalance(context.Background(), "user-1", "acc-1",
		decimal.NewFromInt(1000), date(t, "2023-06-01"))
	require.NoError(t, err)

	assert.True(t, result.BeginningBalance.Equal(decimal.NewFromInt(1000)))
	assert.True(t, result.CurrentBalance.Equal(decimal.NewFromInt(1250)), "anchor applied immediately, got %s", result.CurrentBalance)

	ledger, err := store.FindLedger(context.Background(), "user-1", "acc-1")
	require.NoError(t, err)
	assert.Equal(t, models.CalcMethodManualAdjustment, ledger.Metadata.CalculationMethod)
	assert.Equal(t, "2023-06-01", ledger.BeginningBalanceDate.Format("2006-01-02"))

	var manual int
	for _, snap := range ledger.Snapshots {
		if snap.SnapshotType == models.SnapshotManual {
			manual++
		}
	}
	assert.Equal(t, 1, manual, "one manual snapshot recorded")
}
