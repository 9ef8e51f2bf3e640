package balance

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/finacct/balance-service/internal/events"
	"github.com/finacct/balance-service/internal/models"
	"github.com/shopspring/decimal"
)

// GetBalanceForDateRange computes the balance at both boundaries of
// [start, end], period totals from entries inside the range, and one balance
// snapshot per calendar day. The day-by-day walk is linear in days times
// entries per day; ranges are operator-bounded.
func (e *Engine) GetBalanceForDateRange(ctx context.Context, userID, accountID string, start, end time.Time) (*models.DateRangeResult, error) {
	if end.Before(start) {
		return nil, fmt.Errorf("%w: end date %s before start date %s", models.ErrValidation, end.Format("2006-01-02"), start.Format("2006-01-02"))
	}

	ledger, err := e.getOrCreateLedger(ctx, userID, accountID)
	if err != nil {
		return nil, err
	}

	// Starting balance holds everything before the range so the daily walk
	// folds each entry exactly once.
	startingBalance, err := e.balanceBefore(ctx, ledger, start)
	if err != nil {
		return nil, err
	}

	rangeEnd := endOfDay(end)
	entries, err := e.entries.EntriesByAccount(ctx, accountID, &start, &rangeEnd)
	if err != nil {
		return nil, fmt.Errorf("failed to load entries: %w", err)
	}

	income := decimal.Zero
	expenses := decimal.Zero
	byDay := make(map[string][]models.LedgerEntry)
	for _, entry := range entries {
		if entry.Type == models.EntryTypeExpense {
			expenses = expenses.Add(entry.Amount)
		} else {
			income = income.Add(entry.Amount)
		}
		day := entry.Date.Format("2006-01-02")
		byDay[day] = append(byDay[day], entry)
	}

	running := startingBalance
	var daily []models.DailyBalance
	for day := truncateDay(start); !day.After(truncateDay(end)); day = day.AddDate(0, 0, 1) {
		dayEntries := byDay[day.Format("2006-01-02")]
		for _, entry := range dayEntries {
			running = running.Add(entry.SignedAmount())
		}
		daily = append(daily, models.DailyBalance{
			Date:             day,
			Balance:          running,
			TransactionCount: len(dayEntries),
		})
	}

	return &models.DateRangeResult{
		AccountID:        accountID,
		StartDate:        start,
		EndDate:          end,
		StartingBalance:  startingBalance,
		EndingBalance:    running,
		PeriodIncome:     income,
		PeriodExpenses:   expenses,
		NetChange:        running.Sub(startingBalance),
		TransactionCount: len(entries),
		DailyBalances:    daily,
	}, nil
}

// GetBalanceHistory returns the ledger's stored snapshots, filtered and
// sorted newest first.
func (e *Engine) GetBalanceHistory(ctx context.Context, userID, accountID string, filter models.HistoryFilter) ([]models.BalanceSnapshot, error) {
	ledger, err := e.ledgers.FindLedger(ctx, userID, accountID)
	if err != nil {
		return nil, err
	}

	snapshots := make([]models.BalanceSnapshot, 0, len(ledger.Snapshots))
	for _, snap := range ledger.Snapshots {
		if filter.From != nil && snap.Date.Before(*filter.From) {
			continue
		}
		if filter.To != nil && snap.Date.After(*filter.To) {
			continue
		}
		if filter.SnapshotType != "" && snap.SnapshotType != filter.SnapshotType {
			continue
		}
		snapshots = append(snapshots, snap)
	}
	sort.SliceStable(snapshots, func(i, j int) bool {
		return snapshots[i].Date.After(snapshots[j].Date)
	})
	return snapshots, nil
}

// SetBeginningBalance overwrites the replay anchor, records a manual snapshot
// and forces a recalculation so the current balance reflects the new anchor
// immediately. The account must have been synced at least once.
func (e *Engine) SetBeginningBalance(ctx context.Context, userID, accountID string, value decimal.Decimal, effectiveDate time.Time) (*models.BalanceResult, error) {
	ledger, err := e.ledgers.FindLedger(ctx, userID, accountID)
	if err != nil {
		return nil, err
	}

	if effectiveDate.IsZero() {
		effectiveDate = time.Now()
	}
	ledger.BeginningBalance = value
	ledger.BeginningBalanceDate = effectiveDate
	ledger.Metadata.CalculationMethod = models.CalcMethodManualAdjustment
	ledger.AppendSnapshot(models.BalanceSnapshot{
		Date:             time.Now(),
		Balance:          value,
		TransactionCount: ledger.Metadata.TotalTransactions,
		SnapshotType:     models.SnapshotManual,
	})

	if err := e.ledgers.SaveLedger(ctx, ledger); err != nil {
		return nil, fmt.Errorf("failed to save beginning balance: %w", err)
	}
	e.log.Infof("Beginning balance for user %s account %s set to %s", userID, accountID, value)
	e.notify(ctx, events.TypeBeginningBalanceSet, userID, accountID)

	result, err := e.CalculateAccountBalance(ctx, userID, accountID, models.CalculationOptions{
		ForceRecalculation:  true,
		ReconcileExternally: true,
	})
	if err != nil {
		return nil, err
	}
	// The forced replay runs from the new anchor; keep the manual method in
	// the audit trail.
	if err := e.markManualAdjustment(ctx, userID, accountID); err != nil {
		e.log.Warnf("Failed to mark manual adjustment for account %s: %v", accountID, err)
	}
	return result, nil
}

func (e *Engine) markManualAdjustment(ctx context.Context, userID, accountID string) error {
	ledger, err := e.ledgers.FindLedger(ctx, userID, accountID)
	if err != nil {
		return err
	}
	ledger.Metadata.CalculationMethod = models.CalcMethodManualAdjustment
	return e.ledgers.SaveLedger(ctx, ledger)
}

// balanceBefore replays every entry strictly before the boundary date.
func (e *Engine) balanceBefore(ctx context.Context, ledger *models.AccountLedger, boundary time.Time) (decimal.Decimal, error) {
	cutoff := boundary.Add(-time.Nanosecond)
	entries, err := e.entries.EntriesByAccount(ctx, ledger.AccountID, nil, &cutoff)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to load entries before %s: %w", boundary.Format("2006-01-02"), err)
	}
	balance := ledger.BeginningBalance
	for _, entry := range entries {
		balance = balance.Add(entry.SignedAmount())
	}
	return balance, nil
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func endOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 999999999, t.Location())
}
