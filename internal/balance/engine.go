package balance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/finacct/balance-service/internal/events"
	"github.com/finacct/balance-service/internal/feed"
	"github.com/finacct/balance-service/internal/models"
	"github.com/finacct/balance-service/internal/storage"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Reconciliation thresholds on |computed - external|.
var (
	reconciledTolerance = decimal.NewFromFloat(0.01)
	attentionTolerance  = decimal.NewFromInt(10)
)

// A calculation newer than this is served from the ledger unless the caller
// forces a recalculation.
const recalcStaleness = 5 * time.Minute

// AlertSender notifies an operator about a critical reconciliation discrepancy.
type AlertSender interface {
	SendDiscrepancyAlert(accountID, accountName string, computed, external, difference decimal.Decimal) error
}

// Engine derives account balances by replaying the full entry history from a
// beginning balance, reconciles them against the aggregator's reported
// balance, and persists the result on the account ledger.
type Engine struct {
	ledgers  storage.LedgerStore
	entries  storage.EntryStore
	accounts storage.LinkedAccountStore
	balances feed.BalanceSource
	sink     events.Sink
	alerts   AlertSender
	log      *logrus.Logger
}

// NewEngine initializes a balance engine. alerts may be nil when no alert
// channel is configured.
func NewEngine(
	ledgers storage.LedgerStore,
	entries storage.EntryStore,
	accounts storage.LinkedAccountStore,
	balances feed.BalanceSource,
	sink events.Sink,
	alerts AlertSender,
	log *logrus.Logger,
) *Engine {
	return &Engine{
		ledgers:  ledgers,
		entries:  entries,
		accounts: accounts,
		balances: balances,
		sink:     sink,
		alerts:   alerts,
		log:      log,
	}
}

// CalculateAccountBalance replays all entries for an account in chronological
// order from the beginning balance and persists the derived state.
func (e *Engine) CalculateAccountBalance(ctx context.Context, userID, accountID string, opts models.CalculationOptions) (*models.BalanceResult, error) {
	ledger, err := e.getOrCreateLedger(ctx, userID, accountID)
	if err != nil {
		return nil, err
	}

	// Serve a recent calculation unless the caller forces a fresh replay.
	if !opts.ForceRecalculation && opts.StartDate == nil && opts.EndDate == nil &&
		!ledger.Metadata.LastCalculationDate.IsZero() &&
		time.Since(ledger.Metadata.LastCalculationDate) < recalcStaleness {
		return resultFromLedger(ledger, opts), nil
	}

	entries, err := e.entries.EntriesByAccount(ctx, accountID, opts.StartDate, opts.EndDate)
	if err != nil {
		e.log.Errorf("Failed to load entries for user %s account %s: %v", userID, accountID, err)
		return nil, fmt.Errorf("failed to load entries: %w", err)
	}

	// Best-effort calibration of an unset beginning balance from the
	// aggregator's reported balance. Never fails the calculation.
	method := models.CalcMethodTransactionFlow
	if ledger.BeginningBalance.IsZero() && len(entries) > 0 && opts.ReconcileExternally {
		if inferred, ok := e.inferBeginningBalance(ctx, accountID, entries); ok {
			ledger.BeginningBalance = inferred
			ledger.BeginningBalanceDate = entries[0].Date
			method = models.CalcMethodExternalSync
		}
	}

	running := ledger.BeginningBalance
	income := decimal.Zero
	expenses := decimal.Zero
	var lastDate *time.Time
	for i := range entries {
		entry := entries[i]
		running = running.Add(entry.SignedAmount())
		if entry.Type == models.EntryTypeExpense {
			expenses = expenses.Add(entry.Amount)
		} else {
			income = income.Add(entry.Amount)
		}
		d := entry.Date
		lastDate = &d
	}

	now := time.Now()
	ledger.CurrentBalance = running
	ledger.LastTransactionDate = lastDate
	ledger.Metadata = models.CalculationMetadata{
		TotalTransactions:   len(entries),
		TotalIncome:         income,
		TotalExpenses:       expenses,
		LastCalculationDate: now,
		CalculationMethod:   method,
	}

	if e.shouldSnapshot(ledger, opts, now) {
		ledger.AppendSnapshot(models.BalanceSnapshot{
			Date:             now,
			Balance:          running,
			TransactionCount: len(entries),
			SnapshotType:     models.SnapshotSync,
		})
	}

	if opts.ReconcileExternally {
		e.reconcile(ctx, ledger, running)
	}

	if err := e.ledgers.SaveLedger(ctx, ledger); err != nil {
		e.log.Errorf("Failed to save ledger for user %s account %s: %v", userID, accountID, err)
		return nil, fmt.Errorf("failed to save ledger: %w", err)
	}
	e.notify(ctx, events.TypeBalanceCalculated, userID, accountID)

	return resultFromLedger(ledger, opts), nil
}

// CalculateAllUserBalances calculates every linked account for the user. One
// broken account never blocks visibility into the others.
func (e *Engine) CalculateAllUserBalances(ctx context.Context, userID string, opts models.CalculationOptions) ([]*models.BalanceResult, error) {
	accounts, err := e.accounts.AccountsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts for user %s: %w", userID, err)
	}

	results := make([]*models.BalanceResult, 0, len(accounts))
	for _, account := range accounts {
		result, err := e.CalculateAccountBalance(ctx, userID, account.AccountID, opts)
		if err != nil {
			e.log.Warnf("Skipping account %s for user %s: %v", account.AccountID, userID, err)
			continue
		}
		results = append(results, result)
	}
	return results, nil
}

// getOrCreateLedger loads the ledger for (user, account), lazily creating it
// from linked-account metadata on first use.
func (e *Engine) getOrCreateLedger(ctx context.Context, userID, accountID string) (*models.AccountLedger, error) {
	ledger, err := e.ledgers.FindLedger(ctx, userID, accountID)
	if err == nil {
		return ledger, nil
	}
	if !errors.Is(err, models.ErrLedgerNotFound) {
		return nil, fmt.Errorf("failed to load ledger: %w", err)
	}

	account, err := e.accounts.FindAccount(ctx, userID, accountID)
	if err != nil {
		return nil, fmt.Errorf("cannot seed ledger for account %s: %w", accountID, err)
	}

	now := time.Now()
	ledger = &models.AccountLedger{
		ID:                   uuid.NewString(),
		UserID:               userID,
		ItemID:               account.ItemID,
		AccountID:            accountID,
		AccountName:          account.Name,
		InstitutionName:      account.Institution,
		BeginningBalance:     decimal.Zero,
		BeginningBalanceDate: now,
		CurrentBalance:       decimal.Zero,
		Metadata: models.CalculationMetadata{
			CalculationMethod: models.CalcMethodTransactionFlow,
		},
		Reconciliation: models.ReconciliationState{
			Status: models.ReconStatusReconciled,
		},
		IsActive: true,
		Currency: account.Currency,
	}
	if err := e.ledgers.CreateLedger(ctx, ledger); err != nil {
		return nil, fmt.Errorf("failed to create ledger: %w", err)
	}
	e.log.Infof("Created ledger %s for user %s account %s", ledger.ID, userID, accountID)
	return ledger, nil
}

// inferBeginningBalance solves beginningBalance = externalBalance - sum(entries)
// from the aggregator's reported balance. Best effort only.
func (e *Engine) inferBeginningBalance(ctx context.Context, accountID string, entries []models.LedgerEntry) (decimal.Decimal, bool) {
	external, err := e.balances.GetAccountBalance(ctx, accountID)
	if err != nil {
		e.log.Warnf("Could not infer beginning balance for account %s: %v", accountID, err)
		return decimal.Zero, false
	}

	total := decimal.Zero
	for _, entry := range entries {
		total = total.Add(entry.SignedAmount())
	}
	inferred := external.Sub(total)
	e.log.Infof("Inferred beginning balance %s for account %s from reported balance %s", inferred, accountID, external)
	return inferred, true
}

// shouldSnapshot applies the snapshot policy: requested explicitly, no
// snapshot yet, or the latest snapshot is older than 24 hours.
func (e *Engine) shouldSnapshot(ledger *models.AccountLedger, opts models.CalculationOptions, now time.Time) bool {
	if opts.IncludeSnapshots {
		return true
	}
	last := ledger.LastSnapshot()
	if last == nil {
		return true
	}
	return now.Sub(last.Date) > 24*time.Hour
}

// reconcile compares the computed balance against the aggregator's reported
// balance and records the outcome on the ledger. Every failure degrades to a
// status value; this never returns an error.
func (e *Engine) reconcile(ctx context.Context, ledger *models.AccountLedger, computed decimal.Decimal) {
	now := time.Now()
	ledger.Reconciliation.LastReconciliationDate = &now

	external, err := e.balances.GetAccountBalance(ctx, ledger.AccountID)
	if err != nil {
		// No information is not a critical mismatch.
		ledger.Reconciliation.Status = models.ReconStatusNeedsAttention
		ledger.Reconciliation.ExternalBalance = nil
		ledger.Reconciliation.BalanceDifference = nil
		ledger.Reconciliation.FailureReason = err.Error()
		e.log.Warnf("Reconciliation skipped for account %s: %v", ledger.AccountID, err)
		return
	}

	difference := computed.Sub(external).Abs()
	ledger.Reconciliation.ExternalBalance = &external
	ledger.Reconciliation.BalanceDifference = &difference
	ledger.Reconciliation.FailureReason = ""

	switch {
	case difference.Cmp(reconciledTolerance) <= 0:
		ledger.Reconciliation.Status = models.ReconStatusReconciled
		ledger.Reconciliation.DiscrepancyCount = 0
	case difference.Cmp(attentionTolerance) <= 0:
		ledger.Reconciliation.Status = models.ReconStatusNeedsAttention
		ledger.Reconciliation.DiscrepancyCount++
	default:
		ledger.Reconciliation.Status = models.ReconStatusCritical
		ledger.Reconciliation.DiscrepancyCount++
		e.log.Errorf("Critical discrepancy on account %s: computed %s, reported %s", ledger.AccountID, computed, external)
		if e.alerts != nil {
			if err := e.alerts.SendDiscrepancyAlert(ledger.AccountID, ledger.AccountName, computed, external, difference); err != nil {
				e.log.Warnf("Failed to alert on account %s: %v", ledger.AccountID, err)
			}
		}
	}
}

// notify publishes a fire-and-forget change notification.
func (e *Engine) notify(ctx context.Context, eventType, userID, accountID string) {
	event := events.Event{
		Type:       eventType,
		UserID:     userID,
		AccountID:  accountID,
		OccurredAt: time.Now(),
	}
	if err := e.sink.Publish(ctx, event); err != nil {
		e.log.Warnf("Failed to publish %s event for account %s: %v", eventType, accountID, err)
	}
}

func resultFromLedger(ledger *models.AccountLedger, opts models.CalculationOptions) *models.BalanceResult {
	result := &models.BalanceResult{
		AccountID:           ledger.AccountID,
		Currency:            ledger.Currency,
		CurrentBalance:      ledger.CurrentBalance,
		BeginningBalance:    ledger.BeginningBalance,
		PeriodIncome:        ledger.Metadata.TotalIncome,
		PeriodExpenses:      ledger.Metadata.TotalExpenses,
		TransactionCount:    ledger.Metadata.TotalTransactions,
		LastTransactionDate: ledger.LastTransactionDate,
		CalculationDate:     ledger.Metadata.LastCalculationDate,
	}
	if opts.ReconcileExternally {
		recon := ledger.Reconciliation
		result.Reconciliation = &recon
	}
	if opts.IncludeSnapshots {
		result.Snapshots = append([]models.BalanceSnapshot(nil), ledger.Snapshots...)
	}
	return result
}
