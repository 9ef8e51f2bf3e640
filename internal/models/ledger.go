package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Calculation methods recorded in the ledger's audit metadata.
const (
	CalcMethodTransactionFlow  = "transaction_flow"
	CalcMethodExternalSync     = "external_sync"
	CalcMethodManualAdjustment = "manual_adjustment"
)

// Snapshot types.
const (
	SnapshotDaily   = "daily"
	SnapshotWeekly  = "weekly"
	SnapshotMonthly = "monthly"
	SnapshotSync    = "sync"
	SnapshotManual  = "manual"
)

// Reconciliation statuses.
const (
	ReconStatusReconciled     = "reconciled"
	ReconStatusNeedsAttention = "needs_attention"
	ReconStatusCritical       = "critical"
)

// MaxSnapshots caps the per-ledger snapshot history; oldest entries are evicted.
const MaxSnapshots = 365

// BalanceSnapshot is a point-in-time balance record kept for historical queries.
type BalanceSnapshot struct {
	Date             time.Time       `json:"date"`
	Balance          decimal.Decimal `json:"balance"`
	TransactionCount int             `json:"transaction_count"`
	SnapshotType     string          `json:"snapshot_type"`
}

// CalculationMetadata records how CurrentBalance was last derived.
type CalculationMetadata struct {
	TotalTransactions   int             `json:"total_transactions"`
	TotalIncome         decimal.Decimal `json:"total_income"`
	TotalExpenses       decimal.Decimal `json:"total_expenses"`
	LastCalculationDate time.Time       `json:"last_calculation_date"`
	CalculationMethod   string          `json:"calculation_method"`
}

// ReconciliationState is the outcome of the last reconciliation against the
// aggregator's reported balance. It is stale between reconciliations.
type ReconciliationState struct {
	Status                 string           `json:"status"`
	LastReconciliationDate *time.Time       `json:"last_reconciliation_date,omitempty"`
	DiscrepancyCount       int              `json:"discrepancy_count"`
	ExternalBalance        *decimal.Decimal `json:"external_balance,omitempty"`
	BalanceDifference      *decimal.Decimal `json:"balance_difference,omitempty"`
	FailureReason          string           `json:"failure_reason,omitempty"`
}

// AccountLedger is the persisted balance record for one external bank account.
// Unique per (user, external account id).
type AccountLedger struct {
	ID                   string              `json:"id"`
	UserID               string              `json:"user_id"`
	ItemID               string              `json:"item_id"`
	AccountID            string              `json:"account_id"`
	AccountName          string              `json:"account_name"`
	InstitutionName      string              `json:"institution_name"`
	BeginningBalance     decimal.Decimal     `json:"beginning_balance"`
	BeginningBalanceDate time.Time           `json:"beginning_balance_date"`
	CurrentBalance       decimal.Decimal     `json:"current_balance"`
	LastTransactionDate  *time.Time          `json:"last_transaction_date,omitempty"`
	Metadata             CalculationMetadata `json:"calculation_metadata"`
	Snapshots            []BalanceSnapshot   `json:"historical_snapshots"`
	Reconciliation       ReconciliationState `json:"reconciliation"`
	IsActive             bool                `json:"is_active"`
	Currency             string              `json:"currency"`
	CreatedAt            time.Time           `json:"created_at"`
	UpdatedAt            time.Time           `json:"updated_at"`
}

// AppendSnapshot appends a snapshot, evicting the oldest entries so the
// history never holds more than MaxSnapshots records.
func (l *AccountLedger) AppendSnapshot(s BalanceSnapshot) {
	l.Snapshots = append(l.Snapshots, s)
	if len(l.Snapshots) > MaxSnapshots {
		l.Snapshots = l.Snapshots[len(l.Snapshots)-MaxSnapshots:]
	}
}

// LastSnapshot returns the most recently appended snapshot, or nil.
func (l *AccountLedger) LastSnapshot() *BalanceSnapshot {
	if len(l.Snapshots) == 0 {
		return nil
	}
	return &l.Snapshots[len(l.Snapshots)-1]
}
