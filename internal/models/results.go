package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CalculationOptions controls a single balance calculation.
type CalculationOptions struct {
	StartDate           *time.Time
	EndDate             *time.Time
	ForceRecalculation  bool
	IncludeSnapshots    bool
	ReconcileExternally bool
}

// DefaultCalculationOptions matches the common calculation path: reconcile
// against the aggregator, no date bounds, no snapshot payload in the result.
func DefaultCalculationOptions() CalculationOptions {
	return CalculationOptions{ReconcileExternally: true}
}

// BalanceResult is the outcome of one account balance calculation.
type BalanceResult struct {
	AccountID           string               `json:"account_id"`
	Currency            string               `json:"currency"`
	CurrentBalance      decimal.Decimal      `json:"current_balance"`
	BeginningBalance    decimal.Decimal      `json:"beginning_balance"`
	PeriodIncome        decimal.Decimal      `json:"period_income"`
	PeriodExpenses      decimal.Decimal      `json:"period_expenses"`
	TransactionCount    int                  `json:"transaction_count"`
	LastTransactionDate *time.Time           `json:"last_transaction_date,omitempty"`
	CalculationDate     time.Time            `json:"calculation_date"`
	Reconciliation      *ReconciliationState `json:"reconciliation,omitempty"`
	Snapshots           []BalanceSnapshot    `json:"historical_snapshots,omitempty"`
}

// DailyBalance is the balance at the end of one calendar day.
type DailyBalance struct {
	Date             time.Time       `json:"date"`
	Balance          decimal.Decimal `json:"balance"`
	TransactionCount int             `json:"transaction_count"`
}

// DateRangeResult answers a date-range balance query.
type DateRangeResult struct {
	AccountID        string          `json:"account_id"`
	StartDate        time.Time       `json:"start_date"`
	EndDate          time.Time       `json:"end_date"`
	StartingBalance  decimal.Decimal `json:"starting_balance"`
	EndingBalance    decimal.Decimal `json:"ending_balance"`
	PeriodIncome     decimal.Decimal `json:"period_income"`
	PeriodExpenses   decimal.Decimal `json:"period_expenses"`
	NetChange        decimal.Decimal `json:"net_change"`
	TransactionCount int             `json:"transaction_count"`
	DailyBalances    []DailyBalance  `json:"daily_balances"`
}

// HistoryFilter bounds a snapshot history query.
type HistoryFilter struct {
	From         *time.Time
	To           *time.Time
	SnapshotType string
}

// SyncResult summarizes one completed item sync.
type SyncResult struct {
	ItemID             string    `json:"item_id"`
	Added              int       `json:"added"`
	Modified           int       `json:"modified"`
	Removed            int       `json:"removed"`
	Pages              int       `json:"pages"`
	AccountsRecalced   int       `json:"accounts_recalculated"`
	AccountsFailed     int       `json:"accounts_failed"`
	CompletedAt        time.Time `json:"completed_at"`
}
