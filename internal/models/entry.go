package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Entry types. Income increases the running balance, Expense decreases it.
const (
	EntryTypeIncome  = "income"
	EntryTypeExpense = "expense"
)

// LedgerEntry represents one transaction affecting an account's balance.
// Amount is a non-negative magnitude; the sign comes from Type.
type LedgerEntry struct {
	ExternalID  string          `json:"external_id"`
	AccountID   string          `json:"account_id"`
	Type        string          `json:"type"`
	Amount      decimal.Decimal `json:"amount"`
	Date        time.Time       `json:"date"`
	Description string          `json:"description"`
}

// SignedAmount returns the amount with the sign implied by the entry type.
func (e LedgerEntry) SignedAmount() decimal.Decimal {
	if e.Type == EntryTypeExpense {
		return e.Amount.Neg()
	}
	return e.Amount
}
