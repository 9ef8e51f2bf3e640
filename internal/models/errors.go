package models

import "errors"

// Sentinel errors for the ledger domain. Callers match with errors.Is.
var (
	// ErrLedgerNotFound means no ledger record exists for the (user, account)
	// pair and the operation requires one.
	ErrLedgerNotFound = errors.New("account ledger not found")

	// ErrAccountNotFound means no linked-account metadata exists to seed a
	// ledger for the requested account.
	ErrAccountNotFound = errors.New("linked account not found")

	// ErrItemNotFound means no linked item exists for the requested id.
	ErrItemNotFound = errors.New("linked item not found")

	// ErrValidation marks caller-supplied input that fails validation.
	ErrValidation = errors.New("validation error")
)
