package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/finacct/balance-service/internal/models"
	"github.com/finacct/balance-service/internal/storage"
)

// Store provides database operations for ledgers, entries and linked accounts.
type Store struct {
	db *sql.DB
}

// NewStore initializes a new postgres-backed store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// FindLedger retrieves a ledger by (user, account) including its snapshot history.
func (s *Store) FindLedger(ctx context.Context, userID, accountID string) (*models.AccountLedger, error) {
	l := &models.AccountLedger{}
	query := `
		SELECT id, user_id, item_id, account_id, account_name, institution_name,
		       beginning_balance, beginning_balance_date, current_balance, last_transaction_date,
		       total_transactions, total_income, total_expenses, last_calculation_date, calculation_method,
		       recon_status, last_reconciliation_date, discrepancy_count, external_balance, balance_difference, recon_failure_reason,
		       is_active, currency, created_at, updated_at
		FROM ledger.account_ledgers
		WHERE user_id = $1 AND account_id = $2`
	var (
		lastRecon     sql.NullTime
		failureReason sql.NullString
	)
	err := s.db.QueryRowContext(ctx, query, userID, accountID).Scan(
		&l.ID, &l.UserID, &l.ItemID, &l.AccountID, &l.AccountName, &l.InstitutionName,
		&l.BeginningBalance, &l.BeginningBalanceDate, &l.CurrentBalance, &l.LastTransactionDate,
		&l.Metadata.TotalTransactions, &l.Metadata.TotalIncome, &l.Metadata.TotalExpenses,
		&l.Metadata.LastCalculationDate, &l.Metadata.CalculationMethod,
		&l.Reconciliation.Status, &lastRecon, &l.Reconciliation.DiscrepancyCount,
		&l.Reconciliation.ExternalBalance, &l.Reconciliation.BalanceDifference, &failureReason,
		&l.IsActive, &l.Currency, &l.CreatedAt, &l.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, models.ErrLedgerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find ledger: %w", err)
	}
	if lastRecon.Valid {
		l.Reconciliation.LastReconciliationDate = &lastRecon.Time
	}
	l.Reconciliation.FailureReason = failureReason.String

	if l.Snapshots, err = s.snapshotsByLedger(ctx, l.ID); err != nil {
		return nil, err
	}
	return l, nil
}

func (s *Store) snapshotsByLedger(ctx context.Context, ledgerID string) ([]models.BalanceSnapshot, error) {
	query := `
		SELECT snapshot_date, balance, transaction_count, snapshot_type
		FROM ledger.balance_snapshots
		WHERE ledger_id = $1
		ORDER BY position ASC`
	rows, err := s.db.QueryContext(ctx, query, ledgerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []models.BalanceSnapshot
	for rows.Next() {
		var snap models.BalanceSnapshot
		if err := rows.Scan(&snap.Date, &snap.Balance, &snap.TransactionCount, &snap.SnapshotType); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		snapshots = append(snapshots, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read snapshots: %w", err)
	}
	return snapshots, nil
}

// CreateLedger inserts a new ledger record.
func (s *Store) CreateLedger(ctx context.Context, l *models.AccountLedger) error {
	query := `
		INSERT INTO ledger.account_ledgers (
			id, user_id, item_id, account_id, account_name, institution_name,
			beginning_balance, beginning_balance_date, current_balance, last_transaction_date,
			total_transactions, total_income, total_expenses, last_calculation_date, calculation_method,
			recon_status, discrepancy_count, is_active, currency, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		RETURNING created_at, updated_at`
	err := s.db.QueryRowContext(ctx, query,
		l.ID, l.UserID, l.ItemID, l.AccountID, l.AccountName, l.InstitutionName,
		l.BeginningBalance, l.BeginningBalanceDate, l.CurrentBalance, l.LastTransactionDate,
		l.Metadata.TotalTransactions, l.Metadata.TotalIncome, l.Metadata.TotalExpenses,
		l.Metadata.LastCalculationDate, l.Metadata.CalculationMethod,
		l.Reconciliation.Status, l.Reconciliation.DiscrepancyCount,
		l.IsActive, l.Currency,
	).Scan(&l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create ledger: %w", err)
	}
	return nil
}

// SaveLedger overwrites the ledger's mutable fields and replaces its snapshot
// history in a single transaction, so a calculation commits fully or not at all.
func (s *Store) SaveLedger(ctx context.Context, l *models.AccountLedger) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin save: %w", err)
	}
	defer tx.Rollback()

	query := `
		UPDATE ledger.account_ledgers
		SET beginning_balance = $1, beginning_balance_date = $2, current_balance = $3,
		    last_transaction_date = $4, total_transactions = $5, total_income = $6,
		    total_expenses = $7, last_calculation_date = $8, calculation_method = $9,
		    recon_status = $10, last_reconciliation_date = $11, discrepancy_count = $12,
		    external_balance = $13, balance_difference = $14, recon_failure_reason = $15,
		    is_active = $16, updated_at = CURRENT_TIMESTAMP
		WHERE id = $17`
	res, err := tx.ExecContext(ctx, query,
		l.BeginningBalance, l.BeginningBalanceDate, l.CurrentBalance,
		l.LastTransactionDate, l.Metadata.TotalTransactions, l.Metadata.TotalIncome,
		l.Metadata.TotalExpenses, l.Metadata.LastCalculationDate, l.Metadata.CalculationMethod,
		l.Reconciliation.Status, l.Reconciliation.LastReconciliationDate, l.Reconciliation.DiscrepancyCount,
		l.Reconciliation.ExternalBalance, l.Reconciliation.BalanceDifference,
		sql.NullString{String: l.Reconciliation.FailureReason, Valid: l.Reconciliation.FailureReason != ""},
		l.IsActive, l.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to save ledger: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return models.ErrLedgerNotFound
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM ledger.balance_snapshots WHERE ledger_id = $1`, l.ID); err != nil {
		return fmt.Errorf("failed to clear snapshots: %w", err)
	}
	insert := `
		INSERT INTO ledger.balance_snapshots (ledger_id, position, snapshot_date, balance, transaction_count, snapshot_type)
		VALUES ($1, $2, $3, $4, $5, $6)`
	for i, snap := range l.Snapshots {
		if _, err := tx.ExecContext(ctx, insert, l.ID, i, snap.Date, snap.Balance, snap.TransactionCount, snap.SnapshotType); err != nil {
			return fmt.Errorf("failed to insert snapshot: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit ledger save: %w", err)
	}
	return nil
}

// LedgersByUser returns all ledgers owned by a user.
func (s *Store) LedgersByUser(ctx context.Context, userID string) ([]*models.AccountLedger, error) {
	query := `SELECT account_id FROM ledger.account_ledgers WHERE user_id = $1 ORDER BY account_id`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list ledgers: %w", err)
	}
	defer rows.Close()

	var accountIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan ledger id: %w", err)
		}
		accountIDs = append(accountIDs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read ledger ids: %w", err)
	}

	ledgers := make([]*models.AccountLedger, 0, len(accountIDs))
	for _, accountID := range accountIDs {
		l, err := s.FindLedger(ctx, userID, accountID)
		if err != nil {
			return nil, err
		}
		ledgers = append(ledgers, l)
	}
	return ledgers, nil
}

// EntriesByAccount returns entries ordered ascending by date, ties broken by
// external id so replay order is reproducible.
func (s *Store) EntriesByAccount(ctx context.Context, accountID string, from, to *time.Time) ([]models.LedgerEntry, error) {
	query := `
		SELECT external_id, account_id, entry_type, amount, entry_date, description
		FROM ledger.ledger_entries
		WHERE account_id = $1
		  AND ($2::timestamptz IS NULL OR entry_date >= $2)
		  AND ($3::timestamptz IS NULL OR entry_date <= $3)
		ORDER BY entry_date ASC, external_id ASC`
	rows, err := s.db.QueryContext(ctx, query, accountID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	var entries []models.LedgerEntry
	for rows.Next() {
		var e models.LedgerEntry
		if err := rows.Scan(&e.ExternalID, &e.AccountID, &e.Type, &e.Amount, &e.Date, &e.Description); err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read entries: %w", err)
	}
	return entries, nil
}

// UpsertEntry inserts or replaces an entry keyed by its external id, so a
// re-delivered feed page never double-counts.
func (s *Store) UpsertEntry(ctx context.Context, e models.LedgerEntry) error {
	query := `
		INSERT INTO ledger.ledger_entries (external_id, account_id, entry_type, amount, entry_date, description)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (external_id) DO UPDATE
		SET account_id = EXCLUDED.account_id, entry_type = EXCLUDED.entry_type,
		    amount = EXCLUDED.amount, entry_date = EXCLUDED.entry_date,
		    description = EXCLUDED.description`
	if _, err := s.db.ExecContext(ctx, query, e.ExternalID, e.AccountID, e.Type, e.Amount, e.Date, e.Description); err != nil {
		return fmt.Errorf("failed to upsert entry %s: %w", e.ExternalID, err)
	}
	return nil
}

// DeleteEntry removes an entry by external id.
func (s *Store) DeleteEntry(ctx context.Context, externalID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM ledger.ledger_entries WHERE external_id = $1`, externalID); err != nil {
		return fmt.Errorf("failed to delete entry %s: %w", externalID, err)
	}
	return nil
}

// FindAccount retrieves linked-account metadata for one account.
func (s *Store) FindAccount(ctx context.Context, userID, accountID string) (*models.LinkedAccount, error) {
	a := &models.LinkedAccount{}
	query := `
		SELECT account_id, item_id, user_id, name, institution, currency, is_active
		FROM ledger.linked_accounts
		WHERE user_id = $1 AND account_id = $2`
	err := s.db.QueryRowContext(ctx, query, userID, accountID).Scan(
		&a.AccountID, &a.ItemID, &a.UserID, &a.Name, &a.Institution, &a.Currency, &a.IsActive,
	)
	if err == sql.ErrNoRows {
		return nil, models.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find linked account: %w", err)
	}
	return a, nil
}

// AccountsByUser returns all active linked accounts for a user.
func (s *Store) AccountsByUser(ctx context.Context, userID string) ([]models.LinkedAccount, error) {
	return s.queryAccounts(ctx, `user_id = $1`, userID)
}

// AccountsByItem returns all active linked accounts under an item.
func (s *Store) AccountsByItem(ctx context.Context, itemID string) ([]models.LinkedAccount, error) {
	return s.queryAccounts(ctx, `item_id = $1`, itemID)
}

func (s *Store) queryAccounts(ctx context.Context, where string, arg any) ([]models.LinkedAccount, error) {
	query := `
		SELECT account_id, item_id, user_id, name, institution, currency, is_active
		FROM ledger.linked_accounts
		WHERE is_active AND ` + where + ` ORDER BY account_id`
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to query linked accounts: %w", err)
	}
	defer rows.Close()

	var accounts []models.LinkedAccount
	for rows.Next() {
		var a models.LinkedAccount
		if err := rows.Scan(&a.AccountID, &a.ItemID, &a.UserID, &a.Name, &a.Institution, &a.Currency, &a.IsActive); err != nil {
			return nil, fmt.Errorf("failed to scan linked account: %w", err)
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read linked accounts: %w", err)
	}
	return accounts, nil
}

// ActiveItems returns every active linked item.
func (s *Store) ActiveItems(ctx context.Context) ([]models.LinkedItem, error) {
	query := `
		SELECT id, user_id, institution, sync_cursor, last_synced_at, is_active, created_at, updated_at
		FROM ledger.linked_items
		WHERE is_active
		ORDER BY id`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query linked items: %w", err)
	}
	defer rows.Close()

	var items []models.LinkedItem
	for rows.Next() {
		var it models.LinkedItem
		if err := rows.Scan(&it.ID, &it.UserID, &it.Institution, &it.SyncCursor, &it.LastSyncedAt, &it.IsActive, &it.CreatedAt, &it.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan linked item: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read linked items: %w", err)
	}
	return items, nil
}

// GetCursor returns the persisted sync cursor for an item.
func (s *Store) GetCursor(ctx context.Context, itemID string) (string, error) {
	var cursor string
	err := s.db.QueryRowContext(ctx, `SELECT sync_cursor FROM ledger.linked_items WHERE id = $1`, itemID).Scan(&cursor)
	if err == sql.ErrNoRows {
		return "", models.ErrItemNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get cursor: %w", err)
	}
	return cursor, nil
}

// SaveCursor durably advances the sync cursor for an item.
func (s *Store) SaveCursor(ctx context.Context, itemID, cursor string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE ledger.linked_items SET sync_cursor = $1, last_synced_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP WHERE id = $2`,
		cursor, itemID)
	if err != nil {
		return fmt.Errorf("failed to save cursor: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return models.ErrItemNotFound
	}
	return nil
}

// Compile-time interface checks.
var (
	_ storage.LedgerStore        = (*Store)(nil)
	_ storage.EntryStore         = (*Store)(nil)
	_ storage.LinkedAccountStore = (*Store)(nil)
)
