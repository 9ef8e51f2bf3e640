package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/finacct/balance-service/internal/models"
	"github.com/finacct/balance-service/internal/storage"
)

// Store is an in-memory implementation of the storage interfaces, safe for
// concurrent use. Used in tests and local development.
type Store struct {
	mu       sync.Mutex
	ledgers  map[string]*models.AccountLedger // keyed by userID + "/" + accountID
	entries  map[string]models.LedgerEntry    // keyed by external id
	accounts []models.LinkedAccount
	items    map[string]*models.LinkedItem
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		ledgers: make(map[string]*models.AccountLedger),
		entries: make(map[string]models.LedgerEntry),
		items:   make(map[string]*models.LinkedItem),
	}
}

func ledgerKey(userID, accountID string) string {
	return userID + "/" + accountID
}

// AddLinkedAccount seeds aggregator-side account metadata.
func (s *Store) AddLinkedAccount(a models.LinkedAccount) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts = append(s.accounts, a)
}

// AddLinkedItem seeds a linked item.
func (s *Store) AddLinkedItem(it models.LinkedItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := it
	s.items[it.ID] = &copied
}

// FindLedger returns a copy of the ledger for (user, account).
func (s *Store) FindLedger(ctx context.Context, userID, accountID string) (*models.AccountLedger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.ledgers[ledgerKey(userID, accountID)]
	if !ok {
		return nil, models.ErrLedgerNotFound
	}
	return copyLedger(l), nil
}

// CreateLedger inserts a new ledger record.
func (s *Store) CreateLedger(ctx context.Context, l *models.AccountLedger) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	l.CreatedAt = now
	l.UpdatedAt = now
	s.ledgers[ledgerKey(l.UserID, l.AccountID)] = copyLedger(l)
	return nil
}

// SaveLedger overwrites the stored ledger.
func (s *Store) SaveLedger(ctx context.Context, l *models.AccountLedger) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ledgers[ledgerKey(l.UserID, l.AccountID)]; !ok {
		return models.ErrLedgerNotFound
	}
	l.UpdatedAt = time.Now()
	s.ledgers[ledgerKey(l.UserID, l.AccountID)] = copyLedger(l)
	return nil
}

// LedgersByUser returns copies of all ledgers owned by a user.
func (s *Store) LedgersByUser(ctx context.Context, userID string) ([]*models.AccountLedger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.AccountLedger
	for _, l := range s.ledgers {
		if l.UserID == userID {
			out = append(out, copyLedger(l))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AccountID < out[j].AccountID })
	return out, nil
}

func copyLedger(l *models.AccountLedger) *models.AccountLedger {
	copied := *l
	copied.Snapshots = append([]models.BalanceSnapshot(nil), l.Snapshots...)
	return &copied
}

// EntriesByAccount returns entries ordered by date then external id.
func (s *Store) EntriesByAccount(ctx context.Context, accountID string, from, to *time.Time) ([]models.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.LedgerEntry
	for _, e := range s.entries {
		if e.AccountID != accountID {
			continue
		}
		if from != nil && e.Date.Before(*from) {
			continue
		}
		if to != nil && e.Date.After(*to) {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ExternalID < out[j].ExternalID
	})
	return out, nil
}

// UpsertEntry inserts or replaces an entry keyed by external id.
func (s *Store) UpsertEntry(ctx context.Context, e models.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[e.ExternalID] = e
	return nil
}

// DeleteEntry removes an entry by external id.
func (s *Store) DeleteEntry(ctx context.Context, externalID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, externalID)
	return nil
}

// FindAccount returns metadata for one linked account.
func (s *Store) FindAccount(ctx context.Context, userID, accountID string) (*models.LinkedAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.UserID == userID && a.AccountID == accountID {
			copied := a
			return &copied, nil
		}
	}
	return nil, models.ErrAccountNotFound
}

// AccountsByUser returns all active linked accounts for a user.
func (s *Store) AccountsByUser(ctx context.Context, userID string) ([]models.LinkedAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.LinkedAccount
	for _, a := range s.accounts {
		if a.UserID == userID && a.IsActive {
			out = append(out, a)
		}
	}
	return out, nil
}

// AccountsByItem returns all active linked accounts under an item.
func (s *Store) AccountsByItem(ctx context.Context, itemID string) ([]models.LinkedAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.LinkedAccount
	for _, a := range s.accounts {
		if a.ItemID == itemID && a.IsActive {
			out = append(out, a)
		}
	}
	return out, nil
}

// ActiveItems returns every active linked item.
func (s *Store) ActiveItems(ctx context.Context) ([]models.LinkedItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.LinkedItem
	for _, it := range s.items {
		if it.IsActive {
			out = append(out, *it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GetCursor returns the persisted sync cursor for an item.
func (s *Store) GetCursor(ctx context.Context, itemID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[itemID]
	if !ok {
		return "", models.ErrItemNotFound
	}
	return it.SyncCursor, nil
}

// SaveCursor durably advances the sync cursor for an item.
func (s *Store) SaveCursor(ctx context.Context, itemID, cursor string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[itemID]
	if !ok {
		return models.ErrItemNotFound
	}
	it.SyncCursor = cursor
	it.LastSyncedAt = time.Now()
	return nil
}

// Compile-time interface checks.
var (
	_ storage.LedgerStore        = (*Store)(nil)
	_ storage.EntryStore         = (*Store)(nil)
	_ storage.LinkedAccountStore = (*Store)(nil)
)
