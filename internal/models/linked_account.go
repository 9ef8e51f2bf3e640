package models

import "time"

// LinkedItem is one aggregator connection for a user. The sync cursor is
// persisted per item and marks ingestion progress against the feed.
type LinkedItem struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	Institution   string    `json:"institution"`
	SyncCursor    string    `json:"sync_cursor"`
	LastSyncedAt  time.Time `json:"last_synced_at"`
	IsActive      bool      `json:"is_active"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// LinkedAccount is the aggregator-side account metadata used to seed lazy
// ledger creation and to enumerate a user's accounts.
type LinkedAccount struct {
	AccountID   string `json:"account_id"`
	ItemID      string `json:"item_id"`
	UserID      string `json:"user_id"`
	Name        string `json:"name"`
	Institution string `json:"institution"`
	Currency    string `json:"currency"`
	IsActive    bool   `json:"is_active"`
}
