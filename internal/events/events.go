package events

import (
	"context"
	"time"
)

// Event types emitted after committed ledger mutations.
const (
	TypeBalanceCalculated   = "balance_calculated"
	TypeSnapshotRecorded    = "snapshot_recorded"
	TypeSyncCompleted       = "sync_completed"
	TypeBeginningBalanceSet = "beginning_balance_set"
)

// Event notifies collaborators that ledger data changed. The transport is
// entirely the sink implementation's concern.
type Event struct {
	Type       string    `json:"type"`
	UserID     string    `json:"user_id"`
	AccountID  string    `json:"account_id,omitempty"`
	ItemID     string    `json:"item_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Sink receives fire-and-forget change notifications. The core never reads
// from it; publish failures must not affect ledger state.
type Sink interface {
	Publish(ctx context.Context, event Event) error
}

// NoopSink discards every event. Used when no broker is configured.
type NoopSink struct{}

// Publish implements Sink.
func (NoopSink) Publish(ctx context.Context, event Event) error { return nil }
