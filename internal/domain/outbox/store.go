package outbox

import (
	"context"

	"github.com/google/uuid"
)

// DeadLetter is a terminally failed item retained for user inspection.
type DeadLetter struct {
	Item   *Item
	Reason string
}

// Diagnostic reports a quarantined store entry. Corrupt entries never block
// the rest of the queue and never crash-loop the engine.
type Diagnostic struct {
	ItemID uuid.UUID
	Detail string
}

// Store is the durable, per-user, order-preserving outbox.
type Store interface {
	// Enqueue persists the item, assigns its Seq and returns the store-local id.
	Enqueue(ctx context.Context, item *Item) (uuid.UUID, error)

	// List returns the user's pending and retry-pending items in enqueue order,
	// together with diagnostics for any entries quarantined during the scan.
	List(ctx context.Context, userID string) ([]*Item, []Diagnostic, error)

	// Update persists in-place changes to an existing item.
	Update(ctx context.Context, item *Item) error

	// Remove deletes an item after terminal success or explicit discard.
	Remove(ctx context.Context, id uuid.UUID) error

	// MoveToDeadLetter marks the item dead and records the reason. Dead items
	// no longer participate in flush passes but remain listable.
	MoveToDeadLetter(ctx context.Context, id uuid.UUID, reason string) error

	// ListDeadLetters returns the user's dead-lettered items in enqueue order.
	ListDeadLetters(ctx context.Context, userID string) ([]*DeadLetter, error)

	// Requeue moves a dead-lettered item back to pending, preserving its
	// original idempotency key.
	Requeue(ctx context.Context, id uuid.UUID) error

	// RecoverInFlight returns the user's in_flight items to pending and
	// reports how many were recovered. Called at the start of a flush pass
	// while holding the lease: no other pass can be active then, so any
	// in_flight entry is a leftover from an interrupted pass. Redelivery is
	// safe because the idempotency key travels with the item.
	RecoverInFlight(ctx context.Context, userID string) (int, error)

	// HighWaterMark returns the highest Seq ever assigned for the user,
	// 0 when the store is empty. Seeds the idempotency counter at startup.
	HighWaterMark(ctx context.Context, userID string) (int64, error)
}

// Notifier publishes store-change signals so other tabs/processes sharing the
// store can refresh their views.
type Notifier interface {
	NotifyChanged(ctx context.Context, userID string) error
}
