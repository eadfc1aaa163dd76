package outbox

import (
	"time"

	"github.com/google/uuid"
)

// MutationType is the kind of entity mutation an item carries.
type MutationType string

const (
	MutationCreate MutationType = "create"
	MutationUpdate MutationType = "update"
	MutationDelete MutationType = "delete"
)

type Status string

const (
	StatusPending      Status = "pending"
	StatusInFlight     Status = "in_flight"
	StatusRetryPending Status = "retry_pending"
	StatusDead         Status = "dead"
	StatusQuarantined  Status = "quarantined"
)

// Item is a single buffered mutation awaiting delivery. The ID is local to
// the store and is never reused as a server id. IdempotencyKey is immutable
// for the item's lifetime; it is what lets the backend de-duplicate a request
// that succeeded but whose response was lost.
type Item struct {
	ID             uuid.UUID
	UserID         string
	EntityID       string // temp id until the create is confirmed
	Type           MutationType
	Payload        map[string]any
	TempID         string // set iff Type == create and unconfirmed
	IdempotencyKey string
	Status         Status
	Retries        int
	Seq            int64 // store-assigned, strictly increasing per user
	NextAttemptAt  time.Time
	LastError      string
	CreatedAt      time.Time
}

func NewItem(userID, entityID string, typ MutationType, payload map[string]any, idempotencyKey string) *Item {
	return &Item{
		ID:             uuid.New(),
		UserID:         userID,
		EntityID:       entityID,
		Type:           typ,
		Payload:        payload,
		IdempotencyKey: idempotencyKey,
		Status:         StatusPending,
		Retries:        0,
		CreatedAt:      time.Now(),
	}
}

// Confirmed reports whether the item targets a server-confirmed entity.
func (i *Item) Confirmed() bool {
	return i.TempID == ""
}

// Due reports whether the item's backoff delay has elapsed.
func (i *Item) Due(now time.Time) bool {
	return !i.NextAttemptAt.After(now)
}
