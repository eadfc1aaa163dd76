package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	KindRemap       Kind = "remap"
	KindSyncSuccess Kind = "sync-success"
	KindSyncFailure Kind = "sync-failure"
)

// Event is delivered to subscribers of its Kind. Remap events carry the
// temp-to-server id pair; failure events carry the terminal error message.
type Event struct {
	Kind     Kind
	UserID   string
	ItemID   uuid.UUID
	EntityID string
	TempID   string
	ServerID string
	Message  string
	At       time.Time
}

// Bus is an in-process publish/subscribe channel for sync lifecycle events.
// Subscribing twice with the same function is harmless; each subscription is
// independent and unsubscribing is idempotent.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[Kind]map[int]func(Event)
}

func NewBus() *Bus {
	return &Bus{subs: make(map[Kind]map[int]func(Event))}
}

// Subscribe registers fn for events of the given kind and returns a
// subscription id for Unsubscribe.
func (b *Bus) Subscribe(kind Kind, fn func(Event)) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	if b.subs[kind] == nil {
		b.subs[kind] = make(map[int]func(Event))
	}
	b.subs[kind][b.nextID] = fn
	return b.nextID
}

func (b *Bus) Unsubscribe(kind Kind, id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs[kind], id)
}

// Publish delivers the event synchronously to current subscribers.
func (b *Bus) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	b.mu.RLock()
	fns := make([]func(Event), 0, len(b.subs[ev.Kind]))
	for _, fn := range b.subs[ev.Kind] {
		fns = append(fns, fn)
	}
	b.mu.RUnlock()

	for _, fn := range fns {
		fn(ev)
	}
}
