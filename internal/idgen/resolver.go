package idgen

import (
	"sync"

	"github.com/brunovarela/notesync/internal/events"
)

// Holder is anything that may hold a temp id: the in-memory note view,
// dependent attachment records, pending finalize jobs. Remap must replace
// every occurrence of tempID with serverID and return how many it swapped.
type Holder interface {
	Remap(tempID, serverID string) int
}

// Resolver performs the atomic temp-id to server-id swap across every
// registered holder and publishes a single remap event per resolution.
// Holders registered after a swap never see the temp id again, so
// re-registration is idempotent.
type Resolver struct {
	mu      sync.Mutex
	holders []Holder
	bus     *events.Bus
}

func NewResolver(bus *events.Bus) *Resolver {
	return &Resolver{bus: bus}
}

// Register adds a holder to the remap walk.
func (r *Resolver) Register(h Holder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.holders = append(r.holders, h)
}

// Resolve swaps tempID for serverID in every holder under one lock, then
// emits exactly one remap event. Returns the total number of swapped
// references.
func (r *Resolver) Resolve(userID, tempID, serverID string) int {
	r.mu.Lock()
	total := 0
	for _, h := range r.holders {
		total += h.Remap(tempID, serverID)
	}
	r.mu.Unlock()

	r.bus.Publish(events.Event{
		Kind:     events.KindRemap,
		UserID:   userID,
		TempID:   tempID,
		ServerID: serverID,
		EntityID: serverID,
	})
	return total
}
