package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBus_PublishReachesSubscribersOfKind(t *testing.T) {
	bus := NewBus()

	var successes, failures int
	bus.Subscribe(KindSyncSuccess, func(Event) { successes++ })
	bus.Subscribe(KindSyncFailure, func(Event) { failures++ })

	bus.Publish(Event{Kind: KindSyncSuccess, EntityID: "srv_1"})
	bus.Publish(Event{Kind: KindSyncSuccess, EntityID: "srv_2"})

	assert.Equal(t, 2, successes)
	assert.Equal(t, 0, failures)
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus()

	calls := 0
	id := bus.Subscribe(KindRemap, func(Event) { calls++ })

	bus.Publish(Event{Kind: KindRemap})
	bus.Unsubscribe(KindRemap, id)
	bus.Publish(Event{Kind: KindRemap})

	assert.Equal(t, 1, calls)

	// Unsubscribing twice is harmless.
	bus.Unsubscribe(KindRemap, id)
}

func TestBus_IndependentSubscriptions(t *testing.T) {
	bus := NewBus()

	a, b := 0, 0
	idA := bus.Subscribe(KindSyncFailure, func(Event) { a++ })
	bus.Subscribe(KindSyncFailure, func(Event) { b++ })

	bus.Publish(Event{Kind: KindSyncFailure})
	bus.Unsubscribe(KindSyncFailure, idA)
	bus.Publish(Event{Kind: KindSyncFailure})

	assert.Equal(t, 1, a)
	assert.Equal(t, 2, b)
}

func TestBus_StampsTime(t *testing.T) {
	bus := NewBus()

	var got Event
	bus.Subscribe(KindSyncSuccess, func(ev Event) { got = ev })
	bus.Publish(Event{Kind: KindSyncSuccess})

	assert.False(t, got.At.IsZero())
}
