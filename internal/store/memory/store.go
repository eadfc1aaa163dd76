// Package memory provides the in-process outbox store used by tests and by
// single-process runs that do not need durability across restarts.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	domainErrors "github.com/brunovarela/notesync/internal/domain/errors"
	"github.com/brunovarela/notesync/internal/domain/outbox"
	"github.com/google/uuid"
)

type Store struct {
	mu       sync.Mutex
	items    map[uuid.UUID]*outbox.Item
	seq      map[string]int64
	reasons  map[uuid.UUID]string
	corrupt  map[uuid.UUID]string
	capacity int
}

type Option func(*Store)

// WithCapacity bounds the number of live items per user. Enqueue beyond the
// bound fails loudly instead of silently dropping the oldest entry.
func WithCapacity(n int) Option {
	return func(s *Store) { s.capacity = n }
}

func New(opts ...Option) *Store {
	s := &Store{
		items:   make(map[uuid.UUID]*outbox.Item),
		seq:     make(map[string]int64),
		reasons: make(map[uuid.UUID]string),
		corrupt: make(map[uuid.UUID]string),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Store) Enqueue(ctx context.Context, item *outbox.Item) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.capacity > 0 {
		live := 0
		for _, it := range s.items {
			if it.UserID == item.UserID && it.Status != outbox.StatusDead {
				live++
			}
		}
		if live >= s.capacity {
			return uuid.Nil, fmt.Errorf("%w: %d items pending", domainErrors.ErrStorageExhausted, live)
		}
	}

	s.seq[item.UserID]++
	item.Seq = s.seq[item.UserID]
	s.items[item.ID] = item
	return item.ID, nil
}

func (s *Store) List(ctx context.Context, userID string) ([]*outbox.Item, []outbox.Diagnostic, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*outbox.Item
	var diags []outbox.Diagnostic
	for _, it := range s.items {
		if it.UserID != userID {
			continue
		}
		if detail, bad := s.corrupt[it.ID]; bad {
			it.Status = outbox.StatusQuarantined
			s.reasons[it.ID] = detail
			diags = append(diags, outbox.Diagnostic{ItemID: it.ID, Detail: detail})
			continue
		}
		if it.Status == outbox.StatusPending || it.Status == outbox.StatusRetryPending {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, diags, nil
}

func (s *Store) Update(ctx context.Context, item *outbox.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[item.ID]; !ok {
		return domainErrors.ErrItemNotFound
	}
	s.items[item.ID] = item
	return nil
}

func (s *Store) Remove(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return domainErrors.ErrItemNotFound
	}
	delete(s.items, id)
	delete(s.reasons, id)
	return nil
}

func (s *Store) MoveToDeadLetter(ctx context.Context, id uuid.UUID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[id]
	if !ok {
		return domainErrors.ErrItemNotFound
	}
	it.Status = outbox.StatusDead
	it.LastError = reason
	s.reasons[id] = reason
	return nil
}

func (s *Store) ListDeadLetters(ctx context.Context, userID string) ([]*outbox.DeadLetter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*outbox.DeadLetter
	for _, it := range s.items {
		if it.UserID == userID && (it.Status == outbox.StatusDead || it.Status == outbox.StatusQuarantined) {
			out = append(out, &outbox.DeadLetter{Item: it, Reason: s.reasons[it.ID]})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Item.Seq < out[j].Item.Seq })
	return out, nil
}

func (s *Store) Requeue(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[id]
	if !ok {
		return domainErrors.ErrDeadLetterNotFound
	}
	if it.Status != outbox.StatusDead {
		return domainErrors.ErrDeadLetterNotFound
	}
	it.Status = outbox.StatusPending
	it.Retries = 0
	it.NextAttemptAt = time.Time{}
	it.LastError = ""
	delete(s.reasons, id)
	return nil
}

func (s *Store) RecoverInFlight(ctx context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	recovered := 0
	for _, it := range s.items {
		if it.UserID == userID && it.Status == outbox.StatusInFlight {
			it.Status = outbox.StatusPending
			recovered++
		}
	}
	return recovered, nil
}

func (s *Store) HighWaterMark(ctx context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq[userID], nil
}

// Remap implements idgen.Holder: pending items that still reference the temp
// entity id are pointed at the confirmed server id.
func (s *Store) Remap(tempID, serverID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	swapped := 0
	for _, it := range s.items {
		if it.EntityID == tempID {
			it.EntityID = serverID
			swapped++
		}
	}
	return swapped
}

// InjectCorruption marks an entry as undecodable so List quarantines it.
func (s *Store) InjectCorruption(id uuid.UUID, detail string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.corrupt[id] = detail
}
