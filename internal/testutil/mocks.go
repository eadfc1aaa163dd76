package testutil

import (
	"context"
	"sort"
	"sync"

	domainErrors "github.com/brunovarela/notesync/internal/domain/errors"
	"github.com/brunovarela/notesync/internal/domain/outbox"
	"github.com/google/uuid"
)

// --- Outbox Store Mock ---

// MockOutboxStore is a mock implementation of outbox.Store. By default it
// behaves like a tiny in-memory outbox; individual methods are overridden via
// the XxxFunc fields to force failures.
type MockOutboxStore struct {
	mu      sync.Mutex
	items   map[uuid.UUID]*outbox.Item
	seq     map[string]int64
	reasons map[uuid.UUID]string

	EnqueueFunc          func(ctx context.Context, item *outbox.Item) (uuid.UUID, error)
	ListFunc             func(ctx context.Context, userID string) ([]*outbox.Item, []outbox.Diagnostic, error)
	UpdateFunc           func(ctx context.Context, item *outbox.Item) error
	RemoveFunc           func(ctx context.Context, id uuid.UUID) error
	MoveToDeadLetterFunc func(ctx context.Context, id uuid.UUID, reason string) error
	ListDeadLettersFunc  func(ctx context.Context, userID string) ([]*outbox.DeadLetter, error)
	RequeueFunc          func(ctx context.Context, id uuid.UUID) error
	RecoverInFlightFunc  func(ctx context.Context, userID string) (int, error)
	HighWaterMarkFunc    func(ctx context.Context, userID string) (int64, error)
}

func NewMockOutboxStore() *MockOutboxStore {
	return &MockOutboxStore{
		items:   make(map[uuid.UUID]*outbox.Item),
		seq:     make(map[string]int64),
		reasons: make(map[uuid.UUID]string),
	}
}

func (m *MockOutboxStore) Enqueue(ctx context.Context, item *outbox.Item) (uuid.UUID, error) {
	if m.EnqueueFunc != nil {
		return m.EnqueueFunc(ctx, item)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq[item.UserID]++
	item.Seq = m.seq[item.UserID]
	m.items[item.ID] = item
	return item.ID, nil
}

func (m *MockOutboxStore) List(ctx context.Context, userID string) ([]*outbox.Item, []outbox.Diagnostic, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, userID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*outbox.Item
	for _, it := range m.items {
		if it.UserID != userID {
			continue
		}
		if it.Status == outbox.StatusPending || it.Status == outbox.StatusRetryPending {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil, nil
}

func (m *MockOutboxStore) Update(ctx context.Context, item *outbox.Item) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, item)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[item.ID]; !ok {
		return domainErrors.ErrItemNotFound
	}
	m.items[item.ID] = item
	return nil
}

func (m *MockOutboxStore) Remove(ctx context.Context, id uuid.UUID) error {
	if m.RemoveFunc != nil {
		return m.RemoveFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[id]; !ok {
		return domainErrors.ErrItemNotFound
	}
	delete(m.items, id)
	return nil
}

func (m *MockOutboxStore) MoveToDeadLetter(ctx context.Context, id uuid.UUID, reason string) error {
	if m.MoveToDeadLetterFunc != nil {
		return m.MoveToDeadLetterFunc(ctx, id, reason)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok {
		return domainErrors.ErrItemNotFound
	}
	it.Status = outbox.StatusDead
	it.LastError = reason
	m.reasons[id] = reason
	return nil
}

func (m *MockOutboxStore) ListDeadLetters(ctx context.Context, userID string) ([]*outbox.DeadLetter, error) {
	if m.ListDeadLettersFunc != nil {
		return m.ListDeadLettersFunc(ctx, userID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*outbox.DeadLetter
	for _, it := range m.items {
		if it.UserID == userID && it.Status == outbox.StatusDead {
			out = append(out, &outbox.DeadLetter{Item: it, Reason: m.reasons[it.ID]})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Item.Seq < out[j].Item.Seq })
	return out, nil
}

func (m *MockOutboxStore) Requeue(ctx context.Context, id uuid.UUID) error {
	if m.RequeueFunc != nil {
		return m.RequeueFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok || it.Status != outbox.StatusDead {
		return domainErrors.ErrDeadLetterNotFound
	}
	it.Status = outbox.StatusPending
	it.Retries = 0
	it.LastError = ""
	delete(m.reasons, id)
	return nil
}

func (m *MockOutboxStore) RecoverInFlight(ctx context.Context, userID string) (int, error) {
	if m.RecoverInFlightFunc != nil {
		return m.RecoverInFlightFunc(ctx, userID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	recovered := 0
	for _, it := range m.items {
		if it.UserID == userID && it.Status == outbox.StatusInFlight {
			it.Status = outbox.StatusPending
			recovered++
		}
	}
	return recovered, nil
}

func (m *MockOutboxStore) HighWaterMark(ctx context.Context, userID string) (int64, error) {
	if m.HighWaterMarkFunc != nil {
		return m.HighWaterMarkFunc(ctx, userID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.seq[userID], nil
}

// --- Change Notifier Mock ---

// MockNotifier is a mock implementation of outbox.Notifier that records the
// users it was notified about.
type MockNotifier struct {
	mu    sync.Mutex
	users []string

	NotifyChangedFunc func(ctx context.Context, userID string) error
}

func NewMockNotifier() *MockNotifier {
	return &MockNotifier{}
}

func (m *MockNotifier) NotifyChanged(ctx context.Context, userID string) error {
	if m.NotifyChangedFunc != nil {
		return m.NotifyChangedFunc(ctx, userID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users = append(m.users, userID)
	return nil
}

// Notified returns the user ids passed to NotifyChanged, in call order.
func (m *MockNotifier) Notified() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.users))
	copy(out, m.users)
	return out
}
