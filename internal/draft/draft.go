// Package draft stores unsent in-progress input. It is deliberately outside
// the outbox: drafts are never delivered to the backend and carry no retry
// contract.
package draft

import (
	"context"
	"sync"
	"time"
)

type Draft struct {
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Store interface {
	Save(ctx context.Context, d *Draft) error
	// Load returns nil when the user has no draft.
	Load(ctx context.Context, userID string) (*Draft, error)
	Clear(ctx context.Context, userID string) error
}

// MemoryStore keeps drafts in process memory.
type MemoryStore struct {
	mu     sync.Mutex
	drafts map[string]*Draft
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{drafts: make(map[string]*Draft)}
}

func (s *MemoryStore) Save(ctx context.Context, d *Draft) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *d
	cp.UpdatedAt = time.Now()
	s.drafts[d.UserID] = &cp
	return nil
}

func (s *MemoryStore) Load(ctx context.Context, userID string) (*Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.drafts[userID]
	if !ok {
		return nil, nil
	}
	cp := *d
	return &cp, nil
}

func (s *MemoryStore) Clear(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.drafts, userID)
	return nil
}
