// Package lease defines the short-TTL exclusive right that gates which
// writer may actively flush a user's outbox. Every writer may still enqueue;
// the lease only serializes flush passes.
package lease

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Lease interface {
	// Acquire attempts to take the lease. Returns false without error when
	// another holder currently owns it.
	Acquire(ctx context.Context) (bool, error)
	// Extend pushes the expiry out while a long pass is still running.
	Extend(ctx context.Context, ttl time.Duration) error
	// Release gives the lease up. Only the current holder's release wins.
	Release(ctx context.Context) error
}

type entry struct {
	token   string
	expires time.Time
}

var (
	registryMu sync.Mutex
	registry   = make(map[string]entry)
)

// MemoryLease coordinates flush passes within a single process. The shared
// registry mirrors what the Redis lease does across processes.
type MemoryLease struct {
	key   string
	token string
	ttl   time.Duration
}

func NewMemoryLease(key string, ttl time.Duration) *MemoryLease {
	return &MemoryLease{key: key, token: uuid.New().String(), ttl: ttl}
}

func (l *MemoryLease) Acquire(ctx context.Context) (bool, error) {
	registryMu.Lock()
	defer registryMu.Unlock()
	cur, ok := registry[l.key]
	if ok && cur.token != l.token && time.Now().Before(cur.expires) {
		return false, nil
	}
	registry[l.key] = entry{token: l.token, expires: time.Now().Add(l.ttl)}
	return true, nil
}

func (l *MemoryLease) Extend(ctx context.Context, ttl time.Duration) error {
	registryMu.Lock()
	defer registryMu.Unlock()
	cur, ok := registry[l.key]
	if !ok || cur.token != l.token {
		return ErrNotHeld
	}
	registry[l.key] = entry{token: l.token, expires: time.Now().Add(ttl)}
	return nil
}

func (l *MemoryLease) Release(ctx context.Context) error {
	registryMu.Lock()
	defer registryMu.Unlock()
	cur, ok := registry[l.key]
	if !ok || cur.token != l.token {
		return nil
	}
	delete(registry, l.key)
	return nil
}
