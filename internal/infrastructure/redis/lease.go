package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/brunovarela/notesync/internal/lease"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	// Lua script for safe lease release (only owner can release)
	releaseLeaseScript = redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		else
			return 0
		end
	`)

	// Lua script for lease extension
	extendLeaseScript = redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("pexpire", KEYS[1], ARGV[2])
		else
			return 0
		end
	`)
)

// FlushLease is the cross-process flush lease backed by Redis. The token
// ensures only the holder can extend or release.
type FlushLease struct {
	client *redis.Client
	key    string
	token  string
	ttl    time.Duration
}

func NewFlushLease(client *redis.Client, userID string, ttl time.Duration) *FlushLease {
	return &FlushLease{
		client: client,
		key:    fmt.Sprintf("lease:flush:%s", userID),
		token:  uuid.New().String(),
		ttl:    ttl,
	}
}

func (l *FlushLease) Acquire(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire flush lease: %w", err)
	}
	return ok, nil
}

func (l *FlushLease) Extend(ctx context.Context, ttl time.Duration) error {
	result, err := extendLeaseScript.Run(ctx, l.client, []string{l.key}, l.token, ttl.Milliseconds()).Result()
	if err != nil {
		return fmt.Errorf("extend flush lease: %w", err)
	}
	if val, ok := result.(int64); !ok || val == 0 {
		return lease.ErrNotHeld
	}
	return nil
}

func (l *FlushLease) Release(ctx context.Context) error {
	result, err := releaseLeaseScript.Run(ctx, l.client, []string{l.key}, l.token).Result()
	if err != nil {
		return fmt.Errorf("release flush lease: %w", err)
	}
	if val, ok := result.(int64); !ok || val == 0 {
		return nil // expired or taken over, nothing to release
	}
	return nil
}
