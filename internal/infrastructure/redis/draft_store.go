package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/brunovarela/notesync/internal/draft"
	"github.com/redis/go-redis/v9"
)

// DraftStore keeps per-user drafts in Redis with a generous TTL. Drafts are
// low-stakes: no retry contract, last write wins.
type DraftStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewDraftStore(client *redis.Client, ttl time.Duration) *DraftStore {
	return &DraftStore{client: client, ttl: ttl}
}

func (s *DraftStore) key(userID string) string {
	return "draft:" + userID
}

func (s *DraftStore) Save(ctx context.Context, d *draft.Draft) error {
	d.UpdatedAt = time.Now()
	raw, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal draft: %w", err)
	}
	if err := s.client.Set(ctx, s.key(d.UserID), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("save draft: %w", err)
	}
	return nil
}

func (s *DraftStore) Load(ctx context.Context, userID string) (*draft.Draft, error) {
	raw, err := s.client.Get(ctx, s.key(userID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("load draft: %w", err)
	}
	d := &draft.Draft{}
	if err := json.Unmarshal(raw, d); err != nil {
		return nil, fmt.Errorf("unmarshal draft: %w", err)
	}
	return d, nil
}

func (s *DraftStore) Clear(ctx context.Context, userID string) error {
	if err := s.client.Del(ctx, s.key(userID)).Err(); err != nil {
		return fmt.Errorf("clear draft: %w", err)
	}
	return nil
}
