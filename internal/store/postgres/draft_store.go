package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/brunovarela/notesync/internal/draft"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DraftStore persists one in-progress draft per user. Drafts are not part of
// the outbox retry contract; last write wins.
type DraftStore struct {
	pool *pgxpool.Pool
}

func NewDraftStore(pool *pgxpool.Pool) *DraftStore {
	return &DraftStore{pool: pool}
}

func (s *DraftStore) Save(ctx context.Context, d *draft.Draft) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO drafts (user_id, title, content, updated_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_id) DO UPDATE
		 SET title = EXCLUDED.title, content = EXCLUDED.content, updated_at = EXCLUDED.updated_at`,
		d.UserID, d.Title, d.Content, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("save draft: %w", err)
	}
	return nil
}

func (s *DraftStore) Load(ctx context.Context, userID string) (*draft.Draft, error) {
	d := &draft.Draft{}
	err := s.pool.QueryRow(ctx,
		`SELECT user_id, title, content, updated_at FROM drafts WHERE user_id = $1`, userID,
	).Scan(&d.UserID, &d.Title, &d.Content, &d.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil // no draft
		}
		return nil, fmt.Errorf("load draft: %w", err)
	}
	return d, nil
}

func (s *DraftStore) Clear(ctx context.Context, userID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM drafts WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("clear draft: %w", err)
	}
	return nil
}
