package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	domainErrors "github.com/brunovarela/notesync/internal/domain/errors"
	"github.com/brunovarela/notesync/internal/domain/outbox"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// OutboxStore is the durable outbox backed by Postgres. Rows that fail to
// decode are flipped to quarantined and reported as diagnostics instead of
// blocking the queue.
type OutboxStore struct {
	pool *pgxpool.Pool
}

func NewOutboxStore(pool *pgxpool.Pool) *OutboxStore {
	return &OutboxStore{pool: pool}
}

func (s *OutboxStore) Enqueue(ctx context.Context, item *outbox.Item) (uuid.UUID, error) {
	payload, err := json.Marshal(item.Payload)
	if err != nil {
		return uuid.Nil, fmt.Errorf("marshal outbox payload: %w", err)
	}
	err = s.pool.QueryRow(ctx,
		`INSERT INTO outbox (id, user_id, entity_id, mutation_type, payload, temp_id, idempotency_key,
		                     status, retries, seq, next_attempt_at, last_error, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9,
		         (SELECT COALESCE(MAX(seq), 0) + 1 FROM outbox WHERE user_id = $2),
		         $10, $11, $12)
		 RETURNING seq`,
		item.ID, item.UserID, item.EntityID, string(item.Type), payload, item.TempID,
		item.IdempotencyKey, string(item.Status), item.Retries,
		item.NextAttemptAt, item.LastError, item.CreatedAt,
	).Scan(&item.Seq)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert outbox item: %w", err)
	}
	return item.ID, nil
}

func (s *OutboxStore) List(ctx context.Context, userID string) ([]*outbox.Item, []outbox.Diagnostic, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, entity_id, mutation_type, payload, temp_id, idempotency_key,
		        status, retries, seq, next_attempt_at, last_error, created_at
		 FROM outbox
		 WHERE user_id = $1 AND status IN ('pending', 'retry_pending')
		 ORDER BY seq ASC`, userID,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("list outbox items: %w", err)
	}
	defer rows.Close()

	var items []*outbox.Item
	var diags []outbox.Diagnostic
	for rows.Next() {
		it, diag, err := scanItem(rows)
		if err != nil {
			return nil, nil, err
		}
		if diag != nil {
			diags = append(diags, *diag)
			continue
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	for _, d := range diags {
		if _, err := s.pool.Exec(ctx,
			`UPDATE outbox SET status = 'quarantined', last_error = $1 WHERE id = $2`,
			d.Detail, d.ItemID,
		); err != nil {
			return nil, nil, fmt.Errorf("quarantine outbox item: %w", err)
		}
	}
	return items, diags, nil
}

func (s *OutboxStore) Update(ctx context.Context, item *outbox.Item) error {
	payload, err := json.Marshal(item.Payload)
	if err != nil {
		return fmt.Errorf("marshal outbox payload: %w", err)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE outbox
		 SET entity_id = $1, payload = $2, temp_id = $3, status = $4,
		     retries = $5, next_attempt_at = $6, last_error = $7
		 WHERE id = $8`,
		item.EntityID, payload, item.TempID, string(item.Status),
		item.Retries, item.NextAttemptAt, item.LastError, item.ID,
	)
	if err != nil {
		return fmt.Errorf("update outbox item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.ErrItemNotFound
	}
	return nil
}

func (s *OutboxStore) Remove(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM outbox WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("remove outbox item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.ErrItemNotFound
	}
	return nil
}

func (s *OutboxStore) MoveToDeadLetter(ctx context.Context, id uuid.UUID, reason string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE outbox SET status = 'dead', last_error = $1 WHERE id = $2`, reason, id,
	)
	if err != nil {
		return fmt.Errorf("dead-letter outbox item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.ErrItemNotFound
	}
	return nil
}

func (s *OutboxStore) ListDeadLetters(ctx context.Context, userID string) ([]*outbox.DeadLetter, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, entity_id, mutation_type, payload, temp_id, idempotency_key,
		        status, retries, seq, next_attempt_at, last_error, created_at
		 FROM outbox
		 WHERE user_id = $1 AND status IN ('dead', 'quarantined')
		 ORDER BY seq ASC`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list dead letters: %w", err)
	}
	defer rows.Close()

	var out []*outbox.DeadLetter
	for rows.Next() {
		// Quarantined rows may carry an undecodable payload; they are still
		// listed so the user can discard them.
		it, _, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, &outbox.DeadLetter{Item: it, Reason: it.LastError})
	}
	return out, rows.Err()
}

func (s *OutboxStore) Requeue(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE outbox
		 SET status = 'pending', retries = 0, next_attempt_at = $1, last_error = ''
		 WHERE id = $2 AND status = 'dead'`,
		time.Time{}, id,
	)
	if err != nil {
		return fmt.Errorf("requeue dead letter: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.ErrDeadLetterNotFound
	}
	return nil
}

func (s *OutboxStore) RecoverInFlight(ctx context.Context, userID string) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE outbox SET status = 'pending' WHERE user_id = $1 AND status = 'in_flight'`, userID,
	)
	if err != nil {
		return 0, fmt.Errorf("recover in-flight items: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// Remap implements idgen.Holder: pending rows referencing the temp entity id
// are pointed at the confirmed server id. Runs detached from any pass
// context; a failed swap surfaces on the next List as items that still gate
// on the (now gone) temp id.
func (s *OutboxStore) Remap(tempID, serverID string) int {
	tag, err := s.pool.Exec(context.Background(),
		`UPDATE outbox SET entity_id = $1 WHERE entity_id = $2`, serverID, tempID,
	)
	if err != nil {
		return 0
	}
	return int(tag.RowsAffected())
}

func (s *OutboxStore) HighWaterMark(ctx context.Context, userID string) (int64, error) {
	var hwm int64
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM outbox WHERE user_id = $1`, userID,
	).Scan(&hwm)
	if err != nil {
		return 0, fmt.Errorf("outbox high-water mark: %w", err)
	}
	return hwm, nil
}

func scanItem(rows pgx.Rows) (*outbox.Item, *outbox.Diagnostic, error) {
	it := &outbox.Item{}
	var payload []byte
	var typ, status string
	if err := rows.Scan(&it.ID, &it.UserID, &it.EntityID, &typ, &payload, &it.TempID,
		&it.IdempotencyKey, &status, &it.Retries, &it.Seq, &it.NextAttemptAt,
		&it.LastError, &it.CreatedAt); err != nil {
		return nil, nil, fmt.Errorf("scan outbox item: %w", err)
	}
	it.Type = outbox.MutationType(typ)
	it.Status = outbox.Status(status)
	if len(payload) > 0 {
		it.Payload = make(map[string]any)
		if err := json.Unmarshal(payload, &it.Payload); err != nil {
			it.Payload = nil
			return it, &outbox.Diagnostic{
				ItemID: it.ID,
				Detail: fmt.Sprintf("undecodable payload: %v", err),
			}, nil
		}
	}
	return it, nil, nil
}
