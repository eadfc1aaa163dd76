package backend

import (
	"context"
	"fmt"
)

// Result is the backend's answer to a successful mutation. ServerID carries
// the authoritative entity id for creates.
type Result struct {
	ServerID string
}

// Client is the remote notes API. Every mutating call carries an idempotency
// key so the server can de-duplicate a delivery whose response was lost.
type Client interface {
	// CreateNote creates a note and returns its authoritative id.
	CreateNote(ctx context.Context, idempotencyKey string, payload map[string]any) (*Result, error)
	// UpdateNote applies a partial update to a confirmed note.
	UpdateNote(ctx context.Context, idempotencyKey, noteID string, payload map[string]any) error
	// DeleteNote removes a confirmed note.
	DeleteNote(ctx context.Context, idempotencyKey, noteID string) error
	// PromoteAttachment moves a provisionally uploaded attachment to its
	// permanent location and returns the permanent URL.
	PromoteAttachment(ctx context.Context, noteID, attachmentID string) (string, error)
	// Ping verifies the backend is actually reachable.
	Ping(ctx context.Context) error
}

// Error is a structured, classifiable backend rejection.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("backend: %d %s", e.Status, e.Message)
}

// StatusCode implements retry.StatusCoder.
func (e *Error) StatusCode() int {
	return e.Status
}
