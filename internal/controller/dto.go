package controller

import (
	"time"

	"github.com/brunovarela/notesync/internal/connectivity"
	"github.com/brunovarela/notesync/internal/domain/note"
	"github.com/brunovarela/notesync/internal/domain/outbox"
)

// --- Request DTOs ---

// CreateNoteRequest enqueues a create mutation.
type CreateNoteRequest struct {
	Title      string             `json:"title" validate:"max=512"`
	Content    string             `json:"content" validate:"required"`
	Pinned     *bool              `json:"pinned,omitempty"`
	Attachment *AttachmentRequest `json:"attachment,omitempty"`
}

// AttachmentRequest describes a provisionally uploaded file to attach.
type AttachmentRequest struct {
	ID             string `json:"id" validate:"required"`
	FileName       string `json:"file_name" validate:"required"`
	ProvisionalURL string `json:"provisional_url" validate:"required,url"`
}

// UpdateNoteRequest enqueues an update mutation.
type UpdateNoteRequest struct {
	Title   string `json:"title" validate:"max=512"`
	Content string `json:"content" validate:"required"`
	Pinned  *bool  `json:"pinned,omitempty"`
}

// SetOnlineRequest feeds the raw platform connectivity signal.
type SetOnlineRequest struct {
	Online *bool `json:"online" validate:"required"`
}

// SaveDraftRequest stores unsent in-progress input.
type SaveDraftRequest struct {
	Title   string `json:"title" validate:"max=512"`
	Content string `json:"content"`
}

// --- Response DTOs ---

// NoteResponse is the optimistic entity returned on enqueue.
type NoteResponse struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Pinned    bool      `json:"pinned"`
	Synced    bool      `json:"synced"`
	Pending   bool      `json:"pending"` // true while the id is a temp id
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StatusResponse combines connectivity and queue state.
type StatusResponse struct {
	Connectivity connectivity.Snapshot `json:"connectivity"`
	QueueDepth   int                   `json:"queue_depth"`
	DeadLetters  int                   `json:"dead_letters"`
}

// FlushResponse summarizes a manual flush pass.
type FlushResponse struct {
	Ran       bool              `json:"ran"`
	Succeeded int               `json:"succeeded"`
	Retried   int               `json:"retried"`
	Failed    int               `json:"failed"`
	Errors    map[string]string `json:"errors,omitempty"`
}

// DeadLetterResponse is one terminally failed mutation.
type DeadLetterResponse struct {
	ID        string    `json:"id"`
	EntityID  string    `json:"entity_id"`
	Type      string    `json:"type"`
	Reason    string    `json:"reason"`
	Retries   int       `json:"retries"`
	CreatedAt time.Time `json:"created_at"`
}

// ErrorResponse is the uniform error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func noteToResponse(n *note.Note, pending bool) NoteResponse {
	return NoteResponse{
		ID:        n.ID,
		Title:     n.Title,
		Content:   n.Content,
		Pinned:    n.Pinned,
		Synced:    n.Synced,
		Pending:   pending,
		CreatedAt: n.CreatedAt,
		UpdatedAt: n.UpdatedAt,
	}
}

func deadLetterToResponse(d *outbox.DeadLetter) DeadLetterResponse {
	return DeadLetterResponse{
		ID:        d.Item.ID.String(),
		EntityID:  d.Item.EntityID,
		Type:      string(d.Item.Type),
		Reason:    d.Reason,
		Retries:   d.Item.Retries,
		CreatedAt: d.Item.CreatedAt,
	}
}
