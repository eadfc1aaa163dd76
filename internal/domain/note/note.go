package note

import "time"

// Note is the optimistic client-side view of a note. ID holds a temp id
// (see idgen) until the server confirms the create.
type Note struct {
	ID        string
	UserID    string
	Title     string
	Content   string
	Pinned    bool
	Synced    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

type AttachmentStatus string

const (
	AttachmentProvisional AttachmentStatus = "provisional"
	AttachmentFinal       AttachmentStatus = "final"
)

// Attachment references an upload tied to a note. While the owning note's id
// is still temporary the upload sits in provisional storage; finalization
// moves it to its permanent location once the real note id is known.
type Attachment struct {
	ID             string
	NoteID         string
	FileName       string
	ProvisionalURL string
	PermanentURL   string
	Status         AttachmentStatus
	CreatedAt      time.Time
}
