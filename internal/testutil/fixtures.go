package testutil

import (
	"time"

	"github.com/brunovarela/notesync/internal/domain/note"
	"github.com/brunovarela/notesync/internal/domain/outbox"
	"github.com/brunovarela/notesync/internal/idgen"
	"github.com/google/uuid"
)

// NewTestItem builds a pending outbox item. Creates carry a fresh temp id,
// updates and deletes target an already confirmed server id.
func NewTestItem(userID string, typ outbox.MutationType) *outbox.Item {
	entityID := "srv_" + uuid.NewString()[:8]
	tempID := ""
	if typ == outbox.MutationCreate {
		entityID = idgen.NewTempID()
		tempID = entityID
	}
	item := outbox.NewItem(userID, entityID,
		typ,
		map[string]any{"content": "fixture content"},
		userID+":test:"+uuid.NewString()[:8],
	)
	item.TempID = tempID
	return item
}

func NewTestNote(userID, title, content string) *note.Note {
	now := time.Now()
	return &note.Note{
		ID:        idgen.NewTempID(),
		UserID:    userID,
		Title:     title,
		Content:   content,
		Synced:    false,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func NewTestAttachment(noteID, fileName string) *note.Attachment {
	return &note.Attachment{
		ID:             "att_" + uuid.NewString()[:8],
		NoteID:         noteID,
		FileName:       fileName,
		ProvisionalURL: "https://uploads.example/provisional/" + fileName,
		Status:         note.AttachmentProvisional,
		CreatedAt:      time.Now(),
	}
}
