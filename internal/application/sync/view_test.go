package sync

import (
	"testing"

	"github.com/brunovarela/notesync/internal/domain/note"
	"github.com/brunovarela/notesync/internal/domain/outbox"
	"github.com/brunovarela/notesync/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoteView_ListKeepsCreationOrder(t *testing.T) {
	v := NewNoteView()

	v.Upsert(&note.Note{ID: "temp_a", Content: "first"})
	v.Upsert(&note.Note{ID: "temp_b", Content: "second"})
	v.Upsert(&note.Note{ID: "temp_c", Content: "third"})

	got := v.List()
	require.Len(t, got, 3)
	assert.Equal(t, []string{"temp_a", "temp_b", "temp_c"}, []string{got[0].ID, got[1].ID, got[2].ID})
}

func TestNoteView_RemapPreservesListPosition(t *testing.T) {
	v := NewNoteView()

	v.Upsert(&note.Note{ID: "temp_a"})
	v.Upsert(&note.Note{ID: "temp_b"})
	v.AddAttachment(&note.Attachment{ID: "att-1", NoteID: "temp_a"})

	swapped := v.Remap("temp_a", "srv_1")
	assert.Equal(t, 2, swapped, "note plus its attachment")

	got := v.List()
	require.Len(t, got, 2)
	assert.Equal(t, "srv_1", got[0].ID, "the confirmed note keeps its slot")
	assert.True(t, got[0].Synced)
	assert.Equal(t, "temp_b", got[1].ID)

	att := v.Attachment("att-1")
	require.NotNil(t, att)
	assert.Equal(t, "srv_1", att.NoteID)
}

func TestNoteView_RemapUnknownTempIDIsNoop(t *testing.T) {
	v := NewNoteView()
	assert.Equal(t, 0, v.Remap("temp_missing", "srv_1"))
}

func TestNoteView_GetAndListReturnCopies(t *testing.T) {
	v := NewNoteView()
	n := testutil.NewTestNote("u1", "list", "original")
	v.Upsert(n)

	got := v.Get(n.ID)
	require.NotNil(t, got)
	got.Content = "mutated"

	assert.Equal(t, "original", v.Get(n.ID).Content)
}

func TestNoteView_DeleteRemovesAttachments(t *testing.T) {
	v := NewNoteView()
	n := testutil.NewTestNote("u1", "doomed", "bye")
	att := testutil.NewTestAttachment(n.ID, "photo.jpg")
	v.Upsert(n)
	v.AddAttachment(att)

	v.Delete(n.ID)

	assert.Nil(t, v.Get(n.ID))
	assert.Nil(t, v.Attachment(att.ID))
	assert.Empty(t, v.List())
}

func TestNoteView_ReconcileConflictDropsLocalCopy(t *testing.T) {
	v := NewNoteView()
	v.Upsert(&note.Note{ID: "srv_1", Content: "stale"})

	v.ReconcileConflict("u1", "srv_1", outbox.MutationUpdate)

	assert.Nil(t, v.Get("srv_1"))
}

func TestNoteView_FinalizeAttachment(t *testing.T) {
	v := NewNoteView()
	v.AddAttachment(&note.Attachment{
		ID:             "att-1",
		NoteID:         "srv_1",
		ProvisionalURL: "blob://local/att-1",
		Status:         note.AttachmentProvisional,
	})

	v.FinalizeAttachment("att-1", "https://files.local/srv_1/att-1")

	att := v.Attachment("att-1")
	require.NotNil(t, att)
	assert.Equal(t, note.AttachmentFinal, att.Status)
	assert.Equal(t, "https://files.local/srv_1/att-1", att.PermanentURL)
	assert.Equal(t, "blob://local/att-1", att.ProvisionalURL)
}

func TestNoteView_UnsyncedIDs(t *testing.T) {
	v := NewNoteView()
	v.Upsert(&note.Note{ID: "temp_a", Synced: false})
	v.Upsert(&note.Note{ID: "srv_1", Synced: true})

	assert.Equal(t, []string{"temp_a"}, v.UnsyncedIDs())
}
