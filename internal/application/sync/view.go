package sync

import (
	"sort"
	"sync"
	"time"

	"github.com/brunovarela/notesync/internal/domain/note"
	"github.com/brunovarela/notesync/internal/domain/outbox"
)

// NoteView is the optimistic in-memory list the UI renders. It is a temp-id
// holder: after a create is confirmed the resolver swaps the placeholder for
// the server id in place, preserving list order.
type NoteView struct {
	mu          sync.Mutex
	notes       map[string]*note.Note
	order       []string
	attachments map[string]*note.Attachment
}

func NewNoteView() *NoteView {
	return &NoteView{
		notes:       make(map[string]*note.Note),
		attachments: make(map[string]*note.Attachment),
	}
}

func (v *NoteView) Upsert(n *note.Note) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.notes[n.ID]; !ok {
		v.order = append(v.order, n.ID)
	}
	v.notes[n.ID] = n
}

func (v *NoteView) Patch(id string, apply func(*note.Note)) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	n, ok := v.notes[id]
	if !ok {
		return false
	}
	apply(n)
	n.UpdatedAt = time.Now()
	return true
}

func (v *NoteView) Delete(id string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.deleteLocked(id)
}

func (v *NoteView) deleteLocked(id string) {
	delete(v.notes, id)
	for i, oid := range v.order {
		if oid == id {
			v.order = append(v.order[:i], v.order[i+1:]...)
			break
		}
	}
	for aid, a := range v.attachments {
		if a.NoteID == id {
			delete(v.attachments, aid)
		}
	}
}

// Get returns a copy of the note, or nil.
func (v *NoteView) Get(id string) *note.Note {
	v.mu.Lock()
	defer v.mu.Unlock()
	n, ok := v.notes[id]
	if !ok {
		return nil
	}
	cp := *n
	return &cp
}

// List returns copies of the notes in creation order.
func (v *NoteView) List() []note.Note {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]note.Note, 0, len(v.order))
	for _, id := range v.order {
		if n, ok := v.notes[id]; ok {
			out = append(out, *n)
		}
	}
	return out
}

func (v *NoteView) AddAttachment(a *note.Attachment) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.attachments[a.ID] = a
}

func (v *NoteView) Attachment(id string) *note.Attachment {
	v.mu.Lock()
	defer v.mu.Unlock()
	a, ok := v.attachments[id]
	if !ok {
		return nil
	}
	cp := *a
	return &cp
}

// FinalizeAttachment records the permanent location after promotion.
func (v *NoteView) FinalizeAttachment(id, permanentURL string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if a, ok := v.attachments[id]; ok {
		a.PermanentURL = permanentURL
		a.Status = note.AttachmentFinal
	}
}

// Remap implements idgen.Holder: every reference to tempID flips to serverID
// exactly once, keeping the note's position in the list.
func (v *NoteView) Remap(tempID, serverID string) int {
	v.mu.Lock()
	defer v.mu.Unlock()

	swapped := 0
	if n, ok := v.notes[tempID]; ok {
		delete(v.notes, tempID)
		n.ID = serverID
		n.Synced = true
		v.notes[serverID] = n
		for i, id := range v.order {
			if id == tempID {
				v.order[i] = serverID
				break
			}
		}
		swapped++
	}
	for _, a := range v.attachments {
		if a.NoteID == tempID {
			a.NoteID = serverID
			swapped++
		}
	}
	return swapped
}

// MarkSynced flips the saved-locally indicator once the backend confirms.
func (v *NoteView) MarkSynced(id string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if n, ok := v.notes[id]; ok {
		n.Synced = true
	}
}

// ReconcileConflict implements reconcile.ConflictView: server truth wins.
func (v *NoteView) ReconcileConflict(userID, entityID string, typ outbox.MutationType) {
	v.mu.Lock()
	defer v.mu.Unlock()
	switch typ {
	case outbox.MutationCreate, outbox.MutationDelete, outbox.MutationUpdate:
		// Entity vanished or diverged server-side; drop the local copy so
		// the next fetch renders server state.
		v.deleteLocked(entityID)
	}
}

// UnsyncedIDs lists the ids of notes still awaiting confirmation.
func (v *NoteView) UnsyncedIDs() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	var out []string
	for id, n := range v.notes {
		if !n.Synced {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}
