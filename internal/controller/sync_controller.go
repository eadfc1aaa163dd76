package controller

import (
	"net/http"

	appsync "github.com/brunovarela/notesync/internal/application/sync"
	"github.com/brunovarela/notesync/internal/domain/outbox"
	"github.com/brunovarela/notesync/internal/idgen"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// SyncController exposes the engine to local callers: enqueue mutations,
// inspect sync status, trigger manual flushes, manage dead letters and
// drafts.
type SyncController struct {
	svc *appsync.Service
}

func NewSyncController(svc *appsync.Service) *SyncController {
	return &SyncController{svc: svc}
}

func (c *SyncController) CreateNote(w http.ResponseWriter, r *http.Request) {
	var req CreateNoteRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	m := appsync.Mutation{
		Type:    outbox.MutationCreate,
		Title:   req.Title,
		Content: req.Content,
		Pinned:  req.Pinned,
	}
	if req.Attachment != nil {
		m.Attachment = &appsync.AttachmentInput{
			ID:             req.Attachment.ID,
			FileName:       req.Attachment.FileName,
			ProvisionalURL: req.Attachment.ProvisionalURL,
		}
	}

	n, err := c.svc.Enqueue(r.Context(), m)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, noteToResponse(n, idgen.IsTempID(n.ID)))
}

func (c *SyncController) UpdateNote(w http.ResponseWriter, r *http.Request) {
	var req UpdateNoteRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	n, err := c.svc.Enqueue(r.Context(), appsync.Mutation{
		Type:    outbox.MutationUpdate,
		NoteID:  chi.URLParam(r, "id"),
		Title:   req.Title,
		Content: req.Content,
		Pinned:  req.Pinned,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	if n == nil {
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
		return
	}
	writeJSON(w, http.StatusAccepted, noteToResponse(n, idgen.IsTempID(n.ID)))
}

func (c *SyncController) DeleteNote(w http.ResponseWriter, r *http.Request) {
	_, err := c.svc.Enqueue(r.Context(), appsync.Mutation{
		Type:   outbox.MutationDelete,
		NoteID: chi.URLParam(r, "id"),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

func (c *SyncController) ListNotes(w http.ResponseWriter, r *http.Request) {
	notes := c.svc.Notes()
	out := make([]NoteResponse, 0, len(notes))
	for i := range notes {
		out = append(out, noteToResponse(&notes[i], idgen.IsTempID(notes[i].ID)))
	}
	writeJSON(w, http.StatusOK, out)
}

func (c *SyncController) Status(w http.ResponseWriter, r *http.Request) {
	depth, err := c.svc.QueueDepth(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	dead, err := c.svc.DeadLetters(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{
		Connectivity: c.svc.Snapshot(),
		QueueDepth:   depth,
		DeadLetters:  len(dead),
	})
}

func (c *SyncController) Flush(w http.ResponseWriter, r *http.Request) {
	res, err := c.svc.FlushNow(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	resp := FlushResponse{Ran: res != nil}
	if res != nil {
		resp.Succeeded = len(res.SuccessIDs)
		resp.Retried = len(res.RetriedIDs)
		resp.Failed = len(res.FailedIDs)
		if len(res.Errors) > 0 {
			resp.Errors = make(map[string]string, len(res.Errors))
			for id, msg := range res.Errors {
				resp.Errors[id.String()] = msg
			}
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (c *SyncController) SetOnline(w http.ResponseWriter, r *http.Request) {
	var req SetOnlineRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}
	c.svc.SetRawOnline(*req.Online)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (c *SyncController) ListDeadLetters(w http.ResponseWriter, r *http.Request) {
	dead, err := c.svc.DeadLetters(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]DeadLetterResponse, 0, len(dead))
	for _, d := range dead {
		out = append(out, deadLetterToResponse(d))
	}
	writeJSON(w, http.StatusOK, out)
}

func (c *SyncController) RetryDeadLetter(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if err := c.svc.RetryDeadLetter(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "requeued"})
}

func (c *SyncController) DiscardDeadLetter(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if err := c.svc.DiscardDeadLetter(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "discarded"})
}

func (c *SyncController) SaveDraft(w http.ResponseWriter, r *http.Request) {
	var req SaveDraftRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := c.svc.SaveDraft(r.Context(), req.Title, req.Content); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}

func (c *SyncController) GetDraft(w http.ResponseWriter, r *http.Request) {
	d, err := c.svc.LoadDraft(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if d == nil {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "no draft", Code: "not_found"})
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (c *SyncController) ClearDraft(w http.ResponseWriter, r *http.Request) {
	if err := c.svc.ClearDraft(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}
