package sync

import (
	"context"
	"testing"
	"time"

	"github.com/brunovarela/notesync/internal/backend"
	"github.com/brunovarela/notesync/internal/connectivity"
	domainErrors "github.com/brunovarela/notesync/internal/domain/errors"
	"github.com/brunovarela/notesync/internal/domain/outbox"
	"github.com/brunovarela/notesync/internal/draft"
	"github.com/brunovarela/notesync/internal/events"
	"github.com/brunovarela/notesync/internal/flush"
	"github.com/brunovarela/notesync/internal/idgen"
	"github.com/brunovarela/notesync/internal/lease"
	"github.com/brunovarela/notesync/internal/store/memory"
	"github.com/brunovarela/notesync/internal/testutil"
	"github.com/brunovarela/notesync/pkg/retry"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type engine struct {
	svc   *Service
	store *memory.Store
	mock  *backend.Mock
}

func newEngine(t *testing.T, opts ...func(*Deps)) *engine {
	t.Helper()
	store := memory.New()
	mock := backend.NewMock()

	flushCfg := flush.DefaultConfig()
	flushCfg.Parallelism = 1

	deps := Deps{
		Store:  store,
		Client: mock,
		Lease:  lease.NewMemoryLease("svc-test-"+uuid.NewString(), time.Minute),
		Drafts: draft.NewMemoryStore(),
		Policy: retry.Policy{Base: time.Millisecond, MaxDelay: 10 * time.Millisecond, MaxAttempts: 3},
		Finalize: retry.Config{
			MaxAttempts:  2,
			InitialDelay: time.Millisecond,
			MaxDelay:     time.Millisecond,
		},
		Flush: flushCfg,
		Monitor: connectivity.Config{
			Debounce:       10 * time.Millisecond,
			ProbeInterval:  time.Hour,
			ProbeStaleness: time.Hour,
			ProbeTimeout:   time.Second,
		},
		Logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(&deps)
	}

	svc, err := NewService(context.Background(), "u1", deps)
	require.NoError(t, err)
	t.Cleanup(svc.Close)
	return &engine{svc: svc, store: store, mock: mock}
}

func TestService_CreateRendersImmediatelyWithTempID(t *testing.T) {
	e := newEngine(t)

	n, err := e.svc.Enqueue(context.Background(), Mutation{
		Type:    outbox.MutationCreate,
		Title:   "groceries",
		Content: "milk",
	})
	require.NoError(t, err)
	require.NotNil(t, n)

	assert.True(t, idgen.IsTempID(n.ID))
	assert.False(t, n.Synced)

	notes := e.svc.Notes()
	require.Len(t, notes, 1)
	assert.Equal(t, n.ID, notes[0].ID)
}

func TestService_FlushConfirmsAndRemapsTheView(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	var remaps []events.Event
	e.svc.Subscribe(events.KindRemap, func(ev events.Event) { remaps = append(remaps, ev) })

	n, err := e.svc.Enqueue(ctx, Mutation{Type: outbox.MutationCreate, Content: "milk"})
	require.NoError(t, err)
	tempID := n.ID

	res, err := e.svc.FlushNow(ctx)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Len(t, res.SuccessIDs, 1)

	notes := e.svc.Notes()
	require.Len(t, notes, 1)
	assert.False(t, idgen.IsTempID(notes[0].ID))
	assert.True(t, notes[0].Synced)

	require.Len(t, remaps, 1)
	assert.Equal(t, tempID, remaps[0].TempID)
	assert.Equal(t, notes[0].ID, remaps[0].ServerID)
}

func TestService_OfflineEditsFlushInCaptureOrder(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	n, err := e.svc.Enqueue(ctx, Mutation{Type: outbox.MutationCreate, Content: "v1"})
	require.NoError(t, err)
	_, err = e.svc.Enqueue(ctx, Mutation{Type: outbox.MutationUpdate, NoteID: n.ID, Content: "v2"})
	require.NoError(t, err)

	// The optimistic view already shows the edit.
	assert.Equal(t, "v2", e.svc.Notes()[0].Content)

	res, err := e.svc.FlushNow(ctx)
	require.NoError(t, err)
	assert.Len(t, res.SuccessIDs, 2)

	ids := e.mock.NoteIDs()
	require.Len(t, ids, 1)
	assert.Equal(t, "v2", e.mock.Note(ids[0])["content"])
}

func TestService_DeleteRemovesFromViewAndServer(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	_, err := e.svc.Enqueue(ctx, Mutation{Type: outbox.MutationCreate, Content: "bye"})
	require.NoError(t, err)
	_, err = e.svc.FlushNow(ctx)
	require.NoError(t, err)
	serverID := e.svc.Notes()[0].ID

	_, err = e.svc.Enqueue(ctx, Mutation{Type: outbox.MutationDelete, NoteID: serverID})
	require.NoError(t, err)
	assert.Empty(t, e.svc.Notes())

	_, err = e.svc.FlushNow(ctx)
	require.NoError(t, err)
	assert.Empty(t, e.mock.NoteIDs())
}

func TestService_AttachmentFinalizesAfterCreateConfirms(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	n, err := e.svc.Enqueue(ctx, Mutation{
		Type:    outbox.MutationCreate,
		Content: "with file",
		Attachment: &AttachmentInput{
			ID:             "att-1",
			FileName:       "photo.jpg",
			ProvisionalURL: "blob://local/att-1",
		},
	})
	require.NoError(t, err)

	att := e.svc.Attachment("att-1")
	require.NotNil(t, att)
	assert.Equal(t, n.ID, att.NoteID, "attachment points at the temp id while unconfirmed")

	_, err = e.svc.FlushNow(ctx)
	require.NoError(t, err)
	e.svc.Close() // wait for the promotion job

	att = e.svc.Attachment("att-1")
	require.NotNil(t, att)
	assert.False(t, idgen.IsTempID(att.NoteID))
	assert.NotEmpty(t, att.PermanentURL)
	assert.Equal(t, att.PermanentURL, e.mock.PromotedURL("att-1"))
}

func TestService_DeadLetterRetryKeepsIdempotencyKey(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	_, err := e.svc.Enqueue(ctx, Mutation{Type: outbox.MutationCreate, Content: "flaky"})
	require.NoError(t, err)

	items, _, err := e.store.List(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, items, 1)
	key := items[0].IdempotencyKey
	e.mock.ScriptErrors(key, &backend.Error{Status: 422, Message: "rejected"})

	_, err = e.svc.FlushNow(ctx)
	require.NoError(t, err)

	dead, err := e.svc.DeadLetters(ctx)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, key, dead[0].Item.IdempotencyKey)

	require.NoError(t, e.svc.RetryDeadLetter(ctx, dead[0].Item.ID))

	res, err := e.svc.FlushNow(ctx)
	require.NoError(t, err)
	assert.Len(t, res.SuccessIDs, 1)
	assert.Len(t, e.mock.NoteIDs(), 1)
}

func TestService_DiscardDeadLetter(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	_, err := e.svc.Enqueue(ctx, Mutation{Type: outbox.MutationCreate, Content: "doomed"})
	require.NoError(t, err)

	items, _, err := e.store.List(ctx, "u1")
	require.NoError(t, err)
	e.mock.ScriptErrors(items[0].IdempotencyKey, domainErrors.ErrValidationRejected)

	_, err = e.svc.FlushNow(ctx)
	require.NoError(t, err)

	dead, err := e.svc.DeadLetters(ctx)
	require.NoError(t, err)
	require.Len(t, dead, 1)

	require.NoError(t, e.svc.DiscardDeadLetter(ctx, dead[0].Item.ID))

	dead, err = e.svc.DeadLetters(ctx)
	require.NoError(t, err)
	assert.Empty(t, dead)
}

func TestService_EnqueueValidation(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	_, err := e.svc.Enqueue(ctx, Mutation{Type: outbox.MutationUpdate, Content: "no id"})
	var ve *domainErrors.ValidationError
	assert.ErrorAs(t, err, &ve)

	_, err = e.svc.Enqueue(ctx, Mutation{Type: "merge"})
	assert.ErrorIs(t, err, domainErrors.ErrInvalidMutation)
}

func TestService_Drafts(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	d, err := e.svc.LoadDraft(ctx)
	require.NoError(t, err)
	assert.Nil(t, d)

	require.NoError(t, e.svc.SaveDraft(ctx, "wip", "half a thought"))

	d, err = e.svc.LoadDraft(ctx)
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, "half a thought", d.Content)

	require.NoError(t, e.svc.ClearDraft(ctx))
	d, err = e.svc.LoadDraft(ctx)
	require.NoError(t, err)
	assert.Nil(t, d)
}

func TestService_SnapshotReflectsRawSignal(t *testing.T) {
	e := newEngine(t)

	assert.False(t, e.svc.Snapshot().IsOnline)

	e.svc.SetRawOnline(true)
	snap := e.svc.Snapshot()
	assert.True(t, snap.IsOnline)
	assert.False(t, snap.EffectiveOnline, "no verified probe yet")
}

func TestService_UpdateOnConflictedNoteReconciles(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	// Confirm a note, then have the server lose it behind our back.
	_, err := e.svc.Enqueue(ctx, Mutation{Type: outbox.MutationCreate, Content: "v1"})
	require.NoError(t, err)
	_, err = e.svc.FlushNow(ctx)
	require.NoError(t, err)
	serverID := e.svc.Notes()[0].ID

	items, _, err := e.store.List(ctx, "u1")
	require.NoError(t, err)
	require.Empty(t, items)

	_, err = e.svc.Enqueue(ctx, Mutation{Type: outbox.MutationUpdate, NoteID: serverID, Content: "v2"})
	require.NoError(t, err)

	items, _, err = e.store.List(ctx, "u1")
	require.NoError(t, err)
	e.mock.ScriptErrors(items[0].IdempotencyKey, &backend.Error{Status: 409, Message: "gone"})

	_, err = e.svc.FlushNow(ctx)
	require.NoError(t, err)

	// Server truth wins: the local copy is dropped, nothing dead-lettered.
	assert.Empty(t, e.svc.Notes())
	dead, err := e.svc.DeadLetters(ctx)
	require.NoError(t, err)
	assert.Empty(t, dead)
}

func TestService_EnqueueNotifiesSharedStoreListeners(t *testing.T) {
	notifier := testutil.NewMockNotifier()
	e := newEngine(t, func(d *Deps) { d.Notifier = notifier })

	_, err := e.svc.Enqueue(context.Background(), Mutation{Type: outbox.MutationCreate, Content: "milk"})
	require.NoError(t, err)

	// Other tabs and processes sharing the store get poked after every enqueue.
	assert.Equal(t, []string{"u1"}, notifier.Notified())
}
