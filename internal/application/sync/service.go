// Package sync is the engine facade the rest of an application talks to:
// enqueue mutations for optimistic rendering, subscribe to sync lifecycle
// events, inspect connectivity, trigger manual flushes and manage
// dead-lettered mutations. One Service per signed-in user; Close tears the
// engine down on sign-out.
package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/brunovarela/notesync/internal/backend"
	"github.com/brunovarela/notesync/internal/connectivity"
	domainErrors "github.com/brunovarela/notesync/internal/domain/errors"
	"github.com/brunovarela/notesync/internal/domain/note"
	"github.com/brunovarela/notesync/internal/domain/outbox"
	"github.com/brunovarela/notesync/internal/draft"
	"github.com/brunovarela/notesync/internal/events"
	"github.com/brunovarela/notesync/internal/flush"
	"github.com/brunovarela/notesync/internal/idgen"
	"github.com/brunovarela/notesync/internal/infrastructure/observability"
	"github.com/brunovarela/notesync/internal/lease"
	"github.com/brunovarela/notesync/internal/reconcile"
	"github.com/brunovarela/notesync/pkg/retry"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// AttachmentInput describes a provisionally uploaded file to tie to a note
// at creation time.
type AttachmentInput struct {
	ID             string
	FileName       string
	ProvisionalURL string
}

// Mutation is an intent from the UI, enqueued regardless of connectivity.
type Mutation struct {
	Type       outbox.MutationType
	NoteID     string // update/delete only
	Title      string
	Content    string
	Pinned     *bool
	Attachment *AttachmentInput // create only
}

// Deps are the injectable collaborators for one user's engine.
type Deps struct {
	Store    outbox.Store
	Client   backend.Client
	Lease    lease.Lease
	Notifier outbox.Notifier // optional
	Drafts   draft.Store
	Policy   retry.Policy
	Finalize retry.Config
	Flush    flush.Config
	Monitor  connectivity.Config
	Logger   zerolog.Logger
	Metrics  *observability.Metrics // optional
}

// StoreHolder is implemented by stores that can swap temp entity ids in
// their pending rows.
type StoreHolder interface {
	Remap(tempID, serverID string) int
}

type Service struct {
	userID   string
	store    outbox.Store
	keys     *idgen.KeyGenerator
	resolver *idgen.Resolver
	bus      *events.Bus
	view     *NoteView
	finalize *reconcile.FinalizeQueue
	sched    *flush.Scheduler
	monitor  *connectivity.Monitor
	client   backend.Client
	notifier outbox.Notifier
	drafts   draft.Store
	metrics  *observability.Metrics
	logger   zerolog.Logger
}

// NewService wires a per-user engine. The idempotency counter is seeded from
// the store's high-water mark so keys stay unique across restarts.
func NewService(ctx context.Context, userID string, deps Deps) (*Service, error) {
	hwm, err := deps.Store.HighWaterMark(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("seed idempotency counter: %w", err)
	}

	logger := deps.Logger.With().Str("user_id", userID).Logger()
	bus := events.NewBus()
	resolver := idgen.NewResolver(bus)
	view := NewNoteView()
	finalize := reconcile.NewFinalizeQueue(deps.Finalize, bus, logger)

	resolver.Register(view)
	resolver.Register(finalize)
	if h, ok := deps.Store.(StoreHolder); ok {
		resolver.Register(holderFunc(h.Remap))
	}

	flushCfg := deps.Flush
	monitorCfg := deps.Monitor
	if deps.Metrics != nil {
		flushCfg.Metrics = deps.Metrics
		monitorCfg.Metrics = deps.Metrics
	}

	recon := reconcile.New(deps.Store, resolver, bus, deps.Policy, finalize, view, logger)
	sched := flush.NewScheduler(userID, deps.Store, deps.Client, recon, deps.Lease, deps.Policy, flushCfg, logger)
	monitor := connectivity.NewMonitor(monitorCfg, connectivity.ProbeFunc(deps.Client.Ping), logger)

	s := &Service{
		userID:   userID,
		store:    deps.Store,
		keys:     idgen.NewKeyGenerator(userID, hwm),
		resolver: resolver,
		bus:      bus,
		view:     view,
		finalize: finalize,
		sched:    sched,
		monitor:  monitor,
		client:   deps.Client,
		notifier: deps.Notifier,
		drafts:   deps.Drafts,
		metrics:  deps.Metrics,
		logger:   logger,
	}

	// Confirmed updates/deletes flip the saved-locally indicator.
	bus.Subscribe(events.KindSyncSuccess, func(ev events.Event) {
		if !idgen.IsTempID(ev.EntityID) {
			view.MarkSynced(ev.EntityID)
		}
	})
	if deps.Metrics != nil {
		// Failure events carry an item id only when an outbox item was
		// dead-lettered; finalization failures leave it zero.
		bus.Subscribe(events.KindSyncFailure, func(ev events.Event) {
			if ev.ItemID != uuid.Nil {
				deps.Metrics.DeadLettersTotal.Inc()
			}
		})
	}
	return s, nil
}

type holderFunc func(tempID, serverID string) int

func (f holderFunc) Remap(tempID, serverID string) int { return f(tempID, serverID) }

// Run drives the connectivity monitor and the flush scheduler until ctx ends.
func (s *Service) Run(ctx context.Context) error {
	errCh := make(chan error, 2)
	go func() { errCh <- s.monitor.Run(ctx) }()
	go func() { errCh <- s.sched.Run(ctx, s.monitor.Transitions()) }()
	err := <-errCh
	<-errCh
	return err
}

// Enqueue persists the mutation and returns the immediately renderable
// optimistic entity. Creates carry a temp id until the server confirms.
func (s *Service) Enqueue(ctx context.Context, m Mutation) (*note.Note, error) {
	switch m.Type {
	case outbox.MutationCreate:
		return s.enqueueCreate(ctx, m)
	case outbox.MutationUpdate:
		return s.enqueueUpdate(ctx, m)
	case outbox.MutationDelete:
		return nil, s.enqueueDelete(ctx, m)
	default:
		return nil, fmt.Errorf("%w: unknown mutation type %q", domainErrors.ErrInvalidMutation, m.Type)
	}
}

func (s *Service) enqueueCreate(ctx context.Context, m Mutation) (*note.Note, error) {
	tempID := idgen.NewTempID()
	now := time.Now()
	n := &note.Note{
		ID:        tempID,
		UserID:    s.userID,
		Title:     m.Title,
		Content:   m.Content,
		Synced:    false,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if m.Pinned != nil {
		n.Pinned = *m.Pinned
	}

	payload := map[string]any{"title": n.Title, "content": n.Content, "pinned": n.Pinned}
	item := outbox.NewItem(s.userID, tempID, outbox.MutationCreate, payload, s.keys.Next())
	item.TempID = tempID
	if _, err := s.store.Enqueue(ctx, item); err != nil {
		return nil, err
	}
	s.view.Upsert(n)

	if m.Attachment != nil {
		att := &note.Attachment{
			ID:             m.Attachment.ID,
			NoteID:         tempID,
			FileName:       m.Attachment.FileName,
			ProvisionalURL: m.Attachment.ProvisionalURL,
			Status:         note.AttachmentProvisional,
			CreatedAt:      now,
		}
		s.view.AddAttachment(att)
		attID := att.ID
		s.finalize.Register(&reconcile.Job{
			AttachmentID: attID,
			NoteID:       tempID,
			Run: func(jobCtx context.Context, noteID string) error {
				url, err := s.client.PromoteAttachment(jobCtx, noteID, attID)
				if err != nil {
					return err
				}
				s.view.FinalizeAttachment(attID, url)
				return nil
			},
		})
	}

	s.afterEnqueue(ctx, outbox.MutationCreate)
	return n, nil
}

func (s *Service) enqueueUpdate(ctx context.Context, m Mutation) (*note.Note, error) {
	if m.NoteID == "" {
		return nil, domainErrors.NewValidationError("note_id", "required for update")
	}
	payload := map[string]any{"title": m.Title, "content": m.Content}
	if m.Pinned != nil {
		payload["pinned"] = *m.Pinned
	}
	item := outbox.NewItem(s.userID, m.NoteID, outbox.MutationUpdate, payload, s.keys.Next())
	if _, err := s.store.Enqueue(ctx, item); err != nil {
		return nil, err
	}

	ok := s.view.Patch(m.NoteID, func(n *note.Note) {
		n.Title = m.Title
		n.Content = m.Content
		if m.Pinned != nil {
			n.Pinned = *m.Pinned
		}
		n.Synced = false
	})
	if !ok {
		s.logger.Debug().Str("note_id", m.NoteID).Msg("update enqueued for note not in view")
	}

	s.afterEnqueue(ctx, outbox.MutationUpdate)
	return s.view.Get(m.NoteID), nil
}

func (s *Service) enqueueDelete(ctx context.Context, m Mutation) error {
	if m.NoteID == "" {
		return domainErrors.NewValidationError("note_id", "required for delete")
	}
	item := outbox.NewItem(s.userID, m.NoteID, outbox.MutationDelete, nil, s.keys.Next())
	if _, err := s.store.Enqueue(ctx, item); err != nil {
		return err
	}
	s.view.Delete(m.NoteID)
	s.afterEnqueue(ctx, outbox.MutationDelete)
	return nil
}

func (s *Service) afterEnqueue(ctx context.Context, typ outbox.MutationType) {
	if s.metrics != nil {
		s.metrics.OutboxEnqueued.WithLabelValues(string(typ)).Inc()
	}
	if s.notifier != nil {
		if err := s.notifier.NotifyChanged(ctx, s.userID); err != nil {
			s.logger.Warn().Err(err).Msg("store change notification failed")
		}
	}
	if s.monitor.Snapshot().EffectiveOnline {
		s.sched.Wake()
	}
}

// Subscribe registers fn for sync lifecycle events of the given kind.
func (s *Service) Subscribe(kind events.Kind, fn func(events.Event)) int {
	return s.bus.Subscribe(kind, fn)
}

func (s *Service) Unsubscribe(kind events.Kind, id int) {
	s.bus.Unsubscribe(kind, id)
}

// Snapshot reports connectivity for "saved locally" indicators.
func (s *Service) Snapshot() connectivity.Snapshot {
	return s.monitor.Snapshot()
}

// SetRawOnline feeds the platform connectivity signal.
func (s *Service) SetRawOnline(online bool) {
	s.monitor.SetRawOnline(online)
}

// FlushNow runs a user-triggered pass immediately.
func (s *Service) FlushNow(ctx context.Context) (*outbox.FlushResult, error) {
	return s.sched.Flush(ctx)
}

// Wake nudges the scheduler, e.g. from an external background-sync signal.
func (s *Service) Wake() {
	s.sched.Wake()
}

// Notes returns the optimistic note list in creation order.
func (s *Service) Notes() []note.Note {
	return s.view.List()
}

// Attachment returns the current state of an attachment.
func (s *Service) Attachment(id string) *note.Attachment {
	return s.view.Attachment(id)
}

// QueueDepth counts mutations still awaiting delivery.
func (s *Service) QueueDepth(ctx context.Context) (int, error) {
	items, _, err := s.store.List(ctx, s.userID)
	if err != nil {
		return 0, err
	}
	return len(items), nil
}

// DeadLetters lists terminally failed mutations awaiting a user decision.
func (s *Service) DeadLetters(ctx context.Context) ([]*outbox.DeadLetter, error) {
	return s.store.ListDeadLetters(ctx, s.userID)
}

// RetryDeadLetter requeues a failed mutation, reusing its original
// idempotency key: if the original request actually succeeded silently the
// backend will de-duplicate instead of creating a second entity.
func (s *Service) RetryDeadLetter(ctx context.Context, id uuid.UUID) error {
	if err := s.store.Requeue(ctx, id); err != nil {
		return err
	}
	s.sched.Wake()
	return nil
}

// DiscardDeadLetter drops a failed mutation on explicit user request.
func (s *Service) DiscardDeadLetter(ctx context.Context, id uuid.UUID) error {
	return s.store.Remove(ctx, id)
}

// SaveDraft persists in-progress input outside the outbox.
func (s *Service) SaveDraft(ctx context.Context, title, content string) error {
	return s.drafts.Save(ctx, &draft.Draft{UserID: s.userID, Title: title, Content: content})
}

func (s *Service) LoadDraft(ctx context.Context) (*draft.Draft, error) {
	return s.drafts.Load(ctx, s.userID)
}

func (s *Service) ClearDraft(ctx context.Context) error {
	return s.drafts.Clear(ctx, s.userID)
}

// Close waits for in-flight finalization jobs. Callers cancel the Run context
// first; enqueue and view reads remain safe afterwards.
func (s *Service) Close() {
	s.finalize.Wait()
}
