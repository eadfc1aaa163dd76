// Package reconcile applies per-item delivery outcomes: removing confirmed
// items, remapping temp ids, scheduling backoff, dead-lettering terminal
// failures and running dependent finalization jobs.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	domainErrors "github.com/brunovarela/notesync/internal/domain/errors"
	"github.com/brunovarela/notesync/internal/domain/outbox"
	"github.com/brunovarela/notesync/internal/events"
	"github.com/brunovarela/notesync/internal/idgen"
	"github.com/brunovarela/notesync/pkg/retry"
	"github.com/rs/zerolog"
)

// ConflictView is told to reconcile local state to server truth when the
// backend reports the entity already changed or vanished.
type ConflictView interface {
	ReconcileConflict(userID, entityID string, typ outbox.MutationType)
}

type Reconciler struct {
	store    outbox.Store
	resolver *idgen.Resolver
	bus      *events.Bus
	policy   retry.Policy
	view     ConflictView
	logger   zerolog.Logger

	finalize *FinalizeQueue
}

func New(
	store outbox.Store,
	resolver *idgen.Resolver,
	bus *events.Bus,
	policy retry.Policy,
	finalize *FinalizeQueue,
	view ConflictView,
	logger zerolog.Logger,
) *Reconciler {
	return &Reconciler{
		store:    store,
		resolver: resolver,
		bus:      bus,
		policy:   policy,
		view:     view,
		finalize: finalize,
		logger:   logger,
	}
}

// Apply routes one delivery outcome. It returns an error only for store
// failures; delivery failures are absorbed into item state.
func (r *Reconciler) Apply(ctx context.Context, item *outbox.Item, outcome outbox.FlushOutcome) error {
	switch outcome.Kind {
	case outbox.OutcomeSuccess:
		return r.applySuccess(ctx, item, outcome.MappedID)
	case outbox.OutcomeRetry:
		return r.applyRetry(ctx, item, outcome.Err)
	case outbox.OutcomeFail:
		return r.applyFailure(ctx, item, outcome.Err)
	default:
		return fmt.Errorf("unknown outcome kind %q", outcome.Kind)
	}
}

func (r *Reconciler) applySuccess(ctx context.Context, item *outbox.Item, mappedID string) error {
	if err := r.store.Remove(ctx, item.ID); err != nil {
		return fmt.Errorf("remove confirmed item: %w", err)
	}

	entityID := item.EntityID
	if item.Type == outbox.MutationCreate && item.TempID != "" && mappedID != "" {
		entityID = mappedID
		r.resolver.Resolve(item.UserID, item.TempID, mappedID)
		// Follow-ups that were parked on the temp id can run now. Each runs
		// under its own retry lineage: it may legitimately outlive the
		// original mutation's attempts.
		r.finalize.Release(item.UserID, mappedID)
	}

	r.bus.Publish(events.Event{
		Kind:     events.KindSyncSuccess,
		UserID:   item.UserID,
		ItemID:   item.ID,
		EntityID: entityID,
	})
	return nil
}

func (r *Reconciler) applyRetry(ctx context.Context, item *outbox.Item, cause error) error {
	if r.policy.Exhausted(item.Retries + 1) {
		reason := fmt.Sprintf("%v: %v", domainErrors.ErrMaxRetriesExceeded, cause)
		return r.DeadLetter(ctx, item, reason)
	}

	delay := r.policy.Delay(item.Retries)
	item.Retries++
	item.Status = outbox.StatusRetryPending
	item.NextAttemptAt = time.Now().Add(delay)
	if cause != nil {
		item.LastError = cause.Error()
	}
	r.logger.Warn().
		Str("item_id", item.ID.String()).
		Int("attempt", item.Retries).
		Dur("delay", delay).
		Err(cause).
		Msg("delivery failed, retry scheduled")
	return r.store.Update(ctx, item)
}

func (r *Reconciler) applyFailure(ctx context.Context, item *outbox.Item, cause error) error {
	if errors.Is(cause, domainErrors.ErrConflict) || retry.Classify(cause) == retry.ClassConflict {
		// Server truth wins: drop the local operation, never retry it.
		if err := r.store.Remove(ctx, item.ID); err != nil {
			return fmt.Errorf("discard conflicted item: %w", err)
		}
		if r.view != nil {
			r.view.ReconcileConflict(item.UserID, item.EntityID, item.Type)
		}
		r.logger.Info().
			Str("item_id", item.ID.String()).
			Str("entity_id", item.EntityID).
			Msg("conflict: local mutation discarded, state reconciled to server")
		return nil
	}
	var msg string
	if cause != nil {
		msg = cause.Error()
	}
	return r.DeadLetter(ctx, item, msg)
}

// DeadLetter moves the item to the dead-letter listing and emits exactly one
// user-facing failure notification for it. The item struct is updated in
// place so callers holding it see the terminal state regardless of store
// implementation.
func (r *Reconciler) DeadLetter(ctx context.Context, item *outbox.Item, reason string) error {
	if err := r.store.MoveToDeadLetter(ctx, item.ID, reason); err != nil {
		return fmt.Errorf("dead-letter item: %w", err)
	}
	item.Status = outbox.StatusDead
	item.LastError = reason
	r.bus.Publish(events.Event{
		Kind:     events.KindSyncFailure,
		UserID:   item.UserID,
		ItemID:   item.ID,
		EntityID: item.EntityID,
		Message:  reason,
	})
	r.logger.Error().
		Str("item_id", item.ID.String()).
		Str("entity_id", item.EntityID).
		Str("reason", reason).
		Msg("mutation dead-lettered")
	return nil
}
