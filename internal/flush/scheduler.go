// Package flush drains the outbox against the backend. One pass per user at
// a time, per-entity chains strictly ordered, independent chains with bounded
// parallelism.
package flush

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brunovarela/notesync/internal/backend"
	"github.com/brunovarela/notesync/internal/domain/outbox"
	"github.com/brunovarela/notesync/internal/idgen"
	"github.com/brunovarela/notesync/internal/infrastructure/observability"
	"github.com/brunovarela/notesync/internal/lease"
	"github.com/brunovarela/notesync/internal/reconcile"
	"github.com/brunovarela/notesync/pkg/retry"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

type Config struct {
	// Parallelism bounds how many independent entity chains are delivered
	// concurrently. Low by design: it limits total holding time without
	// risking per-entity reordering.
	Parallelism int
	// AttemptTimeout bounds a single delivery attempt.
	AttemptTimeout time.Duration
	// FallbackInterval is the periodic pass when no trigger fires.
	FallbackInterval time.Duration
	// LeaseTTL must comfortably exceed the longest expected pass.
	LeaseTTL time.Duration
	// Metrics is optional.
	Metrics *observability.Metrics
}

func DefaultConfig() Config {
	return Config{
		Parallelism:      2,
		AttemptTimeout:   10 * time.Second,
		FallbackInterval: 60 * time.Second,
		LeaseTTL:         30 * time.Second,
	}
}

type Scheduler struct {
	userID string
	store  outbox.Store
	client backend.Client
	recon  *reconcile.Reconciler
	lease  lease.Lease
	policy retry.Policy
	cfg    Config
	logger zerolog.Logger

	wake    chan struct{}
	running atomic.Bool
}

func NewScheduler(
	userID string,
	store outbox.Store,
	client backend.Client,
	recon *reconcile.Reconciler,
	fl lease.Lease,
	policy retry.Policy,
	cfg Config,
	logger zerolog.Logger,
) *Scheduler {
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 1
	}
	return &Scheduler{
		userID: userID,
		store:  store,
		client: client,
		recon:  recon,
		lease:  fl,
		policy: policy,
		cfg:    cfg,
		logger: logger,
		wake:   make(chan struct{}, 1),
	}
}

// Wake requests a flush pass: used for manual retry, external background-sync
// signals and store-change notifications.
func (s *Scheduler) Wake() {
	select {
	case s.wake <- struct{}{}:
	default: // a pass is already requested
	}
}

// Run triggers passes on effective-online transitions, wake signals and a
// fallback ticker, until ctx is done.
func (s *Scheduler) Run(ctx context.Context, online <-chan bool) error {
	ticker := time.NewTicker(s.cfg.FallbackInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case eff, ok := <-online:
			if !ok {
				return nil
			}
			if eff {
				s.flushAndLog(ctx)
			}
		case <-s.wake:
			s.flushAndLog(ctx)
		case <-ticker.C:
			s.flushAndLog(ctx)
		}
	}
}

func (s *Scheduler) flushAndLog(ctx context.Context) {
	res, err := s.Flush(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("flush pass failed")
		return
	}
	if res != nil && (len(res.SuccessIDs)+len(res.RetriedIDs)+len(res.FailedIDs)) > 0 {
		s.logger.Info().
			Int("succeeded", len(res.SuccessIDs)).
			Int("retried", len(res.RetriedIDs)).
			Int("failed", len(res.FailedIDs)).
			Msg("flush pass finished")
	}
}

// Flush runs one pass over the user's queue. Returns a nil result when
// another pass (or another lease holder) is already flushing. Cancelling ctx
// stops new dispatches; attempts already in flight always run to completion
// so an ambiguous partial write is never created.
func (s *Scheduler) Flush(ctx context.Context) (*outbox.FlushResult, error) {
	if !s.running.CompareAndSwap(false, true) {
		if m := s.cfg.Metrics; m != nil {
			m.FlushPassSkipped.WithLabelValues("already_running").Inc()
		}
		return nil, nil
	}
	defer s.running.Store(false)

	acquired, err := s.lease.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	if !acquired {
		if m := s.cfg.Metrics; m != nil {
			m.FlushPassSkipped.WithLabelValues("lease_held").Inc()
		}
		s.logger.Debug().Str("user_id", s.userID).Msg("flush lease held elsewhere, skipping pass")
		return nil, nil
	}
	defer s.lease.Release(context.Background())

	// Long passes outlive the lease TTL; keep pushing the expiry out so no
	// second process starts a concurrent pass.
	stopExtend := make(chan struct{})
	defer close(stopExtend)
	go s.extendLease(stopExtend)

	// We hold the lease, so anything still marked in_flight belongs to a
	// pass that never got to write its outcome (crash, lost reconcile write).
	recovered, err := s.store.RecoverInFlight(ctx, s.userID)
	if err != nil {
		return nil, err
	}
	if recovered > 0 {
		s.logger.Warn().Int("count", recovered).Msg("recovered in-flight items from an interrupted pass")
	}

	items, diags, err := s.store.List(ctx, s.userID)
	if err != nil {
		return nil, err
	}
	if m := s.cfg.Metrics; m != nil {
		m.OutboxDepth.Set(float64(len(items)))
		if len(diags) > 0 {
			m.Quarantined.Add(float64(len(diags)))
		}
	}
	for _, d := range diags {
		s.logger.Error().
			Str("item_id", d.ItemID.String()).
			Str("detail", d.Detail).
			Msg("corrupt outbox entry quarantined")
	}

	result := outbox.NewFlushResult()
	var resultMu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Parallelism)
	for _, chain := range chainize(items) {
		chain := chain
		g.Go(func() error {
			s.processChain(gctx, chain, result, &resultMu)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return result, err
	}
	return result, nil
}

// processChain delivers one entity's mutations strictly in enqueue order.
func (s *Scheduler) processChain(ctx context.Context, chain []*outbox.Item, result *outbox.FlushResult, mu *sync.Mutex) {
	var mappedTemp, mappedServer string

	for idx, item := range chain {
		if ctx.Err() != nil {
			return // cancellation: stop dispatching, never abort in-flight work
		}
		if mappedTemp != "" && item.EntityID == mappedTemp {
			item.EntityID = mappedServer
		}
		if !item.Due(time.Now()) {
			return // backoff pending; a later pass resumes this chain
		}
		if item.Type != outbox.MutationCreate && idgen.IsTempID(item.EntityID) {
			// The owning create has not been confirmed; nothing after this
			// point in the chain may be dispatched yet.
			return
		}

		item.Status = outbox.StatusInFlight
		if err := s.store.Update(ctx, item); err != nil {
			s.logger.Error().Err(err).Str("item_id", item.ID.String()).Msg("mark in-flight failed")
			return
		}

		outcome := s.deliver(item)
		// The outcome is persisted on a detached context: the request already
		// happened, so a cancelled pass must not lose its result.
		applyCtx, applyCancel := context.WithTimeout(context.Background(), s.cfg.AttemptTimeout)
		applyErr := s.recon.Apply(applyCtx, item, outcome)
		applyCancel()
		if applyErr != nil {
			s.logger.Error().Err(applyErr).Str("item_id", item.ID.String()).Msg("reconcile outcome failed")
			return
		}

		// A retry outcome whose item is now dead means the reconciler found
		// the retries exhausted and dead-lettered it: terminal, not pending.
		terminal := outcome.Kind == outbox.OutcomeFail ||
			(outcome.Kind == outbox.OutcomeRetry && item.Status == outbox.StatusDead)

		mu.Lock()
		switch {
		case outcome.Kind == outbox.OutcomeSuccess:
			result.RecordSuccess(item.ID)
		case terminal:
			result.RecordFailure(item.ID, outcome.Err)
		default:
			result.RecordRetry(item.ID, outcome.Err)
		}
		mu.Unlock()

		switch {
		case outcome.Kind == outbox.OutcomeSuccess:
			if item.Type == outbox.MutationCreate && item.TempID != "" {
				mappedTemp, mappedServer = item.TempID, outcome.MappedID
			}
		case terminal:
			if item.Type == outbox.MutationCreate {
				s.deadLetterDependents(ctx, chain[idx+1:], result, mu)
				return
			}
			// A terminally failed update/delete is abandoned; later
			// mutations on the confirmed entity may still proceed.
		default:
			return // keep order: nothing later in this chain goes out first
		}
	}
}

// extendLease pushes the lease expiry out while the pass is still running.
func (s *Scheduler) extendLease(stop <-chan struct{}) {
	interval := s.cfg.LeaseTTL / 3
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			if err := s.lease.Extend(ctx, s.cfg.LeaseTTL); err != nil {
				s.logger.Warn().Err(err).Msg("flush lease extension failed")
			}
			cancel()
		}
	}
}

func (s *Scheduler) deadLetterDependents(ctx context.Context, rest []*outbox.Item, result *outbox.FlushResult, mu *sync.Mutex) {
	for _, dep := range rest {
		if err := s.recon.DeadLetter(ctx, dep, "depends on failed create"); err != nil {
			s.logger.Error().Err(err).Str("item_id", dep.ID.String()).Msg("dead-letter dependent failed")
			continue
		}
		mu.Lock()
		result.RecordFailure(dep.ID, nil)
		result.Errors[dep.ID] = "depends on failed create"
		mu.Unlock()
	}
}

// deliver performs one attempt. The attempt context is detached from the pass
// context on purpose: a started request is allowed to complete even when the
// pass is cancelled.
func (s *Scheduler) deliver(item *outbox.Item) outbox.FlushOutcome {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.AttemptTimeout)
	defer cancel()

	start := time.Now()
	var mappedID string
	var err error
	switch item.Type {
	case outbox.MutationCreate:
		var res *backend.Result
		res, err = s.client.CreateNote(ctx, item.IdempotencyKey, item.Payload)
		if err == nil {
			mappedID = res.ServerID
		}
	case outbox.MutationUpdate:
		err = s.client.UpdateNote(ctx, item.IdempotencyKey, item.EntityID, item.Payload)
	case outbox.MutationDelete:
		err = s.client.DeleteNote(ctx, item.IdempotencyKey, item.EntityID)
	}

	var outcome outbox.FlushOutcome
	switch {
	case err == nil:
		outcome = outbox.Success(mappedID)
	case retry.Classify(err) == retry.ClassRetryable:
		outcome = outbox.Retry(err)
	default:
		outcome = outbox.Fail(err)
	}

	if m := s.cfg.Metrics; m != nil {
		m.DeliveryDuration.WithLabelValues(string(item.Type)).Observe(time.Since(start).Seconds())
		m.FlushOutcomes.WithLabelValues(string(outcome.Kind)).Inc()
	}
	return outcome
}

// chainize groups the ordered snapshot into per-entity chains, preserving the
// first-seen order of chains and enqueue order within each.
func chainize(items []*outbox.Item) [][]*outbox.Item {
	index := make(map[string]int)
	var chains [][]*outbox.Item
	for _, it := range items {
		key := it.EntityID
		if it.Type == outbox.MutationCreate && it.TempID != "" {
			key = it.TempID
		}
		pos, ok := index[key]
		if !ok {
			pos = len(chains)
			index[key] = pos
			chains = append(chains, nil)
		}
		chains[pos] = append(chains[pos], it)
	}
	return chains
}
