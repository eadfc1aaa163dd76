package reconcile

import (
	"context"
	"sync"

	"github.com/brunovarela/notesync/internal/events"
	"github.com/brunovarela/notesync/pkg/retry"
	"github.com/rs/zerolog"
)

// Job is a dependent finalization action parked until its owning entity has a
// server id, e.g. promoting a provisionally uploaded attachment.
type Job struct {
	AttachmentID string
	NoteID       string // temp id until remap
	Run          func(ctx context.Context, noteID string) error
}

// FinalizeQueue holds jobs keyed by the note id they wait on. It registers
// with the temp-id resolver so pending jobs are remapped like every other
// holder of a temp id.
type FinalizeQueue struct {
	mu     sync.Mutex
	jobs   map[string][]*Job
	cfg    retry.Config
	bus    *events.Bus
	logger zerolog.Logger
	wg     sync.WaitGroup
}

func NewFinalizeQueue(cfg retry.Config, bus *events.Bus, logger zerolog.Logger) *FinalizeQueue {
	return &FinalizeQueue{
		jobs:   make(map[string][]*Job),
		cfg:    cfg,
		bus:    bus,
		logger: logger,
	}
}

// Register parks a job until Release is called with its note id.
func (q *FinalizeQueue) Register(job *Job) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs[job.NoteID] = append(q.jobs[job.NoteID], job)
}

// Remap implements idgen.Holder: pending jobs keyed by the temp id move to
// the server id. Returns the number of jobs swapped.
func (q *FinalizeQueue) Remap(tempID, serverID string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	jobs, ok := q.jobs[tempID]
	if !ok {
		return 0
	}
	delete(q.jobs, tempID)
	for _, j := range jobs {
		j.NoteID = serverID
	}
	q.jobs[serverID] = append(q.jobs[serverID], jobs...)
	return len(jobs)
}

// Release runs every job waiting on noteID, each under its own retry lineage.
func (q *FinalizeQueue) Release(userID, noteID string) {
	q.mu.Lock()
	jobs := q.jobs[noteID]
	delete(q.jobs, noteID)
	q.mu.Unlock()

	for _, job := range jobs {
		job := job
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			err := retry.Do(context.Background(), q.cfg, func() error {
				return job.Run(context.Background(), job.NoteID)
			})
			if err != nil {
				q.logger.Error().
					Str("attachment_id", job.AttachmentID).
					Str("note_id", job.NoteID).
					Err(err).
					Msg("attachment finalization failed")
				q.bus.Publish(events.Event{
					Kind:     events.KindSyncFailure,
					UserID:   userID,
					EntityID: job.NoteID,
					Message:  "attachment finalization failed: " + err.Error(),
				})
				return
			}
			q.logger.Debug().
				Str("attachment_id", job.AttachmentID).
				Str("note_id", job.NoteID).
				Msg("attachment finalized")
		}()
	}
}

// PendingFor returns the note ids of jobs currently parked on noteID.
func (q *FinalizeQueue) PendingFor(noteID string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs[noteID])
}

// Wait blocks until all released jobs have finished. Used on teardown.
func (q *FinalizeQueue) Wait() {
	q.wg.Wait()
}
