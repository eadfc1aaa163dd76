package outbox

import "github.com/google/uuid"

// OutcomeKind tags the result of a single delivery attempt.
type OutcomeKind string

const (
	OutcomeSuccess OutcomeKind = "success"
	OutcomeRetry   OutcomeKind = "retry"
	OutcomeFail    OutcomeKind = "fail"
)

// FlushOutcome is the result of one delivery attempt. Exactly one branch is
// populated: MappedID only for Success (and only for creates), Err only for
// Retry and Fail.
type FlushOutcome struct {
	Kind     OutcomeKind
	MappedID string
	Err      error
}

func Success(mappedID string) FlushOutcome {
	return FlushOutcome{Kind: OutcomeSuccess, MappedID: mappedID}
}

func Retry(err error) FlushOutcome {
	return FlushOutcome{Kind: OutcomeRetry, Err: err}
}

func Fail(err error) FlushOutcome {
	return FlushOutcome{Kind: OutcomeFail, Err: err}
}

// FlushResult aggregates the outcomes of one flush pass.
type FlushResult struct {
	SuccessIDs []uuid.UUID
	RetriedIDs []uuid.UUID
	FailedIDs  []uuid.UUID
	Errors     map[uuid.UUID]string
}

func NewFlushResult() *FlushResult {
	return &FlushResult{Errors: make(map[uuid.UUID]string)}
}

func (r *FlushResult) RecordSuccess(id uuid.UUID) {
	r.SuccessIDs = append(r.SuccessIDs, id)
}

func (r *FlushResult) RecordRetry(id uuid.UUID, err error) {
	r.RetriedIDs = append(r.RetriedIDs, id)
	if err != nil {
		r.Errors[id] = err.Error()
	}
}

func (r *FlushResult) RecordFailure(id uuid.UUID, err error) {
	r.FailedIDs = append(r.FailedIDs, id)
	if err != nil {
		r.Errors[id] = err.Error()
	}
}
