package retry

import (
	"context"
	"errors"
	"net"
	"time"

	domainErrors "github.com/brunovarela/notesync/internal/domain/errors"
)

// Class buckets a delivery failure for the scheduler.
type Class int

const (
	// ClassRetryable covers network errors, timeouts and 5xx responses.
	// A timeout is always retryable, never terminal: the server may have
	// already applied the effect, which is exactly what the idempotency
	// key exists to make safe.
	ClassRetryable Class = iota
	// ClassConflict means the server state diverged (entity already deleted
	// or changed). The local operation is discarded, not retried.
	ClassConflict
	// ClassTerminal covers validation and auth rejections. Dead-lettered.
	ClassTerminal
)

// StatusCoder is implemented by backend errors that carry an HTTP status.
type StatusCoder interface {
	StatusCode() int
}

// Classify maps a delivery error to its retry class.
func Classify(err error) Class {
	if err == nil {
		return ClassRetryable
	}
	switch {
	case errors.Is(err, domainErrors.ErrConflict):
		return ClassConflict
	case errors.Is(err, domainErrors.ErrUnauthorized),
		errors.Is(err, domainErrors.ErrValidationRejected):
		return ClassTerminal
	case errors.Is(err, domainErrors.ErrBackendTimeout),
		errors.Is(err, domainErrors.ErrBackendUnavailable),
		errors.Is(err, context.DeadlineExceeded):
		return ClassRetryable
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return ClassRetryable
	}

	var sc StatusCoder
	if errors.As(err, &sc) {
		switch code := sc.StatusCode(); {
		case code == 409:
			return ClassConflict
		case code == 401 || code == 403 || code == 400 || code == 422:
			return ClassTerminal
		case code >= 500:
			return ClassRetryable
		}
	}

	return ClassRetryable
}

// Policy computes bounded exponential backoff for outbox deliveries.
type Policy struct {
	Base        time.Duration
	MaxDelay    time.Duration
	MaxAttempts int
}

// DefaultPolicy matches the delivery contract: base 500ms doubling per
// attempt, capped at 30s and 5 attempts.
func DefaultPolicy() Policy {
	return Policy{
		Base:        500 * time.Millisecond,
		MaxDelay:    30 * time.Second,
		MaxAttempts: 5,
	}
}

// Delay returns base * 2^attempt capped at MaxDelay. attempt is zero-based.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := p.Base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// Exhausted reports whether another automatic attempt is allowed.
func (p Policy) Exhausted(retries int) bool {
	return retries >= p.MaxAttempts
}
