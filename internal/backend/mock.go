package backend

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	domainErrors "github.com/brunovarela/notesync/internal/domain/errors"
)

// Mock is an in-memory backend used in tests and local runs. It honours the
// idempotency contract: repeated deliveries with the same key return the
// original result without creating a second entity. Errors can be scripted
// per idempotency key to simulate transient and terminal failures
// deterministically.
type Mock struct {
	mu      sync.Mutex
	latency time.Duration
	healthy bool

	notes    map[string]map[string]any
	order    []string
	byKey    map[string]*Result
	scripted map[string][]error
	promoted map[string]string

	createCalls int
	seq         int
}

type MockOption func(*Mock)

func WithLatency(d time.Duration) MockOption {
	return func(m *Mock) { m.latency = d }
}

func NewMock(opts ...MockOption) *Mock {
	m := &Mock{
		healthy:  true,
		notes:    make(map[string]map[string]any),
		byKey:    make(map[string]*Result),
		scripted: make(map[string][]error),
		promoted: make(map[string]string),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// ScriptErrors queues errors to be returned, one per call, for deliveries
// carrying the given idempotency key. A nil entry means "succeed".
func (m *Mock) ScriptErrors(idempotencyKey string, errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripted[idempotencyKey] = append(m.scripted[idempotencyKey], errs...)
}

// SetHealthy flips the health probe result.
func (m *Mock) SetHealthy(ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.healthy = ok
}

func (m *Mock) CreateNote(ctx context.Context, idempotencyKey string, payload map[string]any) (*Result, error) {
	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.createCalls++
	if err := m.popScript(idempotencyKey); err != nil {
		return nil, err
	}
	if res, ok := m.byKey[idempotencyKey]; ok {
		return res, nil // duplicate delivery, de-duplicated
	}

	m.seq++
	serverID := fmt.Sprintf("srv_%d", m.seq)
	m.notes[serverID] = payload
	m.order = append(m.order, serverID)
	res := &Result{ServerID: serverID}
	m.byKey[idempotencyKey] = res
	return res, nil
}

func (m *Mock) UpdateNote(ctx context.Context, idempotencyKey, noteID string, payload map[string]any) error {
	if err := m.wait(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.popScript(idempotencyKey); err != nil {
		return err
	}
	if _, ok := m.byKey[idempotencyKey]; ok {
		return nil
	}
	existing, ok := m.notes[noteID]
	if !ok {
		return &Error{Status: http.StatusConflict, Message: "note no longer exists"}
	}
	for k, v := range payload {
		existing[k] = v
	}
	m.byKey[idempotencyKey] = &Result{ServerID: noteID}
	return nil
}

func (m *Mock) DeleteNote(ctx context.Context, idempotencyKey, noteID string) error {
	if err := m.wait(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.popScript(idempotencyKey); err != nil {
		return err
	}
	if _, ok := m.byKey[idempotencyKey]; ok {
		return nil
	}
	if _, ok := m.notes[noteID]; !ok {
		return &Error{Status: http.StatusConflict, Message: "note already deleted"}
	}
	delete(m.notes, noteID)
	for i, id := range m.order {
		if id == noteID {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	m.byKey[idempotencyKey] = &Result{}
	return nil
}

func (m *Mock) PromoteAttachment(ctx context.Context, noteID, attachmentID string) (string, error) {
	if err := m.wait(ctx); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.popScript("promote:" + attachmentID); err != nil {
		return "", err
	}
	if _, ok := m.notes[noteID]; !ok {
		return "", &Error{Status: http.StatusConflict, Message: "note no longer exists"}
	}
	url := fmt.Sprintf("https://files.local/%s/%s", noteID, attachmentID)
	m.promoted[attachmentID] = url
	return url, nil
}

func (m *Mock) Ping(ctx context.Context) error {
	m.mu.Lock()
	healthy := m.healthy
	m.mu.Unlock()
	if !healthy {
		return domainErrors.ErrBackendUnavailable
	}
	return nil
}

// NoteIDs returns server ids in creation order.
func (m *Mock) NoteIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}

// Note returns the stored payload for a server id.
func (m *Mock) Note(serverID string) map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.notes[serverID]
}

// CreateCalls counts CreateNote invocations including de-duplicated ones.
func (m *Mock) CreateCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createCalls
}

// PromotedURL returns the permanent URL recorded for an attachment.
func (m *Mock) PromotedURL(attachmentID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.promoted[attachmentID]
}

func (m *Mock) popScript(key string) error {
	queue := m.scripted[key]
	if len(queue) == 0 {
		return nil
	}
	err := queue[0]
	m.scripted[key] = queue[1:]
	return err
}

func (m *Mock) wait(ctx context.Context) error {
	if m.latency <= 0 {
		return nil
	}
	select {
	case <-time.After(m.latency):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
