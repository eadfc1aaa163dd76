package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	appsync "github.com/brunovarela/notesync/internal/application/sync"
	"github.com/brunovarela/notesync/internal/backend"
	"github.com/brunovarela/notesync/internal/connectivity"
	"github.com/brunovarela/notesync/internal/draft"
	"github.com/brunovarela/notesync/internal/flush"
	"github.com/brunovarela/notesync/internal/infrastructure/config"
	"github.com/brunovarela/notesync/internal/infrastructure/observability"
	"github.com/brunovarela/notesync/internal/lease"
	"github.com/brunovarela/notesync/internal/store/memory"
	"github.com/brunovarela/notesync/pkg/retry"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) (*chi.Mux, *backend.Mock) {
	t.Helper()
	mock := backend.NewMock()

	flushCfg := flush.DefaultConfig()
	flushCfg.Parallelism = 1

	svc, err := appsync.NewService(context.Background(), "u1", appsync.Deps{
		Store:  memory.New(),
		Client: mock,
		Lease:  lease.NewMemoryLease("ctrl-test-"+uuid.NewString(), time.Minute),
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
	})
	require.NoError(t, err)
	t.Cleanup(svc.Close)

	router := NewRouter(RouterDeps{
		Service:    svc,
		Metrics:    observability.NewMetrics("notesync_test", prometheus.NewRegistry()),
		CORSConfig: config.CORSConfig{AllowedOrigins: []string{"*"}},
	})
	return router, mock
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestCreateNote_ReturnsPendingEntity(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/v1/notes", map[string]any{
		"title":   "groceries",
		"content": "milk",
	})

	require.Equal(t, http.StatusAccepted, w.Code)

	var resp NoteResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.True(t, resp.Pending)
	assert.False(t, resp.Synced)
	assert.Equal(t, "milk", resp.Content)
}

func TestCreateNote_RejectsMissingContent(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/v1/notes", map[string]any{"title": "empty"})

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var resp ErrorResponse
	json.NewDecoder(w.Body).Decode(&resp)
	assert.Equal(t, "validation_error", resp.Code)
}

func TestListNotes(t *testing.T) {
	router, _ := newTestRouter(t)

	doJSON(t, router, http.MethodPost, "/v1/notes", map[string]any{"content": "a"})
	doJSON(t, router, http.MethodPost, "/v1/notes", map[string]any{"content": "b"})

	w := doJSON(t, router, http.MethodGet, "/v1/notes", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp []NoteResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Len(t, resp, 2)
	assert.Equal(t, "a", resp[0].Content)
	assert.Equal(t, "b", resp[1].Content)
}

func TestFlushEndpoint_DrainsQueue(t *testing.T) {
	router, mock := newTestRouter(t)

	doJSON(t, router, http.MethodPost, "/v1/notes", map[string]any{"content": "sync me"})

	w := doJSON(t, router, http.MethodPost, "/v1/sync/flush", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp FlushResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.True(t, resp.Ran)
	assert.Equal(t, 1, resp.Succeeded)
	assert.Len(t, mock.NoteIDs(), 1)
}

func TestStatusEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	doJSON(t, router, http.MethodPost, "/v1/notes", map[string]any{"content": "queued"})

	w := doJSON(t, router, http.MethodGet, "/v1/sync/status", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp StatusResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.False(t, resp.Connectivity.EffectiveOnline)
	assert.Equal(t, 1, resp.QueueDepth)
	assert.Equal(t, 0, resp.DeadLetters)

	// Depth tracks the outbox, not the note view: after a flush the note
	// is still listed but nothing is queued.
	w = doJSON(t, router, http.MethodPost, "/v1/sync/flush", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodGet, "/v1/sync/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp = StatusResponse{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, 0, resp.QueueDepth)

	w = doJSON(t, router, http.MethodGet, "/v1/notes", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var notes []NoteResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&notes))
	assert.Len(t, notes, 1)
}

func TestSetOnline(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/v1/sync/online", map[string]any{"online": true})
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodPost, "/v1/sync/online", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeadLetterEndpoints_UnknownID(t *testing.T) {
	router, _ := newTestRouter(t)

	id := uuid.NewString()

	w := doJSON(t, router, http.MethodPost, "/v1/sync/dead-letters/"+id+"/retry", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, router, http.MethodDelete, "/v1/sync/dead-letters/"+id, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDraftLifecycle(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodGet, "/v1/draft", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, router, http.MethodPut, "/v1/draft", map[string]any{
		"title":   "wip",
		"content": "half a thought",
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodGet, "/v1/draft", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var d draft.Draft
	require.NoError(t, json.NewDecoder(w.Body).Decode(&d))
	assert.Equal(t, "half a thought", d.Content)

	w = doJSON(t, router, http.MethodDelete, "/v1/draft", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodGet, "/v1/draft", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHealthEndpoints(t *testing.T) {
	router, _ := newTestRouter(t)

	for _, path := range []string{"/health", "/health/live", "/health/ready"} {
		w := doJSON(t, router, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
}
