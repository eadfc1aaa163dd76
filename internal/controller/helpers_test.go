package controller

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	domainErrors "github.com/brunovarela/notesync/internal/domain/errors"
	"github.com/stretchr/testify/assert"
)

func TestWriteJSON(t *testing.T) {
	tests := []struct {
		name         string
		status       int
		payload      any
		expectedBody string
	}{
		{
			name:         "simple map",
			status:       http.StatusOK,
			payload:      map[string]string{"status": "ok"},
			expectedBody: `{"status":"ok"}`,
		},
		{
			name:         "error response",
			status:       http.StatusConflict,
			payload:      ErrorResponse{Error: "conflict", Code: "conflict"},
			expectedBody: `{"error":"conflict","code":"conflict"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			writeJSON(w, tt.status, tt.payload)

			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
			assert.JSONEq(t, tt.expectedBody, w.Body.String())
		})
	}
}

func TestWriteError_ValidationError(t *testing.T) {
	w := httptest.NewRecorder()
	writeError(w, domainErrors.NewValidationError("content", "required"))

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var resp ErrorResponse
	json.NewDecoder(w.Body).Decode(&resp)
	assert.Equal(t, "validation_error", resp.Code)
	assert.Contains(t, resp.Error, "content")
}

func TestWriteError_DomainErrors(t *testing.T) {
	tests := []struct {
		name           string
		err            error
		expectedStatus int
		expectedCode   string
	}{
		{"note not found", domainErrors.ErrNoteNotFound, http.StatusNotFound, "not_found"},
		{"dead letter not found", domainErrors.ErrDeadLetterNotFound, http.StatusNotFound, "not_found"},
		{"storage exhausted", domainErrors.ErrStorageExhausted, http.StatusInsufficientStorage, "storage_exhausted"},
		{"conflict", domainErrors.ErrConflict, http.StatusConflict, "conflict"},
		{"backend unavailable", domainErrors.ErrBackendUnavailable, http.StatusServiceUnavailable, "backend_unavailable"},
		{"invalid mutation", domainErrors.ErrInvalidMutation, http.StatusBadRequest, "invalid_mutation"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			writeError(w, tt.err)

			assert.Equal(t, tt.expectedStatus, w.Code)

			var resp ErrorResponse
			json.NewDecoder(w.Body).Decode(&resp)
			assert.Equal(t, tt.expectedCode, resp.Code)
		})
	}
}

func TestWriteError_UnknownErrorIsMasked(t *testing.T) {
	w := httptest.NewRecorder()
	writeError(w, errors.New("pgx: connection refused"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)

	var resp ErrorResponse
	json.NewDecoder(w.Body).Decode(&resp)
	assert.Equal(t, "internal_error", resp.Code)
	assert.NotContains(t, resp.Error, "pgx", "internals must not leak to callers")
}
