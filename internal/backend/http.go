package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	domainErrors "github.com/brunovarela/notesync/internal/domain/errors"
	"github.com/sony/gobreaker/v2"
)

// HTTPClient talks to the notes backend over HTTP. All calls run through a
// circuit breaker so a dead backend stops consuming attempts quickly.
type HTTPClient struct {
	baseURL string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[*Result]
}

func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		breaker: gobreaker.NewCircuitBreaker[*Result](gobreaker.Settings{
			Name:        "notes-backend",
			MaxRequests: 10,
			Interval:    60 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
				return counts.Requests >= 10 && failureRatio >= 0.6
			},
		}),
	}
}

func (c *HTTPClient) CreateNote(ctx context.Context, idempotencyKey string, payload map[string]any) (*Result, error) {
	return c.breaker.Execute(func() (*Result, error) {
		return c.do(ctx, http.MethodPost, "/v1/notes", idempotencyKey, payload)
	})
}

func (c *HTTPClient) UpdateNote(ctx context.Context, idempotencyKey, noteID string, payload map[string]any) error {
	_, err := c.breaker.Execute(func() (*Result, error) {
		return c.do(ctx, http.MethodPatch, "/v1/notes/"+noteID, idempotencyKey, payload)
	})
	return err
}

func (c *HTTPClient) DeleteNote(ctx context.Context, idempotencyKey, noteID string) error {
	_, err := c.breaker.Execute(func() (*Result, error) {
		return c.do(ctx, http.MethodDelete, "/v1/notes/"+noteID, idempotencyKey, nil)
	})
	return err
}

func (c *HTTPClient) PromoteAttachment(ctx context.Context, noteID, attachmentID string) (string, error) {
	res, err := c.breaker.Execute(func() (*Result, error) {
		return c.do(ctx, http.MethodPost,
			fmt.Sprintf("/v1/notes/%s/attachments/%s/promote", noteID, attachmentID), "", nil)
	})
	if err != nil {
		return "", err
	}
	return res.ServerID, nil
}

func (c *HTTPClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domainErrors.ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: health returned %d", domainErrors.ErrBackendUnavailable, resp.StatusCode)
	}
	return nil
}

func (c *HTTPClient) do(ctx context.Context, method, path, idempotencyKey string, payload map[string]any) (*Result, error) {
	var body io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request payload: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil || isTimeout(err) {
			return nil, fmt.Errorf("%w: %v", domainErrors.ErrBackendTimeout, err)
		}
		return nil, fmt.Errorf("%w: %v", domainErrors.ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode >= 400 {
		return nil, &Error{Status: resp.StatusCode, Message: string(raw)}
	}

	res := &Result{}
	if len(raw) > 0 {
		var decoded struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(raw, &decoded); err == nil {
			res.ServerID = decoded.ID
		}
	}
	return res, nil
}

func isTimeout(err error) bool {
	type timeouter interface{ Timeout() bool }
	for e := err; e != nil; {
		if t, ok := e.(timeouter); ok && t.Timeout() {
			return true
		}
		u, ok := e.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		e = u.Unwrap()
	}
	return false
}
