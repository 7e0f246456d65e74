package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/imagebatch/internal/session"
)

// errNotFound is returned for 404 answers from the server.
var errNotFound = errors.New("not found")

// client talks to the imagebatch HTTP API.
type client struct {
	base string
	http *http.Client
}

func newClient(base string) (*client, error) {
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid server URL %q", base)
	}
	return &client{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: 5 * time.Minute},
	}, nil
}

type submitRequest struct {
	Prompts   []string `json:"prompts"`
	BatchSize *int     `json:"batchSize,omitempty"`
}

type submitResponse struct {
	SessionID uuid.UUID `json:"sessionId"`
	Message   string    `json:"message"`
}

// Submit posts the prompts and returns the new session ID. A batchSize of
// zero leaves the choice to the server.
func (c *client) Submit(ctx context.Context, prompts []string, batchSize int) (uuid.UUID, error) {
	req := submitRequest{Prompts: prompts}
	if batchSize > 0 {
		req.BatchSize = &batchSize
	}
	body, err := json.Marshal(req)
	if err != nil {
		return uuid.Nil, err
	}

	resp, err := c.do(ctx, http.MethodPost, "/api/process-batch", bytes.NewReader(body))
	if err != nil {
		return uuid.Nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	var out submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return uuid.Nil, fmt.Errorf("failed to decode submit response: %w", err)
	}
	return out.SessionID, nil
}

// Status fetches the session snapshot.
func (c *client) Status(ctx context.Context, id uuid.UUID) (session.Snapshot, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/status/"+id.String(), nil)
	if err != nil {
		return session.Snapshot{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	var snap session.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return session.Snapshot{}, fmt.Errorf("failed to decode status: %w", err)
	}
	return snap, nil
}

// Download copies the session bundle to w and returns the byte count.
func (c *client) Download(ctx context.Context, id uuid.UUID, w io.Writer) (int64, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/download/"+id.String(), nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()
	return io.Copy(w, resp.Body)
}

// do sends the request and turns non-2xx answers into errors carrying the
// server's message.
func (c *client) do(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer func() { _ = resp.Body.Close() }()

	var apiErr struct {
		Error string `json:"error"`
	}
	_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&apiErr)
	msg := apiErr.Error
	if msg == "" {
		msg = resp.Status
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", errNotFound, msg)
	}
	return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, msg)
}
