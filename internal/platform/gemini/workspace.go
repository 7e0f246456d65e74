package gemini

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/phrazzld/imagebatch/internal/generation"
	"google.golang.org/genai"
)

// maxDownloadBytes bounds file-backed image downloads.
const maxDownloadBytes = 32 << 20

type response struct {
	resp *genai.GenerateContentResponse
	err  error
}

// workspace carries a single generateContent request. Its context outlives
// the individual step deadlines and is cancelled by Close.
type workspace struct {
	engine *engine
	ctx    context.Context
	cancel context.CancelFunc

	config *genai.GenerateContentConfig

	mu      sync.Mutex
	pending map[string]chan response
}

// Prepare implements generation.Workspace
func (w *workspace) Prepare(ctx context.Context) error {
	if w.engine.closed.Load() {
		return generation.ErrEngineClosed
	}
	w.config = &genai.GenerateContentConfig{
		ResponseModalities: w.engine.modalities,
	}
	w.pending = make(map[string]chan response, 1)
	return nil
}

// Submit implements generation.Workspace. The request runs in the
// background until Await collects it or the workspace closes.
func (w *workspace) Submit(ctx context.Context, prompt string) (generation.Job, error) {
	if strings.TrimSpace(prompt) == "" {
		return generation.Job{}, ErrEmptyPrompt
	}
	if w.config == nil {
		return generation.Job{}, fmt.Errorf("%w: workspace not prepared", generation.ErrStepFailed)
	}

	job := generation.Job{ID: uuid.NewString(), Prompt: prompt}
	done := make(chan response, 1)

	w.mu.Lock()
	w.pending[job.ID] = done
	w.mu.Unlock()

	go func() {
		resp, err := w.engine.models.GenerateContent(w.ctx, w.engine.model, genai.Text(prompt), w.config)
		done <- response{resp: resp, err: err}
	}()

	w.engine.logger.DebugContext(ctx, "generation request submitted", "job_id", job.ID)
	return job, nil
}

// Await implements generation.Workspace
func (w *workspace) Await(ctx context.Context, job generation.Job) (generation.Asset, error) {
	w.mu.Lock()
	done, ok := w.pending[job.ID]
	delete(w.pending, job.ID)
	w.mu.Unlock()
	if !ok {
		return generation.Asset{}, fmt.Errorf("%w: unknown job %s", generation.ErrStepFailed, job.ID)
	}

	select {
	case r := <-done:
		if r.err != nil {
			return generation.Asset{}, fmt.Errorf("%w: %v", generation.ErrStepFailed, r.err)
		}
		return extractAsset(r.resp)
	case <-ctx.Done():
		return generation.Asset{}, ctx.Err()
	}
}

// extractAsset picks the first image part of the first candidate.
func extractAsset(resp *genai.GenerateContentResponse) (generation.Asset, error) {
	if resp == nil {
		return generation.Asset{}, ErrNoCandidates
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return generation.Asset{}, fmt.Errorf("%w: prompt blocked (%s)", generation.ErrContentBlocked, resp.PromptFeedback.BlockReason)
	}
	if len(resp.Candidates) == 0 {
		return generation.Asset{}, ErrNoCandidates
	}

	candidate := resp.Candidates[0]
	if candidate.FinishReason == genai.FinishReasonSafety {
		return generation.Asset{}, generation.ErrContentBlocked
	}
	if candidate.Content == nil {
		return generation.Asset{}, generation.ErrNoImage
	}

	var text strings.Builder
	for _, part := range candidate.Content.Parts {
		if part == nil {
			continue
		}
		if part.InlineData != nil && len(part.InlineData.Data) > 0 {
			return generation.Asset{Inline: part.InlineData.Data, MIMEType: part.InlineData.MIMEType}, nil
		}
		if part.FileData != nil && part.FileData.FileURI != "" {
			return generation.Asset{URI: part.FileData.FileURI, MIMEType: part.FileData.MIMEType}, nil
		}
		text.WriteString(part.Text)
	}

	if text.Len() > 0 {
		msg := text.String()
		if len(msg) > 200 {
			msg = msg[:200] + "..."
		}
		return generation.Asset{}, fmt.Errorf("%w: model replied with text only: %q", generation.ErrNoImage, msg)
	}
	return generation.Asset{}, generation.ErrNoImage
}

// Fetch implements generation.Workspace
func (w *workspace) Fetch(ctx context.Context, asset generation.Asset) (generation.Image, error) {
	if len(asset.Inline) > 0 {
		return generation.Image{Data: asset.Inline, MIMEType: asset.MIMEType}, nil
	}
	if asset.URI == "" {
		return generation.Image{}, generation.ErrNoImage
	}

	req, err := w.engine.downloadRequest(ctx, asset.URI)
	if err != nil {
		return generation.Image{}, fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	resp, err := w.engine.httpClient.Do(req)
	if err != nil {
		return generation.Image{}, fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return generation.Image{}, fmt.Errorf("%w: unexpected status %d", ErrDownloadFailed, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadBytes+1))
	if err != nil {
		return generation.Image{}, fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	if len(data) > maxDownloadBytes {
		return generation.Image{}, fmt.Errorf("%w: image exceeds %d bytes", ErrDownloadFailed, maxDownloadBytes)
	}

	mimeType := asset.MIMEType
	if mimeType == "" {
		mimeType = resp.Header.Get("Content-Type")
	}
	return generation.Image{Data: data, MIMEType: mimeType}, nil
}

// downloadRequest builds the GET for a file URI. Files API resources are
// rewritten to their media download form and carry the API key; the key is
// never sent to any other host.
func (e *engine) downloadRequest(ctx context.Context, uri string) (*http.Request, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return nil, fmt.Errorf("unsupported file URI scheme %q", u.Scheme)
	}

	keyed := u.Host == e.apiHost
	if keyed && strings.Contains(u.Path, "/files/") && !strings.HasSuffix(u.Path, ":download") {
		u.Path += ":download"
		q := u.Query()
		q.Set("alt", "media")
		u.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	if keyed {
		req.Header.Set("x-goog-api-key", e.apiKey)
	}
	return req, nil
}

// Close implements io.Closer
func (w *workspace) Close() error {
	w.cancel()
	return nil
}
