package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"sync/atomic"
	"time"

	"github.com/phrazzld/imagebatch/internal/config"
	"github.com/phrazzld/imagebatch/internal/generation"
	"google.golang.org/genai"
)

// modelsAPI is the part of the genai Models service the adapter uses.
// *genai.Models satisfies it.
type modelsAPI interface {
	GenerateContent(
		ctx context.Context,
		model string,
		contents []*genai.Content,
		config *genai.GenerateContentConfig,
	) (*genai.GenerateContentResponse, error)
	Get(ctx context.Context, model string, config *genai.GetModelConfig) (*genai.Model, error)
}

// defaultAPIHost serves the Gemini Files API.
const defaultAPIHost = "generativelanguage.googleapis.com"

// modelsFactory opens the API for one engine.
type modelsFactory func(ctx context.Context) (modelsAPI, error)

// Backend launches Gemini-backed engines.
type Backend struct {
	config     config.GeneratorConfig
	logger     *slog.Logger
	httpClient *http.Client
	newModels  modelsFactory

	// apiHost is the host whose file URIs are downloaded with the API key.
	apiHost string
}

var _ generation.Backend = (*Backend)(nil)

// NewBackend creates a Backend after validating the generator configuration.
func NewBackend(cfg config.GeneratorConfig, logger *slog.Logger) (*Backend, error) {
	factory := func(ctx context.Context) (modelsAPI, error) {
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  cfg.GeminiAPIKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: failed to create Gemini client: %v", generation.ErrInvalidConfig, err)
		}
		return client.Models, nil
	}
	return newBackend(cfg, logger, factory, &http.Client{Timeout: 2 * time.Minute})
}

func newBackend(
	cfg config.GeneratorConfig,
	logger *slog.Logger,
	factory modelsFactory,
	httpClient *http.Client,
) (*Backend, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", generation.ErrInvalidConfig)
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", generation.ErrInvalidConfig)
	}
	if !slices.Contains(cfg.ResponseModalities, "IMAGE") {
		return nil, fmt.Errorf("%w: response modalities must include IMAGE", generation.ErrInvalidConfig)
	}

	return &Backend{
		config:     cfg,
		logger:     logger.With("component", "gemini_backend", "model", cfg.Model),
		httpClient: httpClient,
		newModels:  factory,
		apiHost:    defaultAPIHost,
	}, nil
}

// Launch implements generation.Backend. It fails when the client cannot be
// created or the configured model is unknown to the API.
func (b *Backend) Launch(ctx context.Context) (generation.Engine, error) {
	models, err := b.newModels(ctx)
	if err != nil {
		return nil, err
	}

	if _, err := models.Get(ctx, b.config.Model, nil); err != nil {
		return nil, fmt.Errorf("%w: model %q is not available: %v", generation.ErrInvalidConfig, b.config.Model, err)
	}

	b.logger.InfoContext(ctx, "gemini engine launched")
	return &engine{
		models:     models,
		model:      b.config.Model,
		modalities: slices.Clone(b.config.ResponseModalities),
		httpClient: b.httpClient,
		apiKey:     b.config.GeminiAPIKey,
		apiHost:    b.apiHost,
		logger:     b.logger,
	}, nil
}

// engine shares one client among the workspaces of a session.
type engine struct {
	models     modelsAPI
	model      string
	modalities []string
	httpClient *http.Client
	apiKey     string
	apiHost    string
	logger     *slog.Logger

	closed atomic.Bool
}

// NewWorkspace implements generation.Engine
func (e *engine) NewWorkspace(ctx context.Context) (generation.Workspace, error) {
	if e.closed.Load() {
		return nil, generation.ErrEngineClosed
	}
	reqCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	return &workspace{engine: e, ctx: reqCtx, cancel: cancel}, nil
}

// Close implements io.Closer
func (e *engine) Close() error {
	if e.closed.CompareAndSwap(false, true) {
		e.logger.Debug("gemini engine closed")
	}
	return nil
}
