package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/phrazzld/imagebatch/internal/batch"
	"github.com/phrazzld/imagebatch/internal/config"
	"github.com/phrazzld/imagebatch/internal/events"
	"github.com/phrazzld/imagebatch/internal/generation"
	"github.com/phrazzld/imagebatch/internal/imagestore"
	"github.com/phrazzld/imagebatch/internal/platform/gemini"
	"github.com/phrazzld/imagebatch/internal/platform/objectstore"
	"github.com/phrazzld/imagebatch/internal/platform/postgres"
	"github.com/phrazzld/imagebatch/internal/service"
	"github.com/phrazzld/imagebatch/internal/session"
	"github.com/phrazzld/imagebatch/internal/store"
	"github.com/phrazzld/imagebatch/internal/task"
)

// application holds all the shared application dependencies to simplify
// management and ensure proper cleanup on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger

	// Optional archive database; nil when database.url is unset.
	db *sql.DB

	images       imagestore.Store
	broker       *events.Broker
	registry     *session.Registry
	sweeper      *session.Sweeper
	batchService service.BatchService
}

// newApplication creates the production dependencies from configuration and
// assembles the application.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*application, error) {
	backend, err := gemini.NewBackend(cfg.Generator, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize generation backend: %w", err)
	}
	logger.Info("generation backend initialized", "model", cfg.Generator.Model)

	images, err := setupImageStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	var (
		db      *sql.DB
		archive store.SessionStore
	)
	if cfg.Database.URL != "" {
		db, err = postgres.Open(ctx, cfg.Database.URL, logger)
		if err != nil {
			return nil, err
		}
		if err := postgres.Migrate(ctx, db, logger); err != nil {
			_ = db.Close()
			return nil, err
		}
		archive = postgres.NewSessionArchive(db)
		logger.Info("session archive enabled")
	}

	app, err := assemble(cfg, logger, backend, images, archive)
	if err != nil {
		if db != nil {
			_ = db.Close()
		}
		return nil, err
	}
	app.db = db
	return app, nil
}

// setupImageStore selects MinIO when an endpoint is configured and process
// memory otherwise.
func setupImageStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (imagestore.Store, error) {
	if !cfg.Storage.MinIO.Enabled() {
		logger.Info("keeping generated images in memory")
		return imagestore.NewMemoryStore(), nil
	}

	s, err := objectstore.NewMinIOStore(cfg.Storage.MinIO, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create object store: %w", err)
	}
	if err := s.Init(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize object store: %w", err)
	}
	logger.Info("storing generated images in object storage", "endpoint", cfg.Storage.MinIO.Endpoint)
	return s, nil
}

// assemble wires the core components around the given collaborators. archive
// may be nil.
func assemble(
	cfg *config.Config,
	logger *slog.Logger,
	backend generation.Backend,
	images imagestore.Store,
	archive store.SessionStore,
) (*application, error) {
	app := &application{
		config: cfg,
		logger: logger,
		images: images,
		broker: events.NewBroker(logger),
	}

	opts := []session.Option{
		session.WithPublisher(app.broker),
		session.WithImageStore(images),
		session.WithTTL(cfg.Retention.TTL),
	}
	if archive != nil {
		opts = append(opts, session.WithArchiver(archive))
	}
	app.registry = session.NewRegistry(logger, opts...)

	if cfg.Retention.TTL > 0 && cfg.Retention.SweepSchedule != "" {
		sweeper, err := session.NewSweeper(app.registry, cfg.Retention.SweepSchedule, logger)
		if err != nil {
			return nil, err
		}
		app.sweeper = sweeper
	}

	runner, err := task.NewRunner(task.RunnerConfigFrom(cfg.Task), images, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create task runner: %w", err)
	}
	scheduler := batch.NewScheduler(backend, runner, app.registry, batch.ConfigFrom(cfg.Batch), logger)

	app.batchService = service.NewBatchService(
		app.registry,
		scheduler,
		archive,
		images,
		service.LimitsFrom(cfg.Batch),
		logger,
	)

	logger.Info("Application initialized successfully")
	return app, nil
}

// Run starts the application server, handling lifecycle and cleanup.
// It returns an error if the server fails to start or encounters problems.
func (app *application) Run(ctx context.Context) error {
	if app.sweeper != nil {
		app.sweeper.Start()
	}

	if err := app.startHTTPServer(ctx, app.setupRouter()); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// cleanup settles running sessions and releases resources. Every step is
// bounded by ctx.
func (app *application) cleanup(ctx context.Context) {
	if err := app.batchService.Shutdown(ctx); err != nil {
		app.logger.Error("sessions did not settle before shutdown deadline", "error", err)
	}

	if app.sweeper != nil {
		app.sweeper.Stop(ctx)
	}

	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("Error closing database connection", "error", err)
		}
	}

	app.logger.Info("Application shutdown completed")
}
