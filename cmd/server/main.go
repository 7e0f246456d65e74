// Package main implements the entry point for the imagebatch server, which
// accepts prompt lists over HTTP, generates one image per prompt in
// concurrent batches and serves the results as zip bundles.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/phrazzld/imagebatch/internal/config"
	"github.com/phrazzld/imagebatch/internal/platform/logger"
	"github.com/phrazzld/imagebatch/internal/platform/postgres"
)

func main() {
	configPath := flag.String("config", "", "path to a config file (default: ./config.yaml if present)")
	migrateOnly := flag.Bool("migrate-only", false, "apply database migrations and exit")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, appLogger, err := initializeApp(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize application: %v\n", err)
		os.Exit(1)
	}

	if *migrateOnly {
		if err := runMigrations(ctx, cfg, appLogger); err != nil {
			appLogger.Error("migration failed", "error", err)
			os.Exit(1)
		}
		return
	}

	app, err := newApplication(ctx, cfg, appLogger)
	if err != nil {
		appLogger.Error("failed to build application", "error", err)
		os.Exit(1)
	}
	if err := app.Run(ctx); err != nil {
		appLogger.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
}

// initializeApp loads the .env file, configuration and logger.
func initializeApp(configPath string) (*config.Config, *slog.Logger, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	l, err := logger.Setup(cfg.Server)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to set up logger: %w", err)
	}

	l.Info("Server configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel,
		"model", cfg.Generator.Model)
	l.Debug("Optional components",
		"database_configured", cfg.Database.URL != "",
		"object_storage_configured", cfg.Storage.MinIO.Enabled())

	return cfg, l, nil
}

// runMigrations applies the archive schema without starting the server.
func runMigrations(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if cfg.Database.URL == "" {
		return errors.New("database.url is not configured")
	}
	db, err := postgres.Open(ctx, cfg.Database.URL, logger)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()
	return postgres.Migrate(ctx, db, logger)
}
