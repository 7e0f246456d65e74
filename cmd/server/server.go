package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// startHTTPServer serves router until ctx is cancelled or the listener fails,
// then shuts the server and the application down within the configured
// timeout.
func (app *application) startHTTPServer(ctx context.Context, router http.Handler) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", app.config.Server.Port))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	return app.serve(ctx, ln, router)
}

func (app *application) serve(ctx context.Context, ln net.Listener, router http.Handler) error {
	server := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	serveErr := make(chan error, 1)
	go func() {
		app.logger.Info("Starting server", "addr", ln.Addr().String())
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		app.logger.Info("Shutting down server...")
	case err := <-serveErr:
		if err != nil {
			app.logger.Error("Server failed", "error", err)
			runErr = err
		}
	}

	timeout := app.config.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// Progress streams are hijacked connections; Shutdown does not wait for
	// them, and they end when their sessions settle below.
	if err := server.Shutdown(shutdownCtx); err != nil {
		app.logger.Error("Server shutdown failed", "error", err)
		runErr = errors.Join(runErr, fmt.Errorf("server shutdown failed: %w", err))
	}

	app.cleanup(shutdownCtx)

	app.logger.Info("Server shutdown completed")
	return runErr
}
