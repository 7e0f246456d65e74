package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/phrazzld/imagebatch/internal/api"
	apiMiddleware "github.com/phrazzld/imagebatch/internal/api/middleware"
)

// setupRouter creates the application router with all routes and middleware.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.Trace(app.logger))
	r.Use(apiMiddleware.CORS())

	batchHandler := api.NewBatchHandler(app.batchService, app.logger)
	eventsHandler := api.NewEventsHandler(app.batchService, app.broker, app.logger)

	r.Route("/api", func(r chi.Router) {
		r.Post("/process-batch", batchHandler.ProcessBatch)
		r.Get("/status/{sessionId}", batchHandler.GetStatus)
		r.Get("/download/{sessionId}", batchHandler.Download)
		r.Get("/sessions/{sessionId}/events", eventsHandler.Stream)
		r.Get("/health", batchHandler.Health)
	})

	return r
}
