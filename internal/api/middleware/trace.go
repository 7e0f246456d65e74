package middleware

import (
	"log/slog"
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/phrazzld/imagebatch/internal/api/shared"
	"github.com/phrazzld/imagebatch/internal/platform/logger"
)

// Trace adds a trace ID and a request-scoped logger to the request context.
// The chi request ID is reused as the trace ID when present. It should be
// applied after chimiddleware.RequestID and before any handler that logs.
func Trace(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := shared.WithTraceID(r.Context(), chimiddleware.GetReqID(r.Context()))
			traceID := shared.GetTraceID(ctx)

			log := base.With(slog.String("trace_id", traceID))
			ctx = logger.WithContext(ctx, log)

			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			ww.Header().Set("X-Trace-ID", traceID)
			start := time.Now()

			next.ServeHTTP(ww, r.WithContext(ctx))

			log.Debug("request finished",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("remote_addr", r.RemoteAddr),
				slog.Int("status", ww.Status()),
				slog.Int("bytes", ww.BytesWritten()),
				slog.Duration("duration", time.Since(start)))
		})
	}
}
