package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

// CORS allows any origin to call the API and exposes the download filename
// and trace ID to browser clients.
func CORS() func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization", "X-Request-ID"},
		ExposedHeaders: []string{"Content-Disposition", "X-Trace-ID"},
		MaxAge:         300,
	})
}
