package server

import (
	"context"
	"net/http"
	"time"

	"github.com/modelroute/gateway/internal/auth"
)

// AuthMiddleware validates gateway API keys via the gatekeeper and
// rejects unauthorized requests with the JSON error envelope. After the
// handler runs, the request outcome is attributed to the key.
func AuthMiddleware(gatekeeper *auth.Gatekeeper) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if err := gatekeeper.Authorize(header); err != nil {
				WriteError(w, err)
				return
			}
			wrapped := &loggingResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(wrapped, r)
			gatekeeper.Observe(header, wrapped.statusCode < http.StatusInternalServerError)
		})
	}
}

// TimeoutMiddleware enforces a request deadline through context
// cancellation. Handlers observe it cooperatively.
func TimeoutMiddleware(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
