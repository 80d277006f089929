// Package server exposes the gateway's HTTP surface: the
// OpenAI-compatible completion endpoints plus the router and auth
// administration endpoints.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/modelroute/gateway/internal/auth"
	"github.com/modelroute/gateway/internal/config"
	"github.com/modelroute/gateway/internal/router"
)

type Server struct {
	Router *chi.Mux
	logger *slog.Logger
	http   *http.Server
}

func New(cfg *config.Config, logger *slog.Logger, rt *router.Router, gatekeeper *auth.Gatekeeper) *Server {
	h := &handlers{
		router:         rt,
		gatekeeper:     gatekeeper,
		requestTimeout: time.Duration(cfg.RequestTimeoutSeconds) * time.Second,
		started:        time.Now(),
	}

	r := chi.NewRouter()
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, "modelroute-gateway")
	})

	r.Get("/", h.root)
	r.Get("/health", h.health)
	r.Get("/backend/info", h.backendInfo)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(gatekeeper))

		// No request timeout here: streaming responses outlive any
		// sane deadline. Non-streaming completions apply it in the
		// handler.
		r.Post("/v1/chat/completions", h.chatCompletions)

		r.Group(func(r chi.Router) {
			r.Use(TimeoutMiddleware(h.requestTimeout))
			r.Get("/v1/models", h.listModels)
			r.Get("/v1/models/{id}", h.getModel)
			r.Get("/router/stats", h.routerStats)
			r.Get("/router/health", h.routerHealth)
			r.Get("/router/rate-limits", h.routerRateLimits)
			r.Post("/router/reset-stats", h.routerResetStats)
			r.Get("/auth/status", h.authStatus)
			r.Get("/auth/metrics", h.authMetrics)
			r.Post("/auth/reload-keys", h.authReloadKeys)
			r.Post("/auth/reset-metrics", h.authResetMetrics)
		})
	})

	return &Server{
		Router: r,
		logger: logger,
		http: &http.Server{
			Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
			Handler: r,
		},
	}
}

func (s *Server) Start() error {
	s.logger.Info("starting server", slog.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
