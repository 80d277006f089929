// Package backend implements the adapters that translate normalized
// requests into backend calls. The dialect set is closed: openai-style,
// local-server, and custom. Adapters are stateless per call and normalize
// every failure into a typed gateway error tagged with the originating
// service before it reaches the router.
package backend

import (
	"context"
	"fmt"
	"net/http"

	"github.com/modelroute/gateway/internal/config"
	"github.com/modelroute/gateway/internal/domain"
)

// Adapter is one backend wire dialect.
type Adapter interface {
	// Name returns the configured service name.
	Name() string

	// Kind returns the dialect.
	Kind() config.Kind

	// Complete performs a non-streaming chat completion. The response is
	// fully decoded before returning; any failure surfaces as a typed
	// error before output is externally observable.
	Complete(ctx context.Context, req *domain.ChatCompletionRequest) (*domain.ChatCompletionResponse, error)

	// Stream starts a streaming chat completion and returns the stream
	// handle. Handshake failures (connection, non-2xx, timeout) are
	// returned as errors; once a handle is returned, chunk-level failures
	// are delivered through it.
	Stream(ctx context.Context, req *domain.ChatCompletionRequest) (*StreamHandle, error)

	// ListModels returns the models the backend serves, falling back to a
	// static per-dialect list when the backend's models endpoint is
	// unreachable.
	ListModels(ctx context.Context) (*domain.ModelList, error)
}

// New constructs the adapter for a service configuration. The dispatch is
// a closed set; unknown kinds are rejected at configuration load, so this
// only fails on programmer error.
func New(cfg config.ServiceConfig, httpClient *http.Client) (Adapter, error) {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	c := newClient(cfg, httpClient)
	switch cfg.Kind {
	case config.KindOpenAI:
		return &openAIAdapter{client: c}, nil
	case config.KindLocal:
		return &localAdapter{client: c}, nil
	case config.KindCustom:
		return &customAdapter{client: c}, nil
	default:
		return nil, fmt.Errorf("unknown backend kind %q", cfg.Kind)
	}
}
