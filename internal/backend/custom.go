package backend

import (
	"context"

	"github.com/modelroute/gateway/internal/config"
	"github.com/modelroute/gateway/internal/domain"
)

// customAdapter passes requests through unmodified for backends that claim
// OpenAI compatibility but fit neither of the other dialects.
type customAdapter struct {
	*client
}

func (a *customAdapter) Name() string      { return a.service }
func (a *customAdapter) Kind() config.Kind { return config.KindCustom }

func (a *customAdapter) Complete(ctx context.Context, req *domain.ChatCompletionRequest) (*domain.ChatCompletionResponse, error) {
	payload := req.Clone()
	payload.Stream = false
	return a.complete(ctx, "/chat/completions", payload, req.Model)
}

func (a *customAdapter) Stream(ctx context.Context, req *domain.ChatCompletionRequest) (*StreamHandle, error) {
	payload := req.Clone()
	payload.Stream = true

	streamCtx, cancel := context.WithCancel(ctx)
	resp, err := a.post(streamCtx, "/chat/completions", payload)
	if err != nil {
		cancel()
		return nil, err
	}
	return NewStreamHandle(resp.Body, cancel), nil
}

func (a *customAdapter) ListModels(ctx context.Context) (*domain.ModelList, error) {
	list, err := a.listModels(ctx)
	if err != nil {
		return fallbackModels(a.service, a.kind), nil
	}
	return list, nil
}
