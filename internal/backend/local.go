package backend

import (
	"context"

	"github.com/modelroute/gateway/internal/config"
	"github.com/modelroute/gateway/internal/domain"
)

// localAdapter targets local inference servers with OpenAI-compatible
// endpoints (ollama and friends). No credential is required, and sampling
// parameters such servers commonly reject are stripped before dispatch.
type localAdapter struct {
	*client
}

func (a *localAdapter) Name() string      { return a.service }
func (a *localAdapter) Kind() config.Kind { return config.KindLocal }

func (a *localAdapter) prepare(req *domain.ChatCompletionRequest) *domain.ChatCompletionRequest {
	payload := req.Clone()
	payload.LogitBias = nil
	payload.User = ""
	return payload
}

func (a *localAdapter) Complete(ctx context.Context, req *domain.ChatCompletionRequest) (*domain.ChatCompletionResponse, error) {
	payload := a.prepare(req)
	payload.Stream = false
	return a.complete(ctx, "/chat/completions", payload, req.Model)
}

func (a *localAdapter) Stream(ctx context.Context, req *domain.ChatCompletionRequest) (*StreamHandle, error) {
	payload := a.prepare(req)
	payload.Stream = true

	streamCtx, cancel := context.WithCancel(ctx)
	resp, err := a.post(streamCtx, "/chat/completions", payload)
	if err != nil {
		cancel()
		return nil, err
	}
	return NewStreamHandle(resp.Body, cancel), nil
}

func (a *localAdapter) ListModels(ctx context.Context) (*domain.ModelList, error) {
	list, err := a.listModels(ctx)
	if err != nil {
		return fallbackModels(a.service, a.kind), nil
	}
	return list, nil
}
