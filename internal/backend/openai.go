package backend

import (
	"context"
	"time"

	"github.com/modelroute/gateway/internal/config"
	"github.com/modelroute/gateway/internal/domain"
)

// openAIAdapter speaks the OpenAI wire dialect. It is the reference
// adapter: cloud backends with OpenAI-compatible surfaces (OpenAI,
// Cerebras, DeepInfra) all use it.
type openAIAdapter struct {
	*client
}

func (a *openAIAdapter) Name() string      { return a.service }
func (a *openAIAdapter) Kind() config.Kind { return config.KindOpenAI }

func (a *openAIAdapter) Complete(ctx context.Context, req *domain.ChatCompletionRequest) (*domain.ChatCompletionResponse, error) {
	payload := req.Clone()
	payload.Stream = false
	return a.complete(ctx, "/chat/completions", payload, req.Model)
}

func (a *openAIAdapter) Stream(ctx context.Context, req *domain.ChatCompletionRequest) (*StreamHandle, error) {
	payload := req.Clone()
	payload.Stream = true
	if payload.StreamOptions == nil {
		payload.StreamOptions = &domain.StreamOptions{IncludeUsage: true}
	}

	streamCtx, cancel := context.WithCancel(ctx)
	resp, err := a.post(streamCtx, "/chat/completions", payload)
	if err != nil {
		cancel()
		return nil, err
	}
	return NewStreamHandle(resp.Body, cancel), nil
}

func (a *openAIAdapter) ListModels(ctx context.Context) (*domain.ModelList, error) {
	list, err := a.listModels(ctx)
	if err != nil {
		return fallbackModels(a.service, a.kind), nil
	}
	return list, nil
}

// fallbackModels returns a static listing for backends whose /models
// endpoint is unreachable, so the aggregated listing stays useful.
func fallbackModels(service string, kind config.Kind) *domain.ModelList {
	now := time.Now().Unix()
	var ids []string
	var owner string
	switch kind {
	case config.KindOpenAI:
		ids = []string{"gpt-4", "gpt-4-turbo", "gpt-3.5-turbo"}
		owner = service
	case config.KindLocal:
		ids = []string{"llama-2-7b-chat", "llama-2-13b-chat", "mistral-7b-instruct"}
		owner = "local"
	default:
		ids = []string{"default"}
		owner = "custom"
	}

	models := make([]domain.Model, len(ids))
	for i, id := range ids {
		models[i] = domain.Model{ID: id, Object: "model", Created: now, OwnedBy: owner}
	}
	return &domain.ModelList{Object: "list", Data: models}
}
