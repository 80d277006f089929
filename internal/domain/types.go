// Package domain holds the OpenAI-compatible wire types and the canonical
// error taxonomy shared by the router, adapters, and HTTP surface.
package domain

import "encoding/json"

// Message represents a single chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Name    string `json:"name,omitempty"`
}

// ChatCompletionRequest is the inbound chat completion payload.
// The model field supports fallback syntax: "a|b|c" tries each option in
// order against what the selected service actually serves.
type ChatCompletionRequest struct {
	Model            string             `json:"model"`
	Messages         []Message          `json:"messages"`
	Temperature      *float32           `json:"temperature,omitempty"`
	TopP             *float32           `json:"top_p,omitempty"`
	N                int                `json:"n,omitempty"`
	Stream           bool               `json:"stream"`
	StreamOptions    *StreamOptions     `json:"stream_options,omitempty"`
	Stop             json.RawMessage    `json:"stop,omitempty"` // string or []string, passed through
	MaxTokens        int                `json:"max_tokens,omitempty"`
	PresencePenalty  *float32           `json:"presence_penalty,omitempty"`
	FrequencyPenalty *float32           `json:"frequency_penalty,omitempty"`
	LogitBias        map[string]float32 `json:"logit_bias,omitempty"`
	User             string             `json:"user,omitempty"`
}

// StreamOptions mirrors the OpenAI stream_options object.
type StreamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

// Clone returns a shallow copy of the request, suitable for per-candidate
// model rewriting without mutating the caller's request.
func (r *ChatCompletionRequest) Clone() *ChatCompletionRequest {
	cp := *r
	return &cp
}

// Choice is a single completion choice.
type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason,omitempty"`
}

// Usage reports token accounting for a completion.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// RouterTrace is gateway metadata attached to non-streamed responses.
// It is not part of the OpenAI schema; clients that decode strictly can
// ignore it.
type RouterTrace struct {
	Service        string  `json:"service"`
	BackendKind    string  `json:"backend_kind"`
	Attempt        int     `json:"attempt"`
	DurationSec    float64 `json:"duration"`
	RequestedModel string  `json:"requested_model"`
	ServedModel    string  `json:"actual_model"`
}

// ChatCompletionResponse is the normalized completion response.
type ChatCompletionResponse struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`

	Router *RouterTrace `json:"router,omitempty"`
}

// Model describes a model entry in the aggregated listing.
type Model struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created,omitempty"`
	OwnedBy string `json:"owned_by,omitempty"`

	// Annotations added by the router; empty on upstream responses.
	Service     string `json:"service,omitempty"`
	BackendKind string `json:"backend_kind,omitempty"`
}

// ModelList is the model listing response.
type ModelList struct {
	Object string  `json:"object"`
	Data   []Model `json:"data"`

	Router *ModelListTrace `json:"router,omitempty"`
}

// ModelListTrace summarizes which services contributed to an aggregated
// model listing.
type ModelListTrace struct {
	Services        []ModelSource `json:"services,omitempty"`
	TotalServices   int           `json:"total_services"`
	WorkingServices int           `json:"working_services"`
	CombinedModels  int           `json:"combined_models"`
}

// ModelSource identifies one contributing service in a ModelListTrace.
type ModelSource struct {
	Name        string `json:"name"`
	BackendKind string `json:"backend_kind"`
	ModelCount  int    `json:"models_count"`
}
