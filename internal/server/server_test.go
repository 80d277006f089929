package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/modelroute/gateway/internal/auth"
	"github.com/modelroute/gateway/internal/backend"
	"github.com/modelroute/gateway/internal/config"
	"github.com/modelroute/gateway/internal/domain"
	"github.com/modelroute/gateway/internal/router"
)

type stubAdapter struct {
	svcName     string
	completeErr error
	streamBody  string
	models      []string
}

func (a *stubAdapter) Name() string      { return a.svcName }
func (a *stubAdapter) Kind() config.Kind { return config.KindCustom }

func (a *stubAdapter) Complete(ctx context.Context, req *domain.ChatCompletionRequest) (*domain.ChatCompletionResponse, error) {
	if a.completeErr != nil {
		return nil, a.completeErr
	}
	return &domain.ChatCompletionResponse{
		ID:     "chatcmpl-stub",
		Object: "chat.completion",
		Model:  "stub-model",
		Choices: []domain.Choice{{
			Message: domain.Message{Role: "assistant", Content: "hello"},
		}},
		Usage: domain.Usage{PromptTokens: 1, CompletionTokens: 1, TotalTokens: 2},
	}, nil
}

func (a *stubAdapter) Stream(ctx context.Context, req *domain.ChatCompletionRequest) (*backend.StreamHandle, error) {
	if a.completeErr != nil {
		return nil, a.completeErr
	}
	return backend.NewStreamHandle(io.NopCloser(strings.NewReader(a.streamBody)), func() {}), nil
}

func (a *stubAdapter) ListModels(ctx context.Context) (*domain.ModelList, error) {
	list := &domain.ModelList{Object: "list"}
	for _, id := range a.models {
		list.Data = append(list.Data, domain.Model{ID: id, Object: "model"})
	}
	return list, nil
}

func newTestGateway(t *testing.T, adapter *stubAdapter) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cfg := &config.Config{
		Server:                config.ServerConfig{Host: "127.0.0.1", Port: 0},
		Auth:                  config.AuthConfig{Enabled: true},
		RequestTimeoutSeconds: 5,
		Services: []config.ServiceConfig{{
			Name:           adapter.svcName,
			Kind:           config.KindCustom,
			BaseURL:        "http://backend.test",
			TimeoutSeconds: 5,
			Priority:       1,
		}},
	}

	rt, err := router.New(cfg, logger, router.WithAdapterFactory(
		func(sc config.ServiceConfig, _ *http.Client) (backend.Adapter, error) {
			return adapter, nil
		}))
	if err != nil {
		t.Fatalf("router.New: %v", err)
	}

	gatekeeper := auth.New(true, logger, auth.WithEnviron(func(k string) string {
		if k == "AUTH_KEY" {
			return "sk-gateway"
		}
		return ""
	}))

	srv := New(cfg, logger, rt, gatekeeper)
	ts := httptest.NewServer(srv.Router)
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, method, url, key, body string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatal(err)
	}
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp, data
}

const chatBody = `{"messages":[{"role":"user","content":"hi"}]}`

func TestUnauthenticatedRequestRejected(t *testing.T) {
	ts := newTestGateway(t, &stubAdapter{svcName: "stub"})

	resp, body := doJSON(t, http.MethodGet, ts.URL+"/router/stats", "", "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}

	var envelope struct {
		Error struct {
			Type string `json:"type"`
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		t.Fatalf("unmarshal error envelope: %v (%s)", err, body)
	}
	if envelope.Error.Type != "authentication_error" || envelope.Error.Code != "missing_api_key" {
		t.Errorf("envelope = %+v", envelope.Error)
	}
}

func TestWrongKeyRejected(t *testing.T) {
	ts := newTestGateway(t, &stubAdapter{svcName: "stub"})
	resp, _ := doJSON(t, http.MethodPost, ts.URL+"/v1/chat/completions", "sk-wrong", chatBody)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}

func TestPublicEndpoints(t *testing.T) {
	ts := newTestGateway(t, &stubAdapter{svcName: "stub"})
	for _, path := range []string{"/", "/health", "/backend/info", "/metrics"} {
		resp, _ := doJSON(t, http.MethodGet, ts.URL+path, "", "")
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s = %d without credentials, want 200", path, resp.StatusCode)
		}
	}
}

func TestChatCompletions(t *testing.T) {
	ts := newTestGateway(t, &stubAdapter{svcName: "stub"})
	resp, body := doJSON(t, http.MethodPost, ts.URL+"/v1/chat/completions", "sk-gateway", chatBody)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d: %s", resp.StatusCode, body)
	}

	var out domain.ChatCompletionResponse
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Choices[0].Message.Content != "hello" {
		t.Errorf("content = %q", out.Choices[0].Message.Content)
	}
	if out.Router == nil || out.Router.Service != "stub" {
		t.Errorf("router trace = %+v", out.Router)
	}
}

func TestChatCompletionsBadBody(t *testing.T) {
	ts := newTestGateway(t, &stubAdapter{svcName: "stub"})

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", "{not json"},
		{"no messages", `{"model":"gpt-4"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, _ := doJSON(t, http.MethodPost, ts.URL+"/v1/chat/completions", "sk-gateway", tt.body)
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
		})
	}
}

func TestChatCompletionsAllUnavailable(t *testing.T) {
	ts := newTestGateway(t, &stubAdapter{
		svcName:     "stub",
		completeErr: domain.ErrBackendConnection("stub", "custom", "refused"),
	})
	resp, body := doJSON(t, http.MethodPost, ts.URL+"/v1/chat/completions", "sk-gateway", chatBody)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503: %s", resp.StatusCode, body)
	}
}

func TestStreamingCompletion(t *testing.T) {
	ts := newTestGateway(t, &stubAdapter{
		svcName:    "stub",
		streamBody: "data: {\"n\":1}\n\ndata: {\"n\":2}\n\ndata: [DONE]\n\n",
	})
	resp, body := doJSON(t, http.MethodPost, ts.URL+"/v1/chat/completions", "sk-gateway",
		`{"stream":true,"messages":[{"role":"user","content":"hi"}]}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d: %s", resp.StatusCode, body)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q", ct)
	}
	if resp.Header.Get("X-Router-Service") != "stub" {
		t.Errorf("X-Router-Service = %q", resp.Header.Get("X-Router-Service"))
	}

	text := string(body)
	for _, want := range []string{`data: {"n":1}`, `data: {"n":2}`, "data: [DONE]"} {
		if !strings.Contains(text, want) {
			t.Errorf("stream output missing %q:\n%s", want, text)
		}
	}
}

func TestModelsEndpoints(t *testing.T) {
	ts := newTestGateway(t, &stubAdapter{svcName: "stub", models: []string{"alpha", "beta"}})

	resp, body := doJSON(t, http.MethodGet, ts.URL+"/v1/models", "sk-gateway", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list status = %d", resp.StatusCode)
	}
	var list domain.ModelList
	if err := json.Unmarshal(body, &list); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(list.Data) != 2 || list.Data[0].Service != "stub" {
		t.Errorf("list = %+v", list.Data)
	}

	resp, _ = doJSON(t, http.MethodGet, ts.URL+"/v1/models/alpha", "sk-gateway", "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("get status = %d", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodGet, ts.URL+"/v1/models/missing", "sk-gateway", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing model status = %d, want 404", resp.StatusCode)
	}
}

func TestRouterAdminEndpoints(t *testing.T) {
	ts := newTestGateway(t, &stubAdapter{svcName: "stub"})

	if resp, _ := doJSON(t, http.MethodPost, ts.URL+"/v1/chat/completions", "sk-gateway", chatBody); resp.StatusCode != http.StatusOK {
		t.Fatalf("seed request failed: %d", resp.StatusCode)
	}

	resp, body := doJSON(t, http.MethodGet, ts.URL+"/router/stats", "sk-gateway", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stats status = %d", resp.StatusCode)
	}
	var stats router.Stats
	if err := json.Unmarshal(body, &stats); err != nil {
		t.Fatalf("unmarshal stats: %v", err)
	}
	if stats.TotalRequests != 1 {
		t.Errorf("TotalRequests = %d, want 1", stats.TotalRequests)
	}

	if resp, _ := doJSON(t, http.MethodGet, ts.URL+"/router/health", "sk-gateway", ""); resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d", resp.StatusCode)
	}
	if resp, _ := doJSON(t, http.MethodGet, ts.URL+"/router/rate-limits", "sk-gateway", ""); resp.StatusCode != http.StatusOK {
		t.Errorf("rate-limits status = %d", resp.StatusCode)
	}

	if resp, _ := doJSON(t, http.MethodPost, ts.URL+"/router/reset-stats", "sk-gateway", ""); resp.StatusCode != http.StatusOK {
		t.Errorf("reset status = %d", resp.StatusCode)
	}
	_, body = doJSON(t, http.MethodGet, ts.URL+"/router/stats", "sk-gateway", "")
	if err := json.Unmarshal(body, &stats); err != nil {
		t.Fatalf("unmarshal stats: %v", err)
	}
	if stats.TotalRequests != 0 {
		t.Errorf("TotalRequests after reset = %d, want 0", stats.TotalRequests)
	}
}

func TestAuthAdminEndpoints(t *testing.T) {
	ts := newTestGateway(t, &stubAdapter{svcName: "stub"})

	resp, body := doJSON(t, http.MethodGet, ts.URL+"/auth/status", "sk-gateway", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var st auth.Status
	if err := json.Unmarshal(body, &st); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !st.Enabled || st.KeyCount != 1 {
		t.Errorf("auth status = %+v", st)
	}
	for _, k := range st.Keys {
		if strings.Contains(k, "sk-gateway") {
			t.Errorf("unmasked key leaked: %q", k)
		}
	}

	if resp, _ := doJSON(t, http.MethodGet, ts.URL+"/auth/metrics", "sk-gateway", ""); resp.StatusCode != http.StatusOK {
		t.Errorf("metrics status = %d", resp.StatusCode)
	}
	if resp, _ := doJSON(t, http.MethodPost, ts.URL+"/auth/reload-keys", "sk-gateway", ""); resp.StatusCode != http.StatusOK {
		t.Errorf("reload status = %d", resp.StatusCode)
	}
	if resp, _ := doJSON(t, http.MethodPost, ts.URL+"/auth/reset-metrics", "sk-gateway", ""); resp.StatusCode != http.StatusOK {
		t.Errorf("reset-metrics status = %d", resp.StatusCode)
	}
}
