package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/modelroute/gateway/internal/config"
	"github.com/modelroute/gateway/internal/domain"
)

const userAgent = "modelroute-gateway/1.0"

// client is the shared HTTP plumbing behind every adapter.
type client struct {
	service    string
	kind       config.Kind
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func newClient(cfg config.ServiceConfig, httpClient *http.Client) *client {
	return &client{
		service:    cfg.Name,
		kind:       cfg.Kind,
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
	}
}

func (c *client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", fmt.Sprintf("%s (%s)", userAgent, c.kind))
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

// post sends payload and returns the response on HTTP 200. Every other
// outcome is a normalized, service-tagged error; the body is consumed and
// closed on error paths.
func (c *client) post(ctx context.Context, path string, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, c.normalizeError(err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(resp.Body)
		return nil, c.upstreamError(resp.StatusCode, respBody)
	}
	return resp, nil
}

// complete runs a non-streaming chat completion against path.
func (c *client) complete(ctx context.Context, path string, payload any, servedModel string) (*domain.ChatCompletionResponse, error) {
	resp, err := c.post(ctx, path, payload)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.normalizeError(err)
	}

	var result domain.ChatCompletionResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, domain.ErrBackendConnection(c.service, string(c.kind), "malformed completion response")
	}
	normalizeResponse(&result, servedModel)
	return &result, nil
}

// listModels fetches /models. Callers fall back to a static list on error.
func (c *client) listModels(ctx context.Context) (*domain.ModelList, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, c.normalizeError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, c.upstreamError(resp.StatusCode, respBody)
	}

	var result domain.ModelList
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, domain.ErrBackendConnection(c.service, string(c.kind), "malformed model listing")
	}
	return &result, nil
}

// normalizeError maps transport failures onto the gateway taxonomy:
// deadline and network timeouts become backend timeouts, everything else a
// backend connection error. The router treats both as dispatch failures.
func (c *client) normalizeError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.ErrBackendTimeout(c.service, string(c.kind))
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return domain.ErrBackendTimeout(c.service, string(c.kind))
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if urlErr.Timeout() {
			return domain.ErrBackendTimeout(c.service, string(c.kind))
		}
		return domain.ErrBackendConnection(c.service, string(c.kind), urlErr.Err.Error())
	}
	return domain.ErrBackendConnection(c.service, string(c.kind), err.Error())
}

// upstreamError extracts the backend's error message from a non-200 body.
func (c *client) upstreamError(status int, body []byte) error {
	detail := fmt.Sprintf("HTTP %d", status)
	var parsed struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		switch {
		case parsed.Error.Message != "":
			detail = parsed.Error.Message
		case parsed.Message != "":
			detail = parsed.Message
		}
	} else if len(body) > 0 {
		detail = fmt.Sprintf("HTTP %d: %s", status, truncate(string(body), 200))
	}
	return domain.ErrUpstream(c.service, string(c.kind), status, detail)
}

// normalizeResponse fills the OpenAI-mandated fields some backends omit.
func normalizeResponse(resp *domain.ChatCompletionResponse, servedModel string) {
	if resp.ID == "" {
		resp.ID = "chatcmpl-" + strings.ReplaceAll(uuid.NewString(), "-", "")
	}
	if resp.Object == "" {
		resp.Object = "chat.completion"
	}
	if resp.Created == 0 {
		resp.Created = time.Now().Unix()
	}
	if resp.Model == "" {
		resp.Model = servedModel
	}
	for i := range resp.Choices {
		if resp.Choices[i].Index == 0 {
			resp.Choices[i].Index = i
		}
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
