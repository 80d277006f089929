package domain

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestHTTPStatusCodeMapping(t *testing.T) {
	tests := []struct {
		err  *APIError
		want int
	}{
		{ErrAuthMissing(), http.StatusUnauthorized},
		{ErrAuthInvalid(), http.StatusUnauthorized},
		{ErrModelNotFound("gpt-x"), http.StatusNotFound},
		{ErrAllRateLimited(3), http.StatusTooManyRequests},
		{ErrAllUnavailable(3), http.StatusServiceUnavailable},
		{ErrBackendConnection("svc", "openai", "refused"), http.StatusBadGateway},
		{ErrBackendTimeout("svc", "openai"), http.StatusGatewayTimeout},
		{ErrInvalidRequest("bad"), http.StatusBadRequest},
		{ErrInternal("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := tt.err.HTTPStatusCode(); got != tt.want {
			t.Errorf("%s -> %d, want %d", tt.err.Type, got, tt.want)
		}
	}
}

func TestUpstreamKeepsStatus(t *testing.T) {
	err := ErrUpstream("svc", "openai", 418, "teapot")
	if got := err.HTTPStatusCode(); got != 418 {
		t.Errorf("upstream status = %d, want passed through 418", got)
	}
}

func TestAsAPIError(t *testing.T) {
	orig := ErrModelNotFound("gpt-x")
	wrapped := fmt.Errorf("handling request: %w", orig)
	if got := AsAPIError(wrapped); got != orig {
		t.Errorf("AsAPIError did not unwrap: %v", got)
	}

	plain := AsAPIError(errors.New("boom"))
	if plain.Type != ErrorTypeInternal {
		t.Errorf("plain error type = %q, want internal", plain.Type)
	}
	if plain.HTTPStatusCode() != http.StatusInternalServerError {
		t.Errorf("plain error status = %d", plain.HTTPStatusCode())
	}
}

func TestErrorTagsService(t *testing.T) {
	err := ErrBackendTimeout("cerebras", "openai")
	if err.Service != "cerebras" || err.Kind != "openai" {
		t.Errorf("service tags = %q/%q", err.Service, err.Kind)
	}
	if err.Error() == "" {
		t.Error("empty error string")
	}
}
