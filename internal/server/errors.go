package server

import (
	"encoding/json"
	"net/http"

	"github.com/modelroute/gateway/internal/domain"
)

type errorBody struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Service string `json:"service,omitempty"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

// WriteError renders err as the OpenAI-style error envelope with the
// status code mapped from its type.
func WriteError(w http.ResponseWriter, err error) {
	apiErr := domain.AsAPIError(err)
	writeJSON(w, apiErr.HTTPStatusCode(), errorEnvelope{Error: errorBody{
		Message: apiErr.Message,
		Type:    string(apiErr.Type),
		Code:    string(apiErr.Code),
		Service: apiErr.Service,
	}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
