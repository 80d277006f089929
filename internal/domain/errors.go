package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType categorizes gateway errors. The value doubles as the "type"
// field of the JSON error body.
type ErrorType string

const (
	// ErrorTypeAuthentication covers missing and invalid credentials.
	ErrorTypeAuthentication ErrorType = "authentication_error"

	// ErrorTypeNotFound indicates a requested model does not exist.
	ErrorTypeNotFound ErrorType = "not_found_error"

	// ErrorTypeRateLimit indicates every candidate service was rate limited.
	ErrorTypeRateLimit ErrorType = "rate_limit_exceeded"

	// ErrorTypeUnavailable indicates failover exhausted every candidate.
	ErrorTypeUnavailable ErrorType = "service_unavailable"

	// ErrorTypeConnection indicates a backend connection failure.
	ErrorTypeConnection ErrorType = "connection_error"

	// ErrorTypeTimeout indicates a backend request timed out.
	ErrorTypeTimeout ErrorType = "timeout_error"

	// ErrorTypeUpstream indicates a non-2xx response from a backend.
	ErrorTypeUpstream ErrorType = "api_error"

	// ErrorTypeInvalidRequest indicates a malformed inbound request.
	ErrorTypeInvalidRequest ErrorType = "invalid_request_error"

	// ErrorTypeInternal indicates an unexpected gateway fault.
	ErrorTypeInternal ErrorType = "internal_error"
)

// ErrorCode adds specificity beyond the type.
type ErrorCode string

const (
	ErrorCodeMissingAPIKey ErrorCode = "missing_api_key"
	ErrorCodeInvalidAPIKey ErrorCode = "invalid_api_key"
	ErrorCodeModelNotFound ErrorCode = "model_not_found"
)

// APIError is the canonical error carried between adapters, the router, and
// the HTTP layer. Adapters tag it with the originating service and backend
// kind; the router never produces backend-specific error types.
type APIError struct {
	Type    ErrorType `json:"type"`
	Code    ErrorCode `json:"code,omitempty"`
	Message string    `json:"message"`

	// Service and Kind identify the backend an adapter-level error came
	// from. Empty for gateway-level errors.
	Service string `json:"-"`
	Kind    string `json:"-"`

	// StatusCode overrides the default status mapping when non-zero.
	StatusCode int `json:"-"`
}

func (e *APIError) Error() string {
	if e.Service != "" {
		return fmt.Sprintf("%s [%s]: %s", e.Type, e.Service, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// HTTPStatusCode maps the error to its HTTP status.
func (e *APIError) HTTPStatusCode() int {
	if e.StatusCode != 0 {
		return e.StatusCode
	}
	switch e.Type {
	case ErrorTypeAuthentication:
		return http.StatusUnauthorized
	case ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeRateLimit:
		return http.StatusTooManyRequests
	case ErrorTypeUnavailable:
		return http.StatusServiceUnavailable
	case ErrorTypeConnection:
		return http.StatusBadGateway
	case ErrorTypeTimeout:
		return http.StatusGatewayTimeout
	case ErrorTypeInvalidRequest:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// AsAPIError unwraps err into an *APIError, or wraps it as an internal
// fault so callers always have a typed error to map.
func AsAPIError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return &APIError{Type: ErrorTypeInternal, Message: "internal server error"}
}

// ErrAuthMissing reports an absent credential.
func ErrAuthMissing() *APIError {
	return &APIError{
		Type:    ErrorTypeAuthentication,
		Code:    ErrorCodeMissingAPIKey,
		Message: "missing API key",
	}
}

// ErrAuthInvalid reports a credential that is present but not valid.
func ErrAuthInvalid() *APIError {
	return &APIError{
		Type:    ErrorTypeAuthentication,
		Code:    ErrorCodeInvalidAPIKey,
		Message: "invalid API key",
	}
}

// ErrModelNotFound reports an unknown model id.
func ErrModelNotFound(id string) *APIError {
	return &APIError{
		Type:    ErrorTypeNotFound,
		Code:    ErrorCodeModelNotFound,
		Message: fmt.Sprintf("model %q not found", id),
	}
}

// ErrAllRateLimited reports that every candidate was skipped for rate
// limiting and none was dispatched.
func ErrAllRateLimited(total int) *APIError {
	return &APIError{
		Type:    ErrorTypeRateLimit,
		Message: fmt.Sprintf("all %d configured services are rate limited", total),
	}
}

// ErrAllUnavailable reports failover exhaustion: at least one candidate was
// dispatched and every dispatched candidate failed.
func ErrAllUnavailable(total int) *APIError {
	return &APIError{
		Type:    ErrorTypeUnavailable,
		Message: fmt.Sprintf("all %d configured services are unavailable", total),
	}
}

// ErrBackendConnection tags a connection-level failure with its origin.
func ErrBackendConnection(service, kind, detail string) *APIError {
	return &APIError{
		Type:    ErrorTypeConnection,
		Message: fmt.Sprintf("connection error to %s: %s", service, detail),
		Service: service,
		Kind:    kind,
	}
}

// ErrBackendTimeout tags a timeout with its origin.
func ErrBackendTimeout(service, kind string) *APIError {
	return &APIError{
		Type:    ErrorTypeTimeout,
		Message: fmt.Sprintf("request to %s timed out", service),
		Service: service,
		Kind:    kind,
	}
}

// ErrUpstream wraps a non-2xx backend response.
func ErrUpstream(service, kind string, status int, detail string) *APIError {
	return &APIError{
		Type:       ErrorTypeUpstream,
		Message:    fmt.Sprintf("[%s] %s", kind, detail),
		Service:    service,
		Kind:       kind,
		StatusCode: status,
	}
}

// ErrInvalidRequest reports a malformed inbound request.
func ErrInvalidRequest(message string) *APIError {
	return &APIError{Type: ErrorTypeInvalidRequest, Message: message}
}

// ErrInternal reports an unexpected gateway fault.
func ErrInternal(message string) *APIError {
	return &APIError{Type: ErrorTypeInternal, Message: message}
}
