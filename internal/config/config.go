// Package config loads gateway configuration from a YAML file and
// MR_-prefixed environment variables, with an env-var fallback that infers
// the service list from individually named backend settings.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Kind identifies a backend wire dialect. The set is closed: adding a
// dialect means adding an adapter, not altering routing control flow.
type Kind string

const (
	KindOpenAI Kind = "openai"
	KindLocal  Kind = "local"
	KindCustom Kind = "custom"
)

// Valid reports whether k names a known dialect.
func (k Kind) Valid() bool {
	switch k {
	case KindOpenAI, KindLocal, KindCustom:
		return true
	}
	return false
}

// ServiceConfig describes one backend service. Immutable once loaded; a
// reload replaces the whole list atomically.
type ServiceConfig struct {
	Name    string `koanf:"name"`
	Kind    Kind   `koanf:"kind"`
	BaseURL string `koanf:"base_url"`
	APIKey  string `koanf:"api_key"`

	// TimeoutSeconds covers the full round trip for non-streaming calls
	// and the time to first chunk for streaming calls.
	TimeoutSeconds int `koanf:"timeout"`

	// Priority orders candidate selection; lower is tried first. Ties are
	// broken by configuration order.
	Priority int `koanf:"priority"`

	// RateLimitRequests is the sliding-window quota; 0 means unlimited.
	RateLimitRequests int `koanf:"rate_limit_requests"`
	// RateLimitWindowSeconds is the window length for the quota.
	RateLimitWindowSeconds int `koanf:"rate_limit_window"`
}

// Timeout returns the per-service timeout as a duration.
func (s ServiceConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// RateLimitWindow returns the sliding window as a duration.
func (s ServiceConfig) RateLimitWindow() time.Duration {
	return time.Duration(s.RateLimitWindowSeconds) * time.Second
}

// HasRateLimit reports whether the service enforces a request quota.
func (s ServiceConfig) HasRateLimit() bool {
	return s.RateLimitRequests > 0
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`
}

// StorageConfig holds the usage-log database settings.
type StorageConfig struct {
	Path string `koanf:"path"`
}

// TelemetryConfig toggles tracing.
type TelemetryConfig struct {
	Enabled bool `koanf:"enabled"`
}

// AuthConfig toggles API-key authentication.
type AuthConfig struct {
	Enabled bool `koanf:"enabled"`
}

// Config is the full gateway configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Storage   StorageConfig   `koanf:"storage"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
	Auth      AuthConfig      `koanf:"auth"`

	// RequestTimeoutSeconds is the default per-service timeout applied to
	// services that do not set their own.
	RequestTimeoutSeconds int `koanf:"request_timeout"`

	Services []ServiceConfig `koanf:"services"`
}

const (
	defaultPort           = 8000
	defaultRequestTimeout = 60
	defaultRateWindow     = 60
)

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads configuration from path (ignored when absent) and the
// environment, applies defaults, resolves the env-var fallback service list,
// and validates eagerly so malformed entries fail at startup rather than
// per-request.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("load %s: %w", path, err)
			}
		}
	}

	if err := k.Load(env.Provider("MR_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "MR_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	if !k.Exists("server.port") {
		k.Set("server.port", defaultPort)
	}
	if !k.Exists("request_timeout") {
		k.Set("request_timeout", defaultRequestTimeout)
	}
	if !k.Exists("auth.enabled") {
		k.Set("auth.enabled", true)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	for i := range cfg.Services {
		cfg.Services[i].APIKey = substituteEnvVars(cfg.Services[i].APIKey)
	}

	if len(cfg.Services) == 0 {
		cfg.Services = fallbackServices(os.Getenv, cfg.RequestTimeoutSeconds)
	}
	applyServiceDefaults(cfg.Services, cfg.RequestTimeoutSeconds)

	if err := ValidateServices(cfg.Services); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// fallbackServices builds the service list from individually named backend
// settings: cerebras, deepinfra, openai when their credentials are present,
// and a local ollama service always appended last. Priority follows that
// order.
func fallbackServices(getenv func(string) string, timeout int) []ServiceConfig {
	var services []ServiceConfig
	priority := 0

	add := func(name string, kind Kind, baseURL, apiKey string) {
		services = append(services, ServiceConfig{
			Name:           name,
			Kind:           kind,
			BaseURL:        baseURL,
			APIKey:         apiKey,
			TimeoutSeconds: timeout,
			Priority:       priority,
		})
		priority++
	}

	if key := getenv("CEREBRAS_API_KEY"); key != "" {
		add("cerebras", KindOpenAI, orDefault(getenv("CEREBRAS_BASE_URL"), "https://api.cerebras.ai/v1"), key)
	}
	if token := getenv("DEEPINFRA_TOKEN"); token != "" {
		add("deepinfra", KindOpenAI, orDefault(getenv("DEEPINFRA_BASE_URL"), "https://api.deepinfra.com/v1/openai"), token)
	}
	if key := getenv("OPENAI_API_KEY"); key != "" {
		add("openai", KindOpenAI, orDefault(getenv("OPENAI_BASE_URL"), "https://api.openai.com/v1"), key)
	}
	add("ollama", KindLocal, orDefault(getenv("OLLAMA_BASE_URL"), "http://localhost:11434/v1"), "")

	return services
}

func applyServiceDefaults(services []ServiceConfig, timeout int) {
	for i := range services {
		if services[i].TimeoutSeconds <= 0 {
			services[i].TimeoutSeconds = timeout
		}
		if services[i].RateLimitWindowSeconds <= 0 {
			services[i].RateLimitWindowSeconds = defaultRateWindow
		}
	}
}

// ValidateServices rejects malformed service entries: empty or duplicate
// names, unknown kinds, missing base URLs, and missing credentials for
// dialects that require one.
func ValidateServices(services []ServiceConfig) error {
	if len(services) == 0 {
		return fmt.Errorf("no services configured")
	}
	seen := make(map[string]bool, len(services))
	for _, s := range services {
		if s.Name == "" {
			return fmt.Errorf("service with empty name")
		}
		if seen[s.Name] {
			return fmt.Errorf("duplicate service name %q", s.Name)
		}
		seen[s.Name] = true
		if !s.Kind.Valid() {
			return fmt.Errorf("service %q: unknown kind %q", s.Name, s.Kind)
		}
		if s.BaseURL == "" {
			return fmt.Errorf("service %q: base_url is required", s.Name)
		}
		if s.Kind == KindOpenAI && s.APIKey == "" {
			return fmt.Errorf("service %q: openai-style backends require an api_key", s.Name)
		}
	}
	return nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
