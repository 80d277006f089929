package router

import (
	"sync"
	"time"

	"github.com/modelroute/gateway/internal/backend"
	"github.com/modelroute/gateway/internal/config"
)

// Health classifications derived from per-service counters.
const (
	HealthHealthy     = "healthy"
	HealthDegraded    = "degraded"
	HealthUnhealthy   = "unhealthy"
	HealthRateLimited = "rate_limited"
	HealthUnknown     = "unknown"
)

// Failure-rate thresholds for degraded and unhealthy.
const (
	degradedThreshold  = 0.10
	unhealthyThreshold = 0.50
)

const modelCacheTTL = 5 * time.Minute

// Service pairs one configured backend with its adapter and runtime
// counters. Counter access is guarded by the service's own mutex so
// two services never contend with each other.
type Service struct {
	cfg     config.ServiceConfig
	adapter backend.Adapter

	mu               sync.Mutex
	requests         int64
	failures         int64
	rateLimitedSkips int64
	lastSuccess      time.Time
	lastFailure      time.Time

	cacheMu      sync.Mutex
	cachedModels map[string]struct{}
	cachedAt     time.Time
}

func newService(cfg config.ServiceConfig, adapter backend.Adapter) *Service {
	return &Service{cfg: cfg, adapter: adapter}
}

func (s *Service) Name() string { return s.cfg.Name }

func (s *Service) recordDispatch(success bool, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests++
	if success {
		s.lastSuccess = now
	} else {
		s.failures++
		s.lastFailure = now
	}
}

func (s *Service) recordSkip() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rateLimitedSkips++
}

func (s *Service) resetCounters() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = 0
	s.failures = 0
	s.rateLimitedSkips = 0
	s.lastSuccess = time.Time{}
	s.lastFailure = time.Time{}
}

// ServiceStats is a point-in-time copy of one service's counters.
type ServiceStats struct {
	Name             string     `json:"name"`
	Kind             string     `json:"kind"`
	Priority         int        `json:"priority"`
	Requests         int64      `json:"requests"`
	Failures         int64      `json:"failures"`
	RateLimitedSkips int64      `json:"rate_limited_skips"`
	FailureRate      float64    `json:"failure_rate"`
	LastSuccess      *time.Time `json:"last_success,omitempty"`
	LastFailure      *time.Time `json:"last_failure,omitempty"`
}

func (s *Service) stats() ServiceStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := ServiceStats{
		Name:             s.cfg.Name,
		Kind:             string(s.cfg.Kind),
		Priority:         s.cfg.Priority,
		Requests:         s.requests,
		Failures:         s.failures,
		RateLimitedSkips: s.rateLimitedSkips,
	}
	if s.requests > 0 {
		st.FailureRate = float64(s.failures) / float64(s.requests)
	}
	if !s.lastSuccess.IsZero() {
		t := s.lastSuccess
		st.LastSuccess = &t
	}
	if !s.lastFailure.IsZero() {
		t := s.lastFailure
		st.LastFailure = &t
	}
	return st
}

// health classifies the service. Rate limiting wins over everything
// else, then unknown until the first dispatch, then the failure-rate
// thresholds.
func (s *Service) health(limited bool) string {
	if limited {
		return HealthRateLimited
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.requests == 0 {
		return HealthUnknown
	}
	rate := float64(s.failures) / float64(s.requests)
	switch {
	case rate < degradedThreshold:
		return HealthHealthy
	case rate < unhealthyThreshold:
		return HealthDegraded
	default:
		return HealthUnhealthy
	}
}

// cachedModelIDs returns the cached model-id set and whether it is
// still fresh at now.
func (s *Service) cachedModelIDs(now time.Time) (map[string]struct{}, bool) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if s.cachedModels == nil || now.Sub(s.cachedAt) > modelCacheTTL {
		return s.cachedModels, false
	}
	return s.cachedModels, true
}

func (s *Service) storeModelIDs(ids map[string]struct{}, now time.Time) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.cachedModels = ids
	s.cachedAt = now
}
