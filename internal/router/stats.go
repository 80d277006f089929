package router

// Stats is the aggregate router snapshot returned by /router/stats.
type Stats struct {
	TotalRequests       int64          `json:"total_requests"`
	TotalFailovers      int64          `json:"total_failovers"`
	TotalRateLimitSkips int64          `json:"total_rate_limit_skips"`
	Services            []ServiceStats `json:"services"`
}

func (r *Router) Stats() Stats {
	snap := r.snap.Load()
	st := Stats{
		TotalRequests:       r.totalRequests.Load(),
		TotalFailovers:      r.totalFailovers.Load(),
		TotalRateLimitSkips: r.totalRateLimitSkips.Load(),
		Services:            make([]ServiceStats, 0, len(snap.services)),
	}
	for _, svc := range snap.services {
		st.Services = append(st.Services, svc.stats())
	}
	return st
}

// ServiceHealth is one service's classification.
type ServiceHealth struct {
	Name        string  `json:"name"`
	Kind        string  `json:"kind"`
	Status      string  `json:"status"`
	FailureRate float64 `json:"failure_rate"`
	RateLimited bool    `json:"rate_limited"`
}

// HealthReport covers every service plus an overall verdict.
type HealthReport struct {
	Status   string          `json:"status"`
	Services []ServiceHealth `json:"services"`
}

// Health classifies each service from its counters and current
// rate-limit state. Overall status is healthy when every available
// service is healthy or has not been tried yet, unhealthy when no
// service can take traffic, degraded otherwise.
func (r *Router) Health() HealthReport {
	snap := r.snap.Load()
	now := r.clock()

	report := HealthReport{Services: make([]ServiceHealth, 0, len(snap.services))}
	available, impaired := 0, 0
	for _, svc := range snap.services {
		limited := snap.limiter.IsLimited(svc.cfg.Name, now)
		status := svc.health(limited)
		switch status {
		case HealthUnhealthy, HealthRateLimited:
			impaired++
		case HealthDegraded:
			available++
			impaired++
		default:
			available++
		}
		report.Services = append(report.Services, ServiceHealth{
			Name:        svc.cfg.Name,
			Kind:        string(svc.cfg.Kind),
			Status:      status,
			FailureRate: svc.stats().FailureRate,
			RateLimited: limited,
		})
	}
	switch {
	case available == 0:
		report.Status = HealthUnhealthy
	case impaired > 0:
		report.Status = HealthDegraded
	default:
		report.Status = HealthHealthy
	}
	return report
}

// RateLimitStatus describes one service's window at a point in time.
type RateLimitStatus struct {
	Name        string  `json:"name"`
	MaxRequests int     `json:"max_requests"`
	WindowSec   float64 `json:"window_seconds"`
	Occupancy   int     `json:"current_requests"`
	Remaining   int     `json:"remaining"`
	Limited     bool    `json:"limited"`
	ResetInSec  float64 `json:"reset_in_seconds"`
	Unlimited   bool    `json:"unlimited"`
}

func (r *Router) RateLimits() []RateLimitStatus {
	snap := r.snap.Load()
	now := r.clock()

	out := make([]RateLimitStatus, 0, len(snap.services))
	for _, svc := range snap.services {
		name := svc.cfg.Name
		q := snap.limiter.Quota(name)
		st := RateLimitStatus{
			Name:        name,
			MaxRequests: q.MaxRequests,
			WindowSec:   q.Window.Seconds(),
			Occupancy:   snap.limiter.Occupancy(name, now),
			Remaining:   snap.limiter.Remaining(name, now),
			Limited:     snap.limiter.IsLimited(name, now),
			Unlimited:   q.Unlimited(),
		}
		if st.Limited {
			st.ResetInSec = snap.limiter.ResetIn(name, now).Seconds()
		}
		out = append(out, st)
	}
	return out
}

// ResetStats zeroes every counter and clears the rate-limit windows.
// The service configuration is untouched.
func (r *Router) ResetStats() {
	snap := r.snap.Load()
	for _, svc := range snap.services {
		svc.resetCounters()
	}
	snap.limiter.Reset()
	r.totalRequests.Store(0)
	r.totalFailovers.Store(0)
	r.totalRateLimitSkips.Store(0)
}

// ServiceInfo is the static configuration summary exposed on / and
// /backend/info. API keys never appear here.
type ServiceInfo struct {
	Name       string  `json:"name"`
	Kind       string  `json:"kind"`
	BaseURL    string  `json:"base_url"`
	Priority   int     `json:"priority"`
	TimeoutSec float64 `json:"timeout_seconds"`
}

func (r *Router) Services() []ServiceInfo {
	snap := r.snap.Load()
	out := make([]ServiceInfo, 0, len(snap.services))
	for _, svc := range snap.services {
		out = append(out, ServiceInfo{
			Name:       svc.cfg.Name,
			Kind:       string(svc.cfg.Kind),
			BaseURL:    svc.cfg.BaseURL,
			Priority:   svc.cfg.Priority,
			TimeoutSec: svc.cfg.Timeout().Seconds(),
		})
	}
	return out
}
