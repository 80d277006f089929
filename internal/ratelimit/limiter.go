// Package ratelimit implements a per-service sliding-window request counter.
//
// Each service keeps a trimmed, oldest-first sequence of attempt timestamps.
// Expired entries are discarded lazily on every read and write, so behavior
// is deterministic and independent of scheduling jitter. Quota counts
// offered load: attempts are recorded whether or not they later succeed.
package ratelimit

import (
	"sync"
	"time"
)

// Quota is a request budget over a sliding window. MaxRequests <= 0 means
// the service is unlimited.
type Quota struct {
	MaxRequests int
	Window      time.Duration
}

// Unlimited reports whether the quota imposes no limit.
func (q Quota) Unlimited() bool { return q.MaxRequests <= 0 }

// window holds the mutable per-service state. Mutation is serialized per
// service; contention tracks traffic per backend, not global traffic.
type window struct {
	mu     sync.Mutex
	quota  Quota
	stamps []time.Time // oldest first
}

// trim discards every timestamp that has aged out of the window as of now.
// Caller must hold w.mu.
func (w *window) trim(now time.Time) {
	if w.quota.Unlimited() {
		return
	}
	cutoff := now.Add(-w.quota.Window)
	i := 0
	for i < len(w.stamps) && !w.stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		w.stamps = append(w.stamps[:0], w.stamps[i:]...)
	}
}

// Limiter tracks one window per configured service. The service set is
// fixed at construction; a configuration reload builds a new Limiter.
type Limiter struct {
	windows map[string]*window
}

// New creates a limiter for the given service quotas.
func New(quotas map[string]Quota) *Limiter {
	windows := make(map[string]*window, len(quotas))
	for name, q := range quotas {
		windows[name] = &window{quota: q}
	}
	return &Limiter{windows: windows}
}

// RecordAttempt appends now to the service's timestamp sequence. It is
// called exactly once per dispatch attempt, including attempts that fail.
func (l *Limiter) RecordAttempt(service string, now time.Time) {
	w := l.windows[service]
	if w == nil || w.quota.Unlimited() {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.trim(now)
	w.stamps = append(w.stamps, now)
}

// IsLimited reports whether the service has exhausted its quota as of now.
func (l *Limiter) IsLimited(service string, now time.Time) bool {
	w := l.windows[service]
	if w == nil || w.quota.Unlimited() {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.trim(now)
	return len(w.stamps) >= w.quota.MaxRequests
}

// Occupancy returns the number of attempts currently inside the window.
func (l *Limiter) Occupancy(service string, now time.Time) int {
	w := l.windows[service]
	if w == nil || w.quota.Unlimited() {
		return 0
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.trim(now)
	return len(w.stamps)
}

// Remaining returns the quota left before the service becomes limited,
// floored at zero. Unlimited services report zero; use Quota to
// distinguish.
func (l *Limiter) Remaining(service string, now time.Time) int {
	w := l.windows[service]
	if w == nil || w.quota.Unlimited() {
		return 0
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.trim(now)
	if rem := w.quota.MaxRequests - len(w.stamps); rem > 0 {
		return rem
	}
	return 0
}

// ResetIn returns the time until the oldest in-window attempt ages out,
// or zero for unlimited services and empty windows.
func (l *Limiter) ResetIn(service string, now time.Time) time.Duration {
	w := l.windows[service]
	if w == nil || w.quota.Unlimited() {
		return 0
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.trim(now)
	if len(w.stamps) == 0 {
		return 0
	}
	return w.quota.Window - now.Sub(w.stamps[0])
}

// Quota returns the configured quota for a service.
func (l *Limiter) Quota(service string) Quota {
	if w := l.windows[service]; w != nil {
		return w.quota
	}
	return Quota{}
}

// Reset clears every window without altering quotas.
func (l *Limiter) Reset() {
	for _, w := range l.windows {
		w.mu.Lock()
		w.stamps = w.stamps[:0]
		w.mu.Unlock()
	}
}
