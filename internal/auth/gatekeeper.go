// Package auth validates gateway API keys loaded from the environment
// and tracks per-key usage metrics.
package auth

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/modelroute/gateway/internal/domain"
	"github.com/modelroute/gateway/internal/metrics"
)

// Keys come from AUTH_KEY alone, or from the numbered series
// AUTH_KEY_01, AUTH_KEY_02, ... read in order until the first gap.
const (
	singleKeyVar = "AUTH_KEY"
	seriesPrefix = "AUTH_KEY_"
)

// KeyMetrics is the usage record for one key, identified only by its
// masked form.
type KeyMetrics struct {
	MaskedKey string     `json:"masked_key"`
	Requests  int64      `json:"requests"`
	Succeeded int64      `json:"succeeded"`
	Failed    int64      `json:"failed"`
	FirstSeen *time.Time `json:"first_seen,omitempty"`
	LastSeen  *time.Time `json:"last_seen,omitempty"`
}

type keyState struct {
	metrics KeyMetrics
}

// Gatekeeper holds the valid key set. Reload swaps the set atomically
// while keeping metrics for keys that survive.
type Gatekeeper struct {
	logger *slog.Logger
	getenv func(string) string
	clock  func() time.Time

	mu      sync.Mutex
	enabled bool
	keys    map[string]*keyState
}

// Option configures a Gatekeeper.
type Option func(*Gatekeeper)

// WithEnviron overrides the environment lookup, for tests.
func WithEnviron(getenv func(string) string) Option {
	return func(g *Gatekeeper) { g.getenv = getenv }
}

// WithClock overrides the time source, for tests.
func WithClock(clock func() time.Time) Option {
	return func(g *Gatekeeper) { g.clock = clock }
}

// New loads the key set from the environment. With enabled false every
// request passes.
func New(enabled bool, logger *slog.Logger, opts ...Option) *Gatekeeper {
	g := &Gatekeeper{
		logger:  logger,
		getenv:  os.Getenv,
		clock:   time.Now,
		enabled: enabled,
		keys:    make(map[string]*keyState),
	}
	for _, opt := range opts {
		opt(g)
	}
	if enabled {
		g.load()
	}
	return g
}

// load replaces the key set, carrying metrics over for keys present in
// both the old and the new set. Caller-visible state changes happen
// under the mutex in one step.
func (g *Gatekeeper) load() {
	fresh := loadKeys(g.getenv)

	g.mu.Lock()
	defer g.mu.Unlock()
	next := make(map[string]*keyState, len(fresh))
	for _, k := range fresh {
		if prev, ok := g.keys[k]; ok {
			next[k] = prev
		} else {
			next[k] = &keyState{metrics: KeyMetrics{MaskedKey: Mask(k)}}
		}
	}
	g.keys = next
	g.logger.Info("auth keys loaded", "count", len(next))
}

func loadKeys(getenv func(string) string) []string {
	if k := strings.TrimSpace(getenv(singleKeyVar)); k != "" {
		return []string{k}
	}
	var keys []string
	for i := 1; ; i++ {
		k := strings.TrimSpace(getenv(fmt.Sprintf("%s%02d", seriesPrefix, i)))
		if k == "" {
			break
		}
		keys = append(keys, k)
	}
	return keys
}

// Mask renders a key for display: first and last four characters with
// an ellipsis between, shortened to two on each side for keys of eight
// characters or fewer. Very short keys are fully hidden.
func Mask(key string) string {
	switch {
	case len(key) > 8:
		return key[:4] + "..." + key[len(key)-4:]
	case len(key) > 4:
		return key[:2] + "..." + key[len(key)-2:]
	default:
		return "****"
	}
}

// Authorize checks the Authorization header value. The Bearer prefix
// is optional. Missing and invalid credentials are distinct errors.
func (g *Gatekeeper) Authorize(header string) error {
	if !g.Enabled() {
		return nil
	}
	credential := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(header), "Bearer "))
	if credential == "" {
		metrics.AuthRequestsTotal.WithLabelValues("missing").Inc()
		return domain.ErrAuthMissing()
	}

	g.mu.Lock()
	st, ok := g.keys[credential]
	if ok {
		now := g.clock()
		st.metrics.Requests++
		if st.metrics.FirstSeen == nil {
			t := now
			st.metrics.FirstSeen = &t
		}
		t := now
		st.metrics.LastSeen = &t
	}
	g.mu.Unlock()

	if !ok {
		metrics.AuthRequestsTotal.WithLabelValues("invalid").Inc()
		return domain.ErrAuthInvalid()
	}
	metrics.AuthRequestsTotal.WithLabelValues("ok").Inc()
	return nil
}

// Observe attributes the outcome of an authorized request to its key.
// Unknown credentials are ignored.
func (g *Gatekeeper) Observe(header string, success bool) {
	if !g.Enabled() {
		return
	}
	credential := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(header), "Bearer "))
	g.mu.Lock()
	defer g.mu.Unlock()
	if st, ok := g.keys[credential]; ok {
		if success {
			st.metrics.Succeeded++
		} else {
			st.metrics.Failed++
		}
	}
}

func (g *Gatekeeper) Enabled() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.enabled
}

// Reload re-reads the key set from the environment. Keys present
// before and after keep their metrics; removed keys stop working
// immediately, requests already authorized are unaffected.
func (g *Gatekeeper) Reload() int {
	g.load()
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.keys)
}

// ResetMetrics zeroes every key's counters, keeping the key set.
func (g *Gatekeeper) ResetMetrics() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for k, st := range g.keys {
		st.metrics = KeyMetrics{MaskedKey: Mask(k)}
	}
}

// Status summarizes the gatekeeper for the status endpoint.
type Status struct {
	Enabled  bool     `json:"enabled"`
	KeyCount int      `json:"key_count"`
	Keys     []string `json:"keys"`
}

func (g *Gatekeeper) Status() Status {
	g.mu.Lock()
	defer g.mu.Unlock()
	st := Status{Enabled: g.enabled, KeyCount: len(g.keys)}
	for k := range g.keys {
		st.Keys = append(st.Keys, Mask(k))
	}
	return st
}

// Metrics returns a copy of every key's usage counters.
func (g *Gatekeeper) Metrics() []KeyMetrics {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]KeyMetrics, 0, len(g.keys))
	for _, st := range g.keys {
		m := st.metrics
		if st.metrics.FirstSeen != nil {
			t := *st.metrics.FirstSeen
			m.FirstSeen = &t
		}
		if st.metrics.LastSeen != nil {
			t := *st.metrics.LastSeen
			m.LastSeen = &t
		}
		out = append(out, m)
	}
	return out
}
