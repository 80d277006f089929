// Package router implements priority selection with failover across the
// configured backend services, sliding-window rate limiting, and the
// aggregate model catalog.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/modelroute/gateway/internal/backend"
	"github.com/modelroute/gateway/internal/config"
	"github.com/modelroute/gateway/internal/domain"
	"github.com/modelroute/gateway/internal/metrics"
	"github.com/modelroute/gateway/internal/ratelimit"
	"github.com/modelroute/gateway/internal/storage"
	"github.com/modelroute/gateway/internal/tokens"
)

// snapshot is the immutable view a request operates on. Reload swaps
// the whole snapshot so in-flight requests keep the set they started
// with.
type snapshot struct {
	services []*Service // ascending priority, stable on ties
	limiter  *ratelimit.Limiter
}

// Router selects a backend per request by priority, failing over on
// dispatch errors and skipping services whose rate-limit window is
// exhausted. Aggregate counters survive reloads.
type Router struct {
	snap   atomic.Pointer[snapshot]
	logger *slog.Logger
	clock  func() time.Time

	httpClient *http.Client
	store      *storage.Store
	estimator  *tokens.Estimator
	adapters   func(config.ServiceConfig, *http.Client) (backend.Adapter, error)

	totalRequests       atomic.Int64
	totalFailovers      atomic.Int64
	totalRateLimitSkips atomic.Int64
}

// Option configures a Router.
type Option func(*Router)

// WithClock overrides the time source, for tests.
func WithClock(clock func() time.Time) Option {
	return func(r *Router) { r.clock = clock }
}

// WithStore enables usage persistence.
func WithStore(store *storage.Store) Option {
	return func(r *Router) { r.store = store }
}

// WithHTTPClient overrides the client shared by all adapters.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Router) { r.httpClient = c }
}

// WithAdapterFactory overrides adapter construction, for tests.
func WithAdapterFactory(f func(config.ServiceConfig, *http.Client) (backend.Adapter, error)) Option {
	return func(r *Router) { r.adapters = f }
}

// New builds a Router from the configured services. At least one
// service is required.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Router, error) {
	r := &Router{
		logger:    logger,
		clock:     time.Now,
		estimator: tokens.NewEstimator(),
		adapters:  backend.New,
	}
	for _, opt := range opts {
		opt(r)
	}
	snap, err := r.buildSnapshot(cfg)
	if err != nil {
		return nil, err
	}
	r.snap.Store(snap)
	return r, nil
}

func (r *Router) buildSnapshot(cfg *config.Config) (*snapshot, error) {
	if err := config.ValidateServices(cfg.Services); err != nil {
		return nil, err
	}
	services := make([]*Service, 0, len(cfg.Services))
	quotas := make(map[string]ratelimit.Quota, len(cfg.Services))
	for _, sc := range cfg.Services {
		adapter, err := r.adapters(sc, r.httpClient)
		if err != nil {
			return nil, err
		}
		services = append(services, newService(sc, adapter))
		quotas[sc.Name] = ratelimit.Quota{
			MaxRequests: sc.RateLimitRequests,
			Window:      sc.RateLimitWindow(),
		}
	}
	sort.SliceStable(services, func(i, j int) bool {
		return services[i].cfg.Priority < services[j].cfg.Priority
	})
	return &snapshot{services: services, limiter: ratelimit.New(quotas)}, nil
}

// Reload swaps in a new service set atomically. Requests already in
// flight finish against the snapshot they started with. Per-service
// counters and rate-limit windows start fresh; the aggregate counters
// are preserved.
func (r *Router) Reload(cfg *config.Config) error {
	snap, err := r.buildSnapshot(cfg)
	if err != nil {
		return err
	}
	old := r.snap.Swap(snap)
	r.logger.Info("router configuration reloaded",
		"services", len(snap.services),
		"previous", len(old.services))
	return nil
}

// modelOptions splits the request model on "|" into an ordered
// fallback list. An empty model means no constraint.
func modelOptions(model string) []string {
	if strings.TrimSpace(model) == "" {
		return nil
	}
	parts := strings.Split(model, "|")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// resolveModel picks the first model option the service advertises,
// refreshing the per-service model cache when stale. With no options
// the request passes through unchanged.
func (r *Router) resolveModel(ctx context.Context, svc *Service, options []string, now time.Time) (string, bool) {
	if len(options) == 0 {
		return "", true
	}
	ids, fresh := svc.cachedModelIDs(now)
	if !fresh {
		list, err := svc.adapter.ListModels(ctx)
		if err == nil {
			ids = make(map[string]struct{}, len(list.Data))
			for _, m := range list.Data {
				ids[m.ID] = struct{}{}
			}
			svc.storeModelIDs(ids, now)
		}
	}
	for _, opt := range options {
		if _, ok := ids[opt]; ok {
			return opt, true
		}
	}
	return "", false
}

type dispatchOutcome struct {
	dispatched int
	skipped    int
	mismatched int
	lastErr    error
}

func (o *dispatchOutcome) terminal(model string, total int) error {
	switch {
	case o.dispatched > 0:
		err := domain.ErrAllUnavailable(total)
		if o.lastErr != nil {
			err.Message = fmt.Sprintf("%s; last error: %v", err.Message, o.lastErr)
		}
		return err
	case o.skipped > 0:
		return domain.ErrAllRateLimited(total)
	case o.mismatched > 0:
		return domain.ErrModelNotFound(model)
	default:
		return domain.ErrAllUnavailable(total)
	}
}

// Complete routes a non-streaming chat completion, failing over until a
// candidate succeeds.
func (r *Router) Complete(ctx context.Context, req *domain.ChatCompletionRequest) (*domain.ChatCompletionResponse, error) {
	snap := r.snap.Load()
	r.totalRequests.Add(1)
	options := modelOptions(req.Model)

	var out dispatchOutcome
	for i, svc := range snap.services {
		now := r.clock()
		if snap.limiter.IsLimited(svc.cfg.Name, now) {
			r.recordSkip(svc, &out)
			continue
		}
		model, ok := r.resolveModel(ctx, svc, options, now)
		if !ok {
			out.mismatched++
			r.logger.Debug("service has no matching model",
				"service", svc.cfg.Name, "model", req.Model)
			continue
		}

		snap.limiter.RecordAttempt(svc.cfg.Name, now)
		out.dispatched++

		sent := req.Clone()
		if model != "" {
			sent.Model = model
		}
		dctx, cancel := context.WithTimeout(ctx, svc.cfg.Timeout())
		start := r.clock()
		resp, err := svc.adapter.Complete(dctx, sent)
		cancel()
		elapsed := r.clock().Sub(start)

		svc.recordDispatch(err == nil, r.clock())
		metrics.DispatchDuration.WithLabelValues(svc.cfg.Name).Observe(elapsed.Seconds())
		if err != nil {
			metrics.DispatchTotal.WithLabelValues(svc.cfg.Name, "failure").Inc()
			out.lastErr = err
			r.logger.Warn("dispatch failed",
				"service", svc.cfg.Name, "error", err)
			r.recordUsage(svc, req.Model, sent.Model, false, "error", elapsed, domain.Usage{})
			if ctx.Err() != nil {
				return nil, err
			}
			if i < len(snap.services)-1 {
				r.totalFailovers.Add(1)
				metrics.FailoversTotal.Inc()
			}
			continue
		}

		metrics.DispatchTotal.WithLabelValues(svc.cfg.Name, "success").Inc()
		r.fillUsage(resp, req)
		metrics.TokensTotal.WithLabelValues(svc.cfg.Name, "prompt").Add(float64(resp.Usage.PromptTokens))
		metrics.TokensTotal.WithLabelValues(svc.cfg.Name, "completion").Add(float64(resp.Usage.CompletionTokens))
		resp.Router = &domain.RouterTrace{
			Service:        svc.cfg.Name,
			BackendKind:    string(svc.cfg.Kind),
			Attempt:        out.dispatched,
			DurationSec:    elapsed.Seconds(),
			RequestedModel: req.Model,
			ServedModel:    resp.Model,
		}
		r.recordUsage(svc, req.Model, resp.Model, false, "ok", elapsed, resp.Usage)
		return resp, nil
	}
	return nil, out.terminal(req.Model, len(snap.services))
}

func (r *Router) recordSkip(svc *Service, out *dispatchOutcome) {
	svc.recordSkip()
	out.skipped++
	r.totalRateLimitSkips.Add(1)
	metrics.RateLimitSkipsTotal.WithLabelValues(svc.cfg.Name).Inc()
	r.logger.Debug("service rate limited, skipping", "service", svc.cfg.Name)
}

// fillUsage estimates token counts when the backend omitted them.
func (r *Router) fillUsage(resp *domain.ChatCompletionResponse, req *domain.ChatCompletionRequest) {
	if resp.Usage.TotalTokens > 0 {
		return
	}
	if resp.Usage.PromptTokens == 0 {
		resp.Usage.PromptTokens = r.estimator.EstimateMessages(resp.Model, req.Messages)
	}
	if resp.Usage.CompletionTokens == 0 {
		for _, c := range resp.Choices {
			resp.Usage.CompletionTokens += r.estimator.EstimateText(resp.Model, c.Message.Content)
		}
	}
	resp.Usage.TotalTokens = resp.Usage.PromptTokens + resp.Usage.CompletionTokens
}

func (r *Router) recordUsage(svc *Service, requested, served string, streaming bool, status string, dur time.Duration, usage domain.Usage) {
	if r.store == nil {
		return
	}
	rec := storage.UsageRecord{
		ID:               uuid.NewString(),
		Service:          svc.cfg.Name,
		Kind:             string(svc.cfg.Kind),
		RequestedModel:   requested,
		ServedModel:      served,
		Streaming:        streaming,
		Status:           status,
		Duration:         dur,
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
		CreatedAt:        r.clock(),
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.store.RecordUsage(ctx, rec); err != nil {
		r.logger.Warn("usage record failed", "error", err)
	}
}
