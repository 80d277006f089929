package router

import (
	"context"
	"time"

	"github.com/modelroute/gateway/internal/backend"
	"github.com/modelroute/gateway/internal/domain"
	"github.com/modelroute/gateway/internal/metrics"
)

// Stream is a committed streaming dispatch. The first chunk has
// already been received; it is carried separately so the caller can
// forward it before draining Events.
type Stream struct {
	First backend.StreamEvent
	Trace domain.RouterTrace

	service *Service
	handle  *backend.StreamHandle
	cancel  context.CancelFunc
	started time.Time
}

func (s *Stream) Events() <-chan backend.StreamEvent { return s.handle.Events() }

// Close releases the stream. Safe to call more than once.
func (s *Stream) Close() error {
	err := s.handle.Close()
	s.cancel()
	return err
}

type streamAttempt struct {
	handle *backend.StreamHandle
	err    error
}

// Stream routes a streaming chat completion. A candidate is committed
// once its first chunk arrives; before that, handshake errors, chunk
// errors, and the service timeout all fail over to the next candidate.
func (r *Router) Stream(ctx context.Context, req *domain.ChatCompletionRequest) (*Stream, error) {
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
			continue
		}

		snap.limiter.RecordAttempt(svc.cfg.Name, now)
		out.dispatched++

		sent := req.Clone()
		if model != "" {
			sent.Model = model
		}

		stream, err := r.openStream(ctx, svc, sent, out.dispatched, req.Model)
		elapsed := r.clock().Sub(now)
		svc.recordDispatch(err == nil, r.clock())
		metrics.DispatchDuration.WithLabelValues(svc.cfg.Name).Observe(elapsed.Seconds())
		if err != nil {
			metrics.DispatchTotal.WithLabelValues(svc.cfg.Name, "failure").Inc()
			out.lastErr = err
			r.logger.Warn("stream dispatch failed",
				"service", svc.cfg.Name, "error", err)
			r.recordUsage(svc, req.Model, sent.Model, true, "error", elapsed, domain.Usage{})
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
		return stream, nil
	}
	return nil, out.terminal(req.Model, len(snap.services))
}

// openStream performs one streaming dispatch attempt. The service
// timeout covers handshake plus time to first chunk; once the first
// chunk is in hand the attempt is committed and the deadline no longer
// applies.
func (r *Router) openStream(ctx context.Context, svc *Service, req *domain.ChatCompletionRequest, attempt int, requestedModel string) (*Stream, error) {
	dctx, cancel := context.WithCancel(ctx)
	done := make(chan streamAttempt, 1)
	start := r.clock()
	go func() {
		h, err := svc.adapter.Stream(dctx, req)
		done <- streamAttempt{handle: h, err: err}
	}()

	timer := time.NewTimer(svc.cfg.Timeout())
	defer timer.Stop()

	var handle *backend.StreamHandle
	select {
	case att := <-done:
		if att.err != nil {
			cancel()
			return nil, att.err
		}
		handle = att.handle
	case <-timer.C:
		cancel()
		go reapAttempt(done)
		return nil, domain.ErrBackendTimeout(svc.cfg.Name, string(svc.cfg.Kind))
	case <-ctx.Done():
		cancel()
		go reapAttempt(done)
		return nil, domain.ErrBackendConnection(svc.cfg.Name, string(svc.cfg.Kind), ctx.Err().Error())
	}

	select {
	case ev, open := <-handle.Events():
		if !open {
			handle.Close()
			cancel()
			return nil, domain.ErrBackendConnection(svc.cfg.Name, string(svc.cfg.Kind), "stream closed before first chunk")
		}
		if ev.Err != nil {
			handle.Close()
			cancel()
			return nil, ev.Err
		}
		return &Stream{
			First: ev,
			Trace: domain.RouterTrace{
				Service:        svc.cfg.Name,
				BackendKind:    string(svc.cfg.Kind),
				Attempt:        attempt,
				DurationSec:    r.clock().Sub(start).Seconds(),
				RequestedModel: requestedModel,
				ServedModel:    req.Model,
			},
			service: svc,
			handle:  handle,
			cancel:  cancel,
			started: start,
		}, nil
	case <-timer.C:
		handle.Close()
		cancel()
		return nil, domain.ErrBackendTimeout(svc.cfg.Name, string(svc.cfg.Kind))
	case <-ctx.Done():
		handle.Close()
		cancel()
		return nil, domain.ErrBackendConnection(svc.cfg.Name, string(svc.cfg.Kind), ctx.Err().Error())
	}
}

// reapAttempt closes a handle whose dispatch lost the race against the
// timeout, so the reader goroutine does not leak.
func reapAttempt(done <-chan streamAttempt) {
	if att := <-done; att.handle != nil {
		att.handle.Close()
	}
}
