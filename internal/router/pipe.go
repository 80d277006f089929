package router

import (
	"context"
	"encoding/json"

	"github.com/modelroute/gateway/internal/domain"
	"github.com/modelroute/gateway/internal/metrics"
)

// Sink receives stream chunks on behalf of the client. A write error
// means the client is gone.
type Sink interface {
	// Send forwards one raw chunk.
	Send(data json.RawMessage) error

	// Done signals normal end of stream.
	Done() error
}

// Pipe drains a committed Stream into a Sink. It owns both ends:
// whatever way the transfer ends, the backend stream is closed exactly
// once and the outcome is recorded.
type Pipe struct {
	router *Router
	stream *Stream
	req    *domain.ChatCompletionRequest
}

func (r *Router) NewPipe(stream *Stream, req *domain.ChatCompletionRequest) *Pipe {
	return &Pipe{router: r, stream: stream, req: req}
}

// Run forwards the first chunk and then every subsequent event until
// the stream ends, the client disconnects, or ctx is cancelled.
// Disconnects are not errors: the pipe stops pulling and cleans up.
// Cancellation cleans up first, then surfaces ctx.Err().
func (p *Pipe) Run(ctx context.Context, sink Sink) error {
	metrics.StreamsActive.Inc()
	defer metrics.StreamsActive.Dec()
	defer func() {
		if err := p.stream.Close(); err != nil {
			p.router.logger.Warn("stream close failed",
				"service", p.stream.Trace.Service, "error", err)
		}
	}()

	chunks := 0
	finish := func(status string) {
		elapsed := p.router.clock().Sub(p.stream.started)
		usage := domain.Usage{
			PromptTokens: p.router.estimator.EstimateMessages(p.stream.Trace.ServedModel, p.req.Messages),
			// Streaming backends rarely report usage; one chunk is
			// roughly one token.
			CompletionTokens: chunks,
		}
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
		metrics.TokensTotal.WithLabelValues(p.stream.Trace.Service, "prompt").Add(float64(usage.PromptTokens))
		metrics.TokensTotal.WithLabelValues(p.stream.Trace.Service, "completion").Add(float64(usage.CompletionTokens))
		p.router.recordUsage(p.stream.service, p.stream.Trace.RequestedModel,
			p.stream.Trace.ServedModel, true, status, elapsed, usage)
	}

	if err := sink.Send(p.stream.First.Data); err != nil {
		finish("disconnected")
		return nil
	}
	chunks++

	for {
		select {
		case <-ctx.Done():
			finish("cancelled")
			return ctx.Err()
		case ev, open := <-p.stream.Events():
			if !open {
				if err := sink.Done(); err != nil {
					finish("disconnected")
					return nil
				}
				finish("ok")
				return nil
			}
			if ev.Err != nil {
				finish("error")
				return ev.Err
			}
			if err := sink.Send(ev.Data); err != nil {
				finish("disconnected")
				return nil
			}
			chunks++
		}
	}
}
