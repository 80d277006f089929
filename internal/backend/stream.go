package backend

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"
)

// StreamEvent is one unit on a stream: a raw SSE data payload or a
// terminal error. Chunks are passed through without re-encoding.
type StreamEvent struct {
	Data json.RawMessage
	Err  error
}

// StreamHandle is a single-consumer, single-owner in-flight backend
// stream. It is created at dispatch and must be closed exactly once on
// every exit path; Close is idempotent to make that guarantee cheap for
// the owner.
type StreamHandle struct {
	events chan StreamEvent
	cancel context.CancelFunc
	body   io.ReadCloser

	once   sync.Once
	closed chan struct{}
}

// Events returns the stream's event channel. The channel is closed after
// the terminal event (normal exhaustion or error).
func (h *StreamHandle) Events() <-chan StreamEvent {
	return h.events
}

// Close cancels the backend request and releases the response body. Safe
// to call multiple times and concurrently with a pending read; only the
// first call does work.
func (h *StreamHandle) Close() error {
	var err error
	h.once.Do(func() {
		close(h.closed)
		if h.cancel != nil {
			h.cancel()
		}
		if h.body != nil {
			err = h.body.Close()
		}
	})
	return err
}

// NewStreamHandle wraps a streaming response body and starts the SSE
// reader goroutine.
func NewStreamHandle(body io.ReadCloser, cancel context.CancelFunc) *StreamHandle {
	h := &StreamHandle{
		events: make(chan StreamEvent),
		cancel: cancel,
		body:   body,
		closed: make(chan struct{}),
	}
	go h.read()
	return h
}

// read scans SSE "data:" lines off the body and forwards them. It never
// blocks past Close: every send races against the closed signal so the
// goroutine exits even when the consumer is gone.
func (h *StreamHandle) read() {
	defer close(h.events)

	scanner := bufio.NewScanner(h.body)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			return
		}
		if !h.send(StreamEvent{Data: json.RawMessage(data)}) {
			return
		}
	}

	if err := scanner.Err(); err != nil {
		select {
		case <-h.closed:
			// Read failure caused by our own Close; not an error.
		default:
			h.send(StreamEvent{Err: err})
		}
	}
}

func (h *StreamHandle) send(ev StreamEvent) bool {
	select {
	case h.events <- ev:
		return true
	case <-h.closed:
		return false
	}
}
