package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/modelroute/gateway/internal/auth"
	"github.com/modelroute/gateway/internal/domain"
	"github.com/modelroute/gateway/internal/router"
)

type handlers struct {
	router         *router.Router
	gatekeeper     *auth.Gatekeeper
	requestTimeout time.Duration
	started        time.Time
}

func (h *handlers) root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service":  "modelroute-gateway",
		"mode":     "router",
		"services": h.router.Services(),
	})
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	report := h.router.Health()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"router":         report.Status,
		"uptime_seconds": time.Since(h.started).Seconds(),
	})
}

func (h *handlers) backendInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"mode":     "router",
		"services": h.router.Services(),
		"stats":    h.router.Stats(),
	})
}

func (h *handlers) chatCompletions(w http.ResponseWriter, r *http.Request) {
	var req domain.ChatCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, domain.ErrInvalidRequest(fmt.Sprintf("invalid request body: %v", err)))
		return
	}
	if len(req.Messages) == 0 {
		WriteError(w, domain.ErrInvalidRequest("messages must not be empty"))
		return
	}

	if req.Stream {
		h.streamCompletion(w, r, &req)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()
	resp, err := h.router.Complete(ctx, &req)
	if err != nil {
		AddError(r.Context(), err)
		WriteError(w, err)
		return
	}
	if resp.Router != nil {
		AddLogField(r.Context(), "service", resp.Router.Service)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) streamCompletion(w http.ResponseWriter, r *http.Request, req *domain.ChatCompletionRequest) {
	stream, err := h.router.Stream(r.Context(), req)
	if err != nil {
		AddError(r.Context(), err)
		WriteError(w, err)
		return
	}
	AddLogField(r.Context(), "service", stream.Trace.Service)

	w.Header().Set("X-Router-Service", stream.Trace.Service)
	w.Header().Set("X-Router-Backend-Kind", stream.Trace.BackendKind)
	sink, ok := newSSESink(w)
	if !ok {
		stream.Close()
		WriteError(w, domain.ErrInternal("streaming unsupported by connection"))
		return
	}
	if err := h.router.NewPipe(stream, req).Run(r.Context(), sink); err != nil {
		// Headers are already sent; nothing to change on the wire.
		AddError(r.Context(), err)
	}
}

func (h *handlers) listModels(w http.ResponseWriter, r *http.Request) {
	list, err := h.router.ListModels(r.Context())
	if err != nil {
		WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *handlers) getModel(w http.ResponseWriter, r *http.Request) {
	model, err := h.router.GetModel(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, model)
}

func (h *handlers) routerStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.router.Stats())
}

func (h *handlers) routerHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.router.Health())
}

func (h *handlers) routerRateLimits(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"rate_limits": h.router.RateLimits(),
	})
}

func (h *handlers) routerResetStats(w http.ResponseWriter, r *http.Request) {
	h.router.ResetStats()
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) authStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.gatekeeper.Status())
}

func (h *handlers) authMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"keys": h.gatekeeper.Metrics(),
	})
}

func (h *handlers) authReloadKeys(w http.ResponseWriter, r *http.Request) {
	count := h.gatekeeper.Reload()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"key_count": count,
	})
}

func (h *handlers) authResetMetrics(w http.ResponseWriter, r *http.Request) {
	h.gatekeeper.ResetMetrics()
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
