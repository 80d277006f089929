package router

import (
	"context"

	"github.com/modelroute/gateway/internal/domain"
)

// ListModels aggregates every service's catalog, annotating each model
// with the service that serves it. Unreachable backends contribute
// their static fallback list, so the aggregate never fails outright.
func (r *Router) ListModels(ctx context.Context) (*domain.ModelList, error) {
	snap := r.snap.Load()
	now := r.clock()

	out := &domain.ModelList{
		Object: "list",
		Router: &domain.ModelListTrace{TotalServices: len(snap.services)},
	}
	for _, svc := range snap.services {
		list, err := svc.adapter.ListModels(ctx)
		if err != nil {
			r.logger.Warn("model listing failed",
				"service", svc.cfg.Name, "error", err)
			continue
		}
		out.Router.WorkingServices++
		out.Router.Services = append(out.Router.Services, domain.ModelSource{
			Name:        svc.cfg.Name,
			BackendKind: string(svc.cfg.Kind),
			ModelCount:  len(list.Data),
		})

		ids := make(map[string]struct{}, len(list.Data))
		for _, m := range list.Data {
			m.Service = svc.cfg.Name
			m.BackendKind = string(svc.cfg.Kind)
			if m.Object == "" {
				m.Object = "model"
			}
			out.Data = append(out.Data, m)
			ids[m.ID] = struct{}{}
		}
		svc.storeModelIDs(ids, now)
	}
	out.Router.CombinedModels = len(out.Data)
	return out, nil
}

// GetModel looks up a single model across all services. The first
// service (by priority) advertising the id wins.
func (r *Router) GetModel(ctx context.Context, id string) (*domain.Model, error) {
	list, err := r.ListModels(ctx)
	if err != nil {
		return nil, err
	}
	for i := range list.Data {
		if list.Data[i].ID == id {
			return &list.Data[i], nil
		}
	}
	return nil, domain.ErrModelNotFound(id)
}
