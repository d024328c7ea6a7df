package dataclient

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/leeforge/dataclient/http/responder"
	"go.uber.org/zap"
)

// ModelInfo describes one model accessor binding.
type ModelInfo struct {
	Name   string   `json:"name"`
	Key    string   `json:"key"`
	Tags   []string `json:"tags"`
	Locked bool     `json:"locked"`
}

// Models lists the model accessor bindings in declaration order.
func (d *Component) Models() ([]ModelInfo, error) {
	client, err := d.requireClient()
	if err != nil {
		return nil, err
	}

	names := client.ModelNames()
	out := make([]ModelInfo, 0, len(names))
	for _, name := range names {
		key := ModelKey(d.cfg.Models.Namespace, name)
		b, err := d.container.GetBinding(key)
		if err != nil {
			return nil, err
		}
		out = append(out, ModelInfo{Name: name, Key: key, Tags: b.TagNames(), Locked: b.IsLocked()})
	}
	return out, nil
}

// RegisterRoutes implements component.RouteProvider:
//
//	GET /dataclient/health
//	GET /dataclient/models
func (d *Component) RegisterRoutes(r chi.Router) {
	r.Route("/dataclient", func(r chi.Router) {
		r.Get("/health", d.handleHealth)
		r.Get("/models", d.handleModels)
	})
}

func (d *Component) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := d.HealthCheck(r.Context()); err != nil {
		d.logger.Warn("health check failed", zap.Error(err))
		responder.ServiceUnavailable(w, r, "datasource unavailable", err.Error())
		return
	}
	responder.OK(w, r, map[string]any{
		"status":      "ok",
		"lazyConnect": d.cfg.LazyConnect,
	})
}

func (d *Component) handleModels(w http.ResponseWriter, r *http.Request) {
	models, err := d.Models()
	if errors.Is(err, ErrNotInitialized) {
		responder.ServiceUnavailable(w, r, err.Error(), nil)
		return
	}
	if err != nil {
		responder.InternalServerError(w, r, err.Error())
		return
	}
	responder.OK(w, r, map[string]any{
		"namespace": d.cfg.Models.Namespace,
		"models":    models,
	})
}
