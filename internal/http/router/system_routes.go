package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/twitter-signin/internal/http/controllers/health"
)

// SystemRouterDeps contiene health y el handler de métricas (opcional).
type SystemRouterDeps struct {
	Health  *health.Controllers
	Metrics http.Handler
}

// RegisterSystemRoutes registra /healthz y /metrics.
func RegisterSystemRoutes(r chi.Router, deps SystemRouterDeps) {
	if deps.Health != nil {
		r.Get("/healthz", deps.Health.Health.Health)
	}
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}
}
