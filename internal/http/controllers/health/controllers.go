// Package health expone /healthz.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/dropDatabas3/twitter-signin/internal/observability/logger"
)

// Pinger es una dependencia que se puede chequear (ej. el cache del ledger).
type Pinger interface {
	Ping(ctx context.Context) error
}

// Controllers agrupa todos los controllers del dominio health.
type Controllers struct {
	Health *HealthController
}

// NewControllers crea el agregador. checks puede estar vacío.
func NewControllers(checks map[string]Pinger) *Controllers {
	return &Controllers{Health: &HealthController{checks: checks, timeout: 2 * time.Second}}
}

// HealthController responde 200 si todas las dependencias responden, 503 si no.
type HealthController struct {
	checks  map[string]Pinger
	timeout time.Duration
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Health handles GET /healthz
func (c *HealthController) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), c.timeout)
	defer cancel()

	resp := healthResponse{Status: "ok", Checks: map[string]string{}}
	status := http.StatusOK
	for name, p := range c.checks {
		if err := p.Ping(ctx); err != nil {
			logger.From(ctx).Warn("health check failed", logger.Component(name), logger.Err(err))
			resp.Checks[name] = "down"
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "up"
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
