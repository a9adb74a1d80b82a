package controller

import (
	"context"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
)

// HealthCheck is a named dependency probe used by the readiness endpoint.
type HealthCheck struct {
	Name string
	Ping func(ctx context.Context) error
}

type breakerStater interface {
	State() gobreaker.State
}

type HealthController struct {
	checks  []HealthCheck
	breaker breakerStater
}

func NewHealthController(breaker breakerStater, checks ...HealthCheck) *HealthController {
	return &HealthController{checks: checks, breaker: breaker}
}

// Health reports the processor breaker alongside the process status. An open
// breaker does not fail the probe: webhooks are still served.
func (h *HealthController) Health(w http.ResponseWriter, r *http.Request) {
	resp := map[string]string{"status": "ok"}
	if h.breaker != nil {
		resp["processor"] = h.breaker.State().String()
	}
	writeJSON(w, r, http.StatusOK, resp)
}

func (h *HealthController) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "alive"})
}

func (h *HealthController) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	for _, c := range h.checks {
		if err := c.Ping(ctx); err != nil {
			writeJSON(w, r, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"reason": c.Name + " unavailable",
			})
			return
		}
	}

	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ready"})
}
