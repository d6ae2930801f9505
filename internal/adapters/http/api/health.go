package api

import (
	"net/http"

	"github.com/okian/lanes/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthHandler exposes the lanes Prometheus registry. A successful scrape
// is the liveness signal.
type HealthHandler struct {
	metrics http.Handler
}

// NewHealthHandler creates a handler over the lanes registry.
func NewHealthHandler() *HealthHandler {
	return &HealthHandler{
		metrics: promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}),
	}
}

// HandleHealth handles GET /healthz and GET /metrics.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	h.metrics.ServeHTTP(w, r)
}
