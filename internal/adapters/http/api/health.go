package api

import (
	"net/http"

	"github.com/okian/livedraft/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthHandler handles liveness and metrics requests.
type HealthHandler struct {
	drafts Drafts
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(drafts Drafts) *HealthHandler {
	return &HealthHandler{drafts: drafts}
}

type healthResponse struct {
	Status string `json:"status"`
	Drafts int    `json:"drafts"`
	Halted int    `json:"halted"`
}

// HandleHealth handles GET /healthz. The process is healthy while it serves;
// halted drafts are counted, not treated as failure.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{Status: "ok"}
	for _, st := range h.drafts.List() {
		resp.Drafts++
		if st.Halted {
			resp.Halted++
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// MetricsHandler serves the custom registry in the Prometheus exposition
// format.
func (h *HealthHandler) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{})
}
