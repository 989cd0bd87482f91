package httpapi

import (
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/invitely/invite-dispatch/internal/metrics"
)

// mountMetrics exposes the dispatch collectors. A collector that fails to
// gather is skipped rather than failing the whole scrape.
func (s *Server) mountMetrics(r chi.Router) {
	metrics.MustRegister()
	h := promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{
		ErrorHandling:     promhttp.ContinueOnError,
		EnableOpenMetrics: true,
	})
	r.Method("GET", "/metrics", promhttp.InstrumentMetricHandler(prometheus.DefaultRegisterer, h))
}
