// Package metrics holds the prometheus collectors shared by the proxy.
// All collectors live on a private registry so tests and embedders never
// collide with the global default registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "msgproxy"

// Registry is the registry every collector in this package is registered with.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

var (
	RequestsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "requests_total",
		Help:      "Inbound requests by endpoint and response status.",
	}, []string{"endpoint", "status"})

	UpstreamLatency = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "upstream_latency_seconds",
		Help:      "Time until the backend returned response headers.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"mode"})

	StreamEventsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stream_events_total",
		Help:      "Message-protocol stream events emitted, by event name.",
	}, []string{"event"})

	UpstreamErrorsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "upstream_errors_total",
		Help:      "Failed backend calls by mode and HTTP status (0 for transport errors).",
	}, []string{"mode", "status"})

	MalformedChunksTotal = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "malformed_chunks_total",
		Help:      "Backend stream chunks skipped because they could not be parsed.",
	})

	LateToolFragmentsTotal = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "late_tool_fragments_total",
		Help:      "Tool argument fragments dropped from the client stream because their block had already closed.",
	})

	ToolArgumentRepairsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tool_argument_repairs_total",
		Help:      "Tool argument strings that needed backslash repair, by outcome.",
	}, []string{"outcome"})

	ModelResolutionsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "model_resolutions_total",
		Help:      "Model identifier resolutions by the tier that matched.",
	}, []string{"tier"})

	CatalogModels = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "catalog_models",
		Help:      "Number of models in the current catalog snapshot.",
	})

	RateLimitedTotal = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rate_limited_total",
		Help:      "Requests rejected by admission control.",
	})
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// ObserveUpstream records the header latency of one backend call.
func ObserveUpstream(mode string, start time.Time) {
	UpstreamLatency.WithLabelValues(mode).Observe(time.Since(start).Seconds())
}

// Handler serves the registry in the prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}
