// Package metrics exposes Prometheus counters for the chat proxy.
//
// A nil *Collector is valid and records nothing, so components can take an
// optional collector without guarding every call.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "resumechat"

// Chat request outcomes.
const (
	OutcomeOK               = "ok"
	OutcomePreflight        = "preflight"
	OutcomeMethodNotAllowed = "method_not_allowed"
	OutcomeBodyTooLarge     = "body_too_large"
	OutcomeMissingAPIKey    = "missing_api_key"
	OutcomeProfileNotLoaded = "profile_not_loaded"
	OutcomeUpstreamError    = "upstream_error"
)

// Collector owns a private registry and the chat proxy's metrics.
type Collector struct {
	registry *prometheus.Registry

	chatRequests     *prometheus.CounterVec
	profileLoads     *prometheus.CounterVec
	upstreamDuration prometheus.Histogram
}

// NewCollector registers all metrics on registry. A nil registry gets a
// fresh one.
func NewCollector(registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	c := &Collector{
		registry: registry,
		chatRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_requests_total",
			Help:      "Chat requests by outcome.",
		}, []string{"outcome"}),
		profileLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "profile_loads_total",
			Help:      "Profile document load attempts by result.",
		}, []string{"result"}),
		upstreamDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_duration_seconds",
			Help:      "Latency of generation calls to Gemini.",
			// LLM latencies: 100ms - 30s
			Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
		}),
	}

	registry.MustRegister(c.chatRequests, c.profileLoads, c.upstreamDuration)
	return c
}

// ChatRequest counts one chat request with the given outcome.
func (c *Collector) ChatRequest(outcome string) {
	if c == nil {
		return
	}
	c.chatRequests.WithLabelValues(outcome).Inc()
}

// ProfileLoad counts a load attempt; err is nil on success.
func (c *Collector) ProfileLoad(err error) {
	if c == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	c.profileLoads.WithLabelValues(result).Inc()
}

// ObserveUpstream records the duration of one generation call.
func (c *Collector) ObserveUpstream(d time.Duration) {
	if c == nil {
		return
	}
	c.upstreamDuration.Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}
