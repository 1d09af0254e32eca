// Package metrics owns the gatekeeper's Prometheus collectors.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector on a private registry.
// All methods are safe on a nil receiver, so components can run without metrics.
type Metrics struct {
	registry *prometheus.Registry

	AcksReceived      *prometheus.CounterVec
	Promotions        *prometheus.CounterVec
	MutationFailures  *prometheus.CounterVec
	RegistryResponses *prometheus.CounterVec
	RegistryDuration  prometheus.Histogram
	TokenExchanges    *prometheus.CounterVec
	EventsDropped     prometheus.Counter
}

// New creates a new Metrics instance with all collectors registered.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		AcksReceived: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gatekeeper_acknowledgments_total",
			Help: "Reaction events seen, by filter result",
		}, []string{"result"}),
		Promotions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gatekeeper_promotions_total",
			Help: "Verification attempts, by outcome",
		}, []string{"outcome"}),
		MutationFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gatekeeper_mutation_failures_total",
			Help: "Failed member mutations, by stage",
		}, []string{"stage"}),
		RegistryResponses: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gatekeeper_registry_responses_total",
			Help: "Registry lookups, by HTTP status code (0 for transport errors)",
		}, []string{"code"}),
		RegistryDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "gatekeeper_registry_request_duration_seconds",
			Help:    "Duration of registry lookups including token refreshes",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		TokenExchanges: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gatekeeper_token_exchanges_total",
			Help: "OAuth client-credentials exchanges, by result",
		}, []string{"result"}),
		EventsDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "gatekeeper_events_dropped_total",
			Help: "Gateway events dropped because the dispatch queue was full",
		}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveAck records one reaction event by filter result
// (accepted, self, wrong_message, wrong_emoji, debounced).
func (m *Metrics) ObserveAck(result string) {
	if m == nil {
		return
	}
	m.AcksReceived.WithLabelValues(result).Inc()
}

// ObservePromotion records a verification outcome.
func (m *Metrics) ObservePromotion(outcome string) {
	if m == nil {
		return
	}
	m.Promotions.WithLabelValues(outcome).Inc()
}

// ObserveMutationFailure records a failed grant, revoke, or rename.
func (m *Metrics) ObserveMutationFailure(stage string) {
	if m == nil {
		return
	}
	m.MutationFailures.WithLabelValues(stage).Inc()
}

// ObserveRegistry records a registry lookup. Call with time.Now() at the
// start of the lookup.
func (m *Metrics) ObserveRegistry(code int, start time.Time) {
	if m == nil {
		return
	}
	m.RegistryResponses.WithLabelValues(strconv.Itoa(code)).Inc()
	m.RegistryDuration.Observe(time.Since(start).Seconds())
}

// ObserveTokenExchange records an OAuth exchange result (ok, error).
func (m *Metrics) ObserveTokenExchange(result string) {
	if m == nil {
		return
	}
	m.TokenExchanges.WithLabelValues(result).Inc()
}

// ObserveDroppedEvent records an event the dispatcher could not queue.
func (m *Metrics) ObserveDroppedEvent() {
	if m == nil {
		return
	}
	m.EventsDropped.Inc()
}
