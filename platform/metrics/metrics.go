// Package metrics provides Prometheus collectors for the scoring pipeline.
// This is part of the platform layer and contains no business logic.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors exported by the service.
type Metrics struct {
	registry *prometheus.Registry

	eventsIngested  *prometheus.CounterVec
	duplicateEvents prometheus.Counter
	tierTransitions *prometheus.CounterVec
	lockTimeouts    prometheus.Counter
	mergesPerformed prometheus.Counter
}

// New creates the metric collectors on a dedicated registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		eventsIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "leadscore_events_ingested_total",
			Help: "Interaction events applied to profiles, by event type.",
		}, []string{"type"}),
		duplicateEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "leadscore_duplicate_events_total",
			Help: "Events short-circuited by the idempotency check.",
		}),
		tierTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "leadscore_tier_transitions_total",
			Help: "Accepted tier transitions, by destination tier.",
		}, []string{"to_tier"}),
		lockTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "leadscore_lock_timeouts_total",
			Help: "ApplyEvent calls that gave up waiting for the per-lead lock.",
		}),
		mergesPerformed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "leadscore_profile_merges_total",
			Help: "Anonymous sessions merged into identified profiles.",
		}),
	}

	registry.MustRegister(
		m.eventsIngested,
		m.duplicateEvents,
		m.tierTransitions,
		m.lockTimeouts,
		m.mergesPerformed,
	)

	return m
}

// EventIngested records one applied event of the given type.
func (m *Metrics) EventIngested(eventType string) {
	m.eventsIngested.WithLabelValues(eventType).Inc()
}

// DuplicateEvent records an idempotency-check hit.
func (m *Metrics) DuplicateEvent() {
	m.duplicateEvents.Inc()
}

// TierTransition records an accepted tier transition.
func (m *Metrics) TierTransition(toTier string) {
	m.tierTransitions.WithLabelValues(toTier).Inc()
}

// LockTimeout records an ApplyEvent lock-acquire timeout.
func (m *Metrics) LockTimeout() {
	m.lockTimeouts.Inc()
}

// MergePerformed records a profile merge.
func (m *Metrics) MergePerformed() {
	m.mergesPerformed.Inc()
}

// Handler returns the /metrics HTTP handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
