package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusObserver turns chat events into Prometheus series.
type PrometheusObserver struct {
	providerAttempts *prometheus.CounterVec
	providerLatency  *prometheus.HistogramVec
	turns            *prometheus.CounterVec
	turnLatency      *prometheus.HistogramVec
	events           *prometheus.CounterVec
}

// NewPrometheusObserver registers its collectors on reg. Pass a fresh
// registry in tests to avoid duplicate registration.
func NewPrometheusObserver(reg prometheus.Registerer) *PrometheusObserver {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &PrometheusObserver{
		providerAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "agrichat_provider_attempts_total",
			Help: "Response provider attempts by outcome.",
		}, []string{"provider", "outcome"}),
		providerLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "agrichat_provider_latency_seconds",
			Help:    "Latency of a single provider generate call.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8},
		}, []string{"provider"}),
		turns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "agrichat_turns_total",
			Help: "Rendered chat turns.",
		}, []string{"intent", "language", "provider"}),
		turnLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "agrichat_turn_latency_seconds",
			Help:    "End-to-end turn latency from dequeue to render.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"intent"}),
		events: f.NewCounterVec(prometheus.CounterOpts{
			Name: "agrichat_events_total",
			Help: "Other chat core events by name.",
		}, []string{"name"}),
	}
}

func (p *PrometheusObserver) RecordEvent(ev MetricsEvent) {
	switch ev.Name {
	case EventProviderAttempt:
		provider := ev.Tags["provider"]
		p.providerAttempts.WithLabelValues(provider, ev.Tags["outcome"]).Inc()
		p.providerLatency.WithLabelValues(provider).Observe(ev.Value)
	case EventTurnRendered:
		p.turns.WithLabelValues(ev.Tags["intent"], ev.Tags["language"], ev.Tags["provider"]).Inc()
		p.turnLatency.WithLabelValues(ev.Tags["intent"]).Observe(ev.Value)
	default:
		p.events.WithLabelValues(ev.Name).Inc()
	}
}
