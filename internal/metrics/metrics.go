package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "chat_auth"

// Metrics holds the collectors of one process. A nil *Metrics is valid and
// records nothing, which keeps call sites free of nil checks.
type Metrics struct {
	registry *prometheus.Registry

	logins         *prometheus.CounterVec
	stepDuration   *prometheus.HistogramVec
	guardDecisions *prometheus.CounterVec
	missingConfig  prometheus.Counter
	degraded       prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "login",
			Name:      "attempts_total",
			Help:      "Login attempts by outcome",
		}, []string{"outcome"}),
		stepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "login",
			Name:      "step_duration_seconds",
			Help:      "Duration of the outbound login steps",
			Buckets:   prometheus.DefBuckets,
		}, []string{"step"}),
		guardDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "guard",
			Name:      "decisions_total",
			Help:      "Route guard decisions",
		}, []string{"decision"}),
		missingConfig: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "login",
			Name:      "missing_configuration_total",
			Help:      "Logins that failed because the internal API is not configured",
		}),
		degraded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "degraded_persist_total",
			Help:      "Sessions persisted to client storage without a cookie",
		}),
	}
	m.registry.MustRegister(
		m.logins,
		m.stepDuration,
		m.guardDecisions,
		m.missingConfig,
		m.degraded,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// LoginOutcome counts a finished attempt. outcome is "success" or a
// failure kind.
func (m *Metrics) LoginOutcome(outcome string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveStep(step string, d time.Duration) {
	if m == nil {
		return
	}
	m.stepDuration.WithLabelValues(step).Observe(d.Seconds())
}

func (m *Metrics) GuardDecision(decision string) {
	if m == nil {
		return
	}
	m.guardDecisions.WithLabelValues(decision).Inc()
}

func (m *Metrics) MissingConfiguration() {
	if m == nil {
		return
	}
	m.missingConfig.Inc()
}

func (m *Metrics) DegradedPersist() {
	if m == nil {
		return
	}
	m.degraded.Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Gatherer exposes the registry to tests.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}
