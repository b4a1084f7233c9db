// Package metrics holds the Prometheus collectors for projections and intents.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "trustsplit"

// Metrics is safe to use as a nil pointer, in which case nothing is recorded.
type Metrics struct {
	projectionDuration *prometheus.HistogramVec
	projectionErrors   *prometheus.CounterVec
	skippedItems       *prometheus.CounterVec
	superseded         *prometheus.CounterVec
	intents            *prometheus.CounterVec
	settleAttempts     *prometheus.HistogramVec
	inconsistencies    *prometheus.CounterVec
	sessions           prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		projectionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "projection_duration_seconds",
			Help:      "Time spent resolving a projection, including retries.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"projection"}),
		projectionErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "projection_errors_total",
			Help:      "Projections that failed, by error code.",
		}, []string{"projection", "code"}),
		skippedItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "projection_skipped_items_total",
			Help:      "Groups or expenses that could not be resolved and were substituted or skipped.",
		}, []string{"projection"}),
		superseded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "projection_superseded_total",
			Help:      "Projection results discarded because a newer request was issued.",
		}, []string{"projection"}),
		intents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "intents_total",
			Help:      "Mutation intents by kind and outcome code.",
		}, []string{"kind", "code"}),
		settleAttempts: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "intent_settle_attempts",
			Help:      "Re-projection attempts before a confirmed mutation was observed.",
			Buckets:   []float64{1, 2, 3, 5, 8, 13},
		}, []string{"kind"}),
		inconsistencies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "internal_inconsistencies_total",
			Help:      "Remote state that violated an invariant the contract should enforce.",
		}, []string{"kind"}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Connected wallet sessions.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.projectionDuration,
			m.projectionErrors,
			m.skippedItems,
			m.superseded,
			m.intents,
			m.settleAttempts,
			m.inconsistencies,
			m.sessions,
		)
	}
	return m
}

// ObserveProjection records how long a projection took and, if it failed, its code.
func (m *Metrics) ObserveProjection(projection string, started time.Time, code string) {
	if m == nil {
		return
	}
	m.projectionDuration.WithLabelValues(projection).Observe(time.Since(started).Seconds())
	if code != "" {
		m.projectionErrors.WithLabelValues(projection, code).Inc()
	}
}

func (m *Metrics) SkippedItem(projection string) {
	if m == nil {
		return
	}
	m.skippedItems.WithLabelValues(projection).Inc()
}

func (m *Metrics) Superseded(projection string) {
	if m == nil {
		return
	}
	m.superseded.WithLabelValues(projection).Inc()
}

// Intent counts one finished intent. code is "OK" on success.
func (m *Metrics) Intent(kind, code string) {
	if m == nil {
		return
	}
	m.intents.WithLabelValues(kind, code).Inc()
}

func (m *Metrics) SettleAttempts(kind string, attempts int) {
	if m == nil {
		return
	}
	m.settleAttempts.WithLabelValues(kind).Observe(float64(attempts))
}

func (m *Metrics) Inconsistency(kind string) {
	if m == nil {
		return
	}
	m.inconsistencies.WithLabelValues(kind).Inc()
}

func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.sessions.Inc()
}

func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.sessions.Dec()
}
