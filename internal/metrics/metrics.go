package metrics

import "github.com/prometheus/client_golang/prometheus"

// SchedulingMetrics counts lock lifecycle outcomes.
type SchedulingMetrics struct {
	locks         *prometheus.CounterVec
	releases      *prometheus.CounterVec
	conflicts     *prometheus.CounterVec
	confirmations *prometheus.CounterVec
	inbound       *prometheus.CounterVec
	backend       *prometheus.HistogramVec
}

func NewSchedulingMetrics(reg prometheus.Registerer) *SchedulingMetrics {
	m := &SchedulingMetrics{
		locks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "coordinator",
			Subsystem: "scheduling",
			Name:      "lock_attempts_total",
			Help:      "Slot lock attempts by outcome",
		}, []string{"outcome"}),
		releases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "coordinator",
			Subsystem: "scheduling",
			Name:      "lock_releases_total",
			Help:      "Lock releases by reason and outcome",
		}, []string{"reason", "outcome"}),
		conflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "coordinator",
			Subsystem: "scheduling",
			Name:      "conflicts_total",
			Help:      "Existing-lock conflicts by trigger and resolution",
		}, []string{"trigger", "resolution"}),
		confirmations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "coordinator",
			Subsystem: "scheduling",
			Name:      "confirmations_total",
			Help:      "Appointment confirmations by outcome",
		}, []string{"outcome"}),
		inbound: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "coordinator",
			Subsystem: "events",
			Name:      "inbound_total",
			Help:      "Inbound tab and push events by source, type and whether they applied",
		}, []string{"source", "type", "applied"}),
		backend: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "coordinator",
			Subsystem: "backend",
			Name:      "call_duration_seconds",
			Help:      "Latency of backend calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op", "status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.locks, m.releases, m.conflicts, m.confirmations, m.inbound, m.backend)
	return m
}

func (m *SchedulingMetrics) ObserveLock(outcome string) {
	if m == nil {
		return
	}
	m.locks.WithLabelValues(outcome).Inc()
}

func (m *SchedulingMetrics) ObserveRelease(reason, outcome string) {
	if m == nil {
		return
	}
	m.releases.WithLabelValues(reason, outcome).Inc()
}

func (m *SchedulingMetrics) ObserveConflict(trigger, resolution string) {
	if m == nil {
		return
	}
	m.conflicts.WithLabelValues(trigger, resolution).Inc()
}

func (m *SchedulingMetrics) ObserveConfirmation(outcome string) {
	if m == nil {
		return
	}
	m.confirmations.WithLabelValues(outcome).Inc()
}

func (m *SchedulingMetrics) ObserveInbound(source, eventType string, applied bool) {
	if m == nil {
		return
	}
	label := "false"
	if applied {
		label = "true"
	}
	m.inbound.WithLabelValues(source, eventType, label).Inc()
}

func (m *SchedulingMetrics) ObserveBackend(op, status string, seconds float64) {
	if m == nil {
		return
	}
	m.backend.WithLabelValues(op, status).Observe(seconds)
}
