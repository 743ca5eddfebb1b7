package net

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/xaynetwork/xaynet/internal/chain"
)

// MetricsCollector is the observability surface a transport adapter
// reports message outcomes to. internal/phase reports transitions and
// round completions through its own narrower phase.MetricsCollector,
// which PrometheusCollector also satisfies; internal/round reports no
// metrics. Metrics emission itself is external
// functionality per spec.md §1, but the ambient instrumentation hook
// is carried regardless, the same way the teacher instruments its own
// beacon handler.
type MetricsCollector interface {
	// MessageAccepted records one admitted message of the given phase.
	MessageAccepted(phase chain.Phase)
	// MessageRejected records one rejected message, tagged by the
	// StatusClass a transport adapter answered with.
	MessageRejected(phase chain.Phase, class StatusClass)
	// PhaseTransition records a phase-machine transition.
	PhaseTransition(from, to chain.Phase)
	// RoundCompleted records a round reaching Idle, tagged by whether it
	// committed a new global model or failed to reach quorum.
	RoundCompleted(committed bool)
}

// PrometheusCollector is the default MetricsCollector implementation,
// registering its series against reg (typically
// prometheus.DefaultRegisterer).
type PrometheusCollector struct {
	accepted   *prometheus.CounterVec
	rejected   *prometheus.CounterVec
	transition *prometheus.CounterVec
	rounds     *prometheus.CounterVec
}

// NewPrometheusCollector registers and returns a PrometheusCollector.
func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	c := &PrometheusCollector{
		accepted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "xaynet",
			Subsystem: "coordinator",
			Name:      "messages_accepted_total",
			Help:      "Number of admitted participant messages, by phase.",
		}, []string{"phase"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "xaynet",
			Subsystem: "coordinator",
			Name:      "messages_rejected_total",
			Help:      "Number of rejected participant messages, by phase and status class.",
		}, []string{"phase", "class"}),
		transition: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "xaynet",
			Subsystem: "coordinator",
			Name:      "phase_transitions_total",
			Help:      "Number of phase-machine transitions, by origin and destination.",
		}, []string{"from", "to"}),
		rounds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "xaynet",
			Subsystem: "coordinator",
			Name:      "rounds_total",
			Help:      "Number of rounds completed, by whether a new global model was committed.",
		}, []string{"committed"}),
	}
	reg.MustRegister(c.accepted, c.rejected, c.transition, c.rounds)
	return c
}

func (c *PrometheusCollector) MessageAccepted(phase chain.Phase) {
	c.accepted.WithLabelValues(phase.String()).Inc()
}

func (c *PrometheusCollector) MessageRejected(phase chain.Phase, class StatusClass) {
	c.rejected.WithLabelValues(phase.String(), classLabel(class)).Inc()
}

func (c *PrometheusCollector) PhaseTransition(from, to chain.Phase) {
	c.transition.WithLabelValues(from.String(), to.String()).Inc()
}

func (c *PrometheusCollector) RoundCompleted(committed bool) {
	label := "false"
	if committed {
		label = "true"
	}
	c.rounds.WithLabelValues(label).Inc()
}

func classLabel(class StatusClass) string {
	switch class {
	case StatusAccepted:
		return "accepted"
	case StatusMalformed:
		return "malformed"
	case StatusRoleRejected:
		return "role_rejected"
	case StatusRulesRejected:
		return "rules_rejected"
	case StatusUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

var _ MetricsCollector = (*PrometheusCollector)(nil)
