package assign

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts assignment outcomes. A nil *Metrics records nothing.
type Metrics struct {
	assignments *prometheus.CounterVec
	degradedPk  *prometheus.CounterVec
	failures    *prometheus.CounterVec
}

// NewMetrics registers the assignment collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		assignments: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "checkin",
			Name:      "assignments_total",
			Help:      "Participants assigned to a team.",
		}, []string{"batch", "team"}),
		degradedPk: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "checkin",
			Name:      "assignment_degraded_total",
			Help:      "Team picks made without occupancy counts.",
		}, []string{"batch"}),
		failures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "checkin",
			Name:      "assignment_failures_total",
			Help:      "Failed assignment attempts by reason.",
		}, []string{"batch", "reason"}),
	}
}

func (m *Metrics) assigned(batch int, team string) {
	if m == nil {
		return
	}
	m.assignments.WithLabelValues(strconv.Itoa(batch), team).Inc()
}

func (m *Metrics) degraded(batch int) {
	if m == nil {
		return
	}
	m.degradedPk.WithLabelValues(strconv.Itoa(batch)).Inc()
}

func (m *Metrics) failed(batch int, reason string) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(strconv.Itoa(batch), reason).Inc()
}
