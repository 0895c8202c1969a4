package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		reconcileTotal,
		enrollmentsGranting,
	)
}

var (
	reconcileTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconcile_transitions_total",
			Help: "State machine transitions by entity, transition and result (applied/illegal).",
		},
		[]string{"entity", "transition", "result"},
	)

	enrollmentsGranting = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "enrollments_granting",
			Help: "Current number of enrollments granting access.",
		},
	)
)

func IncReconcile(entity, transition, result string) {
	reconcileTotal.WithLabelValues(norm(entity), transition, norm(result)).Inc()
}

func SetEnrollmentsGranting(n int) {
	enrollmentsGranting.Set(float64(n))
}
