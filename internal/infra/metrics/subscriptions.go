package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		subscriptionsExpiredTotal,
		subscriptionsActive,
	)
}

var (
	subscriptionsExpiredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "subscriptions_expired_total",
			Help: "Total number of subscriptions expired by the sweep worker.",
		},
	)

	subscriptionsActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "subscriptions_active",
			Help: "Current number of active subscriptions by plan.",
		},
		[]string{"plan"},
	)
)

func IncSubscriptionsExpired(count int) {
	subscriptionsExpiredTotal.Add(float64(count))
}

func SetSubscriptionsActive(byPlan map[string]int) {
	for plan, count := range byPlan {
		subscriptionsActive.WithLabelValues(norm(plan)).Set(float64(count))
	}
}
