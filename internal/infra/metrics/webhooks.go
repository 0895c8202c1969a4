package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		webhooksTotal,
	)
}

var webhooksTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "webhooks_total",
		Help: "Gateway webhook deliveries by provider and outcome (applied/replay/unresolved/dropped/rejected).",
	},
	[]string{"provider", "outcome"},
)

func IncWebhook(provider, outcome string) {
	webhooksTotal.WithLabelValues(norm(provider), norm(outcome)).Inc()
}
