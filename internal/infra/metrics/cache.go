package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		cacheRequestsTotal,
	)
}

var cacheRequestsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "cache_requests_total",
		Help: "Cache lookups by subject and result (hit/miss).",
	},
	[]string{"subject", "result"},
)

func IncCacheRequest(subject, result string) {
	cacheRequestsTotal.WithLabelValues(norm(subject), norm(result)).Inc()
}
