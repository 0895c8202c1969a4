package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		ordersTotal,
		ordersRevenueTotal,
	)
}

var (
	ordersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orders_total",
			Help: "Orders by status (pending/completed/failed).",
		},
		[]string{"status"},
	)

	ordersRevenueTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orders_revenue_total",
			Help: "The total value of completed orders in minor currency units, by gateway.",
		},
		[]string{"provider"},
	)
)

func IncOrder(status string) {
	ordersTotal.WithLabelValues(norm(status)).Inc()
}

func AddOrderRevenue(provider string, amount int64) {
	ordersRevenueTotal.WithLabelValues(norm(provider)).Add(float64(amount))
}
