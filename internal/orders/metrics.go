package orders

import "github.com/prometheus/client_golang/prometheus"

var transitionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "order_transitions_total",
		Help: "Order lifecycle transitions, by from and to state.",
	},
	[]string{"from", "to"},
)

func init() {
	prometheus.MustRegister(transitionsTotal)
}
