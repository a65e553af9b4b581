package admin

import "github.com/prometheus/client_golang/prometheus"

var actionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "admin_actions_total",
		Help: "Admin override actions recorded, by action type.",
	},
	[]string{"type"},
)

func init() {
	prometheus.MustRegister(actionsTotal)
}
