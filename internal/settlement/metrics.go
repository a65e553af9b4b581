package settlement

import "github.com/prometheus/client_golang/prometheus"

var (
	jobRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settlement_job_runs_total",
			Help: "Settlement sweep runs, by job and outcome.",
		},
		[]string{"job", "outcome"},
	)

	jobItemsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settlement_job_items_total",
			Help: "Orders processed by settlement sweeps, by job.",
		},
		[]string{"job"},
	)
)

func init() {
	prometheus.MustRegister(jobRunsTotal, jobItemsTotal)
}
