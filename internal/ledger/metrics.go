package ledger

import "github.com/prometheus/client_golang/prometheus"

var (
	entriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wallet_ledger_entries_total",
			Help: "Ledger entries appended, by entry type.",
		},
		[]string{"type"},
	)

	rejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wallet_ledger_rejections_total",
			Help: "Ledger appends rejected, by error code.",
		},
		[]string{"code"},
	)
)

func init() {
	prometheus.MustRegister(entriesTotal, rejectionsTotal)
}
