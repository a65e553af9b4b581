package webhooks

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ptzlabs/marketplace/internal/idgen"
)

var deliveriesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "marketplace_webhook_deliveries_total",
		Help: "Outbound webhook deliveries by outcome",
	},
	[]string{"outcome"},
)

func init() {
	prometheus.MustRegister(deliveriesTotal)
}

func newEventID() string {
	return idgen.WithPrefix("evt_")
}
