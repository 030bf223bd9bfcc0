package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(webhookEventsTotal) }

var webhookEventsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "webhook_events_total",
		Help: "Gateway callbacks by reconciliation result (applied/noop/unknown_invoice/unknown_status/bad_signature).",
	},
	[]string{"result"},
)

func IncWebhookEvent(result string) {
	webhookEventsTotal.WithLabelValues(norm(result)).Inc()
}
