package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(notificationsTotal) }

var notificationsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "notifications_total",
		Help: "Outbound notification events by kind and outcome (queued/sent/failed/dropped).",
	},
	[]string{"kind", "outcome"},
)

func IncNotification(kind, outcome string) {
	notificationsTotal.WithLabelValues(norm(kind), norm(outcome)).Inc()
}
