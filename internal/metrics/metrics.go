package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	MessagesScheduled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "messages_scheduled_total",
			Help: "Total scheduled message rows created by the materializer",
		},
	)

	MessagesSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "messages_sent_total",
			Help: "Total messages delivered successfully",
		},
	)

	DeliveryFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "delivery_failures_total",
			Help: "Total transient delivery failures (row returned to pending)",
		},
	)

	DeadLettered = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dead_lettered_total",
			Help: "Total messages escalated to the dead letter queue",
		},
	)

	StaleRequeues = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "stale_requeues_total",
			Help: "Total sending rows recovered by the reaper",
		},
	)
)

func Init() {
	prometheus.MustRegister(MessagesScheduled)
	prometheus.MustRegister(MessagesSent)
	prometheus.MustRegister(DeliveryFailures)
	prometheus.MustRegister(DeadLettered)
	prometheus.MustRegister(StaleRequeues)
}
