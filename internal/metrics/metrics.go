package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	EventsPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskman_events_published_total",
			Help: "Total number of domain events published, by topic.",
		},
		[]string{"topic"},
	)

	EventsConsumedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskman_events_consumed_total",
			Help: "Total number of domain events consumed, by topic and channel.",
		},
		[]string{"topic", "channel"},
	)

	ConsumeErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskman_consume_errors_total",
			Help: "Total number of consumer handler failures, by topic and channel.",
		},
		[]string{"topic", "channel"},
	)

	NotificationsCreatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskman_notifications_created_total",
			Help: "Total number of notifications persisted, by type.",
		},
		[]string{"type"},
	)

	NotificationsPushedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskman_notifications_pushed_total",
			Help: "Total number of live pushes attempted, by outcome.",
		},
		[]string{"outcome"}, // delivered, no_channel, failed
	)

	SweepRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskman_sweep_runs_total",
			Help: "Total number of deadline sweep runs, by service.",
		},
		[]string{"service"},
	)

	SweepEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskman_sweep_events_total",
			Help: "Total number of sweep events emitted, by service and kind.",
		},
		[]string{"service", "kind"}, // kind: overdue, approaching
	)

	SweepItemErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskman_sweep_item_errors_total",
			Help: "Total number of per-item sweep failures, by service.",
		},
		[]string{"service"},
	)

	LiveStreams = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "taskman_live_streams",
			Help: "Number of currently open live delivery channels.",
		},
	)

	RecipientLookupSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "taskman_recipient_lookup_seconds",
			Help:    "Latency of cross-service recipient resolution calls.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"target", "outcome"},
	)
)

func MustRegister(reg *prometheus.Registry) {
	reg.MustRegister(
		EventsPublishedTotal,
		EventsConsumedTotal,
		ConsumeErrorsTotal,
		NotificationsCreatedTotal,
		NotificationsPushedTotal,
		SweepRunsTotal,
		SweepEventsTotal,
		SweepItemErrorsTotal,
		LiveStreams,
		RecipientLookupSeconds,
	)
}

// RecordEventPublished increments the published counter for a topic.
func RecordEventPublished(topic string) {
	EventsPublishedTotal.WithLabelValues(topic).Inc()
}

// RecordEventConsumed increments the consumed counter for a topic/channel pair.
func RecordEventConsumed(topic, channel string) {
	EventsConsumedTotal.WithLabelValues(topic, channel).Inc()
}

// RecordConsumeError increments the handler-failure counter.
func RecordConsumeError(topic, channel string) {
	ConsumeErrorsTotal.WithLabelValues(topic, channel).Inc()
}

// RecordNotificationCreated increments the persisted-notification counter.
func RecordNotificationCreated(notificationType string) {
	NotificationsCreatedTotal.WithLabelValues(notificationType).Inc()
}

// RecordPush records one live delivery attempt.
func RecordPush(outcome string) {
	NotificationsPushedTotal.WithLabelValues(outcome).Inc()
}

// RecordSweepRun records one sweep pass for a service.
func RecordSweepRun(service string) {
	SweepRunsTotal.WithLabelValues(service).Inc()
}

// RecordSweepEvent records one emitted sweep event.
func RecordSweepEvent(service, kind string) {
	SweepEventsTotal.WithLabelValues(service, kind).Inc()
}

// RecordSweepItemError records one isolated per-item sweep failure.
func RecordSweepItemError(service string) {
	SweepItemErrorsTotal.WithLabelValues(service).Inc()
}

// RecordRecipientLookup records the latency of one resolution call.
func RecordRecipientLookup(target, outcome string, seconds float64) {
	RecipientLookupSeconds.WithLabelValues(target, outcome).Observe(seconds)
}
