package caremall

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	connectAttemptsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "caremall_ws_connect_attempts_total",
			Help: "Realtime connection attempts, including reconnects.",
		},
	)

	connectedGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "caremall_ws_connected",
			Help: "1 while the realtime connection is established.",
		},
	)

	messagesSentTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "caremall_messages_sent_total",
			Help: "Chat sends attempted, counted at optimistic insert.",
		},
	)

	messagesConfirmedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "caremall_messages_confirmed_total",
			Help: "Chat sends acknowledged by the server.",
		},
	)

	messagesFailedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "caremall_messages_failed_total",
			Help: "Chat sends rolled back after rejection, timeout, or disconnect.",
		},
	)

	messagesReceivedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "caremall_messages_received_total",
			Help: "Inbound chat messages applied to the conversation store.",
		},
	)

	eventsDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "caremall_events_dropped_total",
			Help: "Inbound events discarded before dispatch.",
		},
		[]string{"reason"},
	)

	notificationsReceivedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "caremall_notifications_received_total",
			Help: "Notifications pushed over the realtime connection.",
		},
	)

	notificationsUnreadGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "caremall_notifications_unread",
			Help: "Current unread notification count.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		connectAttemptsTotal,
		connectedGauge,
		messagesSentTotal,
		messagesConfirmedTotal,
		messagesFailedTotal,
		messagesReceivedTotal,
		eventsDroppedTotal,
		notificationsReceivedTotal,
		notificationsUnreadGauge,
	)
}

func incConnectAttempt() { connectAttemptsTotal.Inc() }

func setConnected(up bool) {
	if up {
		connectedGauge.Set(1)
	} else {
		connectedGauge.Set(0)
	}
}

func incMessageSent()      { messagesSentTotal.Inc() }
func incMessageConfirmed() { messagesConfirmedTotal.Inc() }
func incMessageFailed()    { messagesFailedTotal.Inc() }
func incMessageReceived()  { messagesReceivedTotal.Inc() }

func incEventDropped(reason string) { eventsDroppedTotal.WithLabelValues(reason).Inc() }

func incNotificationReceived() { notificationsReceivedTotal.Inc() }

func setUnread(n int) { notificationsUnreadGauge.Set(float64(n)) }
