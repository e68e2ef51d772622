// internal/messaging/metrics.go

package messaging

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	messagesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "linkup_messages_sent_total",
		Help: "Total messages sent, by content type",
	}, []string{"type"})

	conversationsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "linkup_conversations_created_total",
		Help: "Total direct conversations created",
	})

	connectedClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "linkup_websocket_clients",
		Help: "Currently connected websocket clients",
	})

	eventsDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "linkup_websocket_events_delivered_total",
		Help: "Realtime events delivered to clients, by event name",
	}, []string{"event"})
)
