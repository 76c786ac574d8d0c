package collab

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metrics holds the Prometheus collectors for the collaboration core.
type metrics struct {
	activeConnections prometheus.Gauge
	activeRooms       prometheus.Gauge
	inboundEvents     *prometheus.CounterVec
	rejectedEvents    *prometheus.CounterVec
	fanoutSent        prometheus.Counter
	fanoutDropped     prometheus.Counter
}

// newMetrics registers the collaboration metrics with the given registry.
func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)

	return &metrics{
		activeConnections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "pairpad",
			Subsystem: "collab",
			Name:      "active_connections",
			Help:      "Number of live collaboration connections",
		}),
		activeRooms: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "pairpad",
			Subsystem: "collab",
			Name:      "active_rooms",
			Help:      "Number of rooms with at least one member",
		}),
		inboundEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pairpad",
			Subsystem: "collab",
			Name:      "inbound_events_total",
			Help:      "Inbound protocol events processed, by type",
		}, []string{"type"}),
		rejectedEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pairpad",
			Subsystem: "collab",
			Name:      "rejected_events_total",
			Help:      "Inbound events rejected with an error reply, by reason",
		}, []string{"reason"}),
		fanoutSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "pairpad",
			Subsystem: "collab",
			Name:      "fanout_sent_total",
			Help:      "Outbound events enqueued to recipients",
		}),
		fanoutDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "pairpad",
			Subsystem: "collab",
			Name:      "fanout_dropped_total",
			Help:      "Outbound events dropped because a recipient send failed",
		}),
	}
}

// Rejection reasons for rejected_events_total.
const (
	rejectMalformed = "malformed"
	rejectNotMember = "not_member"
	rejectUnknown   = "unknown_type"
)
