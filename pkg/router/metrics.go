package router

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/flankersky/vector-ap-bsw-sub007/pkg/someip"
)

// Drop reasons used as metric labels and trace reasons.
const (
	ReasonNoRoute         = "no_route"
	ReasonNoResponseRoute = "no_response_route"
	ReasonNoSubscriber    = "no_subscriber"
	ReasonProtocolVersion = "wrong_protocol_version"
	ReasonMessageType     = "unknown_message_type"
	ReasonSinkGone        = "sink_gone"
)

// Metrics are the router's prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	forwarded     *prometheus.CounterVec
	dropped       *prometheus.CounterVec
	fieldUpdates  prometheus.Counter
	initialEvents prometheus.Counter
}

// NewMetrics creates the router collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		forwarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "someipd",
			Subsystem: "router",
			Name:      "packets_forwarded_total",
			Help:      "Packets delivered to a sink, by message type.",
		}, []string{"message_type"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "someipd",
			Subsystem: "router",
			Name:      "packets_dropped_total",
			Help:      "Packets not delivered to any sink, by message type and reason.",
		}, []string{"message_type", "reason"}),
		fieldUpdates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "someipd",
			Subsystem: "router",
			Name:      "field_cache_updates_total",
			Help:      "Field notifications stored in the field cache.",
		}),
		initialEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "someipd",
			Subsystem: "router",
			Name:      "initial_events_sent_total",
			Help:      "Cached field values sent to new subscribers.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.forwarded, m.dropped, m.fieldUpdates, m.initialEvents)
	}
	return m
}

func (m *Metrics) forward(t someip.MessageType, n int) {
	if m == nil || n == 0 {
		return
	}
	m.forwarded.WithLabelValues(t.String()).Add(float64(n))
}

func (m *Metrics) drop(t someip.MessageType, reason string) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(t.String(), reason).Inc()
}

func (m *Metrics) fieldUpdate() {
	if m == nil {
		return
	}
	m.fieldUpdates.Inc()
}

func (m *Metrics) initialEvent() {
	if m == nil {
		return
	}
	m.initialEvents.Inc()
}
