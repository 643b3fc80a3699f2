package sd

import "github.com/prometheus/client_golang/prometheus"

// Metrics are the SD client's prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	sent        *prometheus.CounterVec
	received    *prometheus.CounterVec
	transitions *prometheus.CounterVec
	available   prometheus.Gauge
	subscribed  prometheus.Gauge
}

// NewMetrics creates the SD collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		sent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "someipd",
			Subsystem: "sd",
			Name:      "entries_sent_total",
			Help:      "SD entries handed to the transmitter, by entry type.",
		}, []string{"type"}),
		received: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "someipd",
			Subsystem: "sd",
			Name:      "entries_received_total",
			Help:      "SD entries dispatched to the client, by entry type.",
		}, []string{"type"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "someipd",
			Subsystem: "sd",
			Name:      "state_transitions_total",
			Help:      "State machine transitions, by machine and target state.",
		}, []string{"machine", "state"}),
		available: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "someipd",
			Subsystem: "sd",
			Name:      "services_available",
			Help:      "Required service instances currently offered.",
		}),
		subscribed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "someipd",
			Subsystem: "sd",
			Name:      "eventgroups_subscribed",
			Help:      "Eventgroups currently subscribed.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.sent, m.received, m.transitions, m.available, m.subscribed)
	}
	return m
}

func (m *Metrics) entrySent(t EntryType) {
	if m == nil {
		return
	}
	m.sent.WithLabelValues(t.String()).Inc()
}

func (m *Metrics) entryReceived(t EntryType) {
	if m == nil {
		return
	}
	m.received.WithLabelValues(t.String()).Inc()
}

func (m *Metrics) transition(machine, state string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(machine, state).Inc()
}

func (m *Metrics) availabilityChanged(available bool) {
	if m == nil {
		return
	}
	if available {
		m.available.Inc()
	} else {
		m.available.Dec()
	}
}

func (m *Metrics) subscriptionChanged(subscribed bool) {
	if m == nil {
		return
	}
	if subscribed {
		m.subscribed.Inc()
	} else {
		m.subscribed.Dec()
	}
}
