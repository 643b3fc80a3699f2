package application

import "github.com/prometheus/client_golang/prometheus"

const (
	reasonQueueFull = "queue_full"
	reasonClosed    = "closed"
)

// Metrics are the application layer's prometheus collectors. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	connections prometheus.Gauge
	dropped     *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "someipd",
			Subsystem: "application",
			Name:      "connections",
			Help:      "Connected local applications.",
		}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "someipd",
			Subsystem: "application",
			Name:      "queue_drops_total",
			Help:      "Packets and notices not queued for an application, by reason.",
		}, []string{"reason"}),
	}
	if reg != nil {
		reg.MustRegister(m.connections, m.dropped)
	}
	return m
}

func (m *Metrics) connected(delta float64) {
	if m == nil {
		return
	}
	m.connections.Add(delta)
}

func (m *Metrics) drop(reason string) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(reason).Inc()
}
