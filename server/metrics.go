package server

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Close reasons recorded in misclib_reactor_closed_total.
const (
	reasonCallback    = "callback"
	reasonHangup      = "hangup"
	reasonError       = "error"
	reasonStop        = "stop"
	reasonShutdown    = "shutdown"
	reasonNonBlocking = "nonblocking"
)

// Metrics exposes reactor activity to Prometheus. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	accepted *prometheus.CounterVec
	closed   *prometheus.CounterVec
	retired  *prometheus.CounterVec
	clients  *prometheus.GaugeVec
	ready    prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		accepted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "misclib",
			Subsystem: "reactor",
			Name:      "accepted_total",
			Help:      "Connections accepted, by local port.",
		}, []string{"port"}),
		closed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "misclib",
			Subsystem: "reactor",
			Name:      "closed_total",
			Help:      "Client connections closed by the reactor, by local port and reason.",
		}, []string{"port", "reason"}),
		retired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "misclib",
			Subsystem: "reactor",
			Name:      "listeners_retired_total",
			Help:      "Listeners closed after a socket error.",
		}, []string{"port"}),
		clients: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "misclib",
			Subsystem: "reactor",
			Name:      "clients",
			Help:      "Clients currently attached, by local port.",
		}, []string{"port"}),
		ready: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "misclib",
			Subsystem: "reactor",
			Name:      "ready_events",
			Help:      "Descriptors reported ready per wait.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 8),
		}),
	}
	for _, c := range []prometheus.Collector{m.accepted, m.closed, m.retired, m.clients, m.ready} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func portLabel(port uint16) string {
	return strconv.Itoa(int(port))
}

func (m *Metrics) connAccepted(port uint16) {
	if m == nil {
		return
	}
	m.accepted.WithLabelValues(portLabel(port)).Inc()
}

func (m *Metrics) connClosed(port uint16, reason string) {
	if m == nil {
		return
	}
	m.closed.WithLabelValues(portLabel(port), reason).Inc()
}

func (m *Metrics) listenerRetired(port uint16) {
	if m == nil {
		return
	}
	m.retired.WithLabelValues(portLabel(port)).Inc()
}

func (m *Metrics) setClients(port uint16, n int) {
	if m == nil {
		return
	}
	m.clients.WithLabelValues(portLabel(port)).Set(float64(n))
}

func (m *Metrics) readyEvents(n int) {
	if m == nil {
		return
	}
	m.ready.Observe(float64(n))
}
