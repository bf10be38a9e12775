package engine

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/luciancaetano/kephasio/internal/protocol"
)

// MetricsConfig configures the Prometheus collectors of a client.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "kephasio").
	Namespace string

	// Subsystem is the metrics subsystem (default: "client").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// metrics holds the collectors. A nil *metrics records nothing.
type metrics struct {
	packetsSent       *prometheus.CounterVec
	packetsReceived   *prometheus.CounterVec
	decodeErrors      *prometheus.CounterVec
	sendErrors        *prometheus.CounterVec
	heartbeatsSent    prometheus.Counter
	pendingAcks       prometheus.Gauge
	handshakeDuration prometheus.Histogram
	state             prometheus.Gauge
}

func newMetrics(cfg *MetricsConfig) *metrics {
	if cfg == nil {
		return nil
	}
	c := *cfg
	if c.Namespace == "" {
		c.Namespace = "kephasio"
	}
	if c.Subsystem == "" {
		c.Subsystem = "client"
	}
	if c.Registry == nil {
		c.Registry = prometheus.DefaultRegisterer
	}

	return &metrics{
		packetsSent: register(c.Registry, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   c.Namespace,
			Subsystem:   c.Subsystem,
			Name:        "packets_sent_total",
			Help:        "Total number of Socket.IO packets written to the transport",
			ConstLabels: c.ConstLabels,
		}, []string{"type"})),

		packetsReceived: register(c.Registry, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   c.Namespace,
			Subsystem:   c.Subsystem,
			Name:        "packets_received_total",
			Help:        "Total number of Socket.IO packets decoded from the transport",
			ConstLabels: c.ConstLabels,
		}, []string{"type"})),

		decodeErrors: register(c.Registry, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   c.Namespace,
			Subsystem:   c.Subsystem,
			Name:        "decode_errors_total",
			Help:        "Total number of inbound messages dropped by the decoder",
			ConstLabels: c.ConstLabels,
		}, []string{"kind"})),

		sendErrors: register(c.Registry, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   c.Namespace,
			Subsystem:   c.Subsystem,
			Name:        "send_errors_total",
			Help:        "Total number of rejected or failed sends",
			ConstLabels: c.ConstLabels,
		}, []string{"reason"})),

		heartbeatsSent: register(c.Registry, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   c.Namespace,
			Subsystem:   c.Subsystem,
			Name:        "heartbeats_sent_total",
			Help:        "Total number of heartbeat packets sent",
			ConstLabels: c.ConstLabels,
		})),

		pendingAcks: register(c.Registry, prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   c.Namespace,
			Subsystem:   c.Subsystem,
			Name:        "pending_acks",
			Help:        "Number of outbound packets waiting for an acknowledgment",
			ConstLabels: c.ConstLabels,
		})),

		handshakeDuration: register(c.Registry, prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   c.Namespace,
			Subsystem:   c.Subsystem,
			Name:        "handshake_duration_seconds",
			Help:        "Handshake duration in seconds",
			ConstLabels: c.ConstLabels,
			Buckets:     prometheus.DefBuckets,
		})),

		state: register(c.Registry, prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   c.Namespace,
			Subsystem:   c.Subsystem,
			Name:        "connection_state",
			Help:        "Current connection state (0 disconnected, 1 connecting, 2 connected, 3 closing)",
			ConstLabels: c.ConstLabels,
		})),
	}
}

// register registers c, reusing an identical collector that is already
// registered so several clients can share one registry.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

func (m *metrics) sent(t protocol.PacketType) {
	if m == nil {
		return
	}
	m.packetsSent.WithLabelValues(typeLabel(t)).Inc()
	if t == protocol.Heartbeat {
		m.heartbeatsSent.Inc()
	}
}

func (m *metrics) received(t protocol.PacketType) {
	if m == nil {
		return
	}
	m.packetsReceived.WithLabelValues(typeLabel(t)).Inc()
}

// typeLabel folds every invalid packet type into one label value.
func typeLabel(t protocol.PacketType) string {
	if !t.Valid() {
		return "unknown"
	}
	return t.String()
}

func (m *metrics) decodeError(err error) {
	if m == nil {
		return
	}
	kind := "other"
	switch {
	case errors.Is(err, protocol.ErrNotSocketIO):
		kind = "not_socketio"
	case errors.Is(err, protocol.ErrJSONDecode):
		kind = "json"
	case errors.Is(err, protocol.ErrMalformedEvent):
		kind = "malformed_event"
	}
	m.decodeErrors.WithLabelValues(kind).Inc()
}

func (m *metrics) sendError(reason string) {
	if m == nil {
		return
	}
	m.sendErrors.WithLabelValues(reason).Inc()
}

func (m *metrics) acksPending(n int) {
	if m == nil {
		return
	}
	m.pendingAcks.Set(float64(n))
}

func (m *metrics) handshake(d time.Duration) {
	if m == nil {
		return
	}
	m.handshakeDuration.Observe(d.Seconds())
}

func (m *metrics) setState(s float64) {
	if m == nil {
		return
	}
	m.state.Set(s)
}
