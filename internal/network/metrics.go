package network

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/compose-network/msgstream/metrics"
)

// Metrics holds all transport-level metrics
type Metrics struct {
	registry *metrics.ComponentRegistry

	// Connection management
	ConnectionsTotal   *prometheus.CounterVec
	ConnectionsActive  prometheus.Gauge
	ConnectionDuration prometheus.Histogram

	// Message I/O
	MessagesTotal    *prometheus.CounterVec
	MessageSizeBytes *prometheus.HistogramVec

	// Flow control
	CreditGrantedTotal prometheus.Counter
	PendingMessages    prometheus.Gauge
	MessagesDelivered  prometheus.Counter

	// Errors
	StreamClosuresTotal *prometheus.CounterVec
	ErrorsTotal         *prometheus.CounterVec
}

// NewMetrics creates transport metrics
func NewMetrics() *Metrics {
	return newMetrics(metrics.NewComponentRegistry("msgstream", "network"))
}

// NewMetricsWith creates transport metrics against a caller-supplied registerer.
// Used by tests to avoid default-registry collisions.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	return newMetrics(metrics.NewComponentRegistryWith("msgstream", "network", reg))
}

func newMetrics(reg *metrics.ComponentRegistry) *Metrics {
	return &Metrics{
		registry: reg,

		ConnectionsTotal: reg.NewCounterVec(prometheus.CounterOpts{
			Name: "connections_total",
			Help: "Total number of network connections",
		}, []string{"state"}),

		ConnectionsActive: reg.NewGauge(prometheus.GaugeOpts{
			Name: "connections_active",
			Help: "Number of active network connections",
		}),

		ConnectionDuration: reg.NewHistogram(prometheus.HistogramOpts{
			Name:    "connection_duration_seconds",
			Help:    "Duration of network connections",
			Buckets: metrics.NetworkBuckets,
		}),

		MessagesTotal: reg.NewCounterVec(prometheus.CounterOpts{
			Name: "messages_total",
			Help: "Total number of messages by encoding and direction",
		}, []string{"encoding", "direction"}),

		MessageSizeBytes: reg.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "message_size_bytes",
			Help:    "Size of messages in bytes",
			Buckets: metrics.SizeBuckets,
		}, []string{"encoding", "direction"}),

		CreditGrantedTotal: reg.NewCounter(prometheus.CounterOpts{
			Name: "credit_granted_total",
			Help: "Total receive credit granted across streams",
		}),

		PendingMessages: reg.NewGauge(prometheus.GaugeOpts{
			Name: "pending_messages",
			Help: "Messages buffered awaiting receive credit",
		}),

		MessagesDelivered: reg.NewCounter(prometheus.CounterOpts{
			Name: "messages_delivered_total",
			Help: "Messages handed to stream listeners",
		}),

		StreamClosuresTotal: reg.NewCounterVec(prometheus.CounterOpts{
			Name: "stream_closures_total",
			Help: "Stream closures by outcome",
		}, []string{"outcome"}),

		ErrorsTotal: reg.NewCounterVec(prometheus.CounterOpts{
			Name: "errors_total",
			Help: "Total number of network errors",
		}, []string{"type", "operation"}),
	}
}

// RecordConnection records a network connection event
func (m *Metrics) RecordConnection(state string) {
	m.ConnectionsTotal.WithLabelValues(state).Inc()

	switch state {
	case "accepted", "dialed":
		m.ConnectionsActive.Inc()
	case "closed":
		m.ConnectionsActive.Dec()
	default:
	}
}

// RecordConnectionDuration records the duration of a network connection
func (m *Metrics) RecordConnectionDuration(duration time.Duration) {
	m.ConnectionDuration.Observe(duration.Seconds())
}

// RecordError records a network error
func (m *Metrics) RecordError(errorType, operation string) {
	m.ErrorsTotal.WithLabelValues(errorType, operation).Inc()
}

// StreamStats adapts Metrics to the per-stream measurement hooks.
type StreamStats struct {
	m *Metrics
}

// NewStreamStats returns measurement hooks backed by m.
func NewStreamStats(m *Metrics) *StreamStats {
	return &StreamStats{m: m}
}

func (s *StreamStats) MessageSent(encoding string, sizeBytes int) {
	s.m.MessagesTotal.WithLabelValues(encoding, "sent").Inc()
	s.m.MessageSizeBytes.WithLabelValues(encoding, "sent").Observe(float64(sizeBytes))
}

func (s *StreamStats) MessageReceived(encoding string, sizeBytes int) {
	s.m.MessagesTotal.WithLabelValues(encoding, "received").Inc()
	s.m.MessageSizeBytes.WithLabelValues(encoding, "received").Observe(float64(sizeBytes))
}

func (s *StreamStats) MessageDelivered() {
	s.m.MessagesDelivered.Inc()
}

func (s *StreamStats) CreditGranted(n int) {
	s.m.CreditGrantedTotal.Add(float64(n))
}

func (s *StreamStats) PendingDepth(depth int) {
	s.m.PendingMessages.Set(float64(depth))
}

func (s *StreamStats) StreamClosed(err error) {
	outcome := "clean"
	if err != nil {
		outcome = "error"
	}
	s.m.StreamClosuresTotal.WithLabelValues(outcome).Inc()
}
