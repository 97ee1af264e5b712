package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusCollector implements the Collector interface using Prometheus metrics.
type PrometheusCollector struct {
	// Connection metrics
	connectionsTotal   prometheus.Counter
	connectionsActive  prometheus.Gauge
	tlsConnectionTotal prometheus.Counter

	// Protocol detection metrics
	protocolDetectedTotal *prometheus.CounterVec

	// Handshake metrics
	handshakesTotal *prometheus.CounterVec

	// Dispatch metrics
	dispatchedTotal *prometheus.CounterVec

	// Mailbox metrics
	mailboxAppendedBytes prometheus.Histogram
	mailboxDepth         *prometheus.GaugeVec
}

// NewPrometheusCollector creates a new PrometheusCollector with all metrics registered.
func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	c := &PrometheusCollector{
		connectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dim_station_connections_total",
			Help: "Total number of connections opened.",
		}),
		connectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dim_station_connections_active",
			Help: "Number of currently active connections.",
		}),
		tlsConnectionTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dim_station_tls_connections_total",
			Help: "Total number of TLS connections established.",
		}),

		protocolDetectedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dim_station_protocol_detected_total",
			Help: "Total number of connections by auto-detected wire protocol.",
		}, []string{"kind"}),

		handshakesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dim_station_handshakes_total",
			Help: "Total number of session handshakes by outcome.",
		}, []string{"result"}),

		dispatchedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dim_station_dispatched_total",
			Help: "Total number of envelopes dispatched by outcome.",
		}, []string{"status"}),

		mailboxAppendedBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "dim_station_mailbox_appended_bytes",
			Help:    "Size of records appended to a mailbox, in bytes.",
			Buckets: []float64{64, 256, 1024, 4096, 16384, 65536, 262144},
		}),
		mailboxDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "dim_station_mailbox_depth",
			Help: "Number of undelivered records observed in an identity's mailbox.",
		}, []string{"identity"}),
	}

	reg.MustRegister(
		c.connectionsTotal,
		c.connectionsActive,
		c.tlsConnectionTotal,
		c.protocolDetectedTotal,
		c.handshakesTotal,
		c.dispatchedTotal,
		c.mailboxAppendedBytes,
		c.mailboxDepth,
	)

	return c
}

// ConnectionOpened increments the connection counter and active gauge.
func (c *PrometheusCollector) ConnectionOpened() {
	c.connectionsTotal.Inc()
	c.connectionsActive.Inc()
}

// ConnectionClosed decrements the active connections gauge.
func (c *PrometheusCollector) ConnectionClosed() {
	c.connectionsActive.Dec()
}

// TLSConnectionEstablished increments the TLS connection counter.
func (c *PrometheusCollector) TLSConnectionEstablished() {
	c.tlsConnectionTotal.Inc()
}

// ProtocolDetected increments the per-kind protocol-detection counter.
func (c *PrometheusCollector) ProtocolDetected(kind string) {
	c.protocolDetectedTotal.WithLabelValues(kind).Inc()
}

// HandshakeCompleted increments the handshake outcome counter.
func (c *PrometheusCollector) HandshakeCompleted(success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	c.handshakesTotal.WithLabelValues(result).Inc()
}

// MessageDispatched increments the dispatch outcome counter.
func (c *PrometheusCollector) MessageDispatched(status string) {
	c.dispatchedTotal.WithLabelValues(status).Inc()
}

// MailboxAppended observes the size of an appended mailbox record.
func (c *PrometheusCollector) MailboxAppended(sizeBytes int64) {
	c.mailboxAppendedBytes.Observe(float64(sizeBytes))
}

// MailboxDepthObserved sets the depth gauge for one identity's mailbox.
func (c *PrometheusCollector) MailboxDepthObserved(identity string, depth int) {
	c.mailboxDepth.WithLabelValues(identity).Set(float64(depth))
}
