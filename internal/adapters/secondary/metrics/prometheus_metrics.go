// Package metrics provides a Prometheus-based implementation of
// ports.MetricsReporter (C11).
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/pqsecure/mesh/internal/core/ports"
)

var (
	requestsCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pqsecure_requests_total",
		Help: "Total number of requests by outcome",
	}, []string{"outcome"}) // outcome: successful, failed, rejected

	requestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pqsecure_request_duration_milliseconds",
		Help:    "Distribution of forwarded request durations",
		Buckets: prometheus.DefBuckets,
	})

	handshakeCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pqsecure_handshakes_total",
		Help: "Total number of TLS handshakes by outcome and PQC negotiation",
	}, []string{"outcome", "pqc"}) // outcome: success, failure; pqc: true, false

	policyDecisionCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pqsecure_policy_decisions_total",
		Help: "Total number of policy engine allow/deny decisions",
	}, []string{"decision"}) // decision: allow, deny

	upstreamSentBytesCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pqsecure_upstream_sent_bytes_total",
		Help: "Total bytes forwarded from client to upstream",
	})

	upstreamReceivedBytesCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pqsecure_upstream_received_bytes_total",
		Help: "Total bytes forwarded from upstream to client",
	})

	activeConnectionsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pqsecure_active_connections",
		Help: "Current number of active client connections",
	})

	clientConnectionsCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pqsecure_client_connections_total",
		Help: "Total number of accepted client connections",
	})

	clientDisconnectionsCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pqsecure_client_disconnections_total",
		Help: "Total number of connection tasks torn down at a suspension point",
	})
)

// PrometheusMetrics implements ports.MetricsReporter using Prometheus.
type PrometheusMetrics struct{}

// NewPrometheusMetrics constructs a Prometheus-backed metrics reporter.
func NewPrometheusMetrics() ports.MetricsReporter {
	return &PrometheusMetrics{}
}

var _ ports.MetricsReporter = (*PrometheusMetrics)(nil)

func (m *PrometheusMetrics) IncRequests(outcome ports.RequestOutcome) {
	switch outcome {
	case ports.RequestSuccessful:
		requestsCounter.WithLabelValues("successful").Inc()
	case ports.RequestFailed:
		requestsCounter.WithLabelValues("failed").Inc()
	case ports.RequestRejected:
		requestsCounter.WithLabelValues("rejected").Inc()
	}
}

func (m *PrometheusMetrics) ObserveRequestDuration(d time.Duration) {
	requestDuration.Observe(float64(d.Microseconds()) / 1000.0)
}

func (m *PrometheusMetrics) IncHandshake(success bool, pqcNegotiated bool) {
	outcome := "failure"
	if success {
		outcome = "success"
	}
	pqc := "false"
	if pqcNegotiated {
		pqc = "true"
	}
	handshakeCounter.WithLabelValues(outcome, pqc).Inc()
}

func (m *PrometheusMetrics) IncPolicyDecision(allowed bool) {
	decision := "deny"
	if allowed {
		decision = "allow"
	}
	policyDecisionCounter.WithLabelValues(decision).Inc()
}

func (m *PrometheusMetrics) AddTransferBytes(sentToUpstream, receivedFromUpstream uint64) {
	upstreamSentBytesCounter.Add(float64(sentToUpstream))
	upstreamReceivedBytesCounter.Add(float64(receivedFromUpstream))
}

func (m *PrometheusMetrics) SetActiveConnections(n int64) {
	activeConnectionsGauge.Set(float64(n))
}

func (m *PrometheusMetrics) IncClientConnections() {
	clientConnectionsCounter.Inc()
}

func (m *PrometheusMetrics) IncClientDisconnections() {
	clientDisconnectionsCounter.Inc()
}
