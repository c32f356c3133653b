package ports

import "time"

// MetricsReporter is C11's contract: a process-wide, lock-free-under-
// contention counter table the core emits into. No export transport is
// specified here — an external exporter (Prometheus or otherwise)
// scrapes whatever a MetricsReporter implementation exposes.
type MetricsReporter interface {
	// IncRequests counts one request outcome.
	IncRequests(outcome RequestOutcome)
	// ObserveRequestDuration records one forwarded request's latency. The
	// Prometheus implementation observes it into a millisecond histogram;
	// it keeps no exponentially-averaged gauge.
	ObserveRequestDuration(d time.Duration)
	// IncHandshake counts one TLS handshake outcome, noting whether PQC
	// was negotiated.
	IncHandshake(success bool, pqcNegotiated bool)
	// IncPolicyDecision counts one policy-engine allow/deny decision.
	IncPolicyDecision(allowed bool)
	// AddTransferBytes adds to the upstream_sent_bytes /
	// upstream_received_bytes counters at connection termination.
	AddTransferBytes(sentToUpstream, receivedFromUpstream uint64)
	// SetActiveConnections sets the active_connections gauge.
	SetActiveConnections(n int64)
	// IncClientConnections counts one accepted client connection.
	IncClientConnections()
	// IncClientDisconnections counts one connection task torn down at a
	// suspension point, per spec.md §5's cancellation contract.
	IncClientDisconnections()
}

// RequestOutcome tags which request counter IncRequests increments.
type RequestOutcome int

const (
	RequestSuccessful RequestOutcome = iota
	RequestFailed
	RequestRejected
)
