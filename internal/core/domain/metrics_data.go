package domain

import "time"

// ewmaAlpha is the smoothing factor for avg_request_time_ms. A higher
// value weights recent samples more heavily; 0.2 matches the teacher's
// health_monitor exponential-smoothing precedent for latency gauges.
const ewmaAlpha = 0.2

// MetricsData is an in-process value of the C11 counters: monotonic
// counters, point-in-time gauges, and an exponentially averaged request
// latency. It is not safe for concurrent use; callers serialize access.
// The Prometheus MetricsReporter in this module keeps its own counters
// and does not use this type.
type MetricsData struct {
	TotalRequests          uint64
	SuccessfulRequests     uint64
	FailedRequests         uint64
	RejectedRequests       uint64
	ClientConnections      uint64
	UpstreamConnections    uint64
	PQCConnections         uint64
	UpstreamSentBytes      uint64
	UpstreamReceivedBytes  uint64
	ActiveConnections      int64
	AvgRequestTimeMillis   float64
	LastUpdatedAt          time.Time
}

// RecordRequestDuration folds a new sample into the EWMA average. While
// TotalRequests is still zero the sample seeds the average directly
// rather than blending against a zero-valued starting point; this method
// does not change TotalRequests itself.
func (m *MetricsData) RecordRequestDuration(d time.Duration, now time.Time) {
	ms := float64(d.Microseconds()) / 1000.0
	if m.TotalRequests == 0 {
		m.AvgRequestTimeMillis = ms
	} else {
		m.AvgRequestTimeMillis = ewmaAlpha*ms + (1-ewmaAlpha)*m.AvgRequestTimeMillis
	}
	m.LastUpdatedAt = now
}

// IsStale reports whether LastUpdatedAt is older than maxAge, the signal
// a health check uses to detect a wedged metrics pipeline.
func (m *MetricsData) IsStale(now time.Time, maxAge time.Duration) bool {
	if m.LastUpdatedAt.IsZero() {
		return false
	}
	return now.Sub(m.LastUpdatedAt) > maxAge
}
