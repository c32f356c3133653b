// Package services implements the core business logic for identity
// provisioning, rotation, and policy evaluation.
package services

import (
	"time"

	"github.com/pqsecure/mesh/internal/core/ports"
)

// NoOpMetrics implements ports.MetricsReporter with no-op methods, for
// when a concrete sink is not wired (tests, or a nil reporter passed to
// NewIdentityService).
type NoOpMetrics struct{}

func (NoOpMetrics) IncRequests(ports.RequestOutcome)              {}
func (NoOpMetrics) ObserveRequestDuration(time.Duration)          {}
func (NoOpMetrics) IncHandshake(success bool, pqcNegotiated bool) {}
func (NoOpMetrics) IncPolicyDecision(allowed bool)                {}
func (NoOpMetrics) AddTransferBytes(sent, received uint64)        {}
func (NoOpMetrics) SetActiveConnections(n int64)                  {}
func (NoOpMetrics) IncClientConnections()                         {}
func (NoOpMetrics) IncClientDisconnections()                      {}

var _ ports.MetricsReporter = NoOpMetrics{}
