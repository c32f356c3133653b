package services

import (
	"log/slog"
	"sync/atomic"

	"github.com/pqsecure/mesh/internal/core/domain"
	"github.com/pqsecure/mesh/internal/core/ports"
)

// PolicyEngine is C10's runtime half: it holds the current compiled
// policy behind an atomic pointer so that Allow is pure and
// side-effect-free for any fixed snapshot, and Reload swaps to a new
// snapshot without blocking in-flight Allow calls.
type PolicyEngine struct {
	current atomic.Pointer[domain.CompiledPolicy]
	source  ports.PolicySource
	logger  *slog.Logger
}

// NewPolicyEngine loads source once; a load failure at construction is
// fatal, per spec.md §7.
func NewPolicyEngine(source ports.PolicySource, logger *slog.Logger) (*PolicyEngine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	e := &PolicyEngine{source: source, logger: logger}
	policy, err := source.Load()
	if err != nil {
		return nil, err
	}
	e.current.Store(policy)
	return e, nil
}

// Allow evaluates the current compiled policy against (spiffeID,
// protocol, method). protocol must already be lowercase, matching
// domain.Protocol.String().
func (e *PolicyEngine) Allow(spiffeID, protocol, method string) bool {
	return e.current.Load().Allow(spiffeID, protocol, method)
}

// Reload re-parses the policy source and atomically swaps the current
// snapshot. A failure leaves the previous compiled policy in place and
// is returned to the caller to surface via the metrics sink, per
// spec.md §7: a policy load error is fatal at startup but non-fatal on
// reload.
func (e *PolicyEngine) Reload() error {
	policy, err := e.source.Load()
	if err != nil {
		e.logger.Error("policy reload failed, keeping previous snapshot", "error", err)
		return err
	}
	e.current.Store(policy)
	e.logger.Info("policy reloaded")
	return nil
}
