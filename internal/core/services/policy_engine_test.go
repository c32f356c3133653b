package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pqsecure/mesh/internal/core/domain"
)

type staticPolicySource struct {
	policy *domain.CompiledPolicy
	err    error
}

func (s *staticPolicySource) Load() (*domain.CompiledPolicy, error) {
	return s.policy, s.err
}

func TestPolicyEngine_AllowEvaluatesFirstMatchingRule(t *testing.T) {
	policy := domain.NewCompiledPolicy(false, []domain.CompiledRule{
		{
			SpiffeID: domain.ExactMatch("spiffe://example.org/service/client"),
			Protocol: domain.AnyMatch(),
			Method:   domain.AnyMatch(),
			Allow:    true,
		},
	})
	engine, err := NewPolicyEngine(&staticPolicySource{policy: policy}, nil)
	require.NoError(t, err)

	assert.True(t, engine.Allow("spiffe://example.org/service/client", "http", "GET /health"))
	assert.False(t, engine.Allow("spiffe://example.org/service/other", "http", "GET /health"))
}

func TestPolicyEngine_EmptyRulesFallBackToDefaultAction(t *testing.T) {
	denyByDefault, err := NewPolicyEngine(&staticPolicySource{policy: domain.NewCompiledPolicy(false, nil)}, nil)
	require.NoError(t, err)
	assert.False(t, denyByDefault.Allow("spiffe://example.org/x", "tcp", "connect"))

	allowByDefault, err := NewPolicyEngine(&staticPolicySource{policy: domain.NewCompiledPolicy(true, nil)}, nil)
	require.NoError(t, err)
	assert.True(t, allowByDefault.Allow("spiffe://example.org/x", "tcp", "connect"))
}

func TestPolicyEngine_ReloadKeepsPreviousSnapshotOnFailure(t *testing.T) {
	source := &staticPolicySource{policy: domain.NewCompiledPolicy(true, nil)}
	engine, err := NewPolicyEngine(source, nil)
	require.NoError(t, err)

	source.err = assert.AnError
	err = engine.Reload()
	assert.Error(t, err)
	assert.True(t, engine.Allow("spiffe://example.org/x", "tcp", "connect"))
}

func TestPolicyEngine_ConstructionFailsOnLoadError(t *testing.T) {
	_, err := NewPolicyEngine(&staticPolicySource{err: assert.AnError}, nil)
	assert.Error(t, err)
}
