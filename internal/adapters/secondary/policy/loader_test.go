package policy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validPolicyYAML = `
default_action: false
rules:
  - spiffe_id: "spiffe://example.org/service/client"
    protocol: "http"
    method: "regex:^GET .*"
    allow: true
  - spiffe_id: "*"
    protocol: "*"
    method: "*"
    allow: false
`

func writeTempPolicy(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestFileSource_LoadCompilesRulesInOrder(t *testing.T) {
	dir := t.TempDir()
	path := writeTempPolicy(t, dir, "policy.yaml", validPolicyYAML)

	compiled, err := NewFileSource(path).Load()
	require.NoError(t, err)

	assert.True(t, compiled.Allow("spiffe://example.org/service/client", "http", "GET /health"))
	assert.False(t, compiled.Allow("spiffe://example.org/service/client", "http", "POST /health"))
	assert.False(t, compiled.Allow("spiffe://example.org/service/other", "http", "GET /health"))
}

func TestFileSource_LoadRejectsInvalidRegex(t *testing.T) {
	dir := t.TempDir()
	path := writeTempPolicy(t, dir, "policy.yaml", `
default_action: false
rules:
  - spiffe_id: "regex:("
    allow: true
`)

	_, err := NewFileSource(path).Load()
	assert.Error(t, err)
}

func TestFileSource_LoadRejectsMissingFile(t *testing.T) {
	_, err := NewFileSource("/nonexistent/policy.yaml").Load()
	assert.Error(t, err)
}

func TestFileSource_EmptyRulesFallsBackToDefaultAction(t *testing.T) {
	dir := t.TempDir()
	path := writeTempPolicy(t, dir, "policy.yaml", "default_action: true\n")

	compiled, err := NewFileSource(path).Load()
	require.NoError(t, err)
	assert.True(t, compiled.Allow("anything", "tcp", "anything"))
}

func TestLoadPolicyDir_LoadsEachTenantIndependently(t *testing.T) {
	dir := t.TempDir()
	writeTempPolicy(t, dir, "checkout.yaml", validPolicyYAML)
	writeTempPolicy(t, dir, "billing.yml", "default_action: true\n")
	writeTempPolicy(t, dir, "README.md", "not a policy file")

	policies, err := LoadPolicyDir(dir)
	require.NoError(t, err)
	require.Len(t, policies, 2)

	assert.True(t, policies["checkout"].Allow("spiffe://example.org/service/client", "http", "GET /health"))
	assert.True(t, policies["billing"].Allow("anyone", "tcp", "anything"))
}

func TestLoadPolicyDir_FailsOnMissingDirectory(t *testing.T) {
	_, err := LoadPolicyDir("/nonexistent/policy-dir")
	assert.Error(t, err)
}
