// Package ports defines the interfaces the core domain consumes from the
// outside world: configuration, the CA client, the identity store, the
// policy source, and the metrics sink. The core never loads a file or
// dials a socket itself — it is handed an already-validated
// Configuration value by cmd/pqsecure-mesh.
package ports

// Configuration is the complete, validated configuration the core
// consumes. Loading and env-overlay happen in
// internal/adapters/secondary/config; the core only ever sees a value
// that has already passed Validate (struct tags enforced by
// go-playground/validator/v10 in the loader).
type Configuration struct {
	Service ServiceConfig `yaml:"service" validate:"required"`
	CA      CAConfig      `yaml:"ca" validate:"required"`
	Proxy   ProxyConfig   `yaml:"proxy" validate:"required"`
	Policy  PolicyConfig  `yaml:"policy" validate:"required"`
	Identity IdentityConfig `yaml:"identity" validate:"required"`
}

// ServiceConfig identifies the workload this sidecar fronts.
type ServiceConfig struct {
	Tenant      string `yaml:"tenant" validate:"required"`
	Name        string `yaml:"name" validate:"required"`
	TrustDomain string `yaml:"trust_domain" validate:"required"`
	DNSNames    []string `yaml:"dns_names,omitempty"`
	IPAddresses []string `yaml:"ip_addresses,omitempty"`
	RequestPQC  bool     `yaml:"request_pqc"`
}

// CAConfig points at the external certificate authority.
type CAConfig struct {
	APIURL           string `yaml:"api_url" validate:"required,url"`
	Token            string `yaml:"token" validate:"required"`
	RenewThresholdPct int   `yaml:"renew_threshold_pct" validate:"omitempty,gte=1,lte=99"`
}

// ProxyConfig holds the acceptor's listen address and the upstream it
// forwards to.
type ProxyConfig struct {
	ListenAddr     string        `yaml:"listen_addr" validate:"required"`
	Backend        BackendConfig `yaml:"backend" validate:"required"`
	TimeoutSeconds int           `yaml:"timeout_seconds" validate:"gte=1"`
	PeekTimeoutMillis int        `yaml:"peek_timeout_millis" validate:"gte=1"`
	EnablePQC      bool          `yaml:"enable_pqc"`
}

// BackendConfig is the local upstream the sidecar forwards allowed
// traffic to.
type BackendConfig struct {
	Address string `yaml:"address" validate:"required"`
}

// PolicyConfig points at the policy source. The serve command accepts
// only a single policy file here and rejects a directory; the
// per-tenant directory form is available as policy.LoadPolicyDir.
type PolicyConfig struct {
	Path string `yaml:"path" validate:"required"`
}

// IdentityConfig configures the on-disk identity store.
type IdentityConfig struct {
	Dir string `yaml:"dir" validate:"required"`
}

// DefaultRenewThresholdPct is the renewal trigger spec.md §4.4 names as
// the default when not configured explicitly.
const DefaultRenewThresholdPct = 20
