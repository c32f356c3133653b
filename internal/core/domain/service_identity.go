package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// ServiceIdentity is an issued X.509/SPIFFE credential. Instances are
// never mutated after construction — rotation produces a new value, and
// revoke destroys the stored one — so a ServiceIdentity can be shared
// freely across goroutines.
type ServiceIdentity struct {
	SpiffeID           SpiffeId  `json:"-"`
	CertPEM            []byte    `json:"cert_pem"`
	KeyPEM             []byte    `json:"key_pem"`
	ChainPEM           []byte    `json:"chain_pem,omitempty"`
	Fingerprint        string    `json:"fingerprint"`
	IssuedAt           time.Time `json:"issued_at"`
	ExpiresAt          time.Time `json:"expires_at"`
	SignatureAlgorithm string    `json:"signature_algorithm"`
	IsPostQuantum      bool      `json:"is_post_quantum"`
}

// identityJSON is the on-the-wire shape used by MarshalJSON/UnmarshalJSON
// so that ServiceIdentity's unexported SpiffeId internals never leak into,
// or need to be reconstructed piecemeal from, the JSON document.
type identityJSON struct {
	URI                string    `json:"uri"`
	CertPEM            []byte    `json:"cert_pem"`
	KeyPEM             []byte    `json:"key_pem"`
	ChainPEM           []byte    `json:"chain_pem,omitempty"`
	Fingerprint        string    `json:"fingerprint"`
	IssuedAt           time.Time `json:"issued_at"`
	ExpiresAt          time.Time `json:"expires_at"`
	SignatureAlgorithm string    `json:"signature_algorithm"`
	IsPostQuantum      bool      `json:"is_post_quantum"`
}

// MarshalJSON implements json.Marshaler.
func (s ServiceIdentity) MarshalJSON() ([]byte, error) {
	return json.Marshal(identityJSON{
		URI:                s.SpiffeID.URI(),
		CertPEM:            s.CertPEM,
		KeyPEM:             s.KeyPEM,
		ChainPEM:           s.ChainPEM,
		Fingerprint:        s.Fingerprint,
		IssuedAt:           s.IssuedAt,
		ExpiresAt:          s.ExpiresAt,
		SignatureAlgorithm: s.SignatureAlgorithm,
		IsPostQuantum:      s.IsPostQuantum,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *ServiceIdentity) UnmarshalJSON(data []byte) error {
	var raw identityJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	id, err := ParseSpiffeID(raw.URI)
	if err != nil {
		return fmt.Errorf("stored identity has invalid SPIFFE URI: %w", err)
	}
	s.SpiffeID = id
	s.CertPEM = raw.CertPEM
	s.KeyPEM = raw.KeyPEM
	s.ChainPEM = raw.ChainPEM
	s.Fingerprint = raw.Fingerprint
	s.IssuedAt = raw.IssuedAt
	s.ExpiresAt = raw.ExpiresAt
	s.SignatureAlgorithm = raw.SignatureAlgorithm
	s.IsPostQuantum = raw.IsPostQuantum
	return nil
}

// Validate enforces the invariants of spec.md §3: issued_at < expires_at,
// and a non-zero SPIFFE identity.
func (s ServiceIdentity) Validate() error {
	if s.SpiffeID.IsZero() {
		return fmt.Errorf("service identity has no SPIFFE ID")
	}
	if !s.IssuedAt.Before(s.ExpiresAt) {
		return fmt.Errorf("issued_at (%s) must be before expires_at (%s)", s.IssuedAt, s.ExpiresAt)
	}
	return nil
}

// RemainingLifetimeFraction returns (expires_at - now) / (expires_at -
// issued_at), the quantity the identity service compares against the
// renew threshold.
func (s ServiceIdentity) RemainingLifetimeFraction(now time.Time) float64 {
	total := s.ExpiresAt.Sub(s.IssuedAt)
	if total <= 0 {
		return 0
	}
	remaining := s.ExpiresAt.Sub(now)
	if remaining <= 0 {
		return 0
	}
	return float64(remaining) / float64(total)
}

// LocalStatus computes IdentityStatus from now vs. IssuedAt/ExpiresAt
// alone; it never consults a CA.
func (s ServiceIdentity) LocalStatus(now time.Time) IdentityStatus {
	return localStatus(s.IssuedAt, s.ExpiresAt, now)
}
