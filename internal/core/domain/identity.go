// Package domain contains core business logic and domain models for the
// mesh's identity lifecycle, policy engine, and connection pipeline:
//
//   - SpiffeId / TrustDomain: SPIFFE identity value objects (C1)
//   - ServiceIdentity: an issued certificate plus its SPIFFE identity (C2-C4)
//   - IdentityStatus: the four-variant lifecycle state of an identity
//   - CompiledPolicy: the policy engine's compiled rule set (C10)
//   - ConnectionInfo: per-connection state threaded through the pipeline (C7-C9)
//
// The domain layer is independent of transport, storage and CA frameworks.
package domain

import "time"

// IdentityStatus is the lifecycle state of a ServiceIdentity, derived from
// the local clock plus an optional CA check. A CA result supersedes a
// locally valid state only to move it to Revoked — it never promotes a
// locally Expired identity back to Valid, and an Unknown CA result always
// preserves whatever the local clock already determined.
type IdentityStatus int

const (
	// StatusUnknown means neither the local clock nor the CA could
	// establish validity (e.g. the CA is unreachable and no local
	// identity exists).
	StatusUnknown IdentityStatus = iota
	// StatusValid means the identity is within its validity window and,
	// if checked, the CA did not report it revoked.
	StatusValid
	// StatusRevoked means the CA has confirmed revocation.
	StatusRevoked
	// StatusExpired means the local clock places now outside the
	// validity window: after expires_at, or before issued_at.
	StatusExpired
)

func (s IdentityStatus) String() string {
	switch s {
	case StatusValid:
		return "valid"
	case StatusRevoked:
		return "revoked"
	case StatusExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// IdentityRequest is the input consumed once by the identity service to
// provision or rotate a ServiceIdentity.
type IdentityRequest struct {
	ServiceName string
	Namespace   string
	DNSNames    []string
	IPAddresses []string
	RequestPQC  bool
	// ExternalCSR, when non-nil, is a caller-supplied PEM CSR used instead
	// of one generated locally.
	ExternalCSR []byte
}

// SpiffeURI returns the SPIFFE identity this request will carry, per
// spec.md §4.2: spiffe://<namespace>/<service_name>.
func (r IdentityRequest) SpiffeURI() string {
	return "spiffe://" + r.Namespace + "/" + r.ServiceName
}

// localStatus computes IdentityStatus from the wall clock alone, ignoring
// any CA check. It is exported as ServiceIdentity.LocalStatus in
// service_identity.go.
func localStatus(issuedAt, expiresAt time.Time, now time.Time) IdentityStatus {
	if now.After(expiresAt) {
		return StatusExpired
	}
	if now.Before(issuedAt) {
		return StatusExpired
	}
	return StatusValid
}
