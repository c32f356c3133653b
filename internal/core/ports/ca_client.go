package ports

import (
	"context"
	"time"

	"github.com/pqsecure/mesh/internal/core/domain"
)

// CAClient is C2: a blocking-async client for an external certificate
// authority's HTTP/JSON protocol. Retries and backoff are the caller's
// responsibility; a network error is always returned, never swallowed.
type CAClient interface {
	// RequestCertificate signs req and returns the issued credential.
	RequestCertificate(ctx context.Context, req domain.IdentityRequest) (*CertificateResponse, error)
	// RevokeCertificate revokes the certificate identified by
	// fingerprint. Idempotent: revoking an already-revoked fingerprint
	// returns success.
	RevokeCertificate(ctx context.Context, fingerprint string, reason RevocationReason) error
	// CheckStatus queries the CA for the current status of fingerprint.
	CheckStatus(ctx context.Context, fingerprint string) (CAStatus, error)
}

// CertificateResponse is what C2 hands back to the identity service
// after a successful sign.
type CertificateResponse struct {
	CertPEM            []byte
	KeyPEM             []byte
	ChainPEM           []byte
	Fingerprint        string
	SignatureAlgorithm string
	IsPostQuantum      bool
}

// CAStatusKind is the three-variant result of CheckStatus.
type CAStatusKind int

const (
	CAStatusUnknown CAStatusKind = iota
	CAStatusValid
	CAStatusRevoked
)

// CAStatus is the CA's answer to check_status: HTTP 200 maps to
// CAStatusValid, 404 to CAStatusUnknown, 410 to CAStatusRevoked with
// Reason/RevokedAt populated from the response body.
type CAStatus struct {
	Kind      CAStatusKind
	Reason    string
	RevokedAt time.Time
}

// RevocationReason mirrors the RFC 5280 CRLReason enumeration spec.md
// §4.2 requires: unknown reasons supplied by a caller map to
// ReasonUnspecified at the wire boundary.
type RevocationReason int

const (
	ReasonUnspecified RevocationReason = iota
	ReasonKeyCompromise
	ReasonCACompromise
	ReasonAffiliationChanged
	ReasonSuperseded
	ReasonCessationOfOperation
	ReasonCertificateHold
	ReasonRemoveFromCRL
	ReasonPrivilegeWithdrawn
	ReasonAACompromise
)

var revocationReasonCodes = map[RevocationReason]int{
	ReasonUnspecified:          0,
	ReasonKeyCompromise:        1,
	ReasonCACompromise:         2,
	ReasonAffiliationChanged:   3,
	ReasonSuperseded:           4,
	ReasonCessationOfOperation: 5,
	ReasonCertificateHold:      6,
	ReasonRemoveFromCRL:        8,
	ReasonPrivilegeWithdrawn:   9,
	ReasonAACompromise:         10,
}

var revocationReasonNames = map[RevocationReason]string{
	ReasonUnspecified:          "unspecified",
	ReasonKeyCompromise:        "keyCompromise",
	ReasonCACompromise:         "cACompromise",
	ReasonAffiliationChanged:   "affiliationChanged",
	ReasonSuperseded:           "superseded",
	ReasonCessationOfOperation: "cessationOfOperation",
	ReasonCertificateHold:      "certificateHold",
	ReasonRemoveFromCRL:        "removeFromCRL",
	ReasonPrivilegeWithdrawn:   "privilegeWithdrawn",
	ReasonAACompromise:         "aACompromise",
}

var nameToRevocationReason = func() map[string]RevocationReason {
	m := make(map[string]RevocationReason, len(revocationReasonNames))
	for reason, name := range revocationReasonNames {
		m[name] = reason
	}
	return m
}()

// Code returns the RFC 5280 numeric CRLReason code.
func (r RevocationReason) Code() int {
	if code, ok := revocationReasonCodes[r]; ok {
		return code
	}
	return revocationReasonCodes[ReasonUnspecified]
}

// String returns the reason's wire name.
func (r RevocationReason) String() string {
	if name, ok := revocationReasonNames[r]; ok {
		return name
	}
	return revocationReasonNames[ReasonUnspecified]
}

// ParseRevocationReason parses a wire reason name; an unrecognized name
// maps to ReasonUnspecified rather than erroring, per spec.md §4.2.
func ParseRevocationReason(name string) RevocationReason {
	if reason, ok := nameToRevocationReason[name]; ok {
		return reason
	}
	return ReasonUnspecified
}
