package domain

import (
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/spiffe/go-spiffe/v2/spiffeid"
)

// SpiffeId is a workload identity expressed as spiffe://<trust-domain>/<path>,
// carried as a URI SAN in an X.509 certificate. It is constructed only
// through ParseSpiffeID or ExtractSpiffeID; there is no exported field
// setter, so every live value has already passed validation.
type SpiffeId struct {
	uri         string
	trustDomain TrustDomain
	path        string
}

// URI returns the original, byte-for-byte SPIFFE URI that was parsed.
func (s SpiffeId) URI() string { return s.uri }

// TrustDomain returns the trust domain component.
func (s SpiffeId) TrustDomain() TrustDomain { return s.trustDomain }

// Path returns the path component (without the leading slash).
func (s SpiffeId) Path() string { return s.path }

// String implements fmt.Stringer; it is the same as URI.
func (s SpiffeId) String() string { return s.uri }

// IsZero reports whether s is the zero value (never produced by a
// successful parse).
func (s SpiffeId) IsZero() bool { return s.uri == "" }

// Equals compares two SpiffeIds by exact URI equality, per spec.
func (s SpiffeId) Equals(other SpiffeId) bool { return s.uri == other.uri }

// ErrInvalidSpiffeURI is returned by ParseSpiffeID when the input does not
// conform to spiffe://<trust-domain>/<path>.
type ErrInvalidSpiffeURI struct {
	URI    string
	Reason string
}

func (e *ErrInvalidSpiffeURI) Error() string {
	return fmt.Sprintf("invalid SPIFFE URI %q: %s", e.URI, e.Reason)
}

// ParseSpiffeID parses uri as a SPIFFE identity URI.
//
// Rules (spec.md §4.1): the scheme must equal "spiffe" case-insensitively;
// the trust domain must be a non-empty DNS-label-like host; the path must
// be non-empty and must not be the single character "/"; trailing slashes
// are rejected. No percent-decoding is performed — the returned SpiffeId's
// URI is byte-for-byte the input.
func ParseSpiffeID(uri string) (SpiffeId, error) {
	const schemeSep = "://"
	idx := strings.Index(uri, schemeSep)
	if idx < 0 {
		return SpiffeId{}, &ErrInvalidSpiffeURI{uri, "missing scheme separator"}
	}
	scheme, rest := uri[:idx], uri[idx+len(schemeSep):]
	if !strings.EqualFold(scheme, "spiffe") {
		return SpiffeId{}, &ErrInvalidSpiffeURI{uri, "scheme must be spiffe"}
	}

	// go-spiffe/v2 requires a lowercase scheme; spec.md §4.1 asks for a
	// case-insensitive check, so normalize before handing off and keep
	// the original, unmodified uri for storage.
	normalized := "spiffe://" + rest
	parsed, err := spiffeid.FromString(normalized)
	if err != nil {
		return SpiffeId{}, &ErrInvalidSpiffeURI{uri, err.Error()}
	}
	if parsed.Path() == "" {
		return SpiffeId{}, &ErrInvalidSpiffeURI{uri, "path is empty"}
	}
	if strings.HasSuffix(rest, "/") {
		return SpiffeId{}, &ErrInvalidSpiffeURI{uri, "trailing slash not allowed"}
	}

	trustDomain, err := NewTrustDomain(parsed.TrustDomain().Name())
	if err != nil {
		return SpiffeId{}, &ErrInvalidSpiffeURI{uri, fmt.Sprintf("invalid trust domain: %v", err)}
	}

	return SpiffeId{
		uri:         uri,
		trustDomain: trustDomain,
		path:        strings.TrimPrefix(parsed.Path(), "/"),
	}, nil
}

// IsValidSpiffeURI reports whether uri would parse successfully; per
// spec.md §8, ParseSpiffeID fails iff this returns false.
func IsValidSpiffeURI(uri string) bool {
	_, err := ParseSpiffeID(uri)
	return err == nil
}

// ErrMissingSpiffeID is returned by ExtractSpiffeID when the certificate's
// SAN extension is missing, has no URI entries, or none of its URIs is a
// valid SPIFFE identity.
var ErrMissingSpiffeID = fmt.Errorf("certificate has no valid SPIFFE URI SAN")

// ErrTrustDomainMismatch is returned by ExtractSpiffeIDForDomain when the
// certificate's SPIFFE ID resolves to a trust domain other than expected.
type ErrTrustDomainMismatch struct {
	Got, Want TrustDomain
}

func (e *ErrTrustDomainMismatch) Error() string {
	return fmt.Sprintf("certificate trust domain %q does not match configured trust domain %q", e.Got, e.Want)
}

// ExtractSpiffeID parses cert's Subject Alternative Name URI entries and
// returns the first one that is a valid SPIFFE identity. Go's x509 parser
// already walks the SAN extension into Certificate.URIs, so no manual ASN.1
// decoding is required here.
func ExtractSpiffeID(cert *x509.Certificate) (SpiffeId, error) {
	if cert == nil {
		return SpiffeId{}, ErrMissingSpiffeID
	}
	for _, u := range cert.URIs {
		if !strings.EqualFold(u.Scheme, "spiffe") {
			continue
		}
		if id, err := ParseSpiffeID(u.String()); err == nil {
			return id, nil
		}
	}
	return SpiffeId{}, ErrMissingSpiffeID
}

// ExtractSpiffeIDForDomain is ExtractSpiffeID followed by a trust-domain
// check against expected; a mismatch returns *ErrTrustDomainMismatch
// distinct from ErrMissingSpiffeID, per spec.md §4.1.
func ExtractSpiffeIDForDomain(cert *x509.Certificate, expected TrustDomain) (SpiffeId, error) {
	id, err := ExtractSpiffeID(cert)
	if err != nil {
		return SpiffeId{}, err
	}
	if !id.TrustDomain().Equals(expected) {
		return SpiffeId{}, &ErrTrustDomainMismatch{Got: id.TrustDomain(), Want: expected}
	}
	return id, nil
}

// FingerprintDER returns the SHA-256 hex digest of a DER-encoded
// certificate, the CA's opaque handle for revoke/status calls.
func FingerprintDER(der []byte) string {
	sum := sha256.Sum256(der)
	return hex.EncodeToString(sum[:])
}
