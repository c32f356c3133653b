// Package ca implements C2: an HTTP/JSON client for an external
// certificate authority, plus the local CSR generation that feeds it.
package ca

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"net"
	"net/url"

	"github.com/pqsecure/mesh/internal/core/domain"
)

// generatedCSR is a freshly minted key pair plus the PEM-encoded CSR
// built from it.
type generatedCSR struct {
	key    *ecdsa.PrivateKey
	csrPEM []byte
}

// buildCSR generates an ECDSA P-256 key pair and a PKCS#10 CSR whose
// Common Name is req.ServiceName, whose SAN carries req.DNSNames,
// req.IPAddresses, and a single URI SAN equal to req.SpiffeURI(), per
// spec.md §4.2.
func buildCSR(req domain.IdentityRequest) (*generatedCSR, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate CSR key pair: %w", err)
	}

	spiffeURI, err := url.Parse(req.SpiffeURI())
	if err != nil {
		return nil, fmt.Errorf("invalid SPIFFE URI %q: %w", req.SpiffeURI(), err)
	}

	ips := make([]net.IP, 0, len(req.IPAddresses))
	for _, raw := range req.IPAddresses {
		if ip := net.ParseIP(raw); ip != nil {
			ips = append(ips, ip)
		}
	}

	template := &x509.CertificateRequest{
		Subject:     pkix.Name{CommonName: req.ServiceName},
		DNSNames:    req.DNSNames,
		IPAddresses: ips,
		URIs:        []*url.URL{spiffeURI},
	}

	der, err := x509.CreateCertificateRequest(rand.Reader, template, key)
	if err != nil {
		return nil, fmt.Errorf("create certificate request: %w", err)
	}

	csrPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE REQUEST", Bytes: der})
	return &generatedCSR{key: key, csrPEM: csrPEM}, nil
}

// marshalKeyPEM serializes key as a PEM-encoded EC PRIVATE KEY block.
func marshalKeyPEM(key *ecdsa.PrivateKey) ([]byte, error) {
	der, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("marshal private key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der}), nil
}
