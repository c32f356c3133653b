package domain

import (
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"strings"
)

// pqcAlgorithmSubstrings lists signature algorithm name fragments that
// indicate a post-quantum scheme. x509.Certificate.SignatureAlgorithm's
// String() only names classical algorithms today; this list is where a
// CA advertising a PQC OID's friendly name (e.g. "Dilithium3",
// "ML-DSA-65") would be recognized without requiring this package to
// depend on a PQC ASN.1 decoder.
var pqcAlgorithmSubstrings = []string{
	"dilithium",
	"ml-dsa",
	"falcon",
	"sphincs",
	"kyber",
	"ml-kem",
}

// IsPostQuantumAlgorithm reports whether algorithm names a known
// post-quantum signature scheme.
func IsPostQuantumAlgorithm(algorithm string) bool {
	lower := strings.ToLower(algorithm)
	for _, substr := range pqcAlgorithmSubstrings {
		if strings.Contains(lower, substr) {
			return true
		}
	}
	return false
}

// ParseCertificatePEM decodes a single PEM-encoded certificate into an
// x509.Certificate, the form C1's ExtractSpiffeID and C4's fingerprinting
// operate on.
func ParseCertificatePEM(certPEM []byte) (*x509.Certificate, error) {
	block, _ := pem.Decode(certPEM)
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, fmt.Errorf("no CERTIFICATE PEM block found")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate DER: %w", err)
	}
	return cert, nil
}

// ParseCertificateChainPEM decodes every CERTIFICATE PEM block in data, in
// order, following the leaf-then-intermediates convention used for
// chain_pem.
func ParseCertificateChainPEM(data []byte) ([]*x509.Certificate, error) {
	var certs []*x509.Certificate
	rest := data
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse certificate in chain: %w", err)
		}
		certs = append(certs, cert)
	}
	return certs, nil
}
