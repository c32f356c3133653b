// Package pqc detects which post-quantum signature and KEM schemes are
// available in the running binary, so the TLS configuration builder
// (C6) can opt a handshake into them when both endpoints support it.
package pqc

import (
	circlkem "github.com/cloudflare/circl/kem/schemes"
	circlsign "github.com/cloudflare/circl/sign/schemes"
)

// candidateSignatureSchemes are the NIST-standardized signature scheme
// names circl registers under sign/schemes.
var candidateSignatureSchemes = []string{"Dilithium2", "Dilithium3", "Dilithium5"}

// candidateKEMSchemes are the NIST-standardized KEM scheme names circl
// registers under kem/schemes.
var candidateKEMSchemes = []string{"Kyber512", "Kyber768", "Kyber1024"}

// Capability is the set of PQC schemes this binary's circl build
// supports.
type Capability struct {
	SignatureSchemes []string
	KEMSchemes       []string
}

// Detect probes circl's scheme registries for the candidate PQC
// algorithms and returns which ones resolved.
func Detect() Capability {
	var cap Capability
	for _, name := range candidateSignatureSchemes {
		if circlsign.ByName(name) != nil {
			cap.SignatureSchemes = append(cap.SignatureSchemes, name)
		}
	}
	for _, name := range candidateKEMSchemes {
		if circlkem.ByName(name) != nil {
			cap.KEMSchemes = append(cap.KEMSchemes, name)
		}
	}
	return cap
}

// SupportsPQC reports whether at least one PQC signature or KEM scheme
// is available.
func (c Capability) SupportsPQC() bool {
	return len(c.SignatureSchemes) > 0 || len(c.KEMSchemes) > 0
}
