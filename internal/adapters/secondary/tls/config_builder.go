// Package tls builds the server-side *tls.Config used by the acceptor
// (C6), per spec.md §4.6's zero-trust model: authentication is by
// SPIFFE identity alone, not by a root CA trust anchor set.
package tls

import (
	"crypto/tls"
	"crypto/x509"
	"log/slog"
	"time"

	"github.com/pqsecure/mesh/internal/adapters/secondary/pqc"
	"github.com/pqsecure/mesh/internal/core/domain"
	meshErrors "github.com/pqsecure/mesh/internal/core/errors"
)

// errInvalidPeer is the single, generic handshake failure every
// VerifyPeerCertificate rejection reports; the specific cause is only
// logged, per spec.md §4.6.
var errInvalidPeer = meshErrors.NewTLSError("invalid peer", nil)

// Builder constructs *tls.Config values for the acceptor.
type Builder struct {
	trustDomain domain.TrustDomain
	enablePQC   bool
	logger      *slog.Logger
}

// NewBuilder constructs a Builder that rejects any peer certificate
// whose SPIFFE trust domain is not trustDomain. When enablePQC is true
// and this binary's circl build advertises any PQC signature or KEM
// scheme (pqc.Capability.SupportsPQC), the hybrid
// X25519MLKEM768 group is added ahead of the classical curves, per
// spec.md §4.6 item 5 — negotiation itself is left to the TLS library.
func NewBuilder(trustDomain domain.TrustDomain, enablePQC bool, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{trustDomain: trustDomain, enablePQC: enablePQC, logger: logger}
}

// Build returns a server tls.Config presenting identityCert, requiring
// and verifying a client certificate via a custom SPIFFE-based peer
// verifier, and advertising ALPN h2 then http/1.1. No ClientCAs pool is
// populated: this is the sole point where this proxy's zero-trust model
// diverges from a conventional PKI chain-of-trust verifier. ClientAuth
// is RequireAnyClientCert, not RequireAndVerifyClientCert — the latter
// runs Go's own chain verification against ClientCAs before
// VerifyPeerCertificate is ever called, and with a nil pool that falls
// back to the system roots, which a SPIFFE leaf never chains to.
// RequireAnyClientCert only requires the peer present a certificate and
// leaves all verification to verifyPeer below.
func (b *Builder) Build(identityCert tls.Certificate) *tls.Config {
	cfg := &tls.Config{
		Certificates:          []tls.Certificate{identityCert},
		ClientAuth:            tls.RequireAnyClientCert,
		InsecureSkipVerify:    true, // relevant only when this config dials out as a client; irrelevant to the server path above
		VerifyPeerCertificate: b.verifyPeer,
		NextProtos:            []string{"h2", "http/1.1"},
		MinVersion:            tls.VersionTLS12,
	}

	if b.enablePQC && pqc.Detect().SupportsPQC() {
		cfg.CurvePreferences = []tls.CurveID{tls.X25519MLKEM768, tls.X25519, tls.CurveP256}
		b.logger.Debug("PQC hybrid key exchange enabled for this listener")
	}

	return cfg
}

// verifyPeer implements spec.md §4.6's custom peer verifier: a
// wall-clock validity check, SPIFFE-ID extraction via C1, and a
// trust-domain equality check. Any failure is reported generically as
// errInvalidPeer; the cause is logged here and nowhere else.
func (b *Builder) verifyPeer(rawCerts [][]byte, _ [][]*x509.Certificate) error {
	if len(rawCerts) == 0 {
		b.logger.Warn("peer presented no certificate")
		return errInvalidPeer
	}

	cert, err := x509.ParseCertificate(rawCerts[0])
	if err != nil {
		b.logger.Warn("peer certificate failed to parse", "error", err)
		return errInvalidPeer
	}

	now := time.Now()
	if now.Before(cert.NotBefore) || now.After(cert.NotAfter) {
		b.logger.Warn("peer certificate outside validity window", "not_before", cert.NotBefore, "not_after", cert.NotAfter)
		return errInvalidPeer
	}

	spiffeID, err := domain.ExtractSpiffeIDForDomain(cert, b.trustDomain)
	if err != nil {
		b.logger.Warn("peer certificate failed SPIFFE/trust-domain check", "error", err)
		return errInvalidPeer
	}

	b.logger.Debug("peer verified", "spiffe_id", spiffeID.URI())
	return nil
}

// LeafFromConnectionState extracts the verified peer leaf certificate
// from a completed handshake's connection state, the value the acceptor
// threads explicitly to C8's handlers per spec.md §5's ban on
// goroutine-local peer-certificate storage.
func LeafFromConnectionState(state tls.ConnectionState) *x509.Certificate {
	if len(state.PeerCertificates) == 0 {
		return nil
	}
	return state.PeerCertificates[0]
}
