package ca

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net/url"
	"sync"
	"time"

	"github.com/pqsecure/mesh/internal/core/domain"
	"github.com/pqsecure/mesh/internal/core/ports"
)

// MockClient is a ports.CAClient used by tests: it issues real,
// self-signed certificates so downstream parsing/SPIFFE-extraction
// exercises the same code paths as a live CA, mimics latency, and can
// be seeded to report chosen fingerprints as revoked.
type MockClient struct {
	Latency time.Duration

	mu       sync.Mutex
	revoked  map[string]ports.CAStatus
	issued   map[string]bool
}

// NewMockClient constructs an empty MockClient.
func NewMockClient() *MockClient {
	return &MockClient{
		revoked: make(map[string]ports.CAStatus),
		issued:  make(map[string]bool),
	}
}

var _ ports.CAClient = (*MockClient)(nil)

// SeedRevoked marks fingerprint as revoked for future CheckStatus calls.
func (m *MockClient) SeedRevoked(fingerprint, reason string, revokedAt time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revoked[fingerprint] = ports.CAStatus{Kind: ports.CAStatusRevoked, Reason: reason, RevokedAt: revokedAt}
}

func (m *MockClient) sleep() {
	if m.Latency > 0 {
		time.Sleep(m.Latency)
	}
}

// RequestCertificate issues a short-lived self-signed certificate
// carrying req's SPIFFE URI, signed by the mock's own throwaway key
// (standing in for a CA signing key).
func (m *MockClient) RequestCertificate(ctx context.Context, req domain.IdentityRequest) (*ports.CertificateResponse, error) {
	m.sleep()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	spiffeURI, err := url.Parse(req.SpiffeURI())
	if err != nil {
		return nil, err
	}

	template := &x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject:      pkix.Name{CommonName: req.ServiceName},
		DNSNames:     req.DNSNames,
		NotBefore:    time.Now().Add(-time.Minute),
		NotAfter:     time.Now().Add(24 * time.Hour),
		URIs:         []*url.URL{spiffeURI},
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return nil, err
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return nil, err
	}

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})
	fingerprint := domain.FingerprintDER(der)

	m.mu.Lock()
	m.issued[fingerprint] = true
	m.mu.Unlock()

	return &ports.CertificateResponse{
		CertPEM:            certPEM,
		KeyPEM:             keyPEM,
		ChainPEM:           certPEM,
		Fingerprint:        fingerprint,
		SignatureAlgorithm: x509.ECDSAWithSHA256.String(),
		IsPostQuantum:      false,
	}, nil
}

// RevokeCertificate marks fingerprint revoked; repeated revocation of
// the same fingerprint is idempotent.
func (m *MockClient) RevokeCertificate(ctx context.Context, fingerprint string, reason ports.RevocationReason) error {
	m.sleep()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revoked[fingerprint] = ports.CAStatus{Kind: ports.CAStatusRevoked, Reason: reason.String(), RevokedAt: time.Now()}
	return nil
}

// CheckStatus reports Revoked for a seeded/revoked fingerprint, Valid
// for a known-issued one, and Unknown otherwise.
func (m *MockClient) CheckStatus(ctx context.Context, fingerprint string) (ports.CAStatus, error) {
	m.sleep()
	m.mu.Lock()
	defer m.mu.Unlock()

	if status, ok := m.revoked[fingerprint]; ok {
		return status, nil
	}
	if m.issued[fingerprint] {
		return ports.CAStatus{Kind: ports.CAStatusValid}, nil
	}
	return ports.CAStatus{Kind: ports.CAStatusUnknown}, nil
}
