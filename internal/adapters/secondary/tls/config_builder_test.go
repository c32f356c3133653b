package tls

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	stdtls "crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pqsecure/mesh/internal/core/domain"
)

func tlsCertificateFixture(t *testing.T) stdtls.Certificate {
	t.Helper()
	der := issueDER(t, "spiffe://example.org/checkout/orders", time.Now().Add(-time.Minute), time.Now().Add(time.Hour))
	return stdtls.Certificate{Certificate: [][]byte{der}}
}

func issueDER(t *testing.T, uri string, notBefore, notAfter time.Time) []byte {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "peer"},
		NotBefore:    notBefore,
		NotAfter:     notAfter,
	}
	if uri != "" {
		u, err := url.Parse(uri)
		require.NoError(t, err)
		template.URIs = []*url.URL{u}
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)
	return der
}

func TestBuilder_VerifyPeerAcceptsMatchingTrustDomain(t *testing.T) {
	td, err := domain.NewTrustDomain("example.org")
	require.NoError(t, err)
	builder := NewBuilder(td, false, nil)

	der := issueDER(t, "spiffe://example.org/checkout/orders", time.Now().Add(-time.Minute), time.Now().Add(time.Hour))
	assert.NoError(t, builder.verifyPeer([][]byte{der}, nil))
}

func TestBuilder_VerifyPeerRejectsMismatchedTrustDomain(t *testing.T) {
	td, err := domain.NewTrustDomain("example.org")
	require.NoError(t, err)
	builder := NewBuilder(td, false, nil)

	der := issueDER(t, "spiffe://other.org/checkout/orders", time.Now().Add(-time.Minute), time.Now().Add(time.Hour))
	assert.Error(t, builder.verifyPeer([][]byte{der}, nil))
}

func TestBuilder_VerifyPeerRejectsExpiredCertificate(t *testing.T) {
	td, err := domain.NewTrustDomain("example.org")
	require.NoError(t, err)
	builder := NewBuilder(td, false, nil)

	der := issueDER(t, "spiffe://example.org/checkout/orders", time.Now().Add(-2*time.Hour), time.Now().Add(-time.Hour))
	assert.Error(t, builder.verifyPeer([][]byte{der}, nil))
}

func TestBuilder_VerifyPeerRejectsNoCertificate(t *testing.T) {
	td, err := domain.NewTrustDomain("example.org")
	require.NoError(t, err)
	builder := NewBuilder(td, false, nil)
	assert.Error(t, builder.verifyPeer(nil, nil))
}

func TestBuilder_BuildSetsExpectedDefaults(t *testing.T) {
	td, err := domain.NewTrustDomain("example.org")
	require.NoError(t, err)
	builder := NewBuilder(td, false, nil)

	cfg := builder.Build(tlsCertificateFixture(t))
	assert.Equal(t, []string{"h2", "http/1.1"}, cfg.NextProtos)
	assert.Nil(t, cfg.ClientCAs)
}
