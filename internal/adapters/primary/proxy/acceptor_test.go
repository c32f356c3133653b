package proxy

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"io"
	"math/big"
	"net"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	meshtls "github.com/pqsecure/mesh/internal/adapters/secondary/tls"
	"github.com/pqsecure/mesh/internal/core/domain"
	"github.com/pqsecure/mesh/internal/core/ports"
	"github.com/pqsecure/mesh/internal/core/services"
)

// recordingMetrics embeds NoOpMetrics and records every
// SetActiveConnections value, so tests can assert the gauge is driven
// around a connection's lifecycle.
type recordingMetrics struct {
	services.NoOpMetrics
	mu     sync.Mutex
	active []int64
}

func (m *recordingMetrics) SetActiveConnections(n int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active = append(m.active, n)
}

func (m *recordingMetrics) snapshot() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int64(nil), m.active...)
}

var _ ports.MetricsReporter = (*recordingMetrics)(nil)

func issueCertificate(t *testing.T, uri string) tls.Certificate {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	u, err := url.Parse(uri)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "test"},
		NotBefore:    time.Now().Add(-time.Minute),
		NotAfter:     time.Now().Add(time.Hour),
		URIs:         []*url.URL{u},
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)

	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key}
}

type staticPolicySource struct {
	policy *domain.CompiledPolicy
}

func (s staticPolicySource) Load() (*domain.CompiledPolicy, error) { return s.policy, nil }

func mustCompileRegex(t *testing.T, pattern string) domain.MatchRule {
	t.Helper()
	m, err := domain.CompileRegexMatch(pattern)
	require.NoError(t, err)
	return m
}

func newTestAcceptor(t *testing.T, trustDomainName string, serverCert tls.Certificate, compiledPolicy *domain.CompiledPolicy, upstreamAddr string) (*Acceptor, net.Listener) {
	t.Helper()
	return newTestAcceptorWithMetrics(t, trustDomainName, serverCert, compiledPolicy, upstreamAddr, services.NoOpMetrics{})
}

func newTestAcceptorWithMetrics(t *testing.T, trustDomainName string, serverCert tls.Certificate, compiledPolicy *domain.CompiledPolicy, upstreamAddr string, metrics ports.MetricsReporter) (*Acceptor, net.Listener) {
	t.Helper()
	td, err := domain.NewTrustDomain(trustDomainName)
	require.NoError(t, err)

	builder := meshtls.NewBuilder(td, false, nil)
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	engine, err := services.NewPolicyEngine(staticPolicySource{policy: compiledPolicy}, nil)
	require.NoError(t, err)

	forwarder := NewForwarder(upstreamAddr, 2*time.Second)
	acceptor := NewAcceptor(listener, builder, serverCert, NewDetector(), engine, forwarder, metrics, 100*time.Millisecond, nil)
	return acceptor, listener
}

func TestAcceptor_HappyPathHTTPForwardsBytesToUpstream(t *testing.T) {
	upstreamAddr := startEchoUpstream(t)

	serverCert := issueCertificate(t, "spiffe://example.org/service/server")
	clientCert := issueCertificate(t, "spiffe://example.org/service/client")

	rule := domain.CompiledRule{
		SpiffeID: domain.ExactMatch("spiffe://example.org/service/client"),
		Protocol: domain.AnyMatch(),
		Method:   mustCompileRegex(t, "^GET .*"),
		Allow:    true,
	}
	policy := domain.NewCompiledPolicy(false, []domain.CompiledRule{rule})

	acceptor, listener := newTestAcceptor(t, "example.org", serverCert, policy, upstreamAddr)

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	go func() { _ = acceptor.Run(ctx) }()

	conn, err := tls.Dial("tcp", listener.Addr().String(), &tls.Config{
		Certificates:       []tls.Certificate{clientCert},
		InsecureSkipVerify: true,
	})
	require.NoError(t, err)
	defer conn.Close()

	request := "GET /health HTTP/1.1\r\nHost: x\r\n\r\n"
	_, err = conn.Write([]byte(request))
	require.NoError(t, err)

	echoed := make([]byte, len(request))
	_, err = io.ReadFull(conn, echoed)
	require.NoError(t, err)
	assert.Equal(t, request, string(echoed))
}

func TestAcceptor_PolicyDenyClosesConnectionWithoutForwarding(t *testing.T) {
	upstreamAddr := startEchoUpstream(t)

	serverCert := issueCertificate(t, "spiffe://example.org/service/server")
	clientCert := issueCertificate(t, "spiffe://example.org/service/other")

	rule := domain.CompiledRule{
		SpiffeID: domain.ExactMatch("spiffe://example.org/service/allowed"),
		Protocol: domain.AnyMatch(),
		Method:   domain.AnyMatch(),
		Allow:    true,
	}
	policy := domain.NewCompiledPolicy(false, []domain.CompiledRule{rule})

	acceptor, listener := newTestAcceptor(t, "example.org", serverCert, policy, upstreamAddr)

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	go func() { _ = acceptor.Run(ctx) }()

	conn, err := tls.Dial("tcp", listener.Addr().String(), &tls.Config{
		Certificates:       []tls.Certificate{clientCert},
		InsecureSkipVerify: true,
	})
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("GET /health HTTP/1.1\r\n\r\n"))
	require.NoError(t, err)

	buf := make([]byte, 1)
	_, readErr := conn.Read(buf)
	assert.Error(t, readErr)
}

func TestAcceptor_TracksActiveConnectionsGauge(t *testing.T) {
	upstreamAddr := startEchoUpstream(t)

	serverCert := issueCertificate(t, "spiffe://example.org/service/server")
	clientCert := issueCertificate(t, "spiffe://example.org/service/client")

	rule := domain.CompiledRule{
		SpiffeID: domain.AnyMatch(),
		Protocol: domain.AnyMatch(),
		Method:   domain.AnyMatch(),
		Allow:    true,
	}
	policy := domain.NewCompiledPolicy(false, []domain.CompiledRule{rule})

	metrics := &recordingMetrics{}
	acceptor, listener := newTestAcceptorWithMetrics(t, "example.org", serverCert, policy, upstreamAddr, metrics)

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	go func() { _ = acceptor.Run(ctx) }()

	conn, err := tls.Dial("tcp", listener.Addr().String(), &tls.Config{
		Certificates:       []tls.Certificate{clientCert},
		InsecureSkipVerify: true,
	})
	require.NoError(t, err)

	request := "GET /health HTTP/1.1\r\nHost: x\r\n\r\n"
	_, err = conn.Write([]byte(request))
	require.NoError(t, err)

	echoed := make([]byte, len(request))
	_, err = io.ReadFull(conn, echoed)
	require.NoError(t, err)
	conn.Close()

	assert.Eventually(t, func() bool {
		snap := metrics.snapshot()
		return len(snap) >= 2 && snap[len(snap)-1] == 0
	}, time.Second, 10*time.Millisecond)

	snap := metrics.snapshot()
	require.NotEmpty(t, snap)
	assert.Equal(t, int64(1), snap[0], "gauge should go to 1 when the connection is accepted")
	assert.Equal(t, int64(0), snap[len(snap)-1], "gauge should return to 0 once the connection tears down")
}

func TestAcceptor_RejectsMismatchedTrustDomainBeforeForwarding(t *testing.T) {
	upstreamAddr := startEchoUpstream(t)

	serverCert := issueCertificate(t, "spiffe://example.org/service/server")
	clientCert := issueCertificate(t, "spiffe://other.org/service/client")

	policy := domain.NewCompiledPolicy(true, nil)
	acceptor, listener := newTestAcceptor(t, "example.org", serverCert, policy, upstreamAddr)

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	go func() { _ = acceptor.Run(ctx) }()

	conn, err := tls.Dial("tcp", listener.Addr().String(), &tls.Config{
		Certificates:       []tls.Certificate{clientCert},
		InsecureSkipVerify: true,
	})
	require.NoError(t, err)
	defer conn.Close()

	buf := make([]byte, 1)
	_, readErr := conn.Read(buf)
	assert.Error(t, readErr)
}
