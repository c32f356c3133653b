package ca

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"encoding/pem"
	"math/big"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pqsecure/mesh/internal/core/domain"
	"github.com/pqsecure/mesh/internal/core/ports"
)

func selfSignedCertPEM(t *testing.T, spiffeURI string) []byte {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	u, err := url.Parse(spiffeURI)
	require.NoError(t, err)
	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "orders"},
		NotBefore:    time.Now().Add(-time.Minute),
		NotAfter:     time.Now().Add(time.Hour),
		URIs:         []*url.URL{u},
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
}

func TestClient_RequestCertificateParsesSignResponse(t *testing.T) {
	spiffeURI := "spiffe://example.org/checkout/orders"
	certPEM := selfSignedCertPEM(t, spiffeURI)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/1.0/sign", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		var body signRequestBody
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.NotEmpty(t, body.CSR)
		assert.Equal(t, "test-token", body.OTT)

		resp := signResponseBody{Crt: string(certPEM), CA: string(certPEM)}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-token", nil)
	req := domain.IdentityRequest{ServiceName: "orders", Namespace: "checkout"}

	resp, err := client.RequestCertificate(t.Context(), req)
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Fingerprint)
	assert.NotEmpty(t, resp.KeyPEM)
}

func TestClient_CheckStatusMapsHTTPCodes(t *testing.T) {
	status := http.StatusOK
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		if status == http.StatusGone {
			require.NoError(t, json.NewEncoder(w).Encode(statusResponseBody{Reason: "keyCompromise", RevokedAt: time.Now()}))
		}
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-token", nil)

	status = http.StatusOK
	result, err := client.CheckStatus(t.Context(), "fp")
	require.NoError(t, err)
	assert.Equal(t, ports.CAStatusValid, result.Kind)

	status = http.StatusNotFound
	result, err = client.CheckStatus(t.Context(), "fp")
	require.NoError(t, err)
	assert.Equal(t, ports.CAStatusUnknown, result.Kind)

	status = http.StatusGone
	result, err = client.CheckStatus(t.Context(), "fp")
	require.NoError(t, err)
	assert.Equal(t, ports.CAStatusRevoked, result.Kind)
	assert.Equal(t, "keyCompromise", result.Reason)
}

func TestMockClient_IssueThenRevokeThenCheckStatus(t *testing.T) {
	mock := NewMockClient()
	req := domain.IdentityRequest{ServiceName: "orders", Namespace: "checkout"}

	resp, err := mock.RequestCertificate(t.Context(), req)
	require.NoError(t, err)

	status, err := mock.CheckStatus(t.Context(), resp.Fingerprint)
	require.NoError(t, err)
	assert.Equal(t, ports.CAStatusValid, status.Kind)

	require.NoError(t, mock.RevokeCertificate(t.Context(), resp.Fingerprint, ports.ReasonKeyCompromise))

	status, err = mock.CheckStatus(t.Context(), resp.Fingerprint)
	require.NoError(t, err)
	assert.Equal(t, ports.CAStatusRevoked, status.Kind)

	// Idempotent: revoking again still succeeds.
	assert.NoError(t, mock.RevokeCertificate(t.Context(), resp.Fingerprint, ports.ReasonKeyCompromise))
}

func TestMockClient_UnknownFingerprintStatus(t *testing.T) {
	mock := NewMockClient()
	status, err := mock.CheckStatus(t.Context(), "never-issued")
	require.NoError(t, err)
	assert.Equal(t, ports.CAStatusUnknown, status.Kind)
}
