package ca

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pqsecure/mesh/internal/core/domain"
	meshErrors "github.com/pqsecure/mesh/internal/core/errors"
	"github.com/pqsecure/mesh/internal/core/ports"
)

// Client is C2: a blocking HTTP/JSON client for the CA's sign, revoke,
// and status endpoints, authenticated with a bearer token. It performs
// no retries; network errors are always returned to the caller.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient constructs a Client against baseURL, authenticating with
// token in the Authorization header of every request.
func NewClient(baseURL, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{baseURL: baseURL, token: token, httpClient: httpClient}
}

var _ ports.CAClient = (*Client)(nil)

type signRequestBody struct {
	CSR string `json:"csr"`
	OTT string `json:"ott"`
}

type signResponseBody struct {
	Crt string `json:"crt"`
	CA  string `json:"ca"`
}

// RequestCertificate generates a fresh key pair and CSR, POSTs it to the
// CA's sign endpoint, and returns the issued credential.
func (c *Client) RequestCertificate(ctx context.Context, req domain.IdentityRequest) (*ports.CertificateResponse, error) {
	var csrPEM []byte
	var keyPEM []byte

	if len(req.ExternalCSR) > 0 {
		csrPEM = req.ExternalCSR
	} else {
		generated, err := buildCSR(req)
		if err != nil {
			return nil, meshErrors.NewCAError("failed to build CSR", err)
		}
		csrPEM = generated.csrPEM
		keyPEM, err = marshalKeyPEM(generated.key)
		if err != nil {
			return nil, meshErrors.NewCAError("failed to marshal private key", err)
		}
	}

	body := signRequestBody{CSR: string(csrPEM), OTT: c.token}
	var resp signResponseBody
	if err := c.post(ctx, "/1.0/sign", body, &resp); err != nil {
		return nil, err
	}

	cert, err := domain.ParseCertificatePEM([]byte(resp.Crt))
	if err != nil {
		return nil, meshErrors.NewCAError("CA returned an unparseable certificate", err)
	}
	fingerprint := domain.FingerprintDER(cert.Raw)
	algorithm := cert.SignatureAlgorithm.String()

	return &ports.CertificateResponse{
		CertPEM:            []byte(resp.Crt),
		KeyPEM:             keyPEM,
		ChainPEM:           []byte(resp.CA),
		Fingerprint:        fingerprint,
		SignatureAlgorithm: algorithm,
		IsPostQuantum:      domain.IsPostQuantumAlgorithm(algorithm),
	}, nil
}

type revokeRequestBody struct {
	Fingerprint string `json:"fingerprint"`
	ReasonCode  int    `json:"reasonCode"`
	Reason      string `json:"reason"`
}

// RevokeCertificate POSTs a revoke request for fingerprint. Per
// spec.md §4.2 the CA treats repeated revokes of the same fingerprint
// as idempotent; this client does not special-case that itself.
func (c *Client) RevokeCertificate(ctx context.Context, fingerprint string, reason ports.RevocationReason) error {
	body := revokeRequestBody{
		Fingerprint: fingerprint,
		ReasonCode:  reason.Code(),
		Reason:      reason.String(),
	}
	return c.post(ctx, "/1.0/revoke", body, nil)
}

type statusResponseBody struct {
	Reason    string    `json:"reason"`
	RevokedAt time.Time `json:"revoked_at"`
}

// CheckStatus GETs /1.0/status/<fingerprint>. HTTP 200 maps to
// CAStatusValid, 404 to CAStatusUnknown, 410 to CAStatusRevoked with the
// body's reason/revoked_at; any other response is an error.
func (c *Client) CheckStatus(ctx context.Context, fingerprint string) (ports.CAStatus, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/1.0/status/"+fingerprint, nil)
	if err != nil {
		return ports.CAStatus{}, meshErrors.NewCAError("failed to build status request", err)
	}
	c.authorize(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return ports.CAStatus{}, meshErrors.NewCAError("status request failed", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return ports.CAStatus{Kind: ports.CAStatusValid}, nil
	case http.StatusNotFound:
		return ports.CAStatus{Kind: ports.CAStatusUnknown}, nil
	case http.StatusGone:
		var body statusResponseBody
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return ports.CAStatus{}, meshErrors.NewCAError("failed to decode revoked status body", err)
		}
		return ports.CAStatus{Kind: ports.CAStatusRevoked, Reason: body.Reason, RevokedAt: body.RevokedAt}, nil
	default:
		return ports.CAStatus{}, meshErrors.NewCAError(fmt.Sprintf("unexpected CA status response: %d", resp.StatusCode), nil)
	}
}

func (c *Client) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
}

func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return meshErrors.NewCAError("failed to encode request body", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return meshErrors.NewCAError("failed to build request", err)
	}
	c.authorize(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return meshErrors.NewCAError(fmt.Sprintf("request to %s failed", path), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return meshErrors.NewCAError(fmt.Sprintf("%s returned %d: %s", path, resp.StatusCode, string(respBody)), nil)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return meshErrors.NewCAError(fmt.Sprintf("failed to decode %s response", path), err)
	}
	return nil
}
