package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pqsecure/mesh/internal/core/domain"
	"github.com/pqsecure/mesh/internal/core/ports"
)

// IdentityService is C4: it orchestrates the CA client (C2) and identity
// store (C3) behind a single provision/rotate/revoke/status contract.
// It never retries a CA call internally — retry is the rotation
// controller's (C5) job via its next tick.
type IdentityService struct {
	ca                ports.CAClient
	store             ports.IdentityStore
	metrics           ports.MetricsReporter
	renewThresholdPct int
	logger            *slog.Logger
}

// NewIdentityService constructs an IdentityService. A zero or negative
// renewThresholdPct falls back to ports.DefaultRenewThresholdPct.
func NewIdentityService(ca ports.CAClient, store ports.IdentityStore, metrics ports.MetricsReporter, renewThresholdPct int, logger *slog.Logger) *IdentityService {
	if renewThresholdPct <= 0 {
		renewThresholdPct = ports.DefaultRenewThresholdPct
	}
	if metrics == nil {
		metrics = NoOpMetrics{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &IdentityService{
		ca:                ca,
		store:             store,
		metrics:           metrics,
		renewThresholdPct: renewThresholdPct,
		logger:            logger,
	}
}

// Provision loads the stored identity for req's SPIFFE URI; if it exists,
// is locally Valid, and its remaining lifetime fraction exceeds the
// renew threshold, it is returned as-is. Otherwise a fresh identity is
// minted via rotate.
func (s *IdentityService) Provision(ctx context.Context, req domain.IdentityRequest) (*domain.ServiceIdentity, error) {
	id, err := domain.ParseSpiffeID(req.SpiffeURI())
	if err != nil {
		return nil, fmt.Errorf("provision: %w", err)
	}

	existing, err := s.store.Load(ctx, id)
	if err == nil && existing != nil {
		now := time.Now()
		if existing.LocalStatus(now) == domain.StatusValid {
			threshold := float64(s.renewThresholdPct) / 100.0
			if existing.RemainingLifetimeFraction(now) > threshold {
				return existing, nil
			}
		}
	}

	return s.mint(ctx, req)
}

// Rotate issues a fresh CSR for req's identity shape via the CA client,
// persists the result through the store, and returns the new identity.
// The previous identity file is replaced atomically by the store.
func (s *IdentityService) Rotate(ctx context.Context, req domain.IdentityRequest) (*domain.ServiceIdentity, error) {
	return s.mint(ctx, req)
}

func (s *IdentityService) mint(ctx context.Context, req domain.IdentityRequest) (*domain.ServiceIdentity, error) {
	resp, err := s.ca.RequestCertificate(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("request certificate: %w", err)
	}

	cert, err := domain.ParseCertificatePEM(resp.CertPEM)
	if err != nil {
		return nil, fmt.Errorf("parse issued certificate: %w", err)
	}
	spiffeID, err := domain.ExtractSpiffeID(cert)
	if err != nil {
		return nil, fmt.Errorf("issued certificate missing SPIFFE URI SAN: %w", err)
	}

	identity := domain.ServiceIdentity{
		SpiffeID:           spiffeID,
		CertPEM:            resp.CertPEM,
		KeyPEM:             resp.KeyPEM,
		ChainPEM:           resp.ChainPEM,
		Fingerprint:        resp.Fingerprint,
		IssuedAt:           cert.NotBefore,
		ExpiresAt:          cert.NotAfter,
		SignatureAlgorithm: resp.SignatureAlgorithm,
		IsPostQuantum:      resp.IsPostQuantum,
	}
	if err := identity.Validate(); err != nil {
		return nil, fmt.Errorf("issued identity failed validation: %w", err)
	}

	if err := s.store.Save(ctx, identity); err != nil {
		return nil, fmt.Errorf("persist identity: %w", err)
	}

	s.logger.Info("identity minted", "spiffe_id", spiffeID.URI(), "is_post_quantum", identity.IsPostQuantum)
	return &identity, nil
}

// Revoke revokes identity via the CA client and, on success, deletes its
// local file. It returns true iff the CA confirmed revocation.
func (s *IdentityService) Revoke(ctx context.Context, identity domain.ServiceIdentity, reason ports.RevocationReason) (bool, error) {
	if err := s.ca.RevokeCertificate(ctx, identity.Fingerprint, reason); err != nil {
		return false, fmt.Errorf("revoke certificate: %w", err)
	}
	if err := s.store.Delete(ctx, identity.SpiffeID); err != nil {
		s.logger.Warn("revoked identity but failed to delete local file", "spiffe_id", identity.SpiffeID.URI(), "error", err)
	}
	return true, nil
}

// Status computes identity's local status from the wall clock, and, if
// locally Valid, refines it against the CA: a CA-reported revocation
// downgrades to Revoked; CA unavailability or an Unknown CA result
// preserves the local status — status never promotes Expired back to
// Valid.
func (s *IdentityService) Status(ctx context.Context, identity domain.ServiceIdentity) domain.IdentityStatus {
	local := identity.LocalStatus(time.Now())
	if local != domain.StatusValid {
		return local
	}

	caStatus, err := s.ca.CheckStatus(ctx, identity.Fingerprint)
	if err != nil {
		s.logger.Warn("CA status check failed, preserving local status", "spiffe_id", identity.SpiffeID.URI(), "error", err)
		return local
	}
	if caStatus.Kind == ports.CAStatusRevoked {
		return domain.StatusRevoked
	}
	return local
}
