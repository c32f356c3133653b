package cli

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/pqsecure/mesh/internal/adapters/primary/proxy"
	"github.com/pqsecure/mesh/internal/adapters/secondary/ca"
	"github.com/pqsecure/mesh/internal/adapters/secondary/config"
	"github.com/pqsecure/mesh/internal/adapters/secondary/identitystore"
	secmetrics "github.com/pqsecure/mesh/internal/adapters/secondary/metrics"
	"github.com/pqsecure/mesh/internal/adapters/secondary/policy"
	meshtls "github.com/pqsecure/mesh/internal/adapters/secondary/tls"
	"github.com/pqsecure/mesh/internal/core/domain"
	"github.com/pqsecure/mesh/internal/core/ports"
	"github.com/pqsecure/mesh/internal/core/services"
)

// provisionTimeout bounds the initial identity provisioning call made
// before the listener opens; steady-state rotation has no such bound.
const provisionTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the mTLS sidecar proxy",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runServe(cmd.Context())
	},
}

func runServe(ctx context.Context) error {
	logger := newLogger(globalFormat, globalQuiet)

	configPath := globalConfigPath
	if configPath == "" {
		configPath = os.Getenv(config.EnvConfigPath)
	}
	if configPath == "" {
		return fmt.Errorf("no configuration file: pass --config or set %s", config.EnvConfigPath)
	}

	cfg, err := config.NewFileLoader().Load(configPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	applyFlagOverrides(cfg)

	trustDomain, err := domain.NewTrustDomain(cfg.Service.TrustDomain)
	if err != nil {
		return fmt.Errorf("invalid trust domain %q: %w", cfg.Service.TrustDomain, err)
	}

	reporter := secmetrics.NewPrometheusMetrics()

	caClient := ca.NewClient(cfg.CA.APIURL, cfg.CA.Token, nil)
	store := identitystore.NewStore(cfg.Identity.Dir)
	identitySvc := services.NewIdentityService(caClient, store, reporter, cfg.CA.RenewThresholdPct, logger)

	req := domain.IdentityRequest{
		ServiceName: cfg.Service.Name,
		Namespace:   cfg.Service.Tenant,
		DNSNames:    cfg.Service.DNSNames,
		IPAddresses: cfg.Service.IPAddresses,
		RequestPQC:  cfg.Service.RequestPQC,
	}

	provisionCtx, cancelProvision := timeoutContext(ctx, provisionTimeout)
	identity, err := identitySvc.Provision(provisionCtx, req)
	cancelProvision()
	if err != nil {
		return fmt.Errorf("provision identity: %w", err)
	}

	policySource, err := resolvePolicySource(cfg.Policy.Path)
	if err != nil {
		return err
	}
	policyEngine, err := services.NewPolicyEngine(policySource, logger)
	if err != nil {
		return fmt.Errorf("load policy %q: %w", cfg.Policy.Path, err)
	}

	listener, err := net.Listen("tcp", cfg.Proxy.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen on %q: %w", cfg.Proxy.ListenAddr, err)
	}

	identityCert, err := tlsCertificateFromIdentity(*identity)
	if err != nil {
		return fmt.Errorf("build tls certificate from identity: %w", err)
	}

	builder := meshtls.NewBuilder(trustDomain, cfg.Proxy.EnablePQC, logger)
	detector := proxy.NewDetector()
	forwarder := proxy.NewForwarder(cfg.Proxy.Backend.Address, time.Duration(cfg.Proxy.TimeoutSeconds)*time.Second)
	peekTimeout := time.Duration(cfg.Proxy.PeekTimeoutMillis) * time.Millisecond

	acceptor := proxy.NewAcceptor(listener, builder, identityCert, detector, policyEngine, forwarder, reporter, peekTimeout, logger)

	rotationController := services.NewRotationController(identitySvc, time.Minute, logger)
	rotationController.OnRotate(func(fresh domain.ServiceIdentity) {
		cert, certErr := tlsCertificateFromIdentity(fresh)
		if certErr != nil {
			logger.Error("rotated identity produced an unusable tls certificate, keeping previous", "error", certErr)
			return
		}
		acceptor.UpdateCertificate(cert)
	})
	rotationController.Manage(req, *identity)

	rotationCtx, cancelRotation := context.WithCancel(ctx)
	defer cancelRotation()
	go rotationController.Run(rotationCtx)

	logger.Info("pqsecure-mesh listening",
		"listen_addr", listener.Addr().String(),
		"backend_addr", cfg.Proxy.Backend.Address,
		"trust_domain", trustDomain.String(),
		"spiffe_id", identity.SpiffeID.URI())

	return acceptor.Run(ctx)
}

// resolvePolicySource treats cfg.Policy.Path as a single policy file.
// The directory form (policy.LoadPolicyDir) serves multi-tenant
// deployments where one process fronts several tenants; this sidecar is
// single-tenant, so a directory path is rejected with a clear error
// instead of silently picking one file.
func resolvePolicySource(path string) (ports.PolicySource, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat policy path %q: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("policy path %q is a directory; this sidecar expects a single policy file", path)
	}
	return policy.NewFileSource(path), nil
}

// tlsCertificateFromIdentity builds a crypto/tls.Certificate from a
// ServiceIdentity's PEM-encoded cert and key, the shape the acceptor's
// TLS config builder consumes.
func tlsCertificateFromIdentity(identity domain.ServiceIdentity) (tls.Certificate, error) {
	return tls.X509KeyPair(identity.CertPEM, identity.KeyPEM)
}

// applyFlagOverrides layers --listen-addr/--backend-addr over whatever
// the loaded configuration (file + PQSECURE_* env overlay) produced.
func applyFlagOverrides(cfg *ports.Configuration) {
	if globalListenAddr != "" {
		cfg.Proxy.ListenAddr = globalListenAddr
	}
	if globalBackendAddr != "" {
		cfg.Proxy.Backend.Address = globalBackendAddr
	}
}

// newLogger builds the process-wide structured logger per the
// requested format; quiet mode raises the level to Warn.
func newLogger(format string, quiet bool) *slog.Logger {
	level := slog.LevelInfo
	if quiet {
		level = slog.LevelWarn
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
