package proxy

import (
	"bufio"
	"context"
	"crypto/tls"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	meshtls "github.com/pqsecure/mesh/internal/adapters/secondary/tls"
	"github.com/pqsecure/mesh/internal/core/domain"
	"github.com/pqsecure/mesh/internal/core/ports"
	"github.com/pqsecure/mesh/internal/core/services"
)

// readBufferSize bounds how much of a connection's leading bytes the
// detector and its handlers may peek at without consuming.
const readBufferSize = 64 * 1024

// Acceptor is C7: it binds a listener, drives each accepted connection's
// TLS handshake, and on success hands the post-handshake stream to the
// detector (C8) for dispatch and the forwarder (C9) for copying.
type Acceptor struct {
	listener    net.Listener
	builder     *meshtls.Builder
	tlsConfig   atomic.Pointer[tls.Config]
	detector    *Detector
	policy      *services.PolicyEngine
	forwarder   *Forwarder
	metrics     ports.MetricsReporter
	peekTimeout time.Duration
	logger      *slog.Logger

	activeConns int64
	wg          sync.WaitGroup
}

// NewAcceptor constructs an Acceptor presenting initialCert until
// UpdateCertificate is called by the rotation controller.
func NewAcceptor(
	listener net.Listener,
	builder *meshtls.Builder,
	initialCert tls.Certificate,
	detector *Detector,
	policy *services.PolicyEngine,
	forwarder *Forwarder,
	metrics ports.MetricsReporter,
	peekTimeout time.Duration,
	logger *slog.Logger,
) *Acceptor {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Acceptor{
		listener:    listener,
		builder:     builder,
		detector:    detector,
		policy:      policy,
		forwarder:   forwarder,
		metrics:     metrics,
		peekTimeout: peekTimeout,
		logger:      logger,
	}
	a.tlsConfig.Store(builder.Build(initialCert))
	return a
}

// UpdateCertificate swaps the presented identity certificate, e.g. after
// C5 rotates it. In-flight handshakes keep using the config snapshot
// they already captured.
func (a *Acceptor) UpdateCertificate(cert tls.Certificate) {
	a.tlsConfig.Store(a.builder.Build(cert))
}

// Run accepts connections until ctx is canceled, spawning one task per
// connection. It blocks until the listener is closed and all in-flight
// connection tasks return.
func (a *Acceptor) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = a.listener.Close()
	}()

	for {
		conn, err := a.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				a.wg.Wait()
				return nil
			default:
				return err
			}
		}

		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.handle(ctx, conn)
		}()
	}
}

func (a *Acceptor) handle(ctx context.Context, conn net.Conn) {
	a.metrics.IncClientConnections()
	a.metrics.SetActiveConnections(atomic.AddInt64(&a.activeConns, 1))
	defer a.metrics.SetActiveConnections(atomic.AddInt64(&a.activeConns, -1))
	defer conn.Close()

	tlsConn := tls.Server(conn, a.tlsConfig.Load())
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		a.metrics.IncHandshake(false, false)
		a.metrics.IncClientDisconnections()
		a.logger.Warn("tls handshake failed", "remote_addr", conn.RemoteAddr(), "error", err)
		return
	}

	state := tlsConn.ConnectionState()
	a.metrics.IncHandshake(true, isPQCNegotiated(state))

	leaf := meshtls.LeafFromConnectionState(state)
	spiffeID, err := domain.ExtractSpiffeID(leaf)
	if err != nil {
		a.logger.Error("handshake succeeded but peer SPIFFE ID could not be extracted", "error", err)
		a.metrics.IncClientDisconnections()
		return
	}

	info := domain.NewConnectionInfo(conn.RemoteAddr()).WithIdentity(spiffeID)

	br := bufio.NewReaderSize(tlsConn, readBufferSize)
	protocol, method := a.detector.Detect(br, tlsConn.SetReadDeadline, a.peekTimeout)
	info.Protocol = protocol
	info.Method = method

	if !a.policy.Allow(spiffeID.URI(), protocol.String(), method) {
		a.metrics.IncPolicyDecision(false)
		a.metrics.IncRequests(ports.RequestRejected)
		a.metrics.IncClientDisconnections()
		a.logger.Info("connection rejected by policy",
			"spiffe_id", spiffeID.URI(), "protocol", protocol.String(), "method", method)
		return
	}
	a.metrics.IncPolicyDecision(true)

	stream := newBufferedConn(tlsConn, br)
	start := time.Now()
	sent, received, err := a.forwarder.Forward(ctx, stream, info)
	a.metrics.ObserveRequestDuration(time.Since(start))
	a.metrics.AddTransferBytes(sent, received)

	if err != nil {
		a.metrics.IncRequests(ports.RequestFailed)
		a.logger.Warn("forwarding ended with error", "connection_id", info.ID, "error", err)
	} else {
		a.metrics.IncRequests(ports.RequestSuccessful)
	}
	a.metrics.IncClientDisconnections()
}

// isPQCNegotiated reports whether the handshake selected the hybrid
// X25519MLKEM768 key-exchange group.
func isPQCNegotiated(state tls.ConnectionState) bool {
	return state.CurveID == tls.X25519MLKEM768
}
