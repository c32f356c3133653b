package proxy

import (
	"context"
	"errors"
	"io"
	"net"
	"time"

	"github.com/pqsecure/mesh/internal/core/domain"
	meshErrors "github.com/pqsecure/mesh/internal/core/errors"
)

// Forwarder is C9: it dials the configured upstream with a bounded-time
// connect and copies bytes bidirectionally under a single overall
// deadline, half-closing each direction independently on EOF, per
// spec.md §4.9.
type Forwarder struct {
	backendAddr string
	timeout     time.Duration
}

// NewForwarder returns a Forwarder dialing backendAddr; timeout bounds
// both the upstream connect and the full forwarding duration.
func NewForwarder(backendAddr string, timeout time.Duration) *Forwarder {
	return &Forwarder{backendAddr: backendAddr, timeout: timeout}
}

func (f *Forwarder) connect(ctx context.Context) (net.Conn, error) {
	dialer := net.Dialer{Timeout: f.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", f.backendAddr)
	if err != nil {
		return nil, meshErrors.NewConnectionError("connect to upstream", err)
	}
	return conn, nil
}

type copyResult struct {
	n   int64
	err error
}

// Forward dials the upstream and copies bytes in both directions until
// each half reaches EOF or the shared deadline expires. It returns the
// bytes sent to upstream and received from upstream, per spec.md §4.9's
// byte-counter contract.
func (f *Forwarder) Forward(ctx context.Context, client net.Conn, info *domain.ConnectionInfo) (sent, received uint64, err error) {
	upstream, err := f.connect(ctx)
	if err != nil {
		return 0, 0, err
	}
	defer upstream.Close()

	deadline := time.Now().Add(f.timeout)
	_ = client.SetDeadline(deadline)
	_ = upstream.SetDeadline(deadline)

	clientToUpstream := make(chan copyResult, 1)
	upstreamToClient := make(chan copyResult, 1)

	go func() {
		n, copyErr := io.Copy(upstream, client)
		closeWrite(upstream)
		clientToUpstream <- copyResult{n, copyErr}
	}()
	go func() {
		n, copyErr := io.Copy(client, upstream)
		closeWrite(client)
		upstreamToClient <- copyResult{n, copyErr}
	}()

	toUpstream := <-clientToUpstream
	fromUpstream := <-upstreamToClient

	sent = uint64(toUpstream.n)
	received = uint64(fromUpstream.n)

	if !isBenignCopyError(toUpstream.err) {
		return sent, received, meshErrors.NewConnectionError("forward client to upstream", toUpstream.err)
	}
	if !isBenignCopyError(fromUpstream.err) {
		return sent, received, meshErrors.NewConnectionError("forward upstream to client", fromUpstream.err)
	}
	return sent, received, nil
}

// writeCloser is implemented by connections that support a half-close,
// e.g. *net.TCPConn, and also *tls.Conn (CloseWrite sends close_notify
// without closing the read side). closeWrite is a no-op for any
// net.Conn that implements neither.
type writeCloser interface {
	CloseWrite() error
}

func closeWrite(conn net.Conn) {
	if wc, ok := conn.(writeCloser); ok {
		_ = wc.CloseWrite()
	}
}

// isBenignCopyError reports whether err is the expected outcome of one
// direction finishing first: nil, a deadline timeout, or the connection
// already being closed by the other goroutine's half-close.
func isBenignCopyError(err error) bool {
	if err == nil {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) || errors.Is(err, io.EOF)
}
