package proxy

import (
	"bufio"
	"net"
)

// bufferedConn wraps a net.Conn so reads are served from a *bufio.Reader,
// letting the detector peek bytes without consuming them from the
// forwarder's point of view: whatever the detector peeked is still the
// first thing Read returns.
type bufferedConn struct {
	net.Conn
	br *bufio.Reader
}

func newBufferedConn(conn net.Conn, br *bufio.Reader) *bufferedConn {
	return &bufferedConn{Conn: conn, br: br}
}

func (c *bufferedConn) Read(p []byte) (int, error) {
	return c.br.Read(p)
}

// CloseWrite half-closes the wrapped connection when it supports it
// (*tls.Conn does), so the forwarder's half-close reaches the client
// through this wrapper; otherwise it is a no-op.
func (c *bufferedConn) CloseWrite() error {
	if wc, ok := c.Conn.(writeCloser); ok {
		return wc.CloseWrite()
	}
	return nil
}
