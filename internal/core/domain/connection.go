package domain

import (
	"net"

	"github.com/google/uuid"
)

// ConnectionInfo is per-connection state threaded from the acceptor (C7)
// through the protocol detector (C8) to the forwarder (C9). It is created
// once a TCP connection is accepted and is never shared across
// connections; identity and method are populated as the pipeline
// discovers them.
type ConnectionInfo struct {
	ID         uuid.UUID
	SourceAddr net.Addr
	Identity   *SpiffeId
	Protocol   Protocol
	// Method is the detected application-level operation, e.g. an HTTP
	// verb+path or a gRPC fully-qualified method name. Empty until C8
	// extracts it.
	Method string
}

// NewConnectionInfo creates a ConnectionInfo for a freshly accepted
// connection; identity and method start unset.
func NewConnectionInfo(source net.Addr) *ConnectionInfo {
	return &ConnectionInfo{
		ID:         uuid.New(),
		SourceAddr: source,
		Protocol:   ProtocolUnknown,
	}
}

// WithIdentity records the peer identity extracted from the mTLS
// handshake certificate.
func (c *ConnectionInfo) WithIdentity(id SpiffeId) *ConnectionInfo {
	c.Identity = &id
	return c
}

// HasIdentity reports whether a peer identity has been established.
func (c *ConnectionInfo) HasIdentity() bool {
	return c.Identity != nil && !c.Identity.IsZero()
}
