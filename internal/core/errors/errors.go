// Package errors defines the mesh's error kind taxonomy.
package errors

import "fmt"

// Kind tags which of the mesh's error categories an error belongs to,
// per spec.md §7.
type Kind string

const (
	// KindConfig is a fatal configuration error, raised at startup.
	KindConfig Kind = "ConfigError"
	// KindCA is an error surfaced from the CA client to the identity
	// service; retryable.
	KindCA Kind = "CaError"
	// KindIdentity is an identity store persistence or parsing error.
	KindIdentity Kind = "IdentityError"
	// KindTLS is a handshake-time error.
	KindTLS Kind = "TlsError"
	// KindAuthentication covers SPIFFE extraction and trust domain
	// mismatches.
	KindAuthentication Kind = "AuthenticationError"
	// KindAuthorization is a policy-engine deny.
	KindAuthorization Kind = "AuthorizationError"
	// KindConnection is a forwarder I/O error.
	KindConnection Kind = "ConnectionError"
	// KindInternal marks a bug-class error: something the mesh's own
	// invariants guarantee cannot happen, so it should fail loudly.
	KindInternal Kind = "InternalError"
)

// MeshError is the single error type carrying a Kind, an operator-facing
// message, and an optional wrapped cause. The message is for logs and
// CLI output only; it is never serialized onto the wire.
type MeshError struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *MeshError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *MeshError) Unwrap() error {
	return e.Err
}

// Is supports errors.Is comparisons by Kind, ignoring Message/Err, so
// callers can write errors.Is(err, &MeshError{Kind: KindCA}).
func (e *MeshError) Is(target error) bool {
	t, ok := target.(*MeshError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

func newError(kind Kind, message string, err error) *MeshError {
	return &MeshError{Kind: kind, Message: message, Err: err}
}

// NewConfigError wraps err (if any) as a fatal configuration error.
func NewConfigError(message string, err error) *MeshError {
	return newError(KindConfig, message, err)
}

// NewCAError wraps err as a retryable CA-client error.
func NewCAError(message string, err error) *MeshError {
	return newError(KindCA, message, err)
}

// NewIdentityError wraps err as an identity persistence/parsing error.
func NewIdentityError(message string, err error) *MeshError {
	return newError(KindIdentity, message, err)
}

// NewTLSError wraps err as a handshake-time error.
func NewTLSError(message string, err error) *MeshError {
	return newError(KindTLS, message, err)
}

// NewAuthenticationError wraps err as a SPIFFE extraction or trust
// domain error.
func NewAuthenticationError(message string, err error) *MeshError {
	return newError(KindAuthentication, message, err)
}

// NewAuthorizationError reports a policy-engine deny. There is no
// wrapped cause: a deny is not a failure, it is a decision.
func NewAuthorizationError(message string) *MeshError {
	return newError(KindAuthorization, message, nil)
}

// NewConnectionError wraps err as a forwarder I/O error.
func NewConnectionError(message string, err error) *MeshError {
	return newError(KindConnection, message, err)
}

// NewInternalError wraps err as a bug-class error.
func NewInternalError(message string, err error) *MeshError {
	return newError(KindInternal, message, err)
}
