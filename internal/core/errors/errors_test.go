package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMeshError_ErrorFormatsWithAndWithoutCause(t *testing.T) {
	withCause := NewCAError("sign request failed", errors.New("dial tcp: timeout"))
	assert.Contains(t, withCause.Error(), "CaError")
	assert.Contains(t, withCause.Error(), "sign request failed")
	assert.Contains(t, withCause.Error(), "dial tcp: timeout")

	withoutCause := NewAuthorizationError("policy denied request")
	assert.Equal(t, "AuthorizationError: policy denied request", withoutCause.Error())
}

func TestMeshError_UnwrapExposesCause(t *testing.T) {
	cause := errors.New("boom")
	err := NewConnectionError("forward failed", cause)
	assert.ErrorIs(t, err, cause)
}

func TestMeshError_IsComparesByKindOnly(t *testing.T) {
	a := NewIdentityError("store read failed", errors.New("disk full"))
	b := NewIdentityError("different message", nil)
	assert.True(t, a.Is(b))

	c := NewTLSError("handshake failed", nil)
	assert.False(t, a.Is(c))
}
