package ports

import (
	"context"

	"github.com/pqsecure/mesh/internal/core/domain"
)

// IdentityStore is C3: one JSON document per (tenant, service) on disk.
// Implementations must make concurrent save-then-load on the same key
// appear atomic to readers (write-to-temp-then-rename).
type IdentityStore interface {
	Load(ctx context.Context, id domain.SpiffeId) (*domain.ServiceIdentity, error)
	Save(ctx context.Context, identity domain.ServiceIdentity) error
	Delete(ctx context.Context, id domain.SpiffeId) error
}

// ErrIdentityNotFound is returned by Load when no stored identity exists
// for the given SPIFFE ID.
var ErrIdentityNotFound = identityNotFoundError{}

type identityNotFoundError struct{}

func (identityNotFoundError) Error() string { return "identity not found" }
