package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pqsecure/mesh/internal/core/domain"
)

func TestNextCheckInterval_Buckets(t *testing.T) {
	assert.Equal(t, bucketSoonInterval, nextCheckInterval(0.10))
	assert.Equal(t, bucketMidInterval, nextCheckInterval(0.60))
	assert.Equal(t, bucketFarInterval, nextCheckInterval(0.95))
}

func TestRotationController_ManageAddsEntryDueImmediately(t *testing.T) {
	svc := NewIdentityService(new(mockCAClient), new(mockIdentityStore), nil, 20, nil)
	controller := NewRotationController(svc, time.Hour, nil)

	req := domain.IdentityRequest{ServiceName: "orders", Namespace: "checkout"}
	_, cert := issueTestCertificate(t, req.SpiffeURI(), time.Hour)
	spiffeID, err := domain.ExtractSpiffeID(cert)
	require.NoError(t, err)
	identity := domain.ServiceIdentity{
		SpiffeID:  spiffeID,
		IssuedAt:  cert.NotBefore,
		ExpiresAt: cert.NotAfter,
	}

	controller.Manage(req, identity)
	assert.Equal(t, 1, controller.Len())

	controller.mu.RLock()
	entry := controller.managed[spiffeID.URI()]
	controller.mu.RUnlock()
	require.NotNil(t, entry)
	assert.False(t, entry.nextCheckAt.After(time.Now()), "a newly managed entry should already be due")

	controller.evict(spiffeID.URI())
	assert.Equal(t, 0, controller.Len())
}
