package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pqsecure/mesh/internal/core/domain"
)

// Remaining-lifetime buckets governing the next check interval for a
// Valid identity that does not yet need rotation, per spec.md §4.5.
const (
	bucketSoonFraction = 0.50
	bucketSoonInterval = time.Hour
	bucketMidFraction  = 0.80
	bucketMidInterval  = 24 * time.Hour
	bucketFarInterval  = 7 * 24 * time.Hour

	// postRotationInterval is the next-check delay scheduled immediately
	// after a rotation.
	postRotationInterval = 24 * time.Hour
)

// managedEntry is one tracked identity: its current value, the request
// shape used to mint it (so a rotation reissues with the same SANs), and
// when it is next due for a status check.
type managedEntry struct {
	identity    domain.ServiceIdentity
	request     domain.IdentityRequest
	nextCheckAt time.Time
}

// RotationController is C5: a single background task that maintains
// spiffe_uri -> {identity, next_check_at} and drives renewal/eviction.
// It holds its lock only to snapshot or mutate the managed set; all
// per-identity CA/store work happens off-lock.
type RotationController struct {
	identitySvc  *IdentityService
	tickInterval time.Duration
	logger       *slog.Logger

	mu      sync.RWMutex
	managed map[string]*managedEntry

	onRotate func(domain.ServiceIdentity)

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewRotationController constructs a RotationController. tickInterval is
// how often Run wakes to scan for due entries.
func NewRotationController(identitySvc *IdentityService, tickInterval time.Duration, logger *slog.Logger) *RotationController {
	if logger == nil {
		logger = slog.Default()
	}
	if tickInterval <= 0 {
		tickInterval = time.Minute
	}
	return &RotationController{
		identitySvc:  identitySvc,
		tickInterval: tickInterval,
		logger:       logger,
		managed:      make(map[string]*managedEntry),
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}
}

// OnRotate registers a callback invoked with the freshly rotated
// identity every time this controller replaces one, e.g. so the
// acceptor can swap in the new TLS certificate. It is not called for
// the initial Manage.
func (c *RotationController) OnRotate(fn func(domain.ServiceIdentity)) {
	c.onRotate = fn
}

// Manage adds or replaces the tracked entry for identity, due for its
// first check immediately.
func (c *RotationController) Manage(req domain.IdentityRequest, identity domain.ServiceIdentity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.managed[identity.SpiffeID.URI()] = &managedEntry{
		identity:    identity,
		request:     req,
		nextCheckAt: time.Now(),
	}
}

// Run drives the tick loop until ctx is canceled or Stop is called.
func (c *RotationController) Run(ctx context.Context) {
	defer close(c.doneCh)
	ticker := time.NewTicker(c.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.tick(ctx)
		}
	}
}

// Stop signals Run to exit and waits for it to return.
func (c *RotationController) Stop() {
	close(c.stopCh)
	<-c.doneCh
}

// tick snapshots due entries under the lock, then performs CA/store work
// for each one without holding it.
func (c *RotationController) tick(ctx context.Context) {
	now := time.Now()

	c.mu.RLock()
	due := make([]string, 0)
	for uri, entry := range c.managed {
		if !entry.nextCheckAt.After(now) {
			due = append(due, uri)
		}
	}
	c.mu.RUnlock()

	for _, uri := range due {
		c.mu.RLock()
		entry, ok := c.managed[uri]
		c.mu.RUnlock()
		if !ok {
			continue
		}
		c.processEntry(ctx, uri, entry)
	}
}

func (c *RotationController) processEntry(ctx context.Context, uri string, entry *managedEntry) {
	status := c.identitySvc.Status(ctx, entry.identity)

	switch status {
	case domain.StatusRevoked, domain.StatusUnknown:
		c.evict(uri)
		c.logger.Info("identity evicted from rotation", "spiffe_id", uri, "status", status.String())

	case domain.StatusExpired:
		c.rotateAndReschedule(ctx, uri, entry, postRotationInterval)

	case domain.StatusValid:
		now := time.Now()
		fraction := entry.identity.RemainingLifetimeFraction(now)
		threshold := float64(c.identitySvc.renewThresholdPct) / 100.0
		if fraction <= threshold {
			c.rotateAndReschedule(ctx, uri, entry, postRotationInterval)
			return
		}
		c.reschedule(uri, nextCheckInterval(fraction))
	}
}

func (c *RotationController) rotateAndReschedule(ctx context.Context, uri string, entry *managedEntry, interval time.Duration) {
	fresh, err := c.identitySvc.Rotate(ctx, entry.request)
	if err != nil {
		c.logger.Warn("rotation failed, will retry next tick", "spiffe_id", uri, "error", err)
		return
	}
	c.mu.Lock()
	if existing, ok := c.managed[uri]; ok {
		existing.identity = *fresh
		existing.nextCheckAt = time.Now().Add(interval)
	}
	c.mu.Unlock()
	c.logger.Info("identity rotated", "spiffe_id", uri)

	if c.onRotate != nil {
		c.onRotate(*fresh)
	}
}

func (c *RotationController) reschedule(uri string, interval time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok := c.managed[uri]; ok {
		entry.nextCheckAt = time.Now().Add(interval)
	}
}

func (c *RotationController) evict(uri string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.managed, uri)
}

// Len reports how many identities are currently managed; used by tests
// and diagnostics.
func (c *RotationController) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.managed)
}

// nextCheckInterval maps a remaining-lifetime fraction to its bucketed
// recheck delay per spec.md §4.5.
func nextCheckInterval(fraction float64) time.Duration {
	switch {
	case fraction < bucketSoonFraction:
		return bucketSoonInterval
	case fraction < bucketMidFraction:
		return bucketMidInterval
	default:
		return bucketFarInterval
	}
}
