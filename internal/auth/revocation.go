package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/otcheredev/incident-desk/internal/cache"
)

const revokedKeyPrefix = "revoked:"

// CacheRevocations keeps revoked credential ids in a cache until they expire.
type CacheRevocations struct {
	cache cache.Cache
	now   func() time.Time
}

// NewCacheRevocations creates a revocation store backed by c
func NewCacheRevocations(c cache.Cache) *CacheRevocations {
	return &CacheRevocations{cache: c, now: time.Now}
}

// Revoke marks tokenID revoked until the given time
func (r *CacheRevocations) Revoke(ctx context.Context, tokenID string, until time.Time) error {
	ttl := until.Sub(r.now())
	if ttl <= 0 {
		return nil
	}
	if err := r.cache.Set(ctx, revokedKeyPrefix+tokenID, []byte("1"), ttl); err != nil {
		return fmt.Errorf("failed to revoke credential: %w", err)
	}
	return nil
}

// IsRevoked checks whether tokenID has been revoked
func (r *CacheRevocations) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	revoked, err := r.cache.Exists(ctx, revokedKeyPrefix+tokenID)
	if err != nil {
		return false, fmt.Errorf("failed to check revocation: %w", err)
	}
	return revoked, nil
}
