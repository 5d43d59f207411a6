// internal/cache/contact_cache.go
package cache

import (
	"fmt"
	"hash/fnv"
	"sync"
	"sync/atomic"

	"github.com/bits-and-blooms/bloom/v3"

	"gitlab.com/leadcore/api/lead-routing-engine/internal/observer"
)

// ContactCache uses a bloom filter for ultra-fast contact identity checks.
// It answers "have we seen this identity before" without a database round
// trip; the answer is probabilistic, so callers still confirm against the
// unique index on insert.
type ContactCache struct {
	knownFilter    *bloom.BloomFilter // Tracks identity keys with a persisted contact row
	mu             sync.RWMutex
	hits           atomic.Int64
	misses         atomic.Int64
	falsePositives atomic.Int64
	scopeID        string
}

// NewContactCache creates a new bloom filter cache
func NewContactCache(scopeID string, expectedKnown uint, fpRate float64) *ContactCache {
	return &ContactCache{
		knownFilter: bloom.NewWithEstimates(expectedKnown, fpRate),
		scopeID:     scopeID,
	}
}

// generateKey creates a cache key from the identity key using FNV-1a hash
func (c *ContactCache) generateKey(identityKey string) string {
	h := fnv.New64a()
	h.Write([]byte(c.scopeID + ":" + identityKey))
	return fmt.Sprintf("%x", h.Sum64())
}

// CheckIdentity performs ultra-fast check of contact identity status
func (c *ContactCache) CheckIdentity(identityKey string) IdentityStatus {
	key := c.generateKey(identityKey)

	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.knownFilter.TestString(key) {
		// Might exist (possible false positive)
		observer.IncCacheCheck(c.scopeID, "bloom_known", "possible_hit")
		return StatusMaybeKnown
	}

	c.misses.Add(1)
	observer.IncCacheCheck(c.scopeID, "bloom_known", "miss")
	return StatusUnknown
}

// MarkKnown records an identity key that now has a contact row
func (c *ContactCache) MarkKnown(identityKey string) {
	key := c.generateKey(identityKey)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.knownFilter.AddString(key)
	c.hits.Add(1)
}

// RecordFalsePositive tracks when the filter gave an incorrect positive
func (c *ContactCache) RecordFalsePositive() {
	c.falsePositives.Add(1)
	observer.IncCacheCheck(c.scopeID, "bloom_known", "false_positive")
}

// GetStats returns cache statistics
func (c *ContactCache) GetStats() ContactCacheStats {
	hits := c.hits.Load()
	misses := c.misses.Load()
	fps := c.falsePositives.Load()
	total := hits + misses

	hitRate := float64(0)
	if total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	fpRate := float64(0)
	if total > 0 {
		fpRate = float64(fps) / float64(total)
	}

	c.mu.RLock()
	knownSize := uint64(c.knownFilter.ApproximatedSize())
	c.mu.RUnlock()

	return ContactCacheStats{
		Hits:              hits,
		Misses:            misses,
		HitRate:           hitRate,
		FalsePositives:    fps,
		FalsePositiveRate: fpRate,
		KnownSize:         knownSize,
	}
}

// IdentityStatus represents the cache check result
type IdentityStatus int

const (
	StatusUnknown IdentityStatus = iota
	StatusMaybeKnown
)

type ContactCacheStats struct {
	Hits              int64
	Misses            int64
	HitRate           float64
	FalsePositives    int64
	FalsePositiveRate float64
	KnownSize         uint64
}
