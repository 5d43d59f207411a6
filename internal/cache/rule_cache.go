// internal/cache/rule_cache.go
package cache

import (
	"sync"
	"sync/atomic"
	"time"

	"gitlab.com/leadcore/api/lead-routing-engine/internal/observer"
	"gitlab.com/leadcore/api/lead-routing-engine/internal/rules"
)

// RuleSnapshot is an immutable, pre-sorted view of a scope's rule sets.
// Matchers read it without locks; admin mutations publish a fresh snapshot.
type RuleSnapshot struct {
	Routing    []rules.Rule
	Forwarding []rules.Rule
	LoadedAt   time.Time
}

// RuleCache holds one copy-on-write snapshot per scope. Readers load the
// current pointer atomically; writers swap in a whole new snapshot, so a
// lead matched mid-update sees either the old rule set or the new one,
// never a mix.
type RuleCache struct {
	mu     sync.Mutex
	scopes map[string]*atomic.Pointer[RuleSnapshot]
}

// NewRuleCache creates an empty rule cache
func NewRuleCache() *RuleCache {
	return &RuleCache{
		scopes: make(map[string]*atomic.Pointer[RuleSnapshot]),
	}
}

func (c *RuleCache) slot(scopeID string) *atomic.Pointer[RuleSnapshot] {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.scopes[scopeID]
	if !ok {
		p = &atomic.Pointer[RuleSnapshot]{}
		c.scopes[scopeID] = p
	}
	return p
}

// Get returns the current snapshot for the scope, or nil when the scope has
// not been loaded or was invalidated.
func (c *RuleCache) Get(scopeID string) *RuleSnapshot {
	snap := c.slot(scopeID).Load()
	if snap == nil {
		observer.IncCacheCheck(scopeID, "rules", "miss")
		return nil
	}
	observer.IncCacheCheck(scopeID, "rules", "hit")
	return snap
}

// Put publishes a new snapshot for the scope. The rule sets are sorted into
// evaluation order here so readers never have to.
func (c *RuleCache) Put(scopeID string, routing, forwarding []rules.Rule) *RuleSnapshot {
	snap := &RuleSnapshot{
		Routing:    routing,
		Forwarding: forwarding,
		LoadedAt:   time.Now().UTC(),
	}
	rules.Sort(snap.Routing)
	rules.Sort(snap.Forwarding)
	c.slot(scopeID).Store(snap)
	return snap
}

// Invalidate drops the scope's snapshot. The next Get misses and the caller
// reloads from storage.
func (c *RuleCache) Invalidate(scopeID string) {
	c.slot(scopeID).Store(nil)
	observer.IncCacheCheck(scopeID, "rules", "invalidate")
}
