package identity

import (
	"sync"
	"time"
)

// ContextCache is a bounded in-memory TTL cache of resolved tenant contexts,
// keyed by sender conversation. Entries expire lazily on read; cardinality is
// low (active chat senders) so no background sweeper runs. Losing the cache
// is safe: contexts are simply re-resolved.
type ContextCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[SenderKey]cacheEntry
	now     func() time.Time
}

type cacheEntry struct {
	tenant    TenantContext
	expiresAt time.Time
}

// NewContextCache creates a tenant-context cache with the given TTL.
func NewContextCache(ttl time.Duration) *ContextCache {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &ContextCache{
		ttl:     ttl,
		entries: make(map[SenderKey]cacheEntry),
		now:     time.Now,
	}
}

// Get returns the cached tenant context for the sender, if present and fresh.
func (c *ContextCache) Get(key SenderKey) (TenantContext, bool) {
	key = key.normalized()
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		return TenantContext{}, false
	}
	if c.now().After(entry.expiresAt) {
		delete(c.entries, key)
		return TenantContext{}, false
	}
	return entry.tenant, true
}

// Put stores the sender's active tenant context. Last write wins: concurrent
// requests for the same sender only affect which tenant a subsequent
// ambiguous query resolves against.
func (c *ContextCache) Put(key SenderKey, tenant TenantContext) {
	key = key.normalized()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{
		tenant:    tenant,
		expiresAt: c.now().Add(c.ttl),
	}
}

// Forget drops the cached context for a sender.
func (c *ContextCache) Forget(key SenderKey) {
	key = key.normalized()
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}
