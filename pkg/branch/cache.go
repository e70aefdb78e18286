package branch

import (
	"container/list"
	"log/slog"
	"sync"
	"time"

	"github.com/jwebster45206/quantum-engine/pkg/prediction"
)

const (
	// DefaultCapacity is the default maximum number of cached branches.
	DefaultCapacity = 64
	// DefaultCacheTTL is the cache-side TTL applied on top of each
	// branch's own expiry.
	DefaultCacheTTL = 5 * time.Minute
)

// CacheEntry wraps a cached branch with LRU and TTL bookkeeping. It is
// owned exclusively by the cache.
type CacheEntry struct {
	Branch       *QuantumBranch
	InsertedAt   time.Time
	LastAccessed time.Time
	AccessCount  int

	elem *list.Element // position in the LRU list; front is MRU
}

// Cache is a bounded, keyed store of precomputed branches. A single
// coarse mutex guards the primary map, the LRU list, and both secondary
// indexes, so invalidation, eviction, and lookup never observe a
// partially updated index set. No blocking I/O happens under the lock.
type Cache struct {
	mu sync.Mutex

	capacity int
	ttl      time.Duration

	entries  map[string]*CacheEntry
	lru      *list.List                 // of string branch keys
	byLoc    map[string]map[string]bool // location -> branch keys
	byAction map[string]map[string]bool // action prefix -> branch keys

	metrics CacheMetrics
	now     func() time.Time
	logger  *slog.Logger
}

// NewCache creates a branch cache. Non-positive capacity or TTL fall
// back to the defaults.
func NewCache(capacity int, ttl time.Duration, logger *slog.Logger) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		capacity: capacity,
		ttl:      ttl,
		entries:  make(map[string]*CacheEntry),
		lru:      list.New(),
		byLoc:    make(map[string]map[string]bool),
		byAction: make(map[string]map[string]bool),
		now:      time.Now,
		logger:   logger,
	}
}

// WithClock overrides the cache clock. Test hook; returns the cache for
// chaining.
func (c *Cache) WithClock(now func() time.Time) *Cache {
	c.now = now
	return c
}

// GetBranch looks up the branch for a (location, action, decision)
// tuple.
func (c *Cache) GetBranch(location string, actionType prediction.ActionType, target, decisionType string) *QuantumBranch {
	return c.GetBranchByKey(NewKey(location, actionType, target, decisionType).String())
}

// GetBranchByKey is the exact point lookup. It returns nil and records
// a miss when the key is absent, expired by cache TTL, or expired by
// the branch's own expiry. A hit refreshes the entry's LRU position.
func (c *Cache) GetBranchByKey(key string) *QuantumBranch {
	start := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		c.metrics.Misses++
		return nil
	}

	now := c.now()
	if c.entryExpired(entry, now) {
		c.removeLocked(key)
		c.metrics.Expiries++
		c.metrics.Misses++
		return nil
	}

	entry.LastAccessed = now
	entry.AccessCount++
	c.lru.MoveToFront(entry.elem)

	c.metrics.Hits++
	c.metrics.hitLatencyTotal += time.Since(start)
	return entry.Branch
}

// GetBranchesForAction returns every live GM-decision variant cached
// for one action, keyed by decision type.
func (c *Cache) GetBranchesForAction(location string, actionType prediction.ActionType, target string) map[string]*QuantumBranch {
	prefix := NewKey(location, actionType, target, "x").ActionPrefix()

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	out := make(map[string]*QuantumBranch)
	for key := range c.byAction[prefix] {
		entry, ok := c.entries[key]
		if !ok {
			continue
		}
		if c.entryExpired(entry, now) {
			c.removeLocked(key)
			c.metrics.Expiries++
			continue
		}
		out[entry.Branch.Key.DecisionType] = entry.Branch
	}
	return out
}

// PutBranch inserts or overwrites a branch. An overwrite never
// duplicates the key and counts as a fresh LRU touch. Insertion beyond
// capacity evicts the least recently used entry.
func (c *Cache) PutBranch(b *QuantumBranch) {
	if b == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.putLocked(b)
}

// PutBranches inserts a batch under a single lock acquisition.
func (c *Cache) PutBranches(branches []*QuantumBranch) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, b := range branches {
		if b != nil {
			c.putLocked(b)
		}
	}
}

func (c *Cache) putLocked(b *QuantumBranch) {
	key := b.Key.String()
	now := c.now()

	if existing, ok := c.entries[key]; ok {
		existing.Branch = b
		existing.InsertedAt = now
		existing.LastAccessed = now
		c.lru.MoveToFront(existing.elem)
		c.metrics.Puts++
		return
	}

	entry := &CacheEntry{
		Branch:       b,
		InsertedAt:   now,
		LastAccessed: now,
	}
	entry.elem = c.lru.PushFront(key)
	c.entries[key] = entry
	c.indexAdd(b.Key)
	c.metrics.Puts++

	for len(c.entries) > c.capacity {
		c.evictLRULocked()
	}
}

// evictLRULocked removes the least recently used entry.
func (c *Cache) evictLRULocked() {
	back := c.lru.Back()
	if back == nil {
		return
	}
	key := back.Value.(string)
	c.removeLocked(key)
	c.metrics.Evictions++
	c.logger.Debug("Evicted branch", "key", key)
}

// InvalidateLocation removes every branch whose key's location segment
// matches. Used when authoritative world state changes at a location.
// Returns the number of branches removed.
func (c *Cache) InvalidateLocation(location string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := c.byLoc[location]
	n := len(keys)
	for key := range keys {
		c.removeLocked(key)
		c.metrics.Invalidations++
	}
	if n > 0 {
		c.logger.Debug("Invalidated location", "location", location, "branches", n)
	}
	return n
}

// InvalidateBranch removes a single branch by key. Returns true when
// the branch was present.
func (c *Cache) InvalidateBranch(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; !ok {
		return false
	}
	c.removeLocked(key)
	c.metrics.Invalidations++
	return true
}

// Clear drops every entry and both indexes.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*CacheEntry)
	c.lru.Init()
	c.byLoc = make(map[string]map[string]bool)
	c.byAction = make(map[string]map[string]bool)
}

// CleanupExpired sweeps entries past either TTL. Returns the number
// removed.
func (c *Cache) CleanupExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	var expired []string
	for key, entry := range c.entries {
		if c.entryExpired(entry, now) {
			expired = append(expired, key)
		}
	}
	for _, key := range expired {
		c.removeLocked(key)
		c.metrics.Expiries++
	}
	return len(expired)
}

// Len returns the number of live entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Metrics returns a snapshot of the accumulated cache metrics.
func (c *Cache) Metrics() CacheMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.metrics
}

func (c *Cache) entryExpired(entry *CacheEntry, now time.Time) bool {
	if now.Sub(entry.InsertedAt) >= c.ttl {
		return true
	}
	return entry.Branch.Expired(now)
}

// removeLocked removes an entry from the primary map, the LRU list, and
// both indexes in one step.
func (c *Cache) removeLocked(key string) {
	entry, ok := c.entries[key]
	if !ok {
		return
	}
	c.lru.Remove(entry.elem)
	delete(c.entries, key)
	c.indexRemove(entry.Branch.Key)
}

func (c *Cache) indexAdd(k Key) {
	key := k.String()
	if c.byLoc[k.Location] == nil {
		c.byLoc[k.Location] = make(map[string]bool)
	}
	c.byLoc[k.Location][key] = true

	prefix := k.ActionPrefix()
	if c.byAction[prefix] == nil {
		c.byAction[prefix] = make(map[string]bool)
	}
	c.byAction[prefix][key] = true
}

func (c *Cache) indexRemove(k Key) {
	key := k.String()
	if keys := c.byLoc[k.Location]; keys != nil {
		delete(keys, key)
		if len(keys) == 0 {
			delete(c.byLoc, k.Location)
		}
	}
	prefix := k.ActionPrefix()
	if keys := c.byAction[prefix]; keys != nil {
		delete(keys, key)
		if len(keys) == 0 {
			delete(c.byAction, prefix)
		}
	}
}
