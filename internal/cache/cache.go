// Package cache provides the process-wide, lock-protected caches shared by
// the storage engine: schema-info, keyspace-name resolution, storage-group
// membership, and per-keyspace replication-update bookkeeping.
package cache

import (
	"sync"
	"time"

	"github.com/axonops/revtable/internal/schemamodel"
)

// Cache is a simple in-memory cache with LRU eviction.
type Cache struct {
	capacity int
	ttl      time.Duration
	mu       sync.RWMutex
	items    map[string]*cacheItem
	order    []string // For LRU tracking
}

// cacheItem represents a cached item.
type cacheItem struct {
	value     interface{}
	expiresAt time.Time
}

// New creates a new cache with the specified capacity and TTL. A zero TTL
// means entries never expire on their own, which is what the process-wide
// set-once caches (schema-info, keyspace names, storage groups) want: they
// are only ever invalidated explicitly, on a successful migration.
func New(capacity int, ttl time.Duration) *Cache {
	return &Cache{
		capacity: capacity,
		ttl:      ttl,
		items:    make(map[string]*cacheItem),
		order:    make([]string, 0, capacity),
	}
}

// Get retrieves an item from the cache.
func (c *Cache) Get(key string) (interface{}, bool) {
	c.mu.RLock()
	item, ok := c.items[key]
	c.mu.RUnlock()

	if !ok {
		return nil, false
	}

	// Check if expired (entries with a zero ttl never expire).
	if c.ttl > 0 && time.Now().After(item.expiresAt) {
		c.Delete(key)
		return nil, false
	}

	// Move to end of order list (most recently used)
	c.mu.Lock()
	c.moveToEnd(key)
	c.mu.Unlock()

	return item.value, true
}

// Set stores an item in the cache.
func (c *Cache) Set(key string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Check if key already exists
	if _, exists := c.items[key]; exists {
		c.items[key] = &cacheItem{
			value:     value,
			expiresAt: time.Now().Add(c.ttl),
		}
		c.moveToEnd(key)
		return
	}

	// Evict if at capacity
	if len(c.items) >= c.capacity && c.capacity > 0 {
		c.evict()
	}

	// Add new item
	c.items[key] = &cacheItem{
		value:     value,
		expiresAt: time.Now().Add(c.ttl),
	}
	c.order = append(c.order, key)
}

// Delete removes an item from the cache.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.items, key)
	c.removeFromOrder(key)
}

// Clear removes all items from the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*cacheItem)
	c.order = make([]string, 0, c.capacity)
}

// Size returns the number of items in the cache.
func (c *Cache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// evict removes the least recently used item.
func (c *Cache) evict() {
	if len(c.order) == 0 {
		return
	}

	// Remove oldest (first in order)
	oldest := c.order[0]
	c.order = c.order[1:]
	delete(c.items, oldest)
}

// moveToEnd moves a key to the end of the order list.
func (c *Cache) moveToEnd(key string) {
	c.removeFromOrder(key)
	c.order = append(c.order, key)
}

// removeFromOrder removes a key from the order list.
func (c *Cache) removeFromOrder(key string) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

// CleanupExpired removes all expired items from the cache. A no-op on a
// zero-ttl cache, since its entries never expire.
func (c *Cache) CleanupExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ttl <= 0 {
		return 0
	}

	now := time.Now()
	removed := 0
	for key, item := range c.items {
		if now.After(item.expiresAt) {
			delete(c.items, key)
			c.removeFromOrder(key)
			removed++
		}
	}
	return removed
}

// Invalidate removes a single entry, used when a successful schema
// migration or replication update makes a cached value stale.
func (c *Cache) Invalidate(key string) {
	c.Delete(key)
}

// GetOrSet returns the cached value for key, computing and storing it via
// load on a miss. Concurrent callers racing on the same key may both call
// load, but since the stored values here are derived deterministically from
// immutable inputs, the last write is equivalent to any other.
func (c *Cache) GetOrSet(key string, load func() (interface{}, error)) (interface{}, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, err := load()
	if err != nil {
		return nil, err
	}
	c.Set(key, v)
	return v, nil
}

// Stats returns cache statistics.
type Stats struct {
	Size     int
	Capacity int
}

// Stats returns the current cache statistics.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{
		Size:     len(c.items),
		Capacity: c.capacity,
	}
}

// SchemaInfoCache caches derived schema-info by keyspace, the process-wide
// "schemaCache" of the concurrency model: populated lazily on first access
// and invalidated explicitly after a successful migration.
type SchemaInfoCache struct {
	cache *Cache
}

// NewSchemaInfoCache creates an unbounded, non-expiring schema-info cache.
func NewSchemaInfoCache() *SchemaInfoCache {
	return &SchemaInfoCache{cache: New(0, 0)}
}

// Get retrieves the cached schema-info for keyspace.
func (c *SchemaInfoCache) Get(keyspace string) (*schemamodel.SchemaInfo, bool) {
	v, ok := c.cache.Get(keyspace)
	if !ok {
		return nil, false
	}
	return v.(*schemamodel.SchemaInfo), true
}

// Set stores the schema-info for keyspace.
func (c *SchemaInfoCache) Set(keyspace string, info *schemamodel.SchemaInfo) {
	c.cache.Set(keyspace, info)
}

// Invalidate drops the cached schema-info for keyspace, forcing the next
// access to re-derive it from the persisted meta row.
func (c *SchemaInfoCache) Invalidate(keyspace string) {
	c.cache.Invalidate(keyspace)
}

// KeyspaceNameCache memoizes domain,table -> keyspace name resolution,
// keyed by domain and table joined with a NUL byte.
type KeyspaceNameCache struct {
	cache *Cache
}

// NewKeyspaceNameCache creates an unbounded, non-expiring keyspace-name cache.
func NewKeyspaceNameCache() *KeyspaceNameCache {
	return &KeyspaceNameCache{cache: New(0, 0)}
}

func keyspaceNameKey(domain, table string) string { return domain + "\x00" + table }

// Get retrieves the cached keyspace name for (domain, table).
func (c *KeyspaceNameCache) Get(domain, table string) (string, bool) {
	v, ok := c.cache.Get(keyspaceNameKey(domain, table))
	if !ok {
		return "", false
	}
	return v.(string), true
}

// Set stores the keyspace name resolved for (domain, table).
func (c *KeyspaceNameCache) Set(domain, table, keyspace string) {
	c.cache.Set(keyspaceNameKey(domain, table), keyspace)
}

// StorageGroupCache memoizes domain -> storage-group-name resolution.
type StorageGroupCache struct {
	cache *Cache
}

// NewStorageGroupCache creates an unbounded, non-expiring storage-group cache.
func NewStorageGroupCache() *StorageGroupCache {
	return &StorageGroupCache{cache: New(0, 0)}
}

// Get retrieves the cached storage-group name for domain.
func (c *StorageGroupCache) Get(domain string) (string, bool) {
	v, ok := c.cache.Get(domain)
	if !ok {
		return "", false
	}
	return v.(string), true
}

// Set stores the storage-group name resolved for domain.
func (c *StorageGroupCache) Set(domain, group string) {
	c.cache.Set(domain, group)
}

// ReplicationUpdateCache records, per keyspace, whether this process has
// already pushed the configured replication settings during this run, so
// ConfigMigrator does not re-issue ALTER KEYSPACE on every request.
type ReplicationUpdateCache struct {
	cache *Cache
}

// NewReplicationUpdateCache creates an unbounded, non-expiring cache.
func NewReplicationUpdateCache() *ReplicationUpdateCache {
	return &ReplicationUpdateCache{cache: New(0, 0)}
}

// Done reports whether replication has already been updated for keyspace.
func (c *ReplicationUpdateCache) Done(keyspace string) bool {
	v, ok := c.cache.Get(keyspace)
	return ok && v.(bool)
}

// MarkDone records that replication has been updated for keyspace.
func (c *ReplicationUpdateCache) MarkDone(keyspace string) {
	c.cache.Set(keyspace, true)
}
