package secrets

import (
	"sync"
	"time"
)

// cacheEntry represents a single cached secret value with its expiration time.
type cacheEntry struct {
	value      any
	expiration time.Time
}

// isExpired checks if the cache entry has expired at now.
func (e *cacheEntry) isExpired(now time.Time) bool {
	return !now.Before(e.expiration)
}

// InMemoryCache provides a thread-safe in-memory cache implementation with TTL support.
// It keeps secret values read from Secrets Manager so repeated provisioning
// within a session does not hit the service for every grant.
type InMemoryCache struct {
	// entries holds the cached values with their expiration times
	entries map[string]*cacheEntry

	// maxSize limits the number of entries in the cache (0 = unlimited)
	maxSize int

	// defaultTTL is the time-to-live used when Set is called with a zero ttl
	defaultTTL time.Duration

	// now returns the current time; tests replace it to expire entries
	now func() time.Time

	// mu protects concurrent access to the entries map
	mu sync.Mutex
}

// NewInMemoryCache creates a new in-memory cache with the specified default TTL and maximum size.
// If maxSize is 0, the cache has no size limit.
func NewInMemoryCache(defaultTTL time.Duration, maxSize int) *InMemoryCache {
	return &InMemoryCache{
		entries:    make(map[string]*cacheEntry),
		maxSize:    maxSize,
		defaultTTL: defaultTTL,
		now:        time.Now,
	}
}

// Get retrieves a value from the cache by key.
// Returns the value and true if found and not expired, nil and false if not found or expired.
func (c *InMemoryCache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if entry.isExpired(c.now()) {
		// Clean up expired entry
		delete(c.entries, key)
		return nil, false
	}
	return entry.value, true
}

// Set stores a value in the cache with the specified key and TTL.
// If ttl is 0, the default TTL is used. A negative ttl stores nothing.
// If the cache is at maximum capacity, the entry closest to expiry is evicted.
func (c *InMemoryCache) Set(key string, value any, ttl time.Duration) {
	// Use default TTL if not specified
	if ttl == 0 {
		ttl = c.defaultTTL
	}
	if ttl <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	// Replacing an existing key never needs an eviction
	if _, exists := c.entries[key]; !exists && c.maxSize > 0 && len(c.entries) >= c.maxSize {
		var oldestKey string
		var oldest time.Time
		for k, entry := range c.entries {
			if oldestKey == "" || entry.expiration.Before(oldest) {
				oldestKey, oldest = k, entry.expiration
			}
		}
		delete(c.entries, oldestKey)
	}

	c.entries[key] = &cacheEntry{value: value, expiration: now.Add(ttl)}
}

// Delete removes a specific key from the cache.
func (c *InMemoryCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Size returns the current number of entries in the cache (excluding expired entries).
func (c *InMemoryCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Clean up expired entries while counting
	now := c.now()
	for key, entry := range c.entries {
		if entry.isExpired(now) {
			delete(c.entries, key)
		}
	}
	return len(c.entries)
}
