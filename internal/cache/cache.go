package cache

import (
	"context"
	"sync"
	"time"

	"github.com/kjstillabower/weather-advisor-service/internal/models"
)

// Cache memoizes normalized weather payloads keyed by lowercased city query.
// Get returns the cached payload if present and not expired; Set stores a
// payload with a TTL measured from insertion time.
type Cache interface {
	Get(ctx context.Context, key string) (models.NormalizedWeather, bool, error)
	Set(ctx context.Context, key string, value models.NormalizedWeather, ttl time.Duration) error
}

// InMemoryCache implements Cache with a mutex-guarded map. Expiry is lazy:
// a stale entry is evicted by the read that observes it; there is no
// background sweep and no size bound.
type InMemoryCache struct {
	mu   sync.Mutex
	data map[string]cacheEntry
}

type cacheEntry struct {
	value     models.NormalizedWeather
	expiresAt time.Time
}

// NewInMemoryCache creates a new in-memory cache instance.
func NewInMemoryCache() *InMemoryCache {
	return &InMemoryCache{
		data: make(map[string]cacheEntry),
	}
}

// Get retrieves the cached payload for key if present and not expired.
// Returns (data, true, nil) on hit, (zero, false, nil) on miss or expiry.
// The staleness check and the eviction it triggers happen under one lock
// acquisition, so concurrent readers of the same key cannot race them.
func (c *InMemoryCache) Get(ctx context.Context, key string) (models.NormalizedWeather, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.data[key]
	if !ok {
		return models.NormalizedWeather{}, false, nil
	}

	if time.Now().After(entry.expiresAt) {
		delete(c.data, key)
		return models.NormalizedWeather{}, false, nil
	}

	return entry.value, true, nil
}

// Set stores a payload with the specified TTL.
func (c *InMemoryCache) Set(ctx context.Context, key string, value models.NormalizedWeather, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.data[key] = cacheEntry{
		value:     value,
		expiresAt: time.Now().Add(ttl),
	}
	return nil
}
