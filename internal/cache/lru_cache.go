package cache

import (
	"fmt"
	"sync"
	"time"

	"github.com/bbernstein/busstops/backend-go/internal/metrics"
	"github.com/hashicorp/golang-lru/v2"
)

type clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now()
}

type lruEntry[V any] struct {
	value     V
	expiresAt time.Time
}

// TTLCache is a size-bounded LRU whose entries also expire after ttl. Lookups
// are counted in the cache metrics under "<name>_memory".
type TTLCache[V any] struct {
	name  string
	lru   *lru.Cache[string, lruEntry[V]]
	ttl   time.Duration
	clock clock
	mu    sync.Mutex
}

func NewTTLCache[V any](name string, size int, ttl time.Duration) (*TTLCache[V], error) {
	lruCache, err := lru.New[string, lruEntry[V]](size)
	if err != nil {
		return nil, fmt.Errorf("creating %s LRU cache: %w", name, err)
	}

	return &TTLCache[V]{
		name:  name,
		lru:   lruCache,
		ttl:   ttl,
		clock: systemClock{},
	}, nil
}

// Get is safe on a nil cache, which always misses.
func (c *TTLCache[V]) Get(key string) (V, bool) {
	var zero V
	if c == nil {
		return zero, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.lru.Get(key)
	if ok && c.clock.Now().Before(entry.expiresAt) {
		metrics.CacheLookup(c.name+"_memory", true)
		return entry.value, true
	}
	if ok {
		c.lru.Remove(key)
	}

	metrics.CacheLookup(c.name+"_memory", false)
	return zero, false
}

func (c *TTLCache[V]) Add(key string, value V) {
	if c == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.lru.Add(key, lruEntry[V]{
		value:     value,
		expiresAt: c.clock.Now().Add(c.ttl),
	})
}
