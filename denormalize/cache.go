package denormalize

import (
	"container/list"
	"sync"

	"github.com/lattice-go/lattice/schema"
	"github.com/lattice-go/lattice/store"
)

// DefaultCacheCapacity bounds a Cache when the caller passes a non-positive
// capacity.
const DefaultCacheCapacity = 256

// Cache wraps Denormalize with an LRU-bounded cross-call cache, so view
// layers that re-render the same entities repeatedly reuse results instead
// of growing an unbounded memo. Entries key on entity type and id; the
// caller must Invalidate (or Reset) when the underlying store changes, since
// the cache cannot observe store mutations.
type Cache struct {
	mu    sync.Mutex
	cap   int
	order *list.List
	items map[string]*list.Element
}

type cacheEntry struct {
	key   string
	value any
}

// NewCache creates a cache holding at most capacity denormalized entities.
func NewCache(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}
	return &Cache{
		cap:   capacity,
		order: list.New(),
		items: map[string]*list.Element{},
	}
}

// Denormalize behaves like the package-level Denormalize but serves repeated
// (entity schema, id) lookups from the cache. Non-entity schemas and inputs
// that are not bare ids bypass the cache entirely.
func (c *Cache) Denormalize(input any, s schema.Schema, es store.Entities, opts *Options) any {
	entitySchema, ok := s.(*schema.Entity)
	if !ok {
		return Denormalize(input, s, es, opts)
	}
	id, ok := input.(string)
	if !ok || id == "" {
		return Denormalize(input, s, es, opts)
	}

	key := entitySchema.Name + ":" + id

	c.mu.Lock()
	if el, hit := c.items[key]; hit {
		c.order.MoveToFront(el)
		value := el.Value.(*cacheEntry).value
		c.mu.Unlock()
		return value
	}
	c.mu.Unlock()

	value := Denormalize(input, s, es, opts)

	c.mu.Lock()
	defer c.mu.Unlock()
	if el, hit := c.items[key]; hit {
		// Raced with another fill; keep the existing entry stable.
		c.order.MoveToFront(el)
		return el.Value.(*cacheEntry).value
	}
	c.items[key] = c.order.PushFront(&cacheEntry{key: key, value: value})
	for c.order.Len() > c.cap {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(*cacheEntry).key)
	}
	return value
}

// Invalidate drops the cached view of one entity.
func (c *Cache) Invalidate(typ, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := typ + ":" + id
	if el, ok := c.items[key]; ok {
		c.order.Remove(el)
		delete(c.items, key)
	}
}

// Reset empties the cache.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order.Init()
	c.items = map[string]*list.Element{}
}

// Len reports the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}
