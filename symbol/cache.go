package symbol

import "sync"

// Cache memoizes Resolve results keyed by ((process id, module load
// timestamp), address), per §4.10's "all results are cached" contract.
// Safe for concurrent use by a single resolver instance serving queries
// from one goroutine at a time per the module's single-writer-many-readers
// discipline (§5); the mutex exists only to let a finished, read-only
// context be queried from multiple goroutines.
type Cache struct {
	mu      sync.RWMutex
	entries map[Key]Symbol
}

// NewCache creates an empty resolution cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[Key]Symbol)}
}

// Get returns the cached symbol for key, if present.
func (c *Cache) Get(key Key) (Symbol, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.entries[key]
	return s, ok
}

// Put stores sym under key, overwriting any existing entry.
func (c *Cache) Put(key Key, sym Symbol) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = sym
}

// GetOrResolve returns the cached symbol for key if present, else computes
// it via resolve, caches it, and returns it. resolve is called at most once
// per key.
func (c *Cache) GetOrResolve(key Key, resolve func() Symbol) Symbol {
	if s, ok := c.Get(key); ok {
		return s
	}
	s := resolve()
	c.Put(key, s)
	return s
}
