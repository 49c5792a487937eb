// Package cache is a small keyed value cache with per-entry freshness and
// invalidation notifications. It stands in for the query cache of the web
// client: values stay fresh for a fixed window, reads never trigger a refetch
// on their own, and interested parties subscribe to invalidation events.
package cache

import (
	"sync"
	"time"
)

// KeyUserInfo caches the session user record fetched from the backend.
const KeyUserInfo = "userInfo"

// DefaultFreshFor mirrors the 1 hour staleTime of the web client.
const DefaultFreshFor = time.Hour

type entry struct {
	value     any
	fetchedAt time.Time
	freshFor  time.Duration
}

// Cache holds keyed values and fans invalidation events out to subscribers.
// Safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	entries map[string]entry
	subs    []func(key string)

	// now allows tests to control freshness
	now func() time.Time
}

func New() *Cache {
	return &Cache{
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

// Get returns the cached value for key if present and still fresh.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().Sub(e.fetchedAt) > e.freshFor {
		delete(c.entries, key)
		return nil, false
	}
	return e.value, true
}

// Set stores value under key with the given freshness window.
func (c *Cache) Set(key string, value any, freshFor time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = entry{
		value:     value,
		fetchedAt: c.now(),
		freshFor:  freshFor,
	}
}

// Invalidate drops the entry for key and notifies subscribers. Notifying
// happens outside the lock so a subscriber may call back into the cache.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	subs := make([]func(string), len(c.subs))
	copy(subs, c.subs)
	c.mu.Unlock()

	for _, fn := range subs {
		fn(key)
	}
}

// Clear drops every entry. Used on logout so no per-user data survives the
// session. Subscribers are notified once per dropped key.
func (c *Cache) Clear() {
	c.mu.Lock()
	keys := make([]string, 0, len(c.entries))
	for key := range c.entries {
		keys = append(keys, key)
	}
	c.entries = make(map[string]entry)
	subs := make([]func(string), len(c.subs))
	copy(subs, c.subs)
	c.mu.Unlock()

	for _, key := range keys {
		for _, fn := range subs {
			fn(key)
		}
	}
}

// Subscribe registers fn to run on every invalidation. There is no
// unsubscribe: subscribers live as long as the process, same as the cache.
func (c *Cache) Subscribe(fn func(key string)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.subs = append(c.subs, fn)
}
