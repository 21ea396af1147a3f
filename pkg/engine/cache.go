package engine

import (
	"sync"
	"time"
)

// cacheKey identifies one decision cache entry.
type cacheKey struct {
	service     string
	environment string
}

// entry is the mutable per-key decision record. The entry lock serializes
// Decide for its key; hysteresis state is only touched under it.
type entry struct {
	mu sync.Mutex

	// current is the effective decision, nil before the first Decide.
	current *Decision

	// lastRawID is the raw match id seen on the previous Decide call,
	// used to detect a continuous raw match.
	lastRawID string

	// dwell counts consecutive Decide calls for which lastRawID has been
	// the raw match while a de-escalation is pending.
	dwell int

	// dwellSince is when the pending raw match first appeared.
	dwellSince time.Time

	// lastChange is when the effective action last changed.
	lastChange time.Time
}

// cache maps keys to entries. The outer lock only guards the map; per-key
// work happens under the entry lock so keys never block each other.
type cache struct {
	mu      sync.RWMutex
	entries map[cacheKey]*entry
}

func newCache() *cache {
	return &cache{entries: make(map[cacheKey]*entry)}
}

// entryFor returns the entry for a key, creating it on first use.
func (c *cache) entryFor(key cacheKey) *entry {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		return e
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		return e
	}
	e = &entry{}
	c.entries[key] = e
	return e
}

// peek returns a copy of the current decision for a key without creating
// an entry.
func (c *cache) peek(key cacheKey) (Decision, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return Decision{}, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == nil {
		return Decision{}, false
	}
	return *e.current, true
}

// len returns the number of keys with cache entries.
func (c *cache) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
