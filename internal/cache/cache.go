// Package cache holds prior agent replies so repeated text-only questions
// can be answered without a network round trip. Entries are process-local
// and never persisted.
package cache

import (
	"strings"
	"sync"
)

// DefaultCapacity bounds the cache when no explicit capacity is given.
const DefaultCapacity = 50

// ResponseCache is a bounded key->reply map with FIFO eviction: when the
// cap would be exceeded the oldest-inserted entry goes, regardless of how
// often it was read. Keys are scoped by agent and normalized (lowercased,
// trimmed) so the same question phrased with stray whitespace still hits.
type ResponseCache struct {
	mu      sync.Mutex
	cap     int
	entries map[string]string
	order   []string // insertion order, oldest first
}

func New(capacity int) *ResponseCache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &ResponseCache{
		cap:     capacity,
		entries: make(map[string]string, capacity),
	}
}

func cacheKey(agentID, text string) string {
	return agentID + "\x00" + strings.ToLower(strings.TrimSpace(text))
}

// Lookup returns the cached reply for (agentID, text), if any.
func (c *ResponseCache) Lookup(agentID, text string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	reply, ok := c.entries[cacheKey(agentID, text)]
	return reply, ok
}

// Store records a reply, evicting the single oldest entry when the cap
// would be exceeded. Storing an existing key updates the value without
// changing its insertion position.
func (c *ResponseCache) Store(agentID, text, reply string) {
	key := cacheKey(agentID, text)

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; exists {
		c.entries[key] = reply
		return
	}
	if len(c.entries) >= c.cap {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
	c.entries[key] = reply
	c.order = append(c.order, key)
}

// Len reports the current number of entries.
func (c *ResponseCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
