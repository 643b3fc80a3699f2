package router

import (
	"cmp"
	"maps"
	"slices"

	"github.com/flankersky/vector-ap-bsw-sub007/pkg/someip"
)

type cacheEntry struct {
	packet *someip.Packet
	stale  bool
}

// Cache stores the last known packet per key. Staleness is a flag: a stale
// entry stays in place until the next InsertOrAssign overwrites it.
type Cache[K cmp.Ordered] struct {
	entries map[K]*cacheEntry
}

// NewCache creates an empty cache.
func NewCache[K cmp.Ordered]() *Cache[K] {
	return &Cache[K]{entries: make(map[K]*cacheEntry)}
}

// InsertOrAssign stores pkt under key and clears its stale flag.
func (c *Cache[K]) InsertOrAssign(key K, pkt *someip.Packet) {
	if e, ok := c.entries[key]; ok {
		e.packet = pkt
		e.stale = false
		return
	}
	c.entries[key] = &cacheEntry{packet: pkt}
}

// GetValue returns the packet for key unless it is absent or stale.
func (c *Cache[K]) GetValue(key K) (*someip.Packet, bool) {
	e, ok := c.entries[key]
	if !ok || e.stale {
		return nil, false
	}
	return e.packet, true
}

// MarkStale flags the entry for key. Absent keys are left absent.
func (c *Cache[K]) MarkStale(key K) {
	if e, ok := c.entries[key]; ok {
		e.stale = true
	}
}

// MarkAllStale flags every entry.
func (c *Cache[K]) MarkAllStale() {
	for _, e := range c.entries {
		e.stale = true
	}
}

// IsStale reports whether key is absent or flagged.
func (c *Cache[K]) IsStale(key K) bool {
	e, ok := c.entries[key]
	return !ok || e.stale
}

// Len returns the number of entries, stale ones included.
func (c *Cache[K]) Len() int {
	return len(c.entries)
}

// Keys returns all keys in ascending order, stale ones included.
func (c *Cache[K]) Keys() []K {
	return slices.Sorted(maps.Keys(c.entries))
}
