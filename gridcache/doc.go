// Package gridcache provides a bounded read-through cache in front of raw
// per-tile storage.
//
// Algorithms that probe the same tiles many times in a short window
// (pathfinding, line of sight, batched updates) read through the cache;
// writes go straight to storage and invalidate the cached entry.
//
// Eviction is first-in first-out on insertion order. A hit does not refresh
// an entry's position, so this is not an LRU cache.
package gridcache
