// Package cache provides the soft-limit cache gpumath keeps compiled
// shader binaries in.
//
//	c := cache.New[string, []uint32](64)
//	words, err := c.GetOrCreate(key, compile)
//
// When the number of entries exceeds the soft limit, the least recently
// used quarter is evicted. Failed creations are never stored.
//
// Cache is safe for concurrent use.
package cache
