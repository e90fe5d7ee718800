package cache

import (
	"encoding/binary"
	"hash/fnv"
	"sync"
)

// Sharded is an N-way partitioned LRU cache. Each partition is an
// independent lruShard guarded by its own RWMutex, so operations on
// keys that hash to different shards never contend.
//
// Routing:
//   - A key belongs to exactly one shard: fnv1a(key) mod N
//   - The hash is stable for the process lifetime
//   - There is no global recency order across shards, by design
//
// Locking discipline:
//   - Every operation takes the owning shard's write lock, including
//     Lookup: a cache hit promotes the entry in the recency list, which
//     is a mutation. A read lock here would race the list splice.
//   - No operation holds more than one shard lock, so cross-shard
//     deadlock is impossible.
type Sharded struct {
	shards []*lruShard
	locks  []sync.RWMutex
}

// NewSharded creates a sharded cache with shardCount partitions sharing
// totalCapacity. Each shard gets max(1, totalCapacity/shardCount)
// entries. A shardCount below 1 is clamped to 1.
func NewSharded(totalCapacity, shardCount int) *Sharded {
	if shardCount < 1 {
		shardCount = 1
	}
	perShard := totalCapacity / shardCount
	if perShard < 1 {
		perShard = 1
	}

	c := &Sharded{
		shards: make([]*lruShard, shardCount),
		locks:  make([]sync.RWMutex, shardCount),
	}
	for i := range c.shards {
		c.shards[i] = newLRUShard(perShard)
	}
	return c
}

// shardFor routes a key to its owning shard index.
//
// FNV-1a over the key's 8 little-endian bytes: not cryptographic, but
// stable and uniform over integer keys, which is all routing needs.
func (c *Sharded) shardFor(key int64) int {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(key))
	h := fnv.New64a()
	h.Write(buf[:])
	return int(h.Sum64() % uint64(len(c.shards)))
}

// Lookup returns the cached value for key, if present, promoting it to
// most recently used in its shard.
func (c *Sharded) Lookup(key int64) ([]byte, bool) {
	i := c.shardFor(key)
	c.locks[i].Lock()
	defer c.locks[i].Unlock()
	return c.shards[i].lookup(key)
}

// Insert stores key→value, evicting the owning shard's least recently
// used entry if the shard is full. It reports whether an eviction
// happened so callers can count them.
func (c *Sharded) Insert(key int64, value []byte) (evicted bool) {
	i := c.shardFor(key)
	c.locks[i].Lock()
	defer c.locks[i].Unlock()
	_, evicted = c.shards[i].insert(key, value)
	return evicted
}

// Remove drops key from the cache if present.
func (c *Sharded) Remove(key int64) {
	i := c.shardFor(key)
	c.locks[i].Lock()
	defer c.locks[i].Unlock()
	c.shards[i].remove(key)
}

// Len returns the total number of cached entries across all shards.
// The count is a sum of per-shard snapshots, not a global atomic
// snapshot; concurrent writers can move it between shard reads.
func (c *Sharded) Len() int {
	total := 0
	for i := range c.shards {
		c.locks[i].Lock()
		total += c.shards[i].size()
		c.locks[i].Unlock()
	}
	return total
}

// ShardStats describes one shard's occupancy for the stats report.
type ShardStats struct {
	Index    int
	Size     int
	Capacity int
	Keys     []int64 // most recently used first
}

// Stats snapshots every shard's occupancy. Each shard is locked
// individually, so the result is per-shard consistent only.
func (c *Sharded) Stats() []ShardStats {
	out := make([]ShardStats, len(c.shards))
	for i := range c.shards {
		c.locks[i].Lock()
		out[i] = ShardStats{
			Index:    i,
			Size:     c.shards[i].size(),
			Capacity: c.shards[i].capacity,
			Keys:     c.shards[i].keysOldestLast(),
		}
		c.locks[i].Unlock()
	}
	return out
}

// NumShards returns the partition count.
func (c *Sharded) NumShards() int {
	return len(c.shards)
}
