// Package cache implements the bounded in-memory caching layer: a
// sharded, per-shard-locked LRU cache that fronts the durable store.
//
// # Architecture
//
// The cache is split into N independent partitions to keep lock
// contention local:
//
//	┌──────────────────────────────────────────┐
//	│               Sharded                    │
//	│   fnv1a(key) mod N  →  shard index       │
//	├──────────┬──────────┬──────────┬─────────┤
//	│ RWMutex  │ RWMutex  │ RWMutex  │  ...    │
//	│ lruShard │ lruShard │ lruShard │         │
//	└──────────┴──────────┴──────────┴─────────┘
//
// Each lruShard is a classic LRU: a doubly linked recency list plus a
// key→element index. Capacity is divided evenly across shards, with a
// floor of one entry per shard.
//
// # Locking
//
// Lookup promotes the hit entry to the head of the recency list, so it
// is a mutation and takes the shard's write lock like Insert and
// Remove do. No operation touches more than one shard.
//
// # Guarantees
//
//   - Per-key linearizability: operations on one key serialize on one
//     shard lock
//   - Per-shard capacity bound at every quiescent moment
//   - Eviction removes exactly the shard's least recently used entry
//   - No cross-shard ordering or global LRU order
//
// The cache holds no reference to the backing store. Coherence between
// the two is a protocol enforced by the server package: the cache is
// written only after a successful store outcome.
package cache
