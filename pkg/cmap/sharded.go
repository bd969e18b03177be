// Package cmap provides a concurrent-safe sharded map.
//
// Every operation on a single key runs under that key's shard lock, so
// Compute gives callers a per-key atomic read-modify-write, which is the
// same guarantee a networked key-value store gives for one key.
package cmap

import (
	"hash/maphash"
	"sync"
)

// DefaultShardCount is the default number of shards.
const DefaultShardCount = 16

// Map is a concurrent-safe sharded map keyed by string.
type Map[V any] struct {
	shards    []*shard[V]
	shardMask uint64
	seed      maphash.Seed
}

type shard[V any] struct {
	mu    sync.RWMutex
	items map[string]V
}

// New creates a new sharded map with the default shard count.
func New[V any]() *Map[V] {
	return NewWithShards[V](DefaultShardCount)
}

// NewWithShards creates a new sharded map with the specified shard count.
// shardCount must be a power of 2; other values fall back to the default.
func NewWithShards[V any](shardCount int) *Map[V] {
	if shardCount <= 0 || shardCount&(shardCount-1) != 0 {
		shardCount = DefaultShardCount
	}

	m := &Map[V]{
		shards:    make([]*shard[V], shardCount),
		shardMask: uint64(shardCount - 1),
		seed:      maphash.MakeSeed(),
	}

	for i := 0; i < shardCount; i++ {
		m.shards[i] = &shard[V]{
			items: make(map[string]V),
		}
	}

	return m
}

func (m *Map[V]) getShard(key string) *shard[V] {
	hash := maphash.String(m.seed, key)
	return m.shards[hash&m.shardMask]
}

// Get retrieves a value by key.
func (m *Map[V]) Get(key string) (V, bool) {
	shard := m.getShard(key)
	shard.mu.RLock()
	defer shard.mu.RUnlock()
	val, ok := shard.items[key]
	return val, ok
}

// Set stores a key-value pair.
func (m *Map[V]) Set(key string, value V) {
	shard := m.getShard(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	shard.items[key] = value
}

// Delete removes a key.
func (m *Map[V]) Delete(key string) {
	shard := m.getShard(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	delete(shard.items, key)
}

// Has checks if a key exists.
func (m *Map[V]) Has(key string) bool {
	_, ok := m.Get(key)
	return ok
}

// Compute atomically replaces the value stored under key.
//
// fn receives the current value and whether it exists, and returns the new
// value and whether to keep it. Returning keep=false deletes the key.
// fn runs with the shard lock held and must not call back into the map.
func (m *Map[V]) Compute(key string, fn func(value V, exists bool) (V, bool)) {
	shard := m.getShard(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	existing, exists := shard.items[key]
	next, keep := fn(existing, exists)
	if keep {
		shard.items[key] = next
		return
	}
	if exists {
		delete(shard.items, key)
	}
}

// Count returns the total number of items.
func (m *Map[V]) Count() int {
	count := 0
	for _, shard := range m.shards {
		shard.mu.RLock()
		count += len(shard.items)
		shard.mu.RUnlock()
	}
	return count
}

// Clear removes all items.
func (m *Map[V]) Clear() {
	for _, shard := range m.shards {
		shard.mu.Lock()
		shard.items = make(map[string]V)
		shard.mu.Unlock()
	}
}
