package cmap

// Range iterates over all key-value pairs.
//
// The callback returns false to stop iteration.
// Locks are taken shard by shard, so the view may not be consistent.
func (m *Map[V]) Range(fn func(key string, value V) bool) {
	for _, shard := range m.shards {
		shard.mu.RLock()
		for k, v := range shard.items {
			if !fn(k, v) {
				shard.mu.RUnlock()
				return
			}
		}
		shard.mu.RUnlock()
	}
}

// Keys returns all keys.
func (m *Map[V]) Keys() []string {
	keys := make([]string, 0, m.Count())
	m.Range(func(key string, _ V) bool {
		keys = append(keys, key)
		return true
	})
	return keys
}

// DeleteIf removes every entry for which pred returns true and reports how
// many were removed. Each shard is swept under its write lock.
func (m *Map[V]) DeleteIf(pred func(key string, value V) bool) int {
	removed := 0
	for _, shard := range m.shards {
		shard.mu.Lock()
		for k, v := range shard.items {
			if pred(k, v) {
				delete(shard.items, k)
				removed++
			}
		}
		shard.mu.Unlock()
	}
	return removed
}
