// Package cmap provides the sharded map behind the in-memory store engine.
//
// Usage:
//
//	m := cmap.New[*entry]()
//	m.Compute("keys:valid", func(e *entry, ok bool) (*entry, bool) {
//		// read-modify-write under the shard lock
//		return e, ok
//	})
//
// Thread Safety:
//
// All operations are thread-safe. Get and Range take read locks;
// Set, Delete, Compute and DeleteIf take write locks.
package cmap
