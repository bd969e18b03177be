// Package memory provides the in-memory store engine for KeyDesk.
//
// All data lives in one sharded map keyed by store key. Strings, sets and
// lists are tagged entries, so every operation on a key is a single
// read-modify-write under that key's shard lock. That matches the
// per-key atomicity a shared Redis gives, which lets the service tests
// exercise the same races they would meet in production.
//
// TTLs are checked lazily on access; SweepExpired reclaims memory.
package memory
