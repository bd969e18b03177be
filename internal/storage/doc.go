// Package storage defines the Store contract KeyDesk components share and
// the engines behind it.
//
// Engines:
//
//   - memory (storage/memory): single-process, sharded maps, used by tests
//     and local runs
//   - redis (storage/redisstore): go-redis client for the production
//     deployment, where several bot processes share one store
//   - badger (this package): embedded persistent single-node store
//
// Metered wraps any engine with latency histograms and maps transport
// failures to domain.ErrStoreUnavailable.
package storage
