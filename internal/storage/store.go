package storage

import (
	"context"
	"errors"
	"time"
)

// Common errors
var (
	// ErrKeyNotFound is returned by Get and SPop when the key is absent,
	// expired, or the set is empty.
	ErrKeyNotFound = errors.New("key not found")

	// ErrWrongType is returned when an operation targets a key holding a
	// different kind of value.
	ErrWrongType = errors.New("operation against a key holding the wrong kind of value")

	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("store closed")
)

// Store is the shared key-value store all KeyDesk components synchronize
// through.
//
// Every method is atomic with respect to the single key it touches.
// No method spans keys transactionally; callers that update several keys
// must compensate on partial failure.
//
// A ttl of zero means the key does not expire.
type Store interface {
	// Get returns the string value at key.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value at key, replacing any previous value and TTL.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// SetNX stores value only if key does not exist and reports whether it did.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	// CompareAndSwap replaces the value at key with next only if the current
	// value equals old. A nil old means "key must be absent"; a nil next
	// deletes the key. It reports whether the swap happened.
	CompareAndSwap(ctx context.Context, key string, old, next []byte, ttl time.Duration) (bool, error)

	// Delete removes keys. Missing keys are ignored.
	Delete(ctx context.Context, keys ...string) error

	// SAdd adds members to the set at key and returns how many were new.
	SAdd(ctx context.Context, key string, members ...string) (int64, error)

	// SRem removes members from the set at key and returns how many existed.
	SRem(ctx context.Context, key string, members ...string) (int64, error)

	// SPop removes and returns a random member of the set at key.
	SPop(ctx context.Context, key string) (string, error)

	// SCard returns the set cardinality.
	SCard(ctx context.Context, key string) (int64, error)

	// SIsMember reports whether member is in the set at key.
	SIsMember(ctx context.Context, key, member string) (bool, error)

	// SMembers returns all members of the set at key, in no particular order.
	SMembers(ctx context.Context, key string) ([]string, error)

	// LPush prepends values to the list at key and returns the new length.
	LPush(ctx context.Context, key string, values ...string) (int64, error)

	// LRange returns list elements between start and stop inclusive.
	// Negative indexes count from the tail, as in Redis.
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)

	// LTrim keeps only the elements between start and stop inclusive.
	LTrim(ctx context.Context, key string, start, stop int64) error

	// ScanPrefix calls fn for each live key starting with prefix.
	// Iteration stops when fn returns false.
	ScanPrefix(ctx context.Context, prefix string, fn func(key string) bool) error

	// Ping checks connectivity.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// ListRange resolves Redis-style start/stop indexes against a list of
// length n. It returns an empty range when nothing matches.
func ListRange(n int, start, stop int64) (lo, hi int) {
	size := int64(n)
	if start < 0 {
		start += size
	}
	if stop < 0 {
		stop += size
	}
	if start < 0 {
		start = 0
	}
	if stop >= size {
		stop = size - 1
	}
	if start > stop || start >= size {
		return 0, 0
	}
	return int(start), int(stop) + 1
}
