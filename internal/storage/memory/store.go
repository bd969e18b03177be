// Package memory provides the in-memory store engine for KeyDesk.
package memory

import (
	"bytes"
	"context"
	"math/rand/v2"
	"strings"
	"sync/atomic"
	"time"

	"github.com/yndnr/keydesk/internal/storage"
	"github.com/yndnr/keydesk/pkg/cmap"
)

type kind uint8

const (
	kindString kind = iota + 1
	kindSet
	kindList
)

// entry is one stored value. Entries are never mutated in place once
// published; Compute callbacks build a replacement.
type entry struct {
	kind      kind
	str       []byte
	set       map[string]struct{}
	list      []string
	expiresAt int64 // Unix nanoseconds, 0 = never
}

func (e *entry) expired(now int64) bool {
	return e.expiresAt != 0 && now >= e.expiresAt
}

// Store is a single-process Store backed by a sharded map.
type Store struct {
	data   *cmap.Map[*entry]
	now    func() time.Time
	closed atomic.Bool
}

// Option configures the Store.
type Option func(*Store)

// WithShards sets the shard count. It must be a power of 2.
func WithShards(n int) Option {
	return func(s *Store) {
		s.data = cmap.NewWithShards[*entry](n)
	}
}

// WithClock overrides the time source used for TTL checks.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New creates a new in-memory store.
func New(opts ...Option) *Store {
	s := &Store{
		data: cmap.New[*entry](),
		now:  time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

var _ storage.Store = (*Store)(nil)

func (s *Store) expiry(ttl time.Duration) int64 {
	if ttl <= 0 {
		return 0
	}
	return s.now().Add(ttl).UnixNano()
}

// live returns the entry at key if present and unexpired.
func (s *Store) live(key string) (*entry, bool) {
	e, ok := s.data.Get(key)
	if !ok || e.expired(s.now().UnixNano()) {
		return nil, false
	}
	return e, true
}

// compute runs fn on the live entry at key under the shard lock.
func (s *Store) compute(key string, fn func(e *entry, ok bool) (*entry, bool)) {
	now := s.now().UnixNano()
	s.data.Compute(key, func(e *entry, ok bool) (*entry, bool) {
		if ok && e.expired(now) {
			e, ok = nil, false
		}
		return fn(e, ok)
	})
}

func (s *Store) check(ctx context.Context) error {
	if s.closed.Load() {
		return storage.ErrClosed
	}
	return ctx.Err()
}

// Get returns the string value at key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	e, ok := s.live(key)
	if !ok {
		return nil, storage.ErrKeyNotFound
	}
	if e.kind != kindString {
		return nil, storage.ErrWrongType
	}
	return bytes.Clone(e.str), nil
}

// Set stores value at key.
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	s.data.Set(key, &entry{kind: kindString, str: bytes.Clone(value), expiresAt: s.expiry(ttl)})
	return nil
}

// SetNX stores value only if key is absent.
func (s *Store) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if err := s.check(ctx); err != nil {
		return false, err
	}
	var stored bool
	s.compute(key, func(e *entry, ok bool) (*entry, bool) {
		if ok {
			return e, true
		}
		stored = true
		return &entry{kind: kindString, str: bytes.Clone(value), expiresAt: s.expiry(ttl)}, true
	})
	return stored, nil
}

// CompareAndSwap replaces the value at key if it currently equals old.
func (s *Store) CompareAndSwap(ctx context.Context, key string, old, next []byte, ttl time.Duration) (bool, error) {
	if err := s.check(ctx); err != nil {
		return false, err
	}
	var swapped bool
	var err error
	s.compute(key, func(e *entry, ok bool) (*entry, bool) {
		switch {
		case old == nil && ok:
			return e, true
		case old != nil && !ok:
			return nil, false
		case ok && e.kind != kindString:
			err = storage.ErrWrongType
			return e, true
		case ok && !bytes.Equal(e.str, old):
			return e, true
		}
		swapped = true
		if next == nil {
			return nil, false
		}
		return &entry{kind: kindString, str: bytes.Clone(next), expiresAt: s.expiry(ttl)}, true
	})
	return swapped, err
}

// Delete removes keys.
func (s *Store) Delete(ctx context.Context, keys ...string) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	for _, k := range keys {
		s.data.Delete(k)
	}
	return nil
}

// updateSet applies fn to a copy of the set at key. Empty sets are removed.
func (s *Store) updateSet(key string, fn func(set map[string]struct{})) error {
	var err error
	s.compute(key, func(e *entry, ok bool) (*entry, bool) {
		set := make(map[string]struct{})
		var expiresAt int64
		if ok {
			if e.kind != kindSet {
				err = storage.ErrWrongType
				return e, true
			}
			for m := range e.set {
				set[m] = struct{}{}
			}
			expiresAt = e.expiresAt
		}
		fn(set)
		if len(set) == 0 {
			return nil, false
		}
		return &entry{kind: kindSet, set: set, expiresAt: expiresAt}, true
	})
	return err
}

func (s *Store) readSet(key string) (map[string]struct{}, error) {
	e, ok := s.live(key)
	if !ok {
		return nil, nil
	}
	if e.kind != kindSet {
		return nil, storage.ErrWrongType
	}
	return e.set, nil
}

// SAdd adds members to the set at key.
func (s *Store) SAdd(ctx context.Context, key string, members ...string) (int64, error) {
	if err := s.check(ctx); err != nil {
		return 0, err
	}
	var added int64
	err := s.updateSet(key, func(set map[string]struct{}) {
		for _, m := range members {
			if _, ok := set[m]; !ok {
				set[m] = struct{}{}
				added++
			}
		}
	})
	return added, err
}

// SRem removes members from the set at key.
func (s *Store) SRem(ctx context.Context, key string, members ...string) (int64, error) {
	if err := s.check(ctx); err != nil {
		return 0, err
	}
	var removed int64
	err := s.updateSet(key, func(set map[string]struct{}) {
		for _, m := range members {
			if _, ok := set[m]; ok {
				delete(set, m)
				removed++
			}
		}
	})
	return removed, err
}

// SPop removes and returns a random member.
func (s *Store) SPop(ctx context.Context, key string) (string, error) {
	if err := s.check(ctx); err != nil {
		return "", err
	}
	var popped string
	var found bool
	err := s.updateSet(key, func(set map[string]struct{}) {
		if len(set) == 0 {
			return
		}
		i := rand.IntN(len(set))
		for m := range set {
			if i == 0 {
				popped, found = m, true
				delete(set, m)
				return
			}
			i--
		}
	})
	if err != nil {
		return "", err
	}
	if !found {
		return "", storage.ErrKeyNotFound
	}
	return popped, nil
}

// SCard returns the set cardinality.
func (s *Store) SCard(ctx context.Context, key string) (int64, error) {
	if err := s.check(ctx); err != nil {
		return 0, err
	}
	set, err := s.readSet(key)
	return int64(len(set)), err
}

// SIsMember reports set membership.
func (s *Store) SIsMember(ctx context.Context, key, member string) (bool, error) {
	if err := s.check(ctx); err != nil {
		return false, err
	}
	set, err := s.readSet(key)
	if err != nil {
		return false, err
	}
	_, ok := set[member]
	return ok, nil
}

// SMembers returns all members of the set.
func (s *Store) SMembers(ctx context.Context, key string) ([]string, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	set, err := s.readSet(key)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(set))
	for m := range set {
		out = append(out, m)
	}
	return out, nil
}

// LPush prepends values to the list at key.
func (s *Store) LPush(ctx context.Context, key string, values ...string) (int64, error) {
	if err := s.check(ctx); err != nil {
		return 0, err
	}
	var length int64
	var err error
	s.compute(key, func(e *entry, ok bool) (*entry, bool) {
		var list []string
		var expiresAt int64
		if ok {
			if e.kind != kindList {
				err = storage.ErrWrongType
				return e, true
			}
			list, expiresAt = e.list, e.expiresAt
		}
		next := make([]string, 0, len(values)+len(list))
		for i := len(values) - 1; i >= 0; i-- {
			next = append(next, values[i])
		}
		next = append(next, list...)
		length = int64(len(next))
		return &entry{kind: kindList, list: next, expiresAt: expiresAt}, true
	})
	return length, err
}

// LRange returns list elements between start and stop inclusive.
func (s *Store) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	e, ok := s.live(key)
	if !ok {
		return []string{}, nil
	}
	if e.kind != kindList {
		return nil, storage.ErrWrongType
	}
	lo, hi := storage.ListRange(len(e.list), start, stop)
	return append([]string{}, e.list[lo:hi]...), nil
}

// LTrim keeps only the elements between start and stop inclusive.
func (s *Store) LTrim(ctx context.Context, key string, start, stop int64) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	var err error
	s.compute(key, func(e *entry, ok bool) (*entry, bool) {
		if !ok {
			return nil, false
		}
		if e.kind != kindList {
			err = storage.ErrWrongType
			return e, true
		}
		lo, hi := storage.ListRange(len(e.list), start, stop)
		if lo == hi {
			return nil, false
		}
		return &entry{kind: kindList, list: append([]string{}, e.list[lo:hi]...), expiresAt: e.expiresAt}, true
	})
	return err
}

// ScanPrefix calls fn for each live key with the prefix.
func (s *Store) ScanPrefix(ctx context.Context, prefix string, fn func(key string) bool) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	now := s.now().UnixNano()
	var keys []string
	s.data.Range(func(k string, e *entry) bool {
		if strings.HasPrefix(k, prefix) && !e.expired(now) {
			keys = append(keys, k)
		}
		return true
	})
	for _, k := range keys {
		if !fn(k) {
			break
		}
	}
	return nil
}

// Ping always succeeds while the store is open.
func (s *Store) Ping(ctx context.Context) error {
	return s.check(ctx)
}

// Close marks the store closed.
func (s *Store) Close() error {
	s.closed.Store(true)
	return nil
}

// Len returns the number of stored keys, including expired ones not yet
// swept.
func (s *Store) Len() int {
	return s.data.Count()
}

// SweepExpired removes expired entries and returns how many were dropped.
func (s *Store) SweepExpired() int {
	now := s.now().UnixNano()
	return s.data.DeleteIf(func(_ string, e *entry) bool {
		return e.expired(now)
	})
}
