package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"sort"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/prometheus/client_golang/prometheus"
)

// Value tags. Every badger value starts with one byte naming its kind.
const (
	tagString byte = 's'
	tagSet    byte = 'S'
	tagList   byte = 'L'
)

// maxConflictRetries bounds optimistic transaction retries.
const maxConflictRetries = 128

// restorePendingWrites bounds in-flight batches while loading a backup.
const restorePendingWrites = 256

// BadgerConfig contains Badger-specific tuning parameters.
type BadgerConfig struct {
	// Dir is the storage directory.
	Dir string

	// GCInterval is the interval between automatic value-log GC runs.
	// Default: 10m
	GCInterval time.Duration

	// GCThreshold is the GC discard ratio threshold (0.0-1.0).
	// Default: 0.5
	GCThreshold float64

	// CacheSize is the block cache size in bytes.
	// Default: 64MB
	CacheSize int64

	// ValueLogFileSize is the max value log file size in bytes.
	// Default: 256MB
	ValueLogFileSize int64

	// SyncWrites enables fsync after each write.
	// Default: true
	SyncWrites bool
}

// DefaultBadgerConfig returns the default Badger configuration.
func DefaultBadgerConfig(dir string) BadgerConfig {
	return BadgerConfig{
		Dir:              dir,
		GCInterval:       10 * time.Minute,
		GCThreshold:      0.5,
		CacheSize:        64 << 20,
		ValueLogFileSize: 256 << 20,
		SyncWrites:       true,
	}
}

// BadgerStore implements Store on an embedded Badger v3 database.
//
// Sets and lists are stored as single JSON-encoded values, so each Store
// call is one serializable transaction on one badger key. Conflicting
// transactions are retried.
type BadgerStore struct {
	db     *badger.DB
	cfg    BadgerConfig
	logger *slog.Logger
	closed atomic.Bool

	lastGCTime       atomic.Int64 // Unix milliseconds
	gcBytesReclaimed atomic.Uint64

	metricsLSMSize      prometheus.Gauge
	metricsValueLogSize prometheus.Gauge
	metricsLastGCTime   prometheus.Gauge

	stopCh chan struct{}
	doneCh chan struct{}
}

var _ Store = (*BadgerStore)(nil)

// NewBadgerStore opens (or creates) a Badger database at cfg.Dir.
func NewBadgerStore(cfg BadgerConfig, logger *slog.Logger) (*BadgerStore, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("badger: dir is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.GCInterval <= 0 {
		cfg.GCInterval = 10 * time.Minute
	}
	if cfg.GCThreshold <= 0 || cfg.GCThreshold >= 1 {
		cfg.GCThreshold = 0.5
	}

	opts := badger.DefaultOptions(cfg.Dir)
	opts.Logger = &badgerLogger{logger: logger}
	opts.SyncWrites = cfg.SyncWrites
	opts.DetectConflicts = true
	if cfg.CacheSize > 0 {
		opts.BlockCacheSize = cfg.CacheSize
	}
	if cfg.ValueLogFileSize > 0 {
		opts.ValueLogFileSize = cfg.ValueLogFileSize
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badger: open db: %w", err)
	}

	s := &BadgerStore{
		db:     db,
		cfg:    cfg,
		logger: logger,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}

	go s.gcLoop()

	logger.Info("badger store started",
		"dir", cfg.Dir,
		"cache_size", cfg.CacheSize,
		"gc_interval", cfg.GCInterval)

	return s, nil
}

func (s *BadgerStore) view(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(fn)
}

// update runs fn in a read-write transaction, retrying on conflict.
func (s *BadgerStore) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if s.closed.Load() {
		return ErrClosed
	}
	for i := 0; i < maxConflictRetries; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return fmt.Errorf("badger: %w after %d retries", badger.ErrConflict, maxConflictRetries)
}

// load reads and decodes the tagged value at key. ok is false when absent.
func load(txn *badger.Txn, key string, want byte) (payload []byte, item *badger.Item, ok bool, err error) {
	item, err = txn.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil, false, nil
	}
	if err != nil {
		return nil, nil, false, err
	}
	raw, err := item.ValueCopy(nil)
	if err != nil {
		return nil, nil, false, err
	}
	if len(raw) == 0 || raw[0] != want {
		return nil, nil, false, ErrWrongType
	}
	return raw[1:], item, true, nil
}

func tagged(tag byte, payload []byte) []byte {
	out := make([]byte, 0, len(payload)+1)
	out = append(out, tag)
	return append(out, payload...)
}

func newEntry(key string, value []byte, ttl time.Duration) *badger.Entry {
	e := badger.NewEntry([]byte(key), value)
	if ttl > 0 {
		e = e.WithTTL(ttl)
	}
	return e
}

// Get returns the string value at key.
func (s *BadgerStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.view(ctx, func(txn *badger.Txn) error {
		payload, _, ok, err := load(txn, key, tagString)
		if err != nil {
			return err
		}
		if !ok {
			return ErrKeyNotFound
		}
		value = payload
		return nil
	})
	return value, err
}

// Set stores value at key.
func (s *BadgerStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		return txn.SetEntry(newEntry(key, tagged(tagString, value), ttl))
	})
}

// SetNX stores value only if key is absent.
func (s *BadgerStore) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	return s.CompareAndSwap(ctx, key, nil, value, ttl)
}

// CompareAndSwap replaces the value at key if it equals old.
func (s *BadgerStore) CompareAndSwap(ctx context.Context, key string, old, next []byte, ttl time.Duration) (bool, error) {
	var swapped bool
	err := s.update(ctx, func(txn *badger.Txn) error {
		swapped = false
		_, err := txn.Get([]byte(key))
		exists := err == nil
		if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		if old == nil {
			if exists {
				return nil
			}
		} else {
			cur, _, ok, err := load(txn, key, tagString)
			if err != nil {
				return err
			}
			if !ok || !bytes.Equal(cur, old) {
				return nil
			}
		}

		swapped = true
		if next == nil {
			return txn.Delete([]byte(key))
		}
		return txn.SetEntry(newEntry(key, tagged(tagString, next), ttl))
	})
	return swapped, err
}

// Delete removes keys.
func (s *BadgerStore) Delete(ctx context.Context, keys ...string) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		for _, k := range keys {
			if err := txn.Delete([]byte(k)); err != nil {
				return err
			}
		}
		return nil
	})
}

// readSet decodes the set at key.
func readSet(txn *badger.Txn, key string) (map[string]struct{}, *badger.Item, error) {
	payload, item, ok, err := load(txn, key, tagSet)
	if err != nil || !ok {
		return map[string]struct{}{}, nil, err
	}
	var members []string
	if err := json.Unmarshal(payload, &members); err != nil {
		return nil, nil, fmt.Errorf("badger: decode set %s: %w", key, err)
	}
	set := make(map[string]struct{}, len(members))
	for _, m := range members {
		set[m] = struct{}{}
	}
	return set, item, nil
}

// writeCollection stores payload under key, keeping the previous expiry.
// An empty collection deletes the key.
func writeCollection(txn *badger.Txn, key string, tag byte, items []string, prev *badger.Item) error {
	if len(items) == 0 {
		return txn.Delete([]byte(key))
	}
	payload, err := json.Marshal(items)
	if err != nil {
		return err
	}
	e := badger.NewEntry([]byte(key), tagged(tag, payload))
	if prev != nil {
		e.ExpiresAt = prev.ExpiresAt()
	}
	return txn.SetEntry(e)
}

func setMembers(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for m := range set {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

func (s *BadgerStore) updateSet(ctx context.Context, key string, fn func(set map[string]struct{}) bool) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		set, item, err := readSet(txn, key)
		if err != nil {
			return err
		}
		if !fn(set) {
			return nil
		}
		return writeCollection(txn, key, tagSet, setMembers(set), item)
	})
}

// SAdd adds members to the set.
func (s *BadgerStore) SAdd(ctx context.Context, key string, members ...string) (int64, error) {
	var added int64
	err := s.updateSet(ctx, key, func(set map[string]struct{}) bool {
		added = 0
		for _, m := range members {
			if _, ok := set[m]; !ok {
				set[m] = struct{}{}
				added++
			}
		}
		return added > 0
	})
	return added, err
}

// SRem removes members from the set.
func (s *BadgerStore) SRem(ctx context.Context, key string, members ...string) (int64, error) {
	var removed int64
	err := s.updateSet(ctx, key, func(set map[string]struct{}) bool {
		removed = 0
		for _, m := range members {
			if _, ok := set[m]; ok {
				delete(set, m)
				removed++
			}
		}
		return removed > 0
	})
	return removed, err
}

// SPop removes and returns a random member.
func (s *BadgerStore) SPop(ctx context.Context, key string) (string, error) {
	var popped string
	err := s.updateSet(ctx, key, func(set map[string]struct{}) bool {
		popped = ""
		if len(set) == 0 {
			return false
		}
		members := setMembers(set)
		popped = members[rand.IntN(len(members))]
		delete(set, popped)
		return true
	})
	if err != nil {
		return "", err
	}
	if popped == "" {
		return "", ErrKeyNotFound
	}
	return popped, nil
}

// SCard returns the set cardinality.
func (s *BadgerStore) SCard(ctx context.Context, key string) (int64, error) {
	var n int64
	err := s.view(ctx, func(txn *badger.Txn) error {
		set, _, err := readSet(txn, key)
		n = int64(len(set))
		return err
	})
	return n, err
}

// SIsMember reports set membership.
func (s *BadgerStore) SIsMember(ctx context.Context, key, member string) (bool, error) {
	var ok bool
	err := s.view(ctx, func(txn *badger.Txn) error {
		set, _, err := readSet(txn, key)
		_, ok = set[member]
		return err
	})
	return ok, err
}

// SMembers returns all members of the set.
func (s *BadgerStore) SMembers(ctx context.Context, key string) ([]string, error) {
	var out []string
	err := s.view(ctx, func(txn *badger.Txn) error {
		set, _, err := readSet(txn, key)
		if err != nil {
			return err
		}
		out = setMembers(set)
		return nil
	})
	return out, err
}

func readList(txn *badger.Txn, key string) ([]string, *badger.Item, error) {
	payload, item, ok, err := load(txn, key, tagList)
	if err != nil || !ok {
		return nil, nil, err
	}
	var list []string
	if err := json.Unmarshal(payload, &list); err != nil {
		return nil, nil, fmt.Errorf("badger: decode list %s: %w", key, err)
	}
	return list, item, nil
}

// LPush prepends values to the list.
func (s *BadgerStore) LPush(ctx context.Context, key string, values ...string) (int64, error) {
	var length int64
	err := s.update(ctx, func(txn *badger.Txn) error {
		list, item, err := readList(txn, key)
		if err != nil {
			return err
		}
		next := make([]string, 0, len(values)+len(list))
		for i := len(values) - 1; i >= 0; i-- {
			next = append(next, values[i])
		}
		next = append(next, list...)
		length = int64(len(next))
		return writeCollection(txn, key, tagList, next, item)
	})
	return length, err
}

// LRange returns a slice of the list.
func (s *BadgerStore) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	out := []string{}
	err := s.view(ctx, func(txn *badger.Txn) error {
		list, _, err := readList(txn, key)
		if err != nil {
			return err
		}
		lo, hi := ListRange(len(list), start, stop)
		out = append(out, list[lo:hi]...)
		return nil
	})
	return out, err
}

// LTrim trims the list to the given range.
func (s *BadgerStore) LTrim(ctx context.Context, key string, start, stop int64) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		list, item, err := readList(txn, key)
		if err != nil || item == nil {
			return err
		}
		lo, hi := ListRange(len(list), start, stop)
		return writeCollection(txn, key, tagList, list[lo:hi], item)
	})
}

// ScanPrefix calls fn for each live key with the prefix.
func (s *BadgerStore) ScanPrefix(ctx context.Context, prefix string, fn func(key string) bool) error {
	var keys []string
	err := s.view(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, string(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, k := range keys {
		if !fn(k) {
			break
		}
	}
	return nil
}

// Ping reports whether the database is open.
func (s *BadgerStore) Ping(ctx context.Context) error {
	if s.closed.Load() || s.db.IsClosed() {
		return ErrClosed
	}
	return ctx.Err()
}

// Backup writes a full backup of the database to w.
func (s *BadgerStore) Backup(ctx context.Context, w io.Writer) (uint64, error) {
	if err := s.Ping(ctx); err != nil {
		return 0, err
	}
	since, err := s.db.Backup(w, 0)
	if err != nil {
		return 0, fmt.Errorf("badger: backup: %w", err)
	}
	return since, nil
}

// Restore loads a stream written by Backup. Keys in the stream overwrite
// existing ones; keys absent from it are kept.
func (s *BadgerStore) Restore(ctx context.Context, r io.Reader) error {
	if err := s.Ping(ctx); err != nil {
		return err
	}
	if err := s.db.Load(r, restorePendingWrites); err != nil {
		return fmt.Errorf("badger: restore: %w", err)
	}
	return nil
}

// GC runs value-log garbage collection until nothing more is reclaimed.
// The reclaimed size is an estimate; badger does not report it.
func (s *BadgerStore) GC(ctx context.Context) (uint64, error) {
	startTime := time.Now()

	var totalReclaimed uint64
	for ctx.Err() == nil {
		err := s.db.RunValueLogGC(s.cfg.GCThreshold)
		if err != nil {
			if errors.Is(err, badger.ErrNoRewrite) {
				break
			}
			return totalReclaimed, fmt.Errorf("gc: %w", err)
		}
		totalReclaimed += uint64(s.cfg.ValueLogFileSize) / 2
	}

	s.lastGCTime.Store(time.Now().UnixMilli())
	s.gcBytesReclaimed.Add(totalReclaimed)

	s.logger.Debug("gc completed",
		"bytes_reclaimed", totalReclaimed,
		"elapsed", time.Since(startTime))

	return totalReclaimed, nil
}

// Close stops background work and closes the database.
func (s *BadgerStore) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.logger.Info("shutting down badger store")

	close(s.stopCh)
	<-s.doneCh

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close db: %w", err)
	}
	return nil
}

// RegisterMetrics registers Badger size gauges with Prometheus.
// Returns the store for method chaining.
func (s *BadgerStore) RegisterMetrics(registry *prometheus.Registry) *BadgerStore {
	s.metricsLSMSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "keydesk",
		Subsystem: "badger",
		Name:      "lsm_size_bytes",
		Help:      "Badger LSM tree size in bytes",
	})
	s.metricsValueLogSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "keydesk",
		Subsystem: "badger",
		Name:      "value_log_size_bytes",
		Help:      "Badger value log size in bytes",
	})
	s.metricsLastGCTime = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "keydesk",
		Subsystem: "badger",
		Name:      "last_gc_timestamp_seconds",
		Help:      "Unix timestamp of the last Badger GC run",
	})

	registry.MustRegister(s.metricsLSMSize, s.metricsValueLogSize, s.metricsLastGCTime)
	s.refreshMetrics()

	return s
}

func (s *BadgerStore) refreshMetrics() {
	if s.metricsLSMSize == nil {
		return
	}
	lsm, vlog := s.db.Size()
	s.metricsLSMSize.Set(float64(lsm))
	s.metricsValueLogSize.Set(float64(vlog))
	if last := s.lastGCTime.Load(); last > 0 {
		s.metricsLastGCTime.Set(float64(last) / 1000.0)
	}
}

// gcLoop runs periodic garbage collection and refreshes size gauges.
func (s *BadgerStore) gcLoop() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.cfg.GCInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			if _, err := s.GC(ctx); err != nil {
				s.logger.Error("auto gc failed", "error", err)
			}
			cancel()
			s.refreshMetrics()

		case <-s.stopCh:
			return
		}
	}
}

// badgerLogger adapts slog.Logger to Badger's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
