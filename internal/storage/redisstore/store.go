// Package redisstore implements storage.Store on Redis through go-redis.
//
// This is the production engine: several bot processes share one Redis
// and rely on its single-key atomicity. CompareAndSwap is built on
// WATCH/MULTI/EXEC.
package redisstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/yndnr/keydesk/internal/storage"
)

// Default connection values.
const (
	DefaultURL         = "redis://localhost:6379"
	DefaultDialTimeout = 5 * time.Second
	DefaultScanCount   = 200
)

// Config holds the connection settings.
type Config struct {
	// URL is a redis:// or rediss:// URL.
	URL string

	// DB overrides the database number in URL when >= 0.
	DB int

	// KeyPrefix namespaces every key, so several deployments can share one
	// Redis database.
	KeyPrefix string

	// DialTimeout bounds the connectivity check in New.
	DialTimeout time.Duration
}

// Option configures the store.
type Option func(*Config)

// WithURL sets the Redis URL.
func WithURL(url string) Option {
	return func(c *Config) { c.URL = url }
}

// WithDB selects the database number.
func WithDB(db int) Option {
	return func(c *Config) { c.DB = db }
}

// WithKeyPrefix namespaces every key.
func WithKeyPrefix(prefix string) Option {
	return func(c *Config) { c.KeyPrefix = prefix }
}

// Store is a Redis-backed storage.Store.
type Store struct {
	client *redis.Client
	prefix string
	logger *slog.Logger
}

var _ storage.Store = (*Store)(nil)

// New connects to Redis and verifies connectivity with PING.
func New(ctx context.Context, logger *slog.Logger, opts ...Option) (*Store, error) {
	cfg := Config{URL: DefaultURL, DB: -1, DialTimeout: DefaultDialTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}
	if logger == nil {
		logger = slog.Default()
	}

	redisOpts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redisstore: parse url: %w", err)
	}
	if cfg.DB >= 0 {
		redisOpts.DB = cfg.DB
	}

	client := redis.NewClient(redisOpts)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redisstore: connect to %s: %w", redisOpts.Addr, err)
	}

	logger.Info("redis store connected",
		"addr", redisOpts.Addr,
		"db", redisOpts.DB,
		"key_prefix", cfg.KeyPrefix)

	return NewFromClient(client, cfg.KeyPrefix, logger), nil
}

// NewFromClient wraps an existing client.
func NewFromClient(client *redis.Client, keyPrefix string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{client: client, prefix: keyPrefix, logger: logger}
}

func (s *Store) k(key string) string {
	return s.prefix + key
}

// Get returns the string value at key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := s.client.Get(ctx, s.k(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, storage.ErrKeyNotFound
	}
	return v, mapErr(err)
}

// Set stores value at key.
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return mapErr(s.client.Set(ctx, s.k(key), value, ttl).Err())
}

// SetNX stores value only if key is absent.
func (s *Store) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.k(key), value, ttl).Result()
	return ok, mapErr(err)
}

// CompareAndSwap runs an optimistic WATCH transaction on key. A concurrent
// writer aborts the EXEC and the swap reports false.
func (s *Store) CompareAndSwap(ctx context.Context, key string, old, next []byte, ttl time.Duration) (bool, error) {
	rk := s.k(key)
	swapped := false

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, rk).Bytes()
		exists := true
		if errors.Is(err, redis.Nil) {
			exists = false
		} else if err != nil {
			return err
		}

		switch {
		case old == nil && exists:
			return nil
		case old != nil && (!exists || !bytes.Equal(cur, old)):
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if next == nil {
				pipe.Del(ctx, rk)
			} else {
				pipe.Set(ctx, rk, next, ttl)
			}
			return nil
		})
		if err != nil {
			return err
		}
		swapped = true
		return nil
	}, rk)

	if errors.Is(err, redis.TxFailedErr) {
		return false, nil
	}
	if err != nil {
		return false, mapErr(err)
	}
	return swapped, nil
}

// Delete removes keys.
func (s *Store) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	rks := make([]string, len(keys))
	for i, k := range keys {
		rks[i] = s.k(k)
	}
	return mapErr(s.client.Del(ctx, rks...).Err())
}

// SAdd adds members to the set.
func (s *Store) SAdd(ctx context.Context, key string, members ...string) (int64, error) {
	n, err := s.client.SAdd(ctx, s.k(key), toArgs(members)...).Result()
	return n, mapErr(err)
}

// SRem removes members from the set.
func (s *Store) SRem(ctx context.Context, key string, members ...string) (int64, error) {
	n, err := s.client.SRem(ctx, s.k(key), toArgs(members)...).Result()
	return n, mapErr(err)
}

// SPop removes and returns a random member.
func (s *Store) SPop(ctx context.Context, key string) (string, error) {
	m, err := s.client.SPop(ctx, s.k(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", storage.ErrKeyNotFound
	}
	return m, mapErr(err)
}

// SCard returns the set cardinality.
func (s *Store) SCard(ctx context.Context, key string) (int64, error) {
	n, err := s.client.SCard(ctx, s.k(key)).Result()
	return n, mapErr(err)
}

// SIsMember reports set membership.
func (s *Store) SIsMember(ctx context.Context, key, member string) (bool, error) {
	ok, err := s.client.SIsMember(ctx, s.k(key), member).Result()
	return ok, mapErr(err)
}

// SMembers returns all members of the set.
func (s *Store) SMembers(ctx context.Context, key string) ([]string, error) {
	m, err := s.client.SMembers(ctx, s.k(key)).Result()
	return m, mapErr(err)
}

// LPush prepends values to the list.
func (s *Store) LPush(ctx context.Context, key string, values ...string) (int64, error) {
	n, err := s.client.LPush(ctx, s.k(key), toArgs(values)...).Result()
	return n, mapErr(err)
}

// LRange returns a slice of the list.
func (s *Store) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	v, err := s.client.LRange(ctx, s.k(key), start, stop).Result()
	return v, mapErr(err)
}

// LTrim trims the list to the given range.
func (s *Store) LTrim(ctx context.Context, key string, start, stop int64) error {
	return mapErr(s.client.LTrim(ctx, s.k(key), start, stop).Err())
}

// ScanPrefix walks keys with SCAN MATCH; it never blocks the server the
// way KEYS would.
func (s *Store) ScanPrefix(ctx context.Context, prefix string, fn func(key string) bool) error {
	iter := s.client.Scan(ctx, 0, escapeGlob(s.k(prefix))+"*", DefaultScanCount).Iterator()
	seen := make(map[string]struct{})
	for iter.Next(ctx) {
		k := iter.Val()
		// SCAN may return a key more than once.
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		if !fn(strings.TrimPrefix(k, s.prefix)) {
			return nil
		}
	}
	return mapErr(iter.Err())
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return mapErr(s.client.Ping(ctx).Err())
}

// Close closes the client.
func (s *Store) Close() error {
	s.logger.Info("closing redis store")
	return s.client.Close()
}

func toArgs(values []string) []interface{} {
	args := make([]interface{}, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}

func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, redis.ErrClosed):
		return storage.ErrClosed
	case strings.HasPrefix(err.Error(), "WRONGTYPE"):
		return fmt.Errorf("%w: %v", storage.ErrWrongType, err)
	default:
		return err
	}
}

var globReplacer = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

func escapeGlob(s string) string {
	return globReplacer.Replace(s)
}
