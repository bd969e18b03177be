package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/yndnr/keydesk/internal/server/config"
	"github.com/yndnr/keydesk/internal/storage"
	"github.com/yndnr/keydesk/internal/storage/memory"
	"github.com/yndnr/keydesk/internal/storage/redisstore"
	"github.com/yndnr/keydesk/internal/telemetry/metric"
)

// OpenStore opens the configured engine and wraps it in the metered
// decorator. metrics may be nil.
func OpenStore(ctx context.Context, cfg config.StoreSection, metrics *metric.Registry, logger *slog.Logger) (storage.Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var engine storage.Store
	switch cfg.Engine {
	case config.EngineMemory:
		logger.Warn("using in-memory store, data is lost on exit")
		engine = memory.New()

	case config.EngineRedis:
		s, err := redisstore.New(ctx, logger,
			redisstore.WithURL(cfg.Redis.URL),
			redisstore.WithDB(cfg.Redis.DB),
			redisstore.WithKeyPrefix(cfg.Redis.KeyPrefix),
		)
		if err != nil {
			return nil, err
		}
		engine = s

	case config.EngineBadger:
		bcfg := storage.DefaultBadgerConfig(cfg.Badger.Dir)
		if cfg.Badger.GCInterval > 0 {
			bcfg.GCInterval = cfg.Badger.GCInterval
		}
		bcfg.SyncWrites = cfg.Badger.SyncWrites
		s, err := storage.NewBadgerStore(bcfg, logger)
		if err != nil {
			return nil, err
		}
		if metrics != nil {
			s.RegisterMetrics(metrics.Prometheus())
		}
		engine = s

	default:
		return nil, fmt.Errorf("unknown store engine %q", cfg.Engine)
	}

	return storage.NewMetered(engine, metrics, logger), nil
}

// Badger returns the embedded engine behind s, if any.
func Badger(s storage.Store) (*storage.BadgerStore, bool) {
	if m, ok := s.(*storage.Metered); ok {
		s = m.Unwrap()
	}
	b, ok := s.(*storage.BadgerStore)
	return b, ok
}

// KeepAlive pings the store every interval until ctx ends. Hosted Redis
// plans evict idle databases, so a quiet deployment still touches the
// store. A failed ping is only logged.
func KeepAlive(ctx context.Context, store storage.Store, interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, interval/2)
			err := store.Ping(pingCtx)
			cancel()
			if err != nil {
				logger.Warn("store keep-alive ping failed", "error", err)
			} else {
				logger.Debug("store keep-alive ping")
			}
		}
	}
}
