// Package config defines the server configuration structure.
package config

import "time"

// Store engines.
const (
	EngineMemory = "memory"
	EngineRedis  = "redis"
	EngineBadger = "badger"
)

// Default configuration values.
const (
	DefaultHTTPAddr    = "127.0.0.1:5080"
	DefaultRedeemRate  = 2.0
	DefaultRedeemBurst = 5

	DefaultEngine     = EngineRedis
	DefaultKeepAlive  = 60 * time.Second
	DefaultRedisURL   = "redis://127.0.0.1:6379/0"
	DefaultBadgerDir  = "/var/lib/keydesk/data"
	DefaultGCInterval = 10 * time.Minute

	DefaultMaxPopAttempts  = 50
	DefaultUsageTTL        = 90 * 24 * time.Hour
	DefaultTicketTTL       = 24 * time.Hour
	DefaultAutoCloseDelay  = 10 * time.Minute
	DefaultGatewayRate     = 5.0
	DefaultDedupTTL        = 10 * time.Second
	DefaultFrontendTimeout = 10 * time.Second

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// Default returns the default server configuration.
func Default() *ServerConfig {
	return &ServerConfig{
		Server: ServerSection{
			HTTP: HTTPConfig{
				Addr:        DefaultHTTPAddr,
				RedeemRate:  DefaultRedeemRate,
				RedeemBurst: DefaultRedeemBurst,
			},
		},
		Store: StoreSection{
			Engine:    DefaultEngine,
			KeepAlive: DefaultKeepAlive,
			Redis: RedisStoreConfig{
				URL: DefaultRedisURL,
			},
			Badger: BadgerStoreConfig{
				Dir:        DefaultBadgerDir,
				GCInterval: DefaultGCInterval,
			},
		},
		Keys: KeysSection{
			MaxPopAttempts: DefaultMaxPopAttempts,
			UsageTTL:       DefaultUsageTTL,
		},
		Tickets: TicketsSection{
			TTL:            DefaultTicketTTL,
			AutoCloseDelay: DefaultAutoCloseDelay,
			GatewayRate:    DefaultGatewayRate,
		},
		Dedup: DedupSection{
			TTL: DefaultDedupTTL,
		},
		Frontend: FrontendSection{
			Timeout: DefaultFrontendTimeout,
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}
