// Package config defines the server configuration structure.
package config

import "time"

// ServerConfig is the root configuration for keydesk-server.
type ServerConfig struct {
	Server   ServerSection   `koanf:"server"`
	Store    StoreSection    `koanf:"store"`
	Keys     KeysSection     `koanf:"keys"`
	Tickets  TicketsSection  `koanf:"tickets"`
	Dedup    DedupSection    `koanf:"dedup"`
	Frontend FrontendSection `koanf:"frontend"`
	Log      LogSection      `koanf:"log"`
}

// ServerSection configures server endpoints.
type ServerSection struct {
	HTTP  HTTPConfig  `koanf:"http"`
	Local LocalConfig `koanf:"local"`
}

// LocalConfig configures the local control socket.
type LocalConfig struct {
	// Socket is the Unix socket path. Empty disables the control socket.
	Socket string `koanf:"socket"`
}

// HTTPConfig configures the HTTP server.
type HTTPConfig struct {
	Addr        string `koanf:"addr"`
	TLSCertFile string `koanf:"tls_cert_file"`
	TLSKeyFile  string `koanf:"tls_key_file"`

	// RedeemRate limits redemption requests per client address (per second).
	// Zero disables the limit.
	RedeemRate  float64 `koanf:"redeem_rate"`
	RedeemBurst int     `koanf:"redeem_burst"`

	// TrustedProxies lists addresses or CIDR ranges whose forwarding
	// headers name the real client. Empty trusts only the TCP peer.
	TrustedProxies []string `koanf:"trusted_proxies"`

	// CORSAllowedOrigins lists origins allowed to call the redemption
	// endpoint from a browser. Empty allows any origin.
	CORSAllowedOrigins []string `koanf:"cors_allowed_origins"`
}

// StoreSection selects and configures the backing store.
type StoreSection struct {
	// Engine is one of memory, redis, badger.
	Engine string `koanf:"engine"`

	// KeepAlive is the interval between background store pings.
	KeepAlive time.Duration `koanf:"keep_alive"`

	Redis  RedisStoreConfig  `koanf:"redis"`
	Badger BadgerStoreConfig `koanf:"badger"`
}

// RedisStoreConfig configures the redis engine.
type RedisStoreConfig struct {
	URL       string `koanf:"url"`
	DB        int    `koanf:"db"`
	KeyPrefix string `koanf:"key_prefix"`
}

// BadgerStoreConfig configures the embedded badger engine.
type BadgerStoreConfig struct {
	Dir        string        `koanf:"dir"`
	GCInterval time.Duration `koanf:"gc_interval"`
	SyncWrites bool          `koanf:"sync_writes"`
}

// KeysSection configures the key pool.
type KeysSection struct {
	MaxPopAttempts int           `koanf:"max_pop_attempts"`
	UsageTTL       time.Duration `koanf:"usage_ttl"`
}

// TicketsSection configures tickets and their auto-close timers.
type TicketsSection struct {
	TTL             time.Duration `koanf:"ttl"`
	AutoCloseDelay  time.Duration `koanf:"autoclose_delay"`
	AutoCloseNotice string        `koanf:"autoclose_notice"`

	// GatewayRate limits chat platform calls made by auto-close checks
	// (per second).
	GatewayRate float64 `koanf:"gateway_rate"`
}

// FrontendSection points at the chat frontend bridge that delivers keys
// and manages ticket channels. An empty URL disables both.
type FrontendSection struct {
	URL     string        `koanf:"url"`
	Token   string        `koanf:"token"`
	Timeout time.Duration `koanf:"timeout"`

	// CAFile adds a private CA to the system roots for https bridges.
	CAFile string `koanf:"ca_file"`
}

// DedupSection configures the command dedup guard.
type DedupSection struct {
	TTL time.Duration `koanf:"ttl"`
}

// LogSection configures logging.
type LogSection struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}
