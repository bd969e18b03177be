package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"

	"github.com/yndnr/keydesk/internal/server/httpserver/handler"
	"github.com/yndnr/keydesk/internal/telemetry/logger"
)

// Verify validates the configuration.
func Verify(cfg *ServerConfig) error {
	if err := verifyServer(&cfg.Server); err != nil {
		return err
	}
	if err := verifyStore(&cfg.Store); err != nil {
		return err
	}
	if err := verifyDurations(cfg); err != nil {
		return err
	}
	if err := verifyFrontend(&cfg.Frontend); err != nil {
		return err
	}
	return verifyLog(&cfg.Log)
}

func verifyServer(cfg *ServerSection) error {
	if cfg.HTTP.Addr == "" {
		return errors.New("server.http.addr is required")
	}
	if _, _, err := net.SplitHostPort(cfg.HTTP.Addr); err != nil {
		return fmt.Errorf("server.http.addr: %w", err)
	}
	if (cfg.HTTP.TLSCertFile == "") != (cfg.HTTP.TLSKeyFile == "") {
		return errors.New("server.http.tls_cert_file and tls_key_file must be set together")
	}
	if cfg.HTTP.RedeemRate < 0 || cfg.HTTP.RedeemBurst < 0 {
		return errors.New("server.http redeem limits must not be negative")
	}
	if _, err := handler.ParseTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
		return fmt.Errorf("server.http.trusted_proxies: %w", err)
	}
	return nil
}

func verifyStore(cfg *StoreSection) error {
	switch cfg.Engine {
	case EngineMemory:
	case EngineRedis:
		if cfg.Redis.URL == "" {
			return errors.New("store.redis.url is required")
		}
	case EngineBadger:
		if cfg.Badger.Dir == "" {
			return errors.New("store.badger.dir is required")
		}
		if err := os.MkdirAll(cfg.Badger.Dir, 0750); err != nil {
			return errors.New("cannot create badger directory: " + err.Error())
		}
	default:
		return fmt.Errorf("store.engine %q is not one of memory, redis, badger", cfg.Engine)
	}
	return nil
}

func verifyDurations(cfg *ServerConfig) error {
	if cfg.Keys.MaxPopAttempts < 1 {
		return errors.New("keys.max_pop_attempts must be at least 1")
	}
	if cfg.Keys.UsageTTL < 0 {
		return errors.New("keys.usage_ttl must not be negative")
	}
	if cfg.Tickets.TTL <= 0 {
		return errors.New("tickets.ttl must be positive")
	}
	if cfg.Tickets.AutoCloseDelay <= 0 {
		return errors.New("tickets.autoclose_delay must be positive")
	}
	if cfg.Tickets.AutoCloseDelay >= cfg.Tickets.TTL {
		return errors.New("tickets.autoclose_delay must be shorter than tickets.ttl")
	}
	if cfg.Dedup.TTL <= 0 {
		return errors.New("dedup.ttl must be positive")
	}
	return nil
}

func verifyFrontend(cfg *FrontendSection) error {
	if cfg.URL == "" {
		return nil
	}
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return fmt.Errorf("frontend.url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("frontend.url scheme %q is not http or https", u.Scheme)
	}
	if cfg.Timeout <= 0 {
		return errors.New("frontend.timeout must be positive")
	}
	if cfg.CAFile != "" {
		if _, err := os.Stat(cfg.CAFile); err != nil {
			return fmt.Errorf("frontend.ca_file: %w", err)
		}
	}
	return nil
}

func verifyLog(cfg *LogSection) error {
	if _, err := logger.ParseLevel(cfg.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	switch strings.ToLower(cfg.Format) {
	case "", "json", "text":
	default:
		return fmt.Errorf("log.format %q is not json or text", cfg.Format)
	}
	return nil
}
