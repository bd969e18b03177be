package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/yndnr/keydesk/internal/core/service"
	"github.com/yndnr/keydesk/internal/infra/buildinfo"
	"github.com/yndnr/keydesk/internal/infra/confloader"
	"github.com/yndnr/keydesk/internal/infra/shutdown"
	"github.com/yndnr/keydesk/internal/infra/tlsroots"
	"github.com/yndnr/keydesk/internal/server/bootstrap"
	"github.com/yndnr/keydesk/internal/server/config"
	"github.com/yndnr/keydesk/internal/server/httpserver"
	"github.com/yndnr/keydesk/internal/server/httpserver/handler"
	"github.com/yndnr/keydesk/internal/server/localserver"
	"github.com/yndnr/keydesk/internal/telemetry/logger"
	"github.com/yndnr/keydesk/internal/telemetry/metric"
)

const (
	shutdownTimeout    = 30 * time.Second
	limiterSweepPeriod = time.Minute
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configFile  = flag.String("config", "", "Path to configuration file")
		showVersion = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("keydesk-server %s\n", buildinfo.String())
		return nil
	}

	cfg, err := loadConfig(*configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := initLogger(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	slogLogger := log.Slog()

	info := buildinfo.Get()
	log.Info("starting keydesk-server",
		"version", info.Version,
		"commit", info.Commit,
		"config", *configFile)
	log.Debug("effective configuration", "config", config.Sanitize(cfg))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics := metric.Global()

	store, err := bootstrap.OpenStore(ctx, cfg.Store, metrics, slogLogger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	go bootstrap.KeepAlive(ctx, store, cfg.Store.KeepAlive, slogLogger)

	courier, gateway, err := bootstrap.Frontend(cfg.Frontend, "keydesk-server/"+info.Version, slogLogger)
	if err != nil {
		store.Close()
		return fmt.Errorf("frontend bridge: %w", err)
	}
	desk := service.NewDesk(store, courier, gateway, bootstrap.DeskConfig(cfg), slogLogger, metrics)
	if err := desk.Start(ctx); err != nil {
		store.Close()
		return fmt.Errorf("restore ticket timers: %w", err)
	}

	var limiter *httpserver.RateLimiter
	if cfg.Server.HTTP.RedeemRate > 0 {
		limiter = httpserver.NewRateLimiter(cfg.Server.HTTP.RedeemRate, cfg.Server.HTTP.RedeemBurst)
		go sweepLimiter(ctx, limiter)
	}

	trust, err := handler.ParseTrustedProxies(cfg.Server.HTTP.TrustedProxies)
	if err != nil {
		desk.Stop()
		store.Close()
		return fmt.Errorf("trusted proxies: %w", err)
	}

	router := httpserver.NewRouter(&httpserver.RouterConfig{
		Keys:               desk.Keys,
		Store:              store,
		Metrics:            metrics,
		Logger:             slogLogger,
		Limiter:            limiter,
		TrustedProxies:     trust,
		CORSAllowedOrigins: cfg.Server.HTTP.CORSAllowedOrigins,
	})
	httpServer := httpserver.New(cfg.Server.HTTP.Addr, router)

	shutdownHandler := shutdown.NewHandler(shutdownTimeout, slogLogger)

	// Hooks run in reverse order of registration.
	shutdownHandler.OnShutdown("store", func(context.Context) error {
		log.Info("closing store")
		return store.Close()
	})
	shutdownHandler.OnShutdown("desk", func(context.Context) error {
		log.Info("stopping auto-close timers")
		desk.Stop()
		cancel()
		return nil
	})
	shutdownHandler.OnShutdown("http", func(ctx context.Context) error {
		log.Info("shutting down HTTP server")
		return httpServer.Shutdown(ctx)
	})

	if *configFile != "" {
		watcher, err := watchConfig(*configFile, cfg, log)
		if err != nil {
			log.Warn("configuration watcher disabled", "error", err)
		} else {
			shutdownHandler.OnShutdown("config-watcher", func(context.Context) error {
				return watcher.Stop()
			})
		}
	}

	if cfg.Server.Local.Socket != "" {
		commands := localserver.NewHandler(desk.Keys, store, desk.AutoClose, shutdownHandler.Trigger)
		control := localserver.New(cfg.Server.Local.Socket, commands, slogLogger)
		if err := control.Listen(); err != nil {
			log.Warn("control socket disabled", "error", err)
		} else {
			shutdownHandler.OnShutdown("control-socket", func(ctx context.Context) error {
				return control.Shutdown(ctx)
			})
			go func() {
				log.Info("control socket listening", "path", cfg.Server.Local.Socket)
				if err := control.Serve(); err != nil {
					log.Error("control socket error", "error", err)
				}
			}()
		}
	}

	var certs *tlsroots.Reloader
	if cfg.Server.HTTP.TLSCertFile != "" && cfg.Server.HTTP.TLSKeyFile != "" {
		certs, err = tlsroots.NewReloader(cfg.Server.HTTP.TLSCertFile, cfg.Server.HTTP.TLSKeyFile,
			tlsroots.WithLogger(slogLogger))
		if err != nil {
			store.Close()
			return fmt.Errorf("load TLS certificate: %w", err)
		}
		if err := certs.Start(); err != nil {
			log.Warn("certificate reload disabled", "error", err)
		}
		shutdownHandler.OnShutdown("tls-reloader", func(context.Context) error {
			return certs.Stop()
		})
	}

	go func() {
		log.Info("HTTP server listening", "addr", cfg.Server.HTTP.Addr, "tls", certs != nil)

		var err error
		if certs != nil {
			err = httpServer.ListenAndServeTLSConfig(certs.ServerConfig())
		} else {
			err = httpServer.ListenAndServe()
		}
		if err != nil {
			log.Error("HTTP server error", "error", err)
			shutdownHandler.Trigger()
		}
	}()

	log.Info("server started, press Ctrl+C to stop")
	if err := shutdownHandler.Wait(); err != nil {
		log.Error("shutdown error", "error", err)
		return err
	}

	log.Info("server stopped gracefully")
	return nil
}

// loadConfig loads configuration from file and environment.
func loadConfig(configFile string) (*config.ServerConfig, error) {
	cfg := config.Default()

	opts := []confloader.Option{}
	if configFile != "" {
		opts = append(opts, confloader.WithConfigFile(configFile), confloader.WithStrict())
	}

	if err := confloader.NewLoader(opts...).Load(cfg); err != nil {
		return nil, err
	}
	if err := config.Verify(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// initLogger initializes the structured logger and installs it as default.
func initLogger(cfg *config.ServerConfig) (logger.Logger, error) {
	log, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: os.Stdout,
	})
	if err != nil {
		return nil, err
	}
	logger.SetDefault(log)
	return log, nil
}

// watchConfig reloads the configuration file on change. Only the log
// level takes effect at runtime; everything else needs a restart.
func watchConfig(path string, current *config.ServerConfig, log logger.Logger) (*confloader.Watcher, error) {
	watcher, err := confloader.NewWatcher(
		confloader.WithWatcherLogger(log.Slog()),
		confloader.WithDebounce(500*time.Millisecond),
	)
	if err != nil {
		return nil, err
	}
	if err := watcher.Watch(path); err != nil {
		watcher.Stop()
		return nil, err
	}

	level := current.Log.Level
	watcher.OnChange(func(string) {
		next, err := loadConfig(path)
		if err != nil {
			log.Warn("configuration reload rejected", "error", err)
			return
		}
		if next.Log.Level != level {
			if err := logger.SetLevel(next.Log.Level); err != nil {
				log.Warn("log level not changed", "error", err)
				return
			}
			log.Info("log level changed", "from", level, "to", next.Log.Level)
			level = next.Log.Level
		}
	})
	watcher.StartAsync()
	return watcher, nil
}

// sweepLimiter drops idle per-address buckets until ctx ends.
func sweepLimiter(ctx context.Context, l *httpserver.RateLimiter) {
	ticker := time.NewTicker(limiterSweepPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Sweep()
		}
	}
}
