package command

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/keydesk/internal/core/domain"
	"github.com/yndnr/keydesk/internal/core/service"
	"github.com/yndnr/keydesk/internal/infra/confloader"
	"github.com/yndnr/keydesk/internal/server/bootstrap"
	"github.com/yndnr/keydesk/internal/server/config"
	"github.com/yndnr/keydesk/internal/storage"
	"github.com/yndnr/keydesk/internal/telemetry/logger"
)

// session is one command's view of the deployment.
type session struct {
	cfg   *config.ServerConfig
	store storage.Store
	desk  *service.Desk
	admin string
}

// invocation returns a fresh admin invocation. Each CLI call is its own
// command, so it gets its own dedup identity.
func (s *session) invocation() (service.Invocation, error) {
	id, err := domain.GenerateID("cli-")
	if err != nil {
		return service.Invocation{}, err
	}
	return service.Invocation{ID: id, ActorID: s.admin, DisplayName: s.admin, Admin: true}, nil
}

// withSession loads the server configuration, opens the store and runs fn.
func withSession(c *cli.Context, fn func(ctx context.Context, s *session) error) error {
	settings := GetSettings(c)

	cfg, err := loadServerConfig(settings.ServerConfig)
	if err != nil {
		return err
	}

	log := logger.Discard().Slog()
	if settings.Verbose {
		l, err := logger.New(logger.Config{Level: "debug", Format: "text", Output: stderr(c)})
		if err != nil {
			return err
		}
		log = l.Slog()
	}

	ctx := c.Context
	if ctx == nil {
		ctx = context.Background()
	}

	store, err := opener(c)(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	courier, gateway, err := bootstrap.Frontend(cfg.Frontend, "keydesk-cli", log)
	if err != nil {
		return err
	}
	if cfg.Frontend.URL == "" {
		// Without a bridge the operator hands the printed key over.
		courier = service.CourierFunc(func(context.Context, service.Recipient, string) error { return nil })
	}

	desk := service.NewDesk(store, courier, gateway, bootstrap.DeskConfig(cfg), log, nil)
	defer desk.Stop()

	return fn(ctx, &session{cfg: cfg, store: store, desk: desk, admin: settings.AdminID})
}

// loadServerConfig reads the server configuration the same way the server
// does. An empty path uses defaults plus KEYDESK_* variables.
func loadServerConfig(path string) (*config.ServerConfig, error) {
	cfg := config.Default()

	var opts []confloader.Option
	if path != "" {
		opts = append(opts, confloader.WithConfigFile(path), confloader.WithStrict())
	}
	if err := confloader.NewLoader(opts...).Load(cfg); err != nil {
		return nil, err
	}
	if err := config.Verify(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// firstArg returns the single required positional argument.
func firstArg(c *cli.Context, name string) (string, error) {
	if c.NArg() < 1 {
		return "", domain.ErrMissingArgument.WithDetails(name)
	}
	if c.NArg() > 1 {
		return "", domain.ErrInvalidArgument.WithDetails("unexpected arguments after " + name)
	}
	return c.Args().First(), nil
}
