package command

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/urfave/cli/v2"

	cliconfig "github.com/yndnr/keydesk/internal/cli/config"
	"github.com/yndnr/keydesk/internal/cli/output"
	"github.com/yndnr/keydesk/internal/infra/buildinfo"
	"github.com/yndnr/keydesk/internal/server/bootstrap"
	"github.com/yndnr/keydesk/internal/server/config"
	"github.com/yndnr/keydesk/internal/storage"
)

// Metadata keys.
const (
	metaOpener   = "opener"
	metaSettings = "settings"
)

// StoreOpener opens the store described by cfg.
type StoreOpener func(ctx context.Context, cfg *config.ServerConfig, log *slog.Logger) (storage.Store, error)

// defaultOpener opens the configured engine without metrics.
func defaultOpener(ctx context.Context, cfg *config.ServerConfig, log *slog.Logger) (storage.Store, error) {
	return bootstrap.OpenStore(ctx, cfg.Store, nil, log)
}

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:    "keydesk-cli",
		Usage:   "KeyDesk key pool and ticket administration",
		Version: buildinfo.String(),
		Flags:   globalFlags(),
		Commands: []*cli.Command{
			KeyCommand(),
			RecipientCommand(),
			TicketCommand(),
			StoreCommand(),
			ServerCommand(),
			VersionCommand(),
		},
		Metadata: map[string]any{
			metaOpener: StoreOpener(defaultOpener),
		},
		Before: resolveSettings,
	}
}

// globalFlags returns the global CLI flags.
func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "cli-config",
			Usage:   "Path to the CLI settings file",
			EnvVars: []string{"KEYDESK_CLI_CONFIG"},
			Value:   cliconfig.DefaultConfigPath(),
		},
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to the keydesk-server configuration file (empty = defaults and environment)",
			EnvVars: []string{"KEYDESK_CONFIG"},
		},
		&cli.StringFlag{
			Name:    "admin",
			Aliases: []string{"a"},
			Usage:   "Administrator ID recorded on writes",
			EnvVars: []string{"KEYDESK_ADMIN"},
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Output format: table, json, yaml",
		},
		&cli.BoolFlag{
			Name:    "wide",
			Aliases: []string{"w"},
			Usage:   "Show wide output (more columns)",
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"V"},
			Usage:   "Log store and service activity to stderr",
		},
	}
}

// Settings are the global flags merged with the CLI settings file.
type Settings struct {
	ServerConfig string
	AdminID      string
	Format       output.Format
	Wide         bool
	Verbose      bool
}

// resolveSettings fills unset flags from the CLI settings file.
func resolveSettings(c *cli.Context) error {
	file, err := cliconfig.Load(c.String("cli-config"))
	if err != nil {
		return err
	}

	s := &Settings{
		ServerConfig: file.ServerConfig,
		AdminID:      file.AdminID,
		Wide:         c.Bool("wide"),
		Verbose:      c.Bool("verbose"),
	}
	if c.IsSet("config") {
		s.ServerConfig = c.String("config")
	}
	if c.IsSet("admin") {
		s.AdminID = c.String("admin")
	}
	if s.AdminID == "" {
		s.AdminID = defaultAdminID()
	}

	format := file.Output
	if c.IsSet("output") {
		format = c.String("output")
	}
	if s.Format, err = output.ParseFormat(format); err != nil {
		return err
	}

	if c.App.Metadata == nil {
		c.App.Metadata = map[string]any{}
	}
	c.App.Metadata[metaSettings] = s
	return nil
}

func defaultAdminID() string {
	if u := os.Getenv("USER"); u != "" {
		return "cli:" + u
	}
	return "cli"
}

// GetSettings returns the resolved global settings.
func GetSettings(c *cli.Context) *Settings {
	if s, ok := c.App.Metadata[metaSettings].(*Settings); ok {
		return s
	}
	return &Settings{Format: output.FormatTable, AdminID: defaultAdminID()}
}

func opener(c *cli.Context) StoreOpener {
	if o, ok := c.App.Metadata[metaOpener].(StoreOpener); ok {
		return o
	}
	return defaultOpener
}

// render writes data in the selected format.
func render(c *cli.Context, data any) error {
	s := GetSettings(c)
	return output.NewFormatter(s.Format, s.Wide).Format(c.App.Writer, data)
}

// printf writes a plain message; structured formats get it as an object.
func printf(c *cli.Context, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if GetSettings(c).Format == output.FormatTable {
		_, err := fmt.Fprintln(c.App.Writer, msg)
		return err
	}
	return render(c, map[string]string{"result": msg})
}

func stderr(c *cli.Context) io.Writer {
	if c.App.ErrWriter != nil {
		return c.App.ErrWriter
	}
	return os.Stderr
}
