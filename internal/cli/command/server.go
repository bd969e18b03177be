package command

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/keydesk/internal/cli/output"
	"github.com/yndnr/keydesk/internal/core/domain"
	"github.com/yndnr/keydesk/internal/server/localserver"
)

const controlTimeout = 10 * time.Second

// ServerCommand returns the control socket command group.
func ServerCommand() *cli.Command {
	socket := &cli.StringFlag{
		Name:    "socket",
		Usage:   "Control socket path (default: server.local.socket from the server config)",
		EnvVars: []string{"KEYDESK_SOCKET"},
	}
	return &cli.Command{
		Name:  "server",
		Usage: "Talk to a running keydesk-server over its control socket",
		Subcommands: []*cli.Command{
			{
				Name:   "status",
				Usage:  "Show server status",
				Flags:  []cli.Flag{socket},
				Action: serverStatus,
			},
			{
				Name:      "log-level",
				Usage:     "Show or change the server log level",
				ArgsUsage: "[LEVEL]",
				Flags:     []cli.Flag{socket},
				Action:    serverLogLevel,
			},
			{
				Name:   "shutdown",
				Usage:  "Shut the server down gracefully",
				Flags:  []cli.Flag{socket},
				Action: serverShutdown,
			},
		},
	}
}

func serverStatus(c *cli.Context) error {
	reply, err := control(c, "status")
	if err != nil {
		return err
	}
	return renderReply(c, reply)
}

func serverLogLevel(c *cli.Context) error {
	if c.NArg() > 1 {
		return domain.ErrInvalidArgument.WithDetails("expected at most one level")
	}
	reply, err := control(c, "log-level", c.Args().Slice()...)
	if err != nil {
		return err
	}
	return renderReply(c, reply)
}

func serverShutdown(c *cli.Context) error {
	if _, err := control(c, "shutdown"); err != nil {
		return err
	}
	return printf(c, "Shutdown requested")
}

func control(c *cli.Context, cmd string, args ...string) (string, error) {
	path := c.String("socket")
	if path == "" {
		cfg, err := loadServerConfig(GetSettings(c).ServerConfig)
		if err != nil {
			return "", err
		}
		path = cfg.Server.Local.Socket
	}
	if path == "" {
		return "", domain.ErrMissingArgument.WithDetails("no control socket configured; set --socket or server.local.socket")
	}

	ctx, cancel := context.WithTimeout(c.Context, controlTimeout)
	defer cancel()
	reply, err := localserver.Call(ctx, path, cmd, args...)
	if err != nil {
		return "", fmt.Errorf("control socket %s: %w", path, err)
	}
	return reply, nil
}

// renderReply prints "name: value" reply lines as is, or as an object in
// structured formats.
func renderReply(c *cli.Context, reply string) error {
	if GetSettings(c).Format == output.FormatTable {
		_, err := fmt.Fprint(c.App.Writer, reply)
		return err
	}
	fields := map[string]string{}
	for _, line := range strings.Split(strings.TrimSpace(reply), "\n") {
		if name, value, ok := strings.Cut(line, ": "); ok {
			fields[name] = value
		}
	}
	return render(c, fields)
}
