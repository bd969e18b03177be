package command

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/keydesk/internal/cli/output"
	"github.com/yndnr/keydesk/internal/core/domain"
	"github.com/yndnr/keydesk/internal/infra/buildinfo"
	"github.com/yndnr/keydesk/internal/server/bootstrap"
	"github.com/yndnr/keydesk/internal/storage/backup"
	"github.com/yndnr/keydesk/pkg/crypto/adaptive"
)

// StoreCommand returns the store command group.
func StoreCommand() *cli.Command {
	return &cli.Command{
		Name:  "store",
		Usage: "Store maintenance",
		Subcommands: []*cli.Command{
			{
				Name:   "ping",
				Usage:  "Check the configured store",
				Action: storePing,
			},
			{
				Name:  "backup",
				Usage: "Write a full backup of the embedded store",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "out", Usage: "Backup file", Required: true},
					passphraseFlag(),
					&cli.StringFlag{Name: "cipher", Usage: "Cipher for sealed backups: aes-gcm, chacha20-poly1305 (default: by CPU)"},
				},
				Action: storeBackup,
			},
			{
				Name:  "restore",
				Usage: "Load a backup into the embedded store",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "in", Usage: "Backup file", Required: true},
					passphraseFlag(),
				},
				Action: storeRestore,
			},
			{
				Name:   "gc",
				Usage:  "Reclaim space in the embedded store",
				Action: storeGC,
			},
		},
	}
}

func storePing(c *cli.Context) error {
	return withSession(c, func(ctx context.Context, s *session) error {
		start := time.Now()
		if err := s.store.Ping(ctx); err != nil {
			return err
		}
		return printf(c, "%s store ok (%s)", s.cfg.Store.Engine, time.Since(start).Round(time.Microsecond))
	})
}

func passphraseFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "passphrase-file",
		Usage:   "File holding the passphrase that seals the backup",
		EnvVars: []string{"KEYDESK_BACKUP_PASSPHRASE_FILE"},
	}
}

// readPassphrase returns the passphrase named by --passphrase-file, or nil.
func readPassphrase(c *cli.Context) ([]byte, error) {
	path := c.String("passphrase-file")
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read passphrase: %w", err)
	}
	return bytes.TrimRight(data, "\r\n"), nil
}

func storeBackup(c *cli.Context) error {
	pass, err := readPassphrase(c)
	if err != nil {
		return err
	}
	typ, err := adaptive.ParseType(c.String("cipher"))
	if err != nil {
		return domain.ErrInvalidArgument.WithDetails(err.Error())
	}

	return withSession(c, func(ctx context.Context, s *session) error {
		db, ok := bootstrap.Badger(s.store)
		if !ok {
			return fmt.Errorf("backup needs the badger engine, configured engine is %s", s.cfg.Store.Engine)
		}

		var stream bytes.Buffer
		bar := output.NewProgressBar(stderr(c), "backup", output.Bytes)
		version, err := db.Backup(ctx, io.MultiWriter(&stream, bar))
		bar.Finish()
		if err != nil {
			return err
		}

		data, note := stream.Bytes(), ""
		if len(pass) > 0 {
			var sealed bytes.Buffer
			if err := backup.Seal(&sealed, data, pass, typ); err != nil {
				return err
			}
			data, note = sealed.Bytes(), ", sealed with "+string(typ)
		}

		path := c.String("out")
		if err := os.WriteFile(path, data, 0o600); err != nil {
			return err
		}
		return printf(c, "backup written to %s (%s, version %d%s)", path, output.Bytes(int64(len(data))), version, note)
	})
}

func storeRestore(c *cli.Context) error {
	pass, err := readPassphrase(c)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(c.String("in"))
	if err != nil {
		return err
	}
	if backup.IsSealed(data) {
		if data, err = backup.Open(data, pass); err != nil {
			return err
		}
	}

	return withSession(c, func(ctx context.Context, s *session) error {
		db, ok := bootstrap.Badger(s.store)
		if !ok {
			return fmt.Errorf("restore needs the badger engine, configured engine is %s", s.cfg.Store.Engine)
		}

		spin := output.NewSpinner(stderr(c), "loading backup")
		spin.Start()
		if err := db.Restore(ctx, bytes.NewReader(data)); err != nil {
			spin.Fail(err.Error())
			return err
		}
		spin.Success("backup loaded")
		return printf(c, "restored %s from %s", output.Bytes(int64(len(data))), c.String("in"))
	})
}

func storeGC(c *cli.Context) error {
	return withSession(c, func(ctx context.Context, s *session) error {
		db, ok := bootstrap.Badger(s.store)
		if !ok {
			return fmt.Errorf("gc needs the badger engine, configured engine is %s", s.cfg.Store.Engine)
		}

		spin := output.NewSpinner(stderr(c), "collecting value log")
		spin.Start()
		n, err := db.GC(ctx)
		if err != nil {
			spin.Fail(err.Error())
			return err
		}
		spin.Success("value log collected")
		return printf(c, "about %s reclaimed", output.Bytes(int64(n)))
	})
}

// VersionCommand returns the version command.
func VersionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Show build information",
		Action: func(c *cli.Context) error {
			if GetSettings(c).Format == output.FormatTable {
				return printf(c, "keydesk-cli %s", buildinfo.String())
			}
			return render(c, buildinfo.Get())
		},
	}
}
