package command

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/keydesk/internal/cli/output"
	"github.com/yndnr/keydesk/internal/core/domain"
	"github.com/yndnr/keydesk/internal/core/service"
	"github.com/yndnr/keydesk/pkg/keygen"
)

// KeyCommand returns the key command group.
func KeyCommand() *cli.Command {
	return &cli.Command{
		Name:  "key",
		Usage: "Key pool management",
		Subcommands: []*cli.Command{
			{
				Name:      "add",
				Usage:     "Add keys to the pool",
				ArgsUsage: "KEY [KEY...]",
				Action:    keyAdd,
			},
			{
				Name:      "import",
				Usage:     "Add every key listed in a file (one per line, # comments)",
				ArgsUsage: "FILE",
				Action:    keyImport,
			},
			{
				Name:  "generate",
				Usage: "Generate random keys and add them to the pool",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "count", Aliases: []string{"n"}, Usage: "Number of keys", Value: 10},
					&cli.StringFlag{Name: "prefix", Usage: "Key prefix"},
					&cli.IntFlag{Name: "groups", Usage: "Character groups per key", Value: keygen.DefaultFormat.Groups},
					&cli.IntFlag{Name: "group-len", Usage: "Characters per group", Value: keygen.DefaultFormat.GroupLen},
					&cli.StringFlag{Name: "out", Usage: "Write the keys to a file instead of stdout"},
				},
				Action: keyGenerate,
			},
			{
				Name:      "reset",
				Usage:     "Return a key to the pool",
				ArgsUsage: "KEY",
				Action:    keyReset,
			},
			{
				Name:      "inspect",
				Usage:     "Show a key's status",
				ArgsUsage: "KEY",
				Action:    keyInspect,
			},
			{
				Name:  "issue",
				Usage: "Issue a key to a recipient",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "to", Usage: "Recipient ID", Required: true},
					&cli.StringFlag{Name: "name", Usage: "Recipient display name"},
				},
				Action: keyIssue,
			},
			{
				Name:      "redeem",
				Usage:     "Record a redemption (idempotent)",
				ArgsUsage: "KEY",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "origin", Usage: "Origin address"},
					&cli.StringFlag{Name: "client", Usage: "Client descriptor"},
					&cli.StringFlag{Name: "recipient", Usage: "Redeeming recipient ID"},
				},
				Action: keyRedeem,
			},
			{
				Name:   "available",
				Usage:  "Show the pool size",
				Action: keyAvailable,
			},
			{
				Name:      "history",
				Usage:     "List keys ever issued to a recipient",
				ArgsUsage: "RECIPIENT",
				Action:    keyHistory,
			},
			{
				Name:      "backfill",
				Usage:     "Record the owner of a key handed out elsewhere",
				ArgsUsage: "KEY",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "to", Usage: "Recipient ID", Required: true},
					&cli.StringFlag{Name: "name", Usage: "Recipient display name"},
				},
				Action: keyBackfill,
			},
			{
				Name:  "purge",
				Usage: "Drop usage details older than a cutoff",
				Flags: []cli.Flag{
					&cli.DurationFlag{Name: "older-than", Usage: "Cutoff age", Value: 90 * 24 * time.Hour},
				},
				Action: keyPurge,
			},
			{
				Name:  "log",
				Usage: "Show the newest redemptions",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Usage: "Maximum entries", Value: 20},
				},
				Action: keyLog,
			},
			{
				Name:  "export",
				Usage: "Export issued and used keys",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "since", Usage: "Keep keys issued since a date (2006-01-02) or age (720h)"},
					&cli.StringFlag{Name: "recipient", Usage: "Keep keys of one recipient"},
				},
				Action: keyExport,
			},
		},
	}
}

func keyAdd(c *cli.Context) error {
	if c.NArg() == 0 {
		return domain.ErrMissingArgument.WithDetails("KEY")
	}
	return withSession(c, func(ctx context.Context, s *session) error {
		for _, id := range c.Args().Slice() {
			if err := addKey(ctx, s, id); err != nil {
				return fmt.Errorf("%s: %w", domain.MaskKey(id), err)
			}
		}
		return printf(c, "%d key(s) added", c.NArg())
	})
}

func addKey(ctx context.Context, s *session, id string) error {
	inv, err := s.invocation()
	if err != nil {
		return err
	}
	return s.desk.Add(ctx, inv, id)
}

// importResult summarizes a bulk import.
type importResult struct {
	Added   int      `json:"added"`
	Skipped int      `json:"skipped"`
	Failed  []string `json:"failed,omitempty" table:"-"`
}

func keyImport(c *cli.Context) error {
	path, err := firstArg(c, "FILE")
	if err != nil {
		return err
	}
	ids, err := readKeyFile(path)
	if err != nil {
		return err
	}

	return withSession(c, func(ctx context.Context, s *session) error {
		bar := output.NewProgressBar(stderr(c), "importing", output.Count)
		bar.SetTotal(int64(len(ids)))

		var res importResult
		for _, id := range ids {
			err := addKey(ctx, s, id)
			switch {
			case err == nil:
				res.Added++
			case errors.Is(err, domain.ErrKeyAlreadyUsed):
				res.Skipped++
			default:
				res.Failed = append(res.Failed, domain.MaskKey(id)+": "+err.Error())
			}
			bar.Increment(1)
		}
		bar.Finish()

		for _, line := range res.Failed {
			fmt.Fprintln(stderr(c), line)
		}
		if err := render(c, res); err != nil {
			return err
		}
		if len(res.Failed) > 0 {
			return fmt.Errorf("%d key(s) failed to import", len(res.Failed))
		}
		return nil
	})
}

// readKeyFile lists the keys in a file, skipping blanks and comments.
func readKeyFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var ids []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := domain.NormalizeKeyID(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		ids = append(ids, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return ids, nil
}

// generatedKey is one freshly generated key.
type generatedKey struct {
	Key string `json:"key"`
}

func keyGenerate(c *cli.Context) error {
	format := keygen.Format{
		Prefix:   c.String("prefix"),
		Groups:   c.Int("groups"),
		GroupLen: c.Int("group-len"),
	}
	n := c.Int("count")
	if n < 1 {
		return domain.ErrInvalidArgument.WithDetails("--count must be at least 1")
	}
	ids, err := keygen.GenerateN(format, n)
	if err != nil {
		return domain.ErrInvalidArgument.WithDetails(err.Error())
	}

	return withSession(c, func(ctx context.Context, s *session) error {
		bar := output.NewProgressBar(stderr(c), "generating", output.Count)
		bar.SetTotal(int64(len(ids)))
		for _, id := range ids {
			if err := addKey(ctx, s, id); err != nil {
				bar.Finish()
				return fmt.Errorf("%s: %w", domain.MaskKey(id), err)
			}
			bar.Increment(1)
		}
		bar.Finish()

		if path := c.String("out"); path != "" {
			data := strings.Join(ids, "\n") + "\n"
			if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
				return err
			}
			return printf(c, "%d key(s) added, written to %s", len(ids), path)
		}

		views := make([]generatedKey, 0, len(ids))
		for _, id := range ids {
			views = append(views, generatedKey{Key: id})
		}
		return render(c, views)
	})
}

func keyReset(c *cli.Context) error {
	id, err := firstArg(c, "KEY")
	if err != nil {
		return err
	}
	return withSession(c, func(ctx context.Context, s *session) error {
		inv, err := s.invocation()
		if err != nil {
			return err
		}
		if err := s.desk.Reset(ctx, inv, id); err != nil {
			return err
		}
		return printf(c, "key %s returned to the pool", domain.MaskKey(id))
	})
}

func keyInspect(c *cli.Context) error {
	id, err := firstArg(c, "KEY")
	if err != nil {
		return err
	}
	return withSession(c, func(ctx context.Context, s *session) error {
		inv, err := s.invocation()
		if err != nil {
			return err
		}
		st, err := s.desk.Inspect(ctx, inv, id)
		if err != nil {
			return err
		}
		return render(c, newKeyView(st))
	})
}

func keyIssue(c *cli.Context) error {
	return withSession(c, func(ctx context.Context, s *session) error {
		inv, err := s.invocation()
		if err != nil {
			return err
		}
		key, err := s.desk.IssueTo(ctx, inv, service.Recipient{ID: c.String("to"), DisplayName: c.String("name")})
		if err != nil {
			return err
		}
		return render(c, newIssuedView(key))
	})
}

func keyRedeem(c *cli.Context) error {
	id, err := firstArg(c, "KEY")
	if err != nil {
		return err
	}
	return withSession(c, func(ctx context.Context, s *session) error {
		inv, err := s.invocation()
		if err != nil {
			return err
		}
		usage := domain.UsageRecord{
			UsedAt:           time.Now().UnixMilli(),
			OriginAddr:       c.String("origin"),
			ClientDescriptor: c.String("client"),
			RecipientID:      c.String("recipient"),
		}
		if err := s.desk.MarkUsed(ctx, inv, id, usage); err != nil {
			return err
		}
		return printf(c, "key %s marked used", domain.MaskKey(id))
	})
}

func keyAvailable(c *cli.Context) error {
	return withSession(c, func(ctx context.Context, s *session) error {
		inv, err := s.invocation()
		if err != nil {
			return err
		}
		n, err := s.desk.Available(ctx, inv)
		if err != nil {
			return err
		}
		if GetSettings(c).Format == output.FormatTable {
			return printf(c, "%d", n)
		}
		return render(c, map[string]int64{"available": n})
	})
}

func keyHistory(c *cli.Context) error {
	recipient, err := firstArg(c, "RECIPIENT")
	if err != nil {
		return err
	}
	return withSession(c, func(ctx context.Context, s *session) error {
		inv, err := s.invocation()
		if err != nil {
			return err
		}
		list, err := s.desk.History(ctx, inv, recipient)
		if err != nil {
			return err
		}
		return render(c, newKeyViews(list))
	})
}

func keyBackfill(c *cli.Context) error {
	id, err := firstArg(c, "KEY")
	if err != nil {
		return err
	}
	return withSession(c, func(ctx context.Context, s *session) error {
		inv, err := s.invocation()
		if err != nil {
			return err
		}
		recipient := service.Recipient{ID: c.String("to"), DisplayName: c.String("name")}
		if err := s.desk.Backfill(ctx, inv, recipient, id); err != nil {
			return err
		}
		return printf(c, "key %s recorded for %s", domain.MaskKey(id), recipient.ID)
	})
}

func keyPurge(c *cli.Context) error {
	return withSession(c, func(ctx context.Context, s *session) error {
		inv, err := s.invocation()
		if err != nil {
			return err
		}
		n, err := s.desk.PurgeUsage(ctx, inv, c.Duration("older-than"))
		if err != nil {
			return err
		}
		return printf(c, "%d usage record(s) purged", n)
	})
}

func keyLog(c *cli.Context) error {
	return withSession(c, func(ctx context.Context, s *session) error {
		inv, err := s.invocation()
		if err != nil {
			return err
		}
		list, err := s.desk.UsageLog(ctx, inv, c.Int("limit"))
		if err != nil {
			return err
		}
		return render(c, newUsageViews(list))
	})
}

func keyExport(c *cli.Context) error {
	since, err := parseSince(c.String("since"), time.Now())
	if err != nil {
		return err
	}
	filter := service.ExportFilter{Since: since, RecipientID: c.String("recipient")}

	return withSession(c, func(ctx context.Context, s *session) error {
		inv, err := s.invocation()
		if err != nil {
			return err
		}
		list, err := s.desk.Export(ctx, inv, filter)
		if err != nil {
			return err
		}
		return render(c, newKeyViews(list))
	})
}

// parseSince accepts a date, an RFC 3339 instant or an age.
func parseSince(s string, now time.Time) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.ParseInLocation("2006-01-02", s, time.Local); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if d, err := time.ParseDuration(s); err == nil && d >= 0 {
		return now.Add(-d), nil
	}
	return time.Time{}, domain.ErrInvalidArgument.WithDetails("invalid --since " + s)
}
