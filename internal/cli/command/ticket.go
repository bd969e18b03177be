package command

import (
	"context"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/keydesk/internal/core/domain"
)

// TicketCommand returns the ticket command group.
func TicketCommand() *cli.Command {
	return &cli.Command{
		Name:  "ticket",
		Usage: "Support and review tickets",
		Subcommands: []*cli.Command{
			{
				Name:      "open",
				Usage:     "Record a ticket for a channel on a member's behalf",
				ArgsUsage: "CHANNEL",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "member", Usage: "Member the channel belongs to", Required: true},
					&cli.StringFlag{Name: "type", Usage: "Ticket type: support, review", Value: string(domain.TicketSupport)},
				},
				Action: ticketOpen,
			},
			{
				Name:      "claim",
				Usage:     "Claim a ticket as the administrator",
				ArgsUsage: "CHANNEL",
				Action:    ticketClaim,
			},
			{
				Name:      "release",
				Usage:     "Release a ticket the administrator holds",
				ArgsUsage: "CHANNEL",
				Action:    ticketRelease,
			},
			{
				Name:      "close",
				Usage:     "Drop a ticket record",
				ArgsUsage: "CHANNEL",
				Action:    ticketClose,
			},
			{
				Name:      "show",
				Usage:     "Show a ticket",
				ArgsUsage: "CHANNEL",
				Action:    ticketShow,
			},
		},
	}
}

func ticketOpen(c *cli.Context) error {
	channel, err := firstArg(c, "CHANNEL")
	if err != nil {
		return err
	}
	typ, err := domain.ParseTicketType(c.String("type"))
	if err != nil {
		return err
	}
	return withSession(c, func(ctx context.Context, s *session) error {
		inv, err := s.invocation()
		if err != nil {
			return err
		}
		inv.ActorID = c.String("member")
		inv.DisplayName = inv.ActorID
		inv.Admin = false

		t, err := s.desk.OpenTicket(ctx, inv, channel, typ)
		if err != nil {
			return err
		}
		return render(c, newTicketView(t))
	})
}

func ticketClaim(c *cli.Context) error {
	channel, err := firstArg(c, "CHANNEL")
	if err != nil {
		return err
	}
	return withSession(c, func(ctx context.Context, s *session) error {
		inv, err := s.invocation()
		if err != nil {
			return err
		}
		t, err := s.desk.Claim(ctx, inv, channel)
		if err != nil {
			return err
		}
		return render(c, newTicketView(t))
	})
}

func ticketRelease(c *cli.Context) error {
	channel, err := firstArg(c, "CHANNEL")
	if err != nil {
		return err
	}
	return withSession(c, func(ctx context.Context, s *session) error {
		inv, err := s.invocation()
		if err != nil {
			return err
		}
		t, err := s.desk.Release(ctx, inv, channel)
		if err != nil {
			return err
		}
		return render(c, newTicketView(t))
	})
}

func ticketClose(c *cli.Context) error {
	channel, err := firstArg(c, "CHANNEL")
	if err != nil {
		return err
	}
	return withSession(c, func(ctx context.Context, s *session) error {
		inv, err := s.invocation()
		if err != nil {
			return err
		}
		if err := s.desk.CloseTicket(ctx, inv, channel); err != nil {
			return err
		}
		return printf(c, "ticket %s closed", channel)
	})
}

func ticketShow(c *cli.Context) error {
	channel, err := firstArg(c, "CHANNEL")
	if err != nil {
		return err
	}
	return withSession(c, func(ctx context.Context, s *session) error {
		t, err := s.desk.Tickets.Get(ctx, channel)
		if err != nil {
			return err
		}
		return render(c, newTicketView(t))
	})
}

// RecipientCommand returns the recipient command group.
func RecipientCommand() *cli.Command {
	return &cli.Command{
		Name:  "recipient",
		Usage: "Recipient management",
		Subcommands: []*cli.Command{
			{
				Name:      "reset",
				Usage:     "Let a recipient self-claim a key again",
				ArgsUsage: "RECIPIENT",
				Action:    recipientReset,
			},
		},
	}
}

func recipientReset(c *cli.Context) error {
	recipient, err := firstArg(c, "RECIPIENT")
	if err != nil {
		return err
	}
	return withSession(c, func(ctx context.Context, s *session) error {
		inv, err := s.invocation()
		if err != nil {
			return err
		}
		if err := s.desk.ResetRecipient(ctx, inv, recipient); err != nil {
			return err
		}
		return printf(c, "recipient %s may claim again", recipient)
	})
}
