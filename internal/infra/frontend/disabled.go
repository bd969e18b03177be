package frontend

import (
	"context"
	"log/slog"
	"time"

	"github.com/yndnr/keydesk/internal/core/service"
)

// Disabled stands in for the bridge when none is configured. Deliveries
// fail, so issuance rolls back, and every channel counts as active, so
// autoclose never deletes anything it cannot see.
type Disabled struct {
	logger *slog.Logger
}

var (
	_ service.Courier        = Disabled{}
	_ service.ChannelGateway = Disabled{}
)

// NewDisabled returns a Disabled frontend that logs what it drops.
func NewDisabled(logger *slog.Logger) Disabled {
	if logger == nil {
		logger = slog.Default()
	}
	return Disabled{logger: logger}
}

func (d Disabled) Deliver(_ context.Context, recipient service.Recipient, _ string) error {
	d.logger.Warn("key delivery dropped, no frontend configured", "recipient", recipient.ID)
	return ErrDisabled
}

func (d Disabled) HasParticipantMessages(context.Context, string, time.Time) (bool, error) {
	return true, nil
}

func (d Disabled) PostNotice(_ context.Context, channelID, _ string) error {
	d.logger.Debug("notice dropped, no frontend configured", "channel", channelID)
	return nil
}

func (d Disabled) DeleteChannel(context.Context, string) error {
	return ErrDisabled
}
