package bootstrap

import (
	"log/slog"

	"golang.org/x/time/rate"

	"github.com/yndnr/keydesk/internal/core/service"
	"github.com/yndnr/keydesk/internal/infra/frontend"
	"github.com/yndnr/keydesk/internal/infra/tlsroots"
	"github.com/yndnr/keydesk/internal/server/config"
)

// DeskConfig maps the file configuration onto the service settings.
func DeskConfig(cfg *config.ServerConfig) service.DeskConfig {
	dc := service.DefaultDeskConfig()

	dc.Keys.MaxPopAttempts = cfg.Keys.MaxPopAttempts
	dc.Keys.UsageTTL = cfg.Keys.UsageTTL

	dc.Tickets.TTL = cfg.Tickets.TTL

	dc.AutoClose.Delay = cfg.Tickets.AutoCloseDelay
	if cfg.Tickets.AutoCloseNotice != "" {
		dc.AutoClose.Notice = cfg.Tickets.AutoCloseNotice
	}
	if cfg.Tickets.GatewayRate > 0 {
		dc.AutoClose.GatewayRate = rate.Limit(cfg.Tickets.GatewayRate)
	}

	dc.DedupTTL = cfg.Dedup.TTL
	return dc
}

// Frontend returns the bridge client, or a Disabled stand-in when no URL
// is configured.
func Frontend(cfg config.FrontendSection, userAgent string, logger *slog.Logger) (service.Courier, service.ChannelGateway, error) {
	if cfg.URL == "" {
		d := frontend.NewDisabled(logger)
		return d, d, nil
	}

	opts := []frontend.Option{
		frontend.WithToken(cfg.Token),
		frontend.WithTimeout(cfg.Timeout),
		frontend.WithUserAgent(userAgent),
	}
	if cfg.CAFile != "" {
		tlsCfg, err := tlsroots.ClientConfig(cfg.CAFile)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, frontend.WithTLSConfig(tlsCfg))
	}
	c := frontend.New(cfg.URL, opts...)
	return c, c, nil
}
