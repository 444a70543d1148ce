package email

import (
	"go.uber.org/fx"

	"github.com/docuflow/billing/internal/config"
	"github.com/docuflow/billing/internal/events"
)

var Module = fx.Module("providers.email",
	fx.Provide(NewFromConfig),
	fx.Provide(fx.Annotate(
		func(h *EventHandler) events.Handler { return h },
		fx.ResultTags(`group:"event.handlers"`),
	)),
	fx.Provide(NewEventHandler),
)

func NewFromConfig(cfg config.Config) Provider {
	if !cfg.Email.Enabled {
		return &NoOpProvider{}
	}
	return NewSMTP(Config{
		Host:     cfg.Email.SMTPHost,
		Port:     cfg.Email.SMTPPort,
		Username: cfg.Email.SMTPUsername,
		Password: cfg.Email.SMTPPassword,
		From:     cfg.Email.SMTPFrom,
	})
}
