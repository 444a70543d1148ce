package audit

import (
	"go.uber.org/fx"

	"github.com/docuflow/billing/internal/audit/repository"
	"github.com/docuflow/billing/internal/audit/service"
	"github.com/docuflow/billing/internal/events"
)

var Module = fx.Module("audit.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
	fx.Provide(fx.Annotate(
		func(svc *EventHandler) events.Handler { return svc },
		fx.ResultTags(`group:"event.handlers"`),
	)),
	fx.Provide(NewEventHandler),
)
