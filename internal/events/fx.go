package events

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log      *zap.Logger
	Handlers []Handler `group:"event.handlers"`
}

var Module = fx.Module("events",
	fx.Provide(func(p Params) *Dispatcher {
		return NewDispatcher(p.Log, p.Handlers)
	}),
	fx.Invoke(registerLifecycle),
)

func registerLifecycle(lc fx.Lifecycle, d *Dispatcher) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			d.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return d.Stop(ctx)
		},
	})
}
