package payment

import (
	"go.uber.org/fx"

	"github.com/docuflow/billing/internal/gateway/adapters"
	"github.com/docuflow/billing/internal/gateway/adapters/mercadopago"
	"github.com/docuflow/billing/internal/gateway/adapters/stripe"
	"github.com/docuflow/billing/internal/payment/repository"
	paymentservice "github.com/docuflow/billing/internal/payment/service"
	"github.com/docuflow/billing/internal/payment/webhook"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(func() *adapters.Registry {
		return adapters.NewRegistry(
			mercadopago.NewFactory(),
			stripe.NewFactory(),
		)
	}),
	fx.Provide(paymentservice.NewService),
	fx.Provide(webhook.NewService),
)
