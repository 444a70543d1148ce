// Package webhook is the inbound entry point for gateway notifications:
// verify the signature, parse the notification, fetch the authoritative
// payment state and hand it to reconciliation.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/docuflow/billing/internal/config"
	"github.com/docuflow/billing/internal/events"
	"github.com/docuflow/billing/internal/gateway/adapters"
	gatewaydomain "github.com/docuflow/billing/internal/gateway/domain"
	obsmetrics "github.com/docuflow/billing/internal/observability/metrics"
	paymentdomain "github.com/docuflow/billing/internal/payment/domain"
	paymentservice "github.com/docuflow/billing/internal/payment/service"
	subscriptiondomain "github.com/docuflow/billing/internal/subscription/domain"
)

type Params struct {
	fx.In

	Log           *zap.Logger
	Cfg           config.Config
	Registry      *adapters.Registry
	PaymentSvc    *paymentservice.Service
	Subscriptions subscriptiondomain.Service
	Dispatcher    *events.Dispatcher  `optional:"true"`
	ObsMetrics    *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	log             *zap.Logger
	adapters        map[string]gatewaydomain.Adapter
	allowUnverified bool
	paymentSvc      *paymentservice.Service
	subscriptions   subscriptiondomain.Service
	dispatcher      *events.Dispatcher
	obsMetrics      *obsmetrics.Metrics
}

func NewService(p Params) paymentdomain.WebhookService {
	log := p.Log.Named("payment.webhook")

	built := map[string]gatewaydomain.Adapter{}
	for gateway, gatewayCfg := range map[string]config.GatewayConfig{
		"mercadopago": p.Cfg.Gateways.MercadoPago,
		"stripe":      p.Cfg.Gateways.Stripe,
	} {
		adapter, err := p.Registry.NewAdapter(gateway, gatewaydomain.AdapterConfig{
			Gateway:         gateway,
			WebhookSecret:   gatewayCfg.WebhookSecret,
			APIBaseURL:      gatewayCfg.APIBaseURL,
			APIToken:        gatewayCfg.APIToken,
			AllowUnverified: p.Cfg.Gateways.AllowUnverified,
		})
		if err != nil {
			log.Warn("gateway not configured, webhooks will be rejected",
				zap.String("gateway", gateway), zap.Error(err))
			continue
		}
		built[gateway] = adapter
	}

	return &Service{
		log:             log,
		adapters:        built,
		allowUnverified: p.Cfg.Gateways.AllowUnverified,
		paymentSvc:      p.PaymentSvc,
		subscriptions:   p.Subscriptions,
		dispatcher:      p.Dispatcher,
		obsMetrics:      p.ObsMetrics,
	}
}

func (s *Service) IngestWebhook(ctx context.Context, gateway string, payload []byte, headers http.Header) (paymentdomain.Outcome, error) {
	gateway = strings.ToLower(strings.TrimSpace(gateway))
	if gateway == "" {
		return paymentdomain.Outcome{}, paymentdomain.ErrInvalidGateway
	}
	adapter, ok := s.adapters[gateway]
	if !ok {
		s.recordWebhook(ctx, gateway, "unknown_gateway")
		return paymentdomain.Outcome{}, gatewaydomain.ErrGatewayNotFound
	}
	if !json.Valid(payload) {
		s.recordWebhook(ctx, gateway, "invalid_payload")
		return paymentdomain.Outcome{}, gatewaydomain.ErrInvalidPayload
	}

	if err := adapter.VerifyNotification(ctx, payload, headers); err != nil {
		if errors.Is(err, gatewaydomain.ErrSecretNotConfigured) && s.allowUnverified {
			s.log.Warn("accepting unverified webhook delivery", zap.String("gateway", gateway))
		} else {
			s.recordWebhook(ctx, gateway, "rejected")
			return paymentdomain.Outcome{}, err
		}
	}

	notification, err := adapter.ParseNotification(ctx, payload)
	if err != nil {
		if errors.Is(err, gatewaydomain.ErrEventIgnored) {
			s.recordWebhook(ctx, gateway, "ignored")
		} else {
			s.recordWebhook(ctx, gateway, "invalid")
		}
		return paymentdomain.Outcome{}, err
	}

	switch notification.Type {
	case gatewaydomain.NotificationPayment:
		return s.handlePayment(ctx, gateway, adapter, notification)
	case gatewaydomain.NotificationSubscriptionCanceled:
		return s.handleSubscription(ctx, gateway, notification, "canceled")
	case gatewaydomain.NotificationSubscriptionPastDue:
		return s.handleSubscription(ctx, gateway, notification, "past_due")
	default:
		s.recordWebhook(ctx, gateway, "ignored")
		return paymentdomain.Outcome{}, gatewaydomain.ErrEventIgnored
	}
}

func (s *Service) handlePayment(ctx context.Context, gateway string, adapter gatewaydomain.Adapter, notification *gatewaydomain.Notification) (paymentdomain.Outcome, error) {
	// Fast path: a settled payment never needs the detail fetch again.
	settled, err := s.paymentSvc.AlreadySettled(ctx, gateway, notification.GatewayPaymentID)
	if err != nil {
		return paymentdomain.Outcome{}, err
	}
	if settled {
		s.recordWebhook(ctx, gateway, "duplicate")
		return paymentdomain.Outcome{Status: paymentdomain.StatusPaid, Duplicate: true}, nil
	}

	details, err := adapter.FetchPayment(ctx, notification.GatewayPaymentID)
	if err != nil {
		s.recordWebhook(ctx, gateway, "fetch_failed")
		return paymentdomain.Outcome{}, err
	}
	if details.GatewayCustomerID == "" {
		details.GatewayCustomerID = notification.GatewayCustomerID
	}

	outcome, err := s.paymentSvc.Reconcile(ctx, details)
	if err != nil {
		s.recordWebhook(ctx, gateway, "error")
		return paymentdomain.Outcome{}, err
	}
	if outcome.Duplicate {
		s.recordWebhook(ctx, gateway, "duplicate")
	} else {
		s.recordWebhook(ctx, gateway, "processed")
	}
	return outcome, nil
}

func (s *Service) handleSubscription(ctx context.Context, gateway string, notification *gatewaydomain.Notification, change string) (paymentdomain.Outcome, error) {
	var userID snowflake.ID
	var err error
	switch change {
	case "canceled":
		userID, err = s.subscriptions.CancelByGatewayCustomer(ctx, gateway, notification.GatewayCustomerID)
	default:
		userID, err = s.subscriptions.MarkPastDueByGatewayCustomer(ctx, gateway, notification.GatewayCustomerID)
	}
	if err != nil {
		if errors.Is(err, subscriptiondomain.ErrCustomerNotLinked) {
			s.log.Warn("subscription webhook for unlinked customer",
				zap.String("gateway", gateway),
				zap.String("gateway_customer_id", notification.GatewayCustomerID),
			)
			s.recordWebhook(ctx, gateway, "ignored")
			return paymentdomain.Outcome{}, gatewaydomain.ErrEventIgnored
		}
		s.recordWebhook(ctx, gateway, "error")
		return paymentdomain.Outcome{}, err
	}

	s.recordWebhook(ctx, gateway, "processed")
	if s.dispatcher != nil {
		s.dispatcher.Publish(events.Event{
			Type:    events.TypeSubscriptionChanged,
			UserID:  userID,
			Gateway: gateway,
			Metadata: map[string]any{
				"change": change,
			},
		})
	}
	return paymentdomain.Outcome{Applied: true}, nil
}

func (s *Service) recordWebhook(ctx context.Context, gateway, outcome string) {
	if s.obsMetrics != nil {
		s.obsMetrics.RecordWebhook(ctx, gateway, outcome)
	}
}
