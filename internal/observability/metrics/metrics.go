package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ServiceName      string
}

// Metrics exposes application-level instruments.
type Metrics struct {
	webhooks      metric.Int64Counter
	paymentEvents metric.Int64Counter
	ledgerEntries metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
	if cfg.ExporterEndpoint != "" {
		opts = append(opts, otlpmetricgrpc.WithEndpoint(cfg.ExporterEndpoint))
	}
	exporter, err := otlpmetricgrpc.New(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("otlp metric exporter: %w", err)
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "docuflow-billing"
	}
	meter := provider.Meter(name)

	webhooks, err := meter.Int64Counter("billing_webhooks_total")
	if err != nil {
		return nil, err
	}
	paymentEvents, err := meter.Int64Counter("billing_payment_events_total")
	if err != nil {
		return nil, err
	}
	ledgerEntries, err := meter.Int64Counter("billing_credit_transactions_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		webhooks:      webhooks,
		paymentEvents: paymentEvents,
		ledgerEntries: ledgerEntries,
	}, nil
}

// RecordWebhook increments webhook delivery counts per gateway and outcome.
func (m *Metrics) RecordWebhook(ctx context.Context, gateway, outcome string) {
	if m == nil {
		return
	}
	m.webhooks.Add(ctx, 1, metric.WithAttributes(
		attribute.String("gateway", strings.TrimSpace(gateway)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	))
}

// RecordPaymentEvent increments reconciled payment counts per gateway and status.
func (m *Metrics) RecordPaymentEvent(ctx context.Context, gateway, status string) {
	if m == nil {
		return
	}
	m.paymentEvents.Add(ctx, 1, metric.WithAttributes(
		attribute.String("gateway", strings.TrimSpace(gateway)),
		attribute.String("status", strings.TrimSpace(status)),
	))
}

// RecordCreditTransaction increments ledger mutation counts per transaction type.
func (m *Metrics) RecordCreditTransaction(ctx context.Context, txType string) {
	if m == nil {
		return
	}
	m.ledgerEntries.Add(ctx, 1, metric.WithAttributes(
		attribute.String("type", strings.TrimSpace(txType)),
	))
}
