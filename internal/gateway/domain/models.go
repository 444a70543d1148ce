// Package domain defines the gateway-agnostic contract every payment gateway
// adapter fills in: signature verification, notification parsing and the
// authoritative detail fetch.
package domain

import (
	"context"
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// Kind classifies what a payment buys.
type Kind string

const (
	KindSubscription   Kind = "subscription"
	KindCreditPurchase Kind = "credit_purchase"
	KindOneTime        Kind = "one_time"
)

// Status is the canonical payment status after adapter mapping. Gateways
// report their own vocabularies (approved, in_process, rejected, cancelled,
// succeeded, ...); adapters fold them into these four.
type Status string

const (
	StatusApproved Status = "approved"
	StatusPending  Status = "pending"
	StatusFailed   Status = "failed"
	StatusRefunded Status = "refunded"
)

// NotificationType classifies an inbound webhook after parsing.
type NotificationType string

const (
	NotificationPayment              NotificationType = "payment"
	NotificationSubscriptionCanceled NotificationType = "subscription_canceled"
	NotificationSubscriptionPastDue  NotificationType = "subscription_past_due"
)

// Notification is the minimal parse of a webhook body: enough to decide what
// to do next, never enough to mutate the ledger. Amounts embedded in webhook
// bodies are untrusted; the reconciliation path re-queries the gateway.
type Notification struct {
	Gateway           string
	Type              NotificationType
	GatewayPaymentID  string
	GatewayCustomerID string
}

// PaymentDetails is the authoritative payment state fetched from the gateway
// API, including the checkout-time metadata that routes the reconciliation.
type PaymentDetails struct {
	Gateway          string
	GatewayPaymentID string
	Status           Status
	Amount           decimal.Decimal
	Currency         string

	UserID            snowflake.ID
	Kind              Kind
	Credits           int64
	PlanSlug          string
	GatewayCustomerID string

	Metadata map[string]any
}

// AdapterConfig carries one gateway's verification and API credentials,
// injected at construction time.
type AdapterConfig struct {
	Gateway       string
	WebhookSecret string
	APIBaseURL    string
	APIToken      string

	// AllowUnverified lets the adapter accept deliveries without a configured
	// webhook secret. Every such acceptance is logged; the default build
	// rejects instead.
	AllowUnverified bool
}

// Adapter is the per-gateway implementation. VerifyNotification never panics
// on malformed input; malformed input is ErrInvalidSignature or
// ErrInvalidPayload.
type Adapter interface {
	Gateway() string
	VerifyNotification(ctx context.Context, payload []byte, headers http.Header) error
	ParseNotification(ctx context.Context, payload []byte) (*Notification, error)
	FetchPayment(ctx context.Context, gatewayPaymentID string) (*PaymentDetails, error)
}

// AdapterFactory builds one adapter from its config.
type AdapterFactory interface {
	Gateway() string
	NewAdapter(cfg AdapterConfig) (Adapter, error)
}
