// Package domain holds the payment record, the anchor of webhook
// idempotency: one row per (gateway, gateway_payment_id), settled at most
// once no matter how many times the gateway retries.
package domain

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	gatewaydomain "github.com/docuflow/billing/internal/gateway/domain"
)

// Status is the persisted record status. "paid" and "refunded" are settled
// states: a settled record never grants credits again.
type Status string

const (
	StatusPaid     Status = "paid"
	StatusPending  Status = "pending"
	StatusFailed   Status = "failed"
	StatusRefunded Status = "refunded"
)

type PaymentRecord struct {
	ID               snowflake.ID      `json:"id" gorm:"primaryKey"`
	Gateway          string            `json:"gateway" gorm:"type:text;not null;uniqueIndex:ux_payment_records_key,priority:1"`
	GatewayPaymentID string            `json:"gateway_payment_id" gorm:"type:text;not null;uniqueIndex:ux_payment_records_key,priority:2"`
	UserID           snowflake.ID      `json:"user_id" gorm:"not null;index"`
	Kind             string            `json:"kind" gorm:"type:text;not null"`
	Status           Status            `json:"status" gorm:"type:text;not null"`
	Amount           decimal.Decimal   `json:"amount" gorm:"type:numeric(18,4);not null"`
	Currency         string            `json:"currency" gorm:"type:text;not null"`
	Metadata         datatypes.JSONMap `json:"metadata" gorm:"type:jsonb"`
	CreatedAt        time.Time         `json:"created_at" gorm:"not null"`
	UpdatedAt        time.Time         `json:"updated_at" gorm:"not null"`
}

// TableName sets the database table name.
func (PaymentRecord) TableName() string { return "payment_records" }

var (
	ErrInvalidGateway  = errors.New("invalid_gateway")
	ErrPaymentNotFound = errors.New("payment_not_found")
	ErrAlreadySettled  = errors.New("payment_already_settled")
	ErrNotRefundable   = errors.New("payment_not_refundable")
)

// Outcome reports what a reconciliation actually did.
type Outcome struct {
	Status Status `json:"status"`
	// Applied is true when this call changed account state: credits granted,
	// plan activated, refund offset written. A redelivered webhook for a
	// settled payment reports Applied=false.
	Applied bool `json:"applied"`
	// Duplicate marks a redelivery of an already-settled payment.
	Duplicate bool `json:"duplicate"`
}

// Service reconciles authoritative gateway payment state into local records,
// ledger entries and plan membership.
type Service interface {
	Reconcile(ctx context.Context, details *gatewaydomain.PaymentDetails) (Outcome, error)
}

// WebhookService is the inbound entry point: verify, parse, fetch, reconcile.
type WebhookService interface {
	IngestWebhook(ctx context.Context, gateway string, payload []byte, headers http.Header) (Outcome, error)
}
