// Package domain contains persistence models for user accounts.
package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// SubscriptionStatus represents lifecycle states for a user's subscription.
type SubscriptionStatus string

const (
	SubscriptionStatusNone     SubscriptionStatus = "none"
	SubscriptionStatusActive   SubscriptionStatus = "active"
	SubscriptionStatusPastDue  SubscriptionStatus = "past_due"
	SubscriptionStatusCanceled SubscriptionStatus = "canceled"
)

// UserAccount is the billing-relevant slice of a user. Credits is the
// denormalized balance justified by the credit transaction log; it is mutated
// only through the ledger service, and PlanID/SubscriptionStatus only through
// the subscription service.
type UserAccount struct {
	ID                 snowflake.ID       `json:"id" gorm:"primaryKey"`
	Email              string             `json:"email" gorm:"type:text;not null"`
	Credits            int64              `json:"credits" gorm:"not null;default:0"`
	PlanID             *snowflake.ID      `json:"plan_id"`
	SubscriptionStatus SubscriptionStatus `json:"subscription_status" gorm:"type:text;not null;default:'none'"`
	CreatedAt          time.Time          `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt          time.Time          `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (UserAccount) TableName() string { return "user_accounts" }

// GatewayCustomer links a gateway-issued customer identity to a user, used to
// correlate subscription lifecycle webhooks back to an account.
type GatewayCustomer struct {
	ID                snowflake.ID `json:"id" gorm:"primaryKey"`
	UserID            snowflake.ID `json:"user_id" gorm:"not null;index"`
	Gateway           string       `json:"gateway" gorm:"type:text;not null;uniqueIndex:ux_gateway_customers_key,priority:1"`
	GatewayCustomerID string       `json:"gateway_customer_id" gorm:"type:text;not null;uniqueIndex:ux_gateway_customers_key,priority:2"`
	CreatedAt         time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (GatewayCustomer) TableName() string { return "gateway_customers" }

var (
	ErrAccountNotFound = errors.New("account_not_found")
)
