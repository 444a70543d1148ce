// Package domain covers plan membership changes driven by gateway events.
package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var (
	ErrCustomerNotLinked = errors.New("gateway_customer_not_linked")
)

// Service mutates a user's plan membership. The InTx variants compose into
// the payment transaction so the plan change and the ledger grant commit
// together.
type Service interface {
	ActivateInTx(ctx context.Context, tx *gorm.DB, userID snowflake.ID, planID snowflake.ID) error
	LinkGatewayCustomerInTx(ctx context.Context, tx *gorm.DB, userID snowflake.ID, gateway, gatewayCustomerID string) error
	CancelByGatewayCustomer(ctx context.Context, gateway, gatewayCustomerID string) (snowflake.ID, error)
	MarkPastDueByGatewayCustomer(ctx context.Context, gateway, gatewayCustomerID string) (snowflake.ID, error)
}
