package domain

import (
	"context"

	"gorm.io/gorm"
)

// Repository performs the row-level claims behind idempotency. Insert and the
// claim methods are conditional writes; callers branch on the reported
// "changed" flag instead of reading first.
type Repository interface {
	// Insert adds the record unless the (gateway, gateway_payment_id) key
	// already exists. Returns true when the row was inserted.
	Insert(ctx context.Context, tx *gorm.DB, record *PaymentRecord) (bool, error)
	// ClaimPaid flips an existing unsettled record to paid. Returns true when
	// this call won the claim.
	ClaimPaid(ctx context.Context, tx *gorm.DB, gateway, gatewayPaymentID string) (bool, error)
	// MarkRefunded flips a paid record to refunded. Returns true when this
	// call won the claim.
	MarkRefunded(ctx context.Context, tx *gorm.DB, gateway, gatewayPaymentID string) (bool, error)
	// UpdateStatusIfNotSettled rewrites status on records that are still
	// pending or failed; settled records are left untouched. Returns true
	// when a row changed.
	UpdateStatusIfNotSettled(ctx context.Context, tx *gorm.DB, gateway, gatewayPaymentID string, status Status) (bool, error)
	FindByKey(ctx context.Context, db *gorm.DB, gateway, gatewayPaymentID string) (*PaymentRecord, error)
	HasSettled(ctx context.Context, db *gorm.DB, gateway, gatewayPaymentID string) (bool, error)
}
