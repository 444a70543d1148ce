// Package domain contains the append-only credit transaction log.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// TransactionType represents the business reason for a credit mutation.
type TransactionType string

const (
	TypePurchase    TransactionType = "purchase"
	TypeBonus       TransactionType = "bonus"
	TypeConsumption TransactionType = "consumption"
	TypeRefund      TransactionType = "refund"
)

// CreditTransaction is one immutable ledger row. Corrections are new
// offsetting rows; nothing here is ever updated or deleted. The user's
// balance is by definition the sum of Amount over their rows.
type CreditTransaction struct {
	ID          snowflake.ID    `json:"id" gorm:"primaryKey"`
	UserID      snowflake.ID    `json:"user_id" gorm:"not null;index"`
	Amount      int64           `json:"amount" gorm:"not null"`
	Type        TransactionType `json:"type" gorm:"type:text;not null"`
	Description string          `json:"description" gorm:"type:text;not null"`
	ReferenceID string          `json:"reference_id" gorm:"type:text;not null;index"`
	CreatedAt   time.Time       `json:"created_at" gorm:"not null;index"`
}

// TableName sets the database table name.
func (CreditTransaction) TableName() string { return "credit_transactions" }

// ReconcileResult compares the denormalized balance against the transaction sum.
type ReconcileResult struct {
	UserID     snowflake.ID `json:"user_id"`
	Balance    int64        `json:"balance"`
	LedgerSum  int64        `json:"ledger_sum"`
	Consistent bool         `json:"consistent"`
}

var (
	ErrInvalidUser         = errors.New("invalid_user")
	ErrInvalidAmount       = errors.New("invalid_amount")
	ErrInvalidType         = errors.New("invalid_transaction_type")
	ErrInvalidReference    = errors.New("invalid_reference")
	ErrInsufficientCredits = errors.New("insufficient_credits")
)

// Service owns every balance-changing mutation. The InTx variants compose
// into a caller's transaction so the payment record claim and the ledger
// mutation commit together.
type Service interface {
	ApplyCredit(ctx context.Context, userID snowflake.ID, amount int64, txType TransactionType, description, referenceID string) error
	ApplyCreditInTx(ctx context.Context, tx *gorm.DB, userID snowflake.ID, amount int64, txType TransactionType, description, referenceID string) error
	ConsumeCredit(ctx context.Context, userID snowflake.ID, referenceID string) error
	GetBalance(ctx context.Context, userID snowflake.ID) (int64, error)
	ListTransactions(ctx context.Context, userID snowflake.ID, limit int) ([]CreditTransaction, error)
	CreditsByReference(ctx context.Context, tx *gorm.DB, referenceID string) (int64, error)
	Reconcile(ctx context.Context, userID snowflake.ID) (ReconcileResult, error)
}
