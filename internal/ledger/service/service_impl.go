package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/docuflow/billing/internal/account/domain"
	ledgerdomain "github.com/docuflow/billing/internal/ledger/domain"
	obsmetrics "github.com/docuflow/billing/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) ledgerdomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("ledger.service"),
		genID:      p.GenID,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) ApplyCredit(ctx context.Context, userID snowflake.ID, amount int64, txType ledgerdomain.TransactionType, description, referenceID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.ApplyCreditInTx(ctx, tx, userID, amount, txType, description, referenceID)
	})
}

// ApplyCreditInTx mutates the balance and appends the transaction row inside
// the caller's transaction. The balance update is a storage-level increment,
// never a read-modify-write in application code, so concurrent mutations for
// the same user cannot lose an update.
func (s *Service) ApplyCreditInTx(ctx context.Context, tx *gorm.DB, userID snowflake.ID, amount int64, txType ledgerdomain.TransactionType, description, referenceID string) error {
	if userID == 0 {
		return ledgerdomain.ErrInvalidUser
	}
	if err := validateTypedAmount(txType, amount); err != nil {
		return err
	}
	referenceID = strings.TrimSpace(referenceID)
	if referenceID == "" {
		return ledgerdomain.ErrInvalidReference
	}

	now := time.Now().UTC()
	res := tx.WithContext(ctx).Exec(
		`UPDATE user_accounts
		 SET credits = credits + ?, updated_at = ?
		 WHERE id = ?`,
		amount,
		now,
		userID,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return accountdomain.ErrAccountNotFound
	}

	if err := tx.WithContext(ctx).Exec(
		`INSERT INTO credit_transactions (
			id, user_id, amount, type, description, reference_id, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.genID.Generate(),
		userID,
		amount,
		string(txType),
		strings.TrimSpace(description),
		referenceID,
		now,
	).Error; err != nil {
		return err
	}

	if s.obsMetrics != nil {
		s.obsMetrics.RecordCreditTransaction(ctx, string(txType))
	}
	return nil
}

// ConsumeCredit spends exactly one credit, typically for one generated
// document. The conditional decrement keeps the balance non-negative without
// locking the account row beyond the single statement.
func (s *Service) ConsumeCredit(ctx context.Context, userID snowflake.ID, referenceID string) error {
	if userID == 0 {
		return ledgerdomain.ErrInvalidUser
	}
	referenceID = strings.TrimSpace(referenceID)
	if referenceID == "" {
		return ledgerdomain.ErrInvalidReference
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		res := tx.WithContext(ctx).Exec(
			`UPDATE user_accounts
			 SET credits = credits - 1, updated_at = ?
			 WHERE id = ? AND credits > 0`,
			now,
			userID,
		)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var exists int64
			if err := tx.WithContext(ctx).Raw(
				`SELECT COUNT(1) FROM user_accounts WHERE id = ?`,
				userID,
			).Scan(&exists).Error; err != nil {
				return err
			}
			if exists == 0 {
				return accountdomain.ErrAccountNotFound
			}
			return ledgerdomain.ErrInsufficientCredits
		}

		return tx.WithContext(ctx).Exec(
			`INSERT INTO credit_transactions (
				id, user_id, amount, type, description, reference_id, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			s.genID.Generate(),
			userID,
			int64(-1),
			string(ledgerdomain.TypeConsumption),
			"document generation",
			referenceID,
			now,
		).Error
	})
	if err != nil {
		return err
	}

	if s.obsMetrics != nil {
		s.obsMetrics.RecordCreditTransaction(ctx, string(ledgerdomain.TypeConsumption))
	}
	return nil
}

func (s *Service) GetBalance(ctx context.Context, userID snowflake.ID) (int64, error) {
	if userID == 0 {
		return 0, ledgerdomain.ErrInvalidUser
	}

	var account accountdomain.UserAccount
	err := s.db.WithContext(ctx).Raw(
		`SELECT id, credits FROM user_accounts WHERE id = ? LIMIT 1`,
		userID,
	).Scan(&account).Error
	if err != nil {
		return 0, err
	}
	if account.ID == 0 {
		return 0, accountdomain.ErrAccountNotFound
	}
	return account.Credits, nil
}

func (s *Service) ListTransactions(ctx context.Context, userID snowflake.ID, limit int) ([]ledgerdomain.CreditTransaction, error) {
	if userID == 0 {
		return nil, ledgerdomain.ErrInvalidUser
	}
	if limit <= 0 {
		limit = 50
	}
	if limit > 250 {
		limit = 250
	}

	var items []ledgerdomain.CreditTransaction
	err := s.db.WithContext(ctx).Raw(
		`SELECT id, user_id, amount, type, description, reference_id, created_at
		 FROM credit_transactions
		 WHERE user_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		userID,
		limit,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// CreditsByReference sums the positive credits previously granted for one
// payment record. The refund path uses it to size the offsetting entry.
func (s *Service) CreditsByReference(ctx context.Context, tx *gorm.DB, referenceID string) (int64, error) {
	referenceID = strings.TrimSpace(referenceID)
	if referenceID == "" {
		return 0, ledgerdomain.ErrInvalidReference
	}
	if tx == nil {
		tx = s.db
	}

	var granted int64
	err := tx.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(amount), 0)
		 FROM credit_transactions
		 WHERE reference_id = ? AND amount > 0`,
		referenceID,
	).Scan(&granted).Error
	if err != nil {
		return 0, err
	}
	return granted, nil
}

func (s *Service) Reconcile(ctx context.Context, userID snowflake.ID) (ledgerdomain.ReconcileResult, error) {
	balance, err := s.GetBalance(ctx, userID)
	if err != nil {
		return ledgerdomain.ReconcileResult{}, err
	}

	var sum int64
	err = s.db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(amount), 0)
		 FROM credit_transactions
		 WHERE user_id = ?`,
		userID,
	).Scan(&sum).Error
	if err != nil {
		return ledgerdomain.ReconcileResult{}, err
	}

	result := ledgerdomain.ReconcileResult{
		UserID:     userID,
		Balance:    balance,
		LedgerSum:  sum,
		Consistent: balance == sum,
	}
	if !result.Consistent {
		s.log.Error("credit balance diverged from transaction log",
			zap.String("user_id", userID.String()),
			zap.Int64("balance", balance),
			zap.Int64("ledger_sum", sum),
		)
	}
	return result, nil
}

func validateTypedAmount(txType ledgerdomain.TransactionType, amount int64) error {
	switch txType {
	case ledgerdomain.TypePurchase, ledgerdomain.TypeBonus:
		if amount <= 0 {
			return ledgerdomain.ErrInvalidAmount
		}
	case ledgerdomain.TypeRefund:
		if amount >= 0 {
			return ledgerdomain.ErrInvalidAmount
		}
	default:
		return ledgerdomain.ErrInvalidType
	}
	return nil
}
