package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	accountdomain "github.com/docuflow/billing/internal/account/domain"
	subscriptiondomain "github.com/docuflow/billing/internal/subscription/domain"
	"github.com/docuflow/billing/pkg/db"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
}

func NewService(p Params) subscriptiondomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("subscription.service"),
		genID: p.GenID,
	}
}

// ActivateInTx points the account at the plan and marks the subscription
// active. The caller grants the plan's credits through the ledger in the
// same transaction.
func (s *Service) ActivateInTx(ctx context.Context, tx *gorm.DB, userID snowflake.ID, planID snowflake.ID) error {
	res := tx.WithContext(ctx).Exec(
		`UPDATE user_accounts
		 SET plan_id = ?, subscription_status = ?, updated_at = ?
		 WHERE id = ?`,
		planID,
		string(accountdomain.SubscriptionStatusActive),
		time.Now().UTC(),
		userID,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return accountdomain.ErrAccountNotFound
	}
	return nil
}

// LinkGatewayCustomerInTx remembers which gateway customer belongs to which
// user so later lifecycle webhooks (cancellation, past due) can be resolved
// without metadata. Re-linking the same pair is a no-op.
func (s *Service) LinkGatewayCustomerInTx(ctx context.Context, tx *gorm.DB, userID snowflake.ID, gateway, gatewayCustomerID string) error {
	gateway = strings.ToLower(strings.TrimSpace(gateway))
	gatewayCustomerID = strings.TrimSpace(gatewayCustomerID)
	if gateway == "" || gatewayCustomerID == "" {
		return nil
	}

	err := tx.WithContext(ctx).Exec(
		`INSERT INTO gateway_customers (id, user_id, gateway, gateway_customer_id, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (gateway, gateway_customer_id) DO NOTHING`,
		s.genID.Generate(),
		userID,
		gateway,
		gatewayCustomerID,
		time.Now().UTC(),
	).Error
	if err != nil && db.IsDuplicateKeyErr(err) {
		return nil
	}
	return err
}

func (s *Service) CancelByGatewayCustomer(ctx context.Context, gateway, gatewayCustomerID string) (snowflake.ID, error) {
	return s.transition(ctx, gateway, gatewayCustomerID, accountdomain.SubscriptionStatusCanceled, true)
}

func (s *Service) MarkPastDueByGatewayCustomer(ctx context.Context, gateway, gatewayCustomerID string) (snowflake.ID, error) {
	return s.transition(ctx, gateway, gatewayCustomerID, accountdomain.SubscriptionStatusPastDue, false)
}

func (s *Service) transition(ctx context.Context, gateway, gatewayCustomerID string, status accountdomain.SubscriptionStatus, clearPlan bool) (snowflake.ID, error) {
	gateway = strings.ToLower(strings.TrimSpace(gateway))
	gatewayCustomerID = strings.TrimSpace(gatewayCustomerID)
	if gateway == "" || gatewayCustomerID == "" {
		return 0, subscriptiondomain.ErrCustomerNotLinked
	}

	var userID snowflake.ID
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var link accountdomain.GatewayCustomer
		err := tx.WithContext(ctx).Raw(
			`SELECT id, user_id FROM gateway_customers
			 WHERE gateway = ? AND gateway_customer_id = ?
			 LIMIT 1`,
			gateway,
			gatewayCustomerID,
		).Scan(&link).Error
		if err != nil {
			return err
		}
		if link.UserID == 0 {
			return subscriptiondomain.ErrCustomerNotLinked
		}
		userID = link.UserID

		query := `UPDATE user_accounts SET subscription_status = ?, updated_at = ? WHERE id = ?`
		args := []any{string(status), time.Now().UTC(), link.UserID}
		if clearPlan {
			query = `UPDATE user_accounts SET subscription_status = ?, plan_id = NULL, updated_at = ? WHERE id = ?`
		}
		res := tx.WithContext(ctx).Exec(query, args...)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return accountdomain.ErrAccountNotFound
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.log.Info("subscription status changed",
		zap.String("gateway", gateway),
		zap.String("gateway_customer_id", gatewayCustomerID),
		zap.String("status", string(status)),
	)
	return userID, nil
}
