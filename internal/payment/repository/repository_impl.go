package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/docuflow/billing/internal/payment/domain"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, tx *gorm.DB, record *domain.PaymentRecord) (bool, error) {
	res := tx.WithContext(ctx).Exec(
		`INSERT INTO payment_records (
			id, gateway, gateway_payment_id, user_id, kind, status,
			amount, currency, metadata, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (gateway, gateway_payment_id) DO NOTHING`,
		record.ID,
		record.Gateway,
		record.GatewayPaymentID,
		record.UserID,
		record.Kind,
		string(record.Status),
		record.Amount,
		record.Currency,
		record.Metadata,
		record.CreatedAt,
		record.UpdatedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) ClaimPaid(ctx context.Context, tx *gorm.DB, gateway, gatewayPaymentID string) (bool, error) {
	res := tx.WithContext(ctx).Exec(
		`UPDATE payment_records
		 SET status = ?, updated_at = ?
		 WHERE gateway = ? AND gateway_payment_id = ? AND status NOT IN (?, ?)`,
		string(domain.StatusPaid),
		time.Now().UTC(),
		gateway,
		gatewayPaymentID,
		string(domain.StatusPaid),
		string(domain.StatusRefunded),
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) MarkRefunded(ctx context.Context, tx *gorm.DB, gateway, gatewayPaymentID string) (bool, error) {
	res := tx.WithContext(ctx).Exec(
		`UPDATE payment_records
		 SET status = ?, updated_at = ?
		 WHERE gateway = ? AND gateway_payment_id = ? AND status = ?`,
		string(domain.StatusRefunded),
		time.Now().UTC(),
		gateway,
		gatewayPaymentID,
		string(domain.StatusPaid),
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) UpdateStatusIfNotSettled(ctx context.Context, tx *gorm.DB, gateway, gatewayPaymentID string, status domain.Status) (bool, error) {
	res := tx.WithContext(ctx).Exec(
		`UPDATE payment_records
		 SET status = ?, updated_at = ?
		 WHERE gateway = ? AND gateway_payment_id = ? AND status NOT IN (?, ?) AND status <> ?`,
		string(status),
		time.Now().UTC(),
		gateway,
		gatewayPaymentID,
		string(domain.StatusPaid),
		string(domain.StatusRefunded),
		string(status),
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindByKey(ctx context.Context, db *gorm.DB, gateway, gatewayPaymentID string) (*domain.PaymentRecord, error) {
	var record domain.PaymentRecord
	err := db.WithContext(ctx).
		Where("gateway = ? AND gateway_payment_id = ?", gateway, gatewayPaymentID).
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrPaymentNotFound
		}
		return nil, err
	}
	return &record, nil
}

func (r *repo) HasSettled(ctx context.Context, db *gorm.DB, gateway, gatewayPaymentID string) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM payment_records
		 WHERE gateway = ? AND gateway_payment_id = ? AND status IN (?, ?)`,
		gateway,
		gatewayPaymentID,
		string(domain.StatusPaid),
		string(domain.StatusRefunded),
	).Scan(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
