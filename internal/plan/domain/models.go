// Package domain contains the static plan catalog model.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// Plan is a catalog entry. The reconciliation subsystem only reads plans;
// CreditsIncluded is granted as bonus credits on activation.
type Plan struct {
	ID              snowflake.ID    `json:"id" gorm:"primaryKey"`
	Slug            string          `json:"slug" gorm:"type:text;not null;uniqueIndex:ux_plans_slug"`
	Name            string          `json:"name" gorm:"type:text;not null"`
	CreditsIncluded int64           `json:"credits_included" gorm:"not null;default:0"`
	PriceMonthly    decimal.Decimal `json:"price_monthly" gorm:"type:numeric(18,4);not null;default:0"`
	PriceAnnual     decimal.Decimal `json:"price_annual" gorm:"type:numeric(18,4);not null;default:0"`
	CreatedAt       time.Time       `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Plan) TableName() string { return "plans" }

var (
	ErrPlanNotFound = errors.New("plan_not_found")
	ErrInvalidSlug  = errors.New("invalid_plan_slug")
)

// Service reads the plan catalog.
type Service interface {
	FindBySlug(ctx context.Context, planSlug string) (*Plan, error)
	List(ctx context.Context) ([]Plan, error)
}
