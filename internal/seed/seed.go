// Package seed installs the default plan catalog when the table is empty.
package seed

import (
	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	plandomain "github.com/docuflow/billing/internal/plan/domain"
)

type planSeed struct {
	name            string
	creditsIncluded int64
	priceMonthly    string
	priceAnnual     string
}

var defaultPlans = []planSeed{
	{name: "Free", creditsIncluded: 5, priceMonthly: "0", priceAnnual: "0"},
	{name: "Pro", creditsIncluded: 100, priceMonthly: "12.00", priceAnnual: "120.00"},
	{name: "Business", creditsIncluded: 500, priceMonthly: "49.00", priceAnnual: "490.00"},
}

func EnsureDefaultPlans(conn *gorm.DB, genID *snowflake.Node) error {
	var count int64
	if err := conn.Model(&plandomain.Plan{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	for _, p := range defaultPlans {
		monthly, err := decimal.NewFromString(p.priceMonthly)
		if err != nil {
			return err
		}
		annual, err := decimal.NewFromString(p.priceAnnual)
		if err != nil {
			return err
		}
		plan := plandomain.Plan{
			ID:              genID.Generate(),
			Slug:            slug.Make(p.name),
			Name:            p.name,
			CreditsIncluded: p.creditsIncluded,
			PriceMonthly:    monthly,
			PriceAnnual:     annual,
		}
		if err := conn.Create(&plan).Error; err != nil {
			return err
		}
	}
	return nil
}
