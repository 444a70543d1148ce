package service

import (
	"context"
	"strings"
	"time"

	plandomain "github.com/docuflow/billing/internal/plan/domain"
	"github.com/gosimple/slug"
	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB  *gorm.DB
	Log *zap.Logger
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	cache *gocache.Cache
}

func NewService(p Params) plandomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("plan.service"),
		cache: gocache.New(5*time.Minute, 10*time.Minute),
	}
}

func (s *Service) FindBySlug(ctx context.Context, planSlug string) (*plandomain.Plan, error) {
	planSlug = slug.Make(strings.TrimSpace(planSlug))
	if planSlug == "" {
		return nil, plandomain.ErrInvalidSlug
	}

	if cached, ok := s.cache.Get(planSlug); ok {
		if plan, ok := cached.(*plandomain.Plan); ok {
			return plan, nil
		}
	}

	var plan plandomain.Plan
	err := s.db.WithContext(ctx).Raw(
		`SELECT id, slug, name, credits_included, price_monthly, price_annual, created_at
		 FROM plans
		 WHERE slug = ?
		 LIMIT 1`,
		planSlug,
	).Scan(&plan).Error
	if err != nil {
		return nil, err
	}
	if plan.ID == 0 {
		return nil, plandomain.ErrPlanNotFound
	}

	s.cache.SetDefault(planSlug, &plan)
	return &plan, nil
}

func (s *Service) List(ctx context.Context) ([]plandomain.Plan, error) {
	var plans []plandomain.Plan
	err := s.db.WithContext(ctx).Raw(
		`SELECT id, slug, name, credits_included, price_monthly, price_annual, created_at
		 FROM plans
		 ORDER BY price_monthly ASC`,
	).Scan(&plans).Error
	if err != nil {
		return nil, err
	}
	return plans, nil
}
