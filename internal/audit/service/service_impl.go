package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	auditdomain "github.com/docuflow/billing/internal/audit/domain"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  auditdomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  auditdomain.Repository
}

func NewService(p Params) auditdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("audit.service"),
		genID: p.GenID,
		repo:  p.Repo,
	}
}

func (s *Service) Record(ctx context.Context, userID *snowflake.ID, eventType, gateway, referenceID string, metadata map[string]any) error {
	eventType = strings.TrimSpace(eventType)
	if eventType == "" {
		return auditdomain.ErrInvalidEventType
	}

	payload := map[string]any{}
	for key, value := range metadata {
		if key == "" {
			continue
		}
		payload[key] = value
	}

	entry := auditdomain.AuditEvent{
		ID:          s.genID.Generate(),
		UserID:      normalizeUserID(userID),
		EventType:   eventType,
		Gateway:     strings.ToLower(strings.TrimSpace(gateway)),
		ReferenceID: strings.TrimSpace(referenceID),
		Metadata:    datatypes.JSONMap(payload),
		CreatedAt:   time.Now().UTC(),
	}

	if err := s.repo.Insert(ctx, s.db, &entry); err != nil {
		s.log.Warn("failed to write audit event", zap.String("event_type", eventType), zap.Error(err))
		return err
	}
	return nil
}

func (s *Service) List(ctx context.Context, filter auditdomain.ListFilter) ([]auditdomain.AuditEvent, error) {
	if filter.StartAt != nil && filter.EndAt != nil && filter.StartAt.After(*filter.EndAt) {
		return nil, auditdomain.ErrInvalidTimeRange
	}
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	if filter.Limit > 250 {
		filter.Limit = 250
	}
	return s.repo.List(ctx, s.db, filter)
}

func normalizeUserID(userID *snowflake.ID) *snowflake.ID {
	if userID == nil || *userID == 0 {
		return nil
	}
	return userID
}
