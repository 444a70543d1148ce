// Package domain holds the append-only audit trail written for every
// webhook decision and ledger mutation.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AuditEvent is one immutable trail row. Rows are never updated or deleted.
type AuditEvent struct {
	ID          snowflake.ID      `json:"id" gorm:"primaryKey"`
	UserID      *snowflake.ID     `json:"user_id,omitempty" gorm:"index"`
	EventType   string            `json:"event_type" gorm:"type:text;not null;index"`
	Gateway     string            `json:"gateway" gorm:"type:text;not null"`
	ReferenceID string            `json:"reference_id" gorm:"type:text;not null;index"`
	Metadata    datatypes.JSONMap `json:"metadata" gorm:"type:jsonb"`
	CreatedAt   time.Time         `json:"created_at" gorm:"not null;index"`
}

// TableName sets the database table name.
func (AuditEvent) TableName() string { return "audit_events" }

// ListFilter narrows an audit query. Zero values mean "no constraint".
type ListFilter struct {
	UserID    *snowflake.ID
	EventType string
	StartAt   *time.Time
	EndAt     *time.Time
	Limit     int
}

var (
	ErrInvalidEventType = errors.New("invalid_event_type")
	ErrInvalidTimeRange = errors.New("invalid_time_range")
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *AuditEvent) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]AuditEvent, error)
}

// Service records and queries the trail. Record failures must never abort
// the business operation that produced them; callers log and continue.
type Service interface {
	Record(ctx context.Context, userID *snowflake.ID, eventType, gateway, referenceID string, metadata map[string]any) error
	List(ctx context.Context, filter ListFilter) ([]AuditEvent, error)
}
