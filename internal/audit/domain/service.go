package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/propbase/propbase/internal/actor"
	"gorm.io/gorm"
)

// Recorder persists before/after deltas inside the caller's transaction.
// Every method takes the transactional handle the business mutation runs
// on, so an audit entry commits or rolls back together with the mutation.
type Recorder interface {
	RecordInsert(ctx context.Context, tx *gorm.DB, act actor.Actor, entityType string, recordID snowflake.ID, newRecord map[string]any) error
	RecordUpdate(ctx context.Context, tx *gorm.DB, act actor.Actor, entityType string, recordID snowflake.ID, oldRecord, patch map[string]any) error
	RecordDelete(ctx context.Context, tx *gorm.DB, act actor.Actor, entityType string, recordID snowflake.ID, oldRecord map[string]any) error
	List(ctx context.Context, req ListRequest) ([]AuditLog, error)
}

type ListRequest struct {
	Operation  string
	EntityType string
	RecordID   string
	UserID     snowflake.ID
	StartAt    *time.Time
	EndAt      *time.Time
	Limit      int
	Offset     int
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *AuditLog) error
	List(ctx context.Context, db *gorm.DB, req ListRequest) ([]AuditLog, error)
}

var (
	ErrInvalidEntityType = errors.New("invalid_entity_type")
	ErrInvalidTimeRange  = errors.New("invalid_time_range")
)
