package service

import (
	"context"
	"encoding/json"
	"reflect"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/propbase/propbase/internal/actor"
	auditdomain "github.com/propbase/propbase/internal/audit/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
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

func NewService(p Params) auditdomain.Recorder {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("audit.service"),
		genID: p.GenID,
		repo:  p.Repo,
	}
}

func (s *Service) RecordInsert(ctx context.Context, tx *gorm.DB, act actor.Actor, entityType string, recordID snowflake.ID, newRecord map[string]any) error {
	newValue, err := marshalValue(newRecord)
	if err != nil {
		return err
	}
	return s.write(ctx, tx, act, auditdomain.OperationInsert, entityType, recordID, nil, newValue)
}

func (s *Service) RecordUpdate(ctx context.Context, tx *gorm.DB, act actor.Actor, entityType string, recordID snowflake.ID, oldRecord, patch map[string]any) error {
	oldValues, newValues := BuildUpdateValues(oldRecord, patch)
	oldValue, err := marshalValue(oldValues)
	if err != nil {
		return err
	}
	newValue, err := marshalValue(newValues)
	if err != nil {
		return err
	}
	return s.write(ctx, tx, act, auditdomain.OperationUpdate, entityType, recordID, oldValue, newValue)
}

func (s *Service) RecordDelete(ctx context.Context, tx *gorm.DB, act actor.Actor, entityType string, recordID snowflake.ID, oldRecord map[string]any) error {
	oldValue, err := marshalValue(oldRecord)
	if err != nil {
		return err
	}
	return s.write(ctx, tx, act, auditdomain.OperationDelete, entityType, recordID, oldValue, nil)
}

func (s *Service) List(ctx context.Context, req auditdomain.ListRequest) ([]auditdomain.AuditLog, error) {
	if req.StartAt != nil && req.EndAt != nil && req.StartAt.After(*req.EndAt) {
		return nil, auditdomain.ErrInvalidTimeRange
	}
	if req.Limit <= 0 {
		req.Limit = 50
	}
	if req.Limit > 250 {
		req.Limit = 250
	}
	return s.repo.List(ctx, s.db, req)
}

func (s *Service) write(ctx context.Context, tx *gorm.DB, act actor.Actor, operation, entityType string, recordID snowflake.ID, oldValue, newValue datatypes.JSON) error {
	entityType = strings.TrimSpace(entityType)
	if entityType == "" {
		return auditdomain.ErrInvalidEntityType
	}

	entry := auditdomain.AuditLog{
		ID:         s.genID.Generate(),
		Operation:  operation,
		EntityType: entityType,
		RecordID:   recordID.String(),
		OldValue:   oldValue,
		NewValue:   newValue,
		CreatedAt:  time.Now().UTC(),
	}
	if !act.IsZero() {
		userID := act.UserID
		entry.UserID = &userID
	}
	if ip := strings.TrimSpace(act.IPAddress); ip != "" {
		entry.IPAddress = &ip
	}
	if ua := strings.TrimSpace(act.UserAgent); ua != "" {
		entry.UserAgent = &ua
	}

	if err := s.repo.Insert(ctx, tx, &entry); err != nil {
		s.log.Warn("failed to write audit log",
			zap.String("operation", operation),
			zap.String("entity_type", entityType),
			zap.Error(err),
		)
		return err
	}
	return nil
}

// BuildUpdateValues computes the before/after delta of an update. A key
// present in the patch joins both outputs only when its value differs
// from the old record; unchanged keys are omitted entirely, so audit rows
// stay proportional to the actual change, not the patch size.
func BuildUpdateValues(oldRecord, patch map[string]any) (map[string]any, map[string]any) {
	oldValues := make(map[string]any)
	newValues := make(map[string]any)
	for key, newVal := range patch {
		oldVal := oldRecord[key]
		if reflect.DeepEqual(oldVal, newVal) {
			continue
		}
		oldValues[key] = oldVal
		newValues[key] = newVal
	}
	return oldValues, newValues
}

// marshalValue keeps a nil map as SQL NULL so the INSERT/DELETE presence
// rules survive serialization.
func marshalValue(record map[string]any) (datatypes.JSON, error) {
	if record == nil {
		return nil, nil
	}
	raw, err := json.Marshal(record)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}
