package repository

import (
	"context"
	"strings"

	"github.com/propbase/propbase/internal/audit/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, entry *domain.AuditLog) error {
	if entry == nil {
		return nil
	}
	return db.WithContext(ctx).Exec(
		`INSERT INTO audit_logs (
			id, operation, entity_type, record_id, old_value, new_value,
			user_id, ip_address, user_agent, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.Operation,
		entry.EntityType,
		entry.RecordID,
		entry.OldValue,
		entry.NewValue,
		entry.UserID,
		entry.IPAddress,
		entry.UserAgent,
		entry.CreatedAt,
	).Error
}

func (r *repo) List(ctx context.Context, db *gorm.DB, req domain.ListRequest) ([]domain.AuditLog, error) {
	var logs []domain.AuditLog
	stmt := db.WithContext(ctx).Model(&domain.AuditLog{})

	if operation := strings.TrimSpace(req.Operation); operation != "" {
		stmt = stmt.Where("operation = ?", operation)
	}
	if entityType := strings.TrimSpace(req.EntityType); entityType != "" {
		stmt = stmt.Where("entity_type = ?", entityType)
	}
	if recordID := strings.TrimSpace(req.RecordID); recordID != "" {
		stmt = stmt.Where("record_id = ?", recordID)
	}
	if req.UserID != 0 {
		stmt = stmt.Where("user_id = ?", req.UserID)
	}
	if req.StartAt != nil {
		stmt = stmt.Where("created_at >= ?", req.StartAt.UTC())
	}
	if req.EndAt != nil {
		stmt = stmt.Where("created_at <= ?", req.EndAt.UTC())
	}

	stmt = stmt.Order("created_at desc, id desc")
	if req.Limit > 0 {
		stmt = stmt.Limit(req.Limit)
	}
	if req.Offset > 0 {
		stmt = stmt.Offset(req.Offset)
	}

	if err := stmt.Find(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}
