// Package domain contains core types for the audit trail.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

const (
	OperationInsert = "INSERT"
	OperationUpdate = "UPDATE"
	OperationDelete = "DELETE"
)

// AuditLog is an append-only fact describing one committed mutation.
// OldValue is null for inserts, NewValue is null for deletes; for updates
// both hold only the keys that actually changed. Rows are never updated
// or deleted after creation.
type AuditLog struct {
	ID         snowflake.ID   `gorm:"primaryKey" json:"id"`
	Operation  string         `gorm:"column:operation;not null;index" json:"operation"`
	EntityType string         `gorm:"column:entity_type;not null;index" json:"entity_type"`
	RecordID   string         `gorm:"column:record_id;not null;index" json:"record_id"`
	OldValue   datatypes.JSON `gorm:"column:old_value" json:"old_value,omitempty"`
	NewValue   datatypes.JSON `gorm:"column:new_value" json:"new_value,omitempty"`
	UserID     *snowflake.ID  `gorm:"column:user_id;index" json:"user_id,omitempty"`
	IPAddress  *string        `gorm:"column:ip_address;type:text" json:"ip_address,omitempty"`
	UserAgent  *string        `gorm:"column:user_agent;type:text" json:"user_agent,omitempty"`
	CreatedAt  time.Time      `gorm:"column:created_at;not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (AuditLog) TableName() string { return "audit_logs" }
