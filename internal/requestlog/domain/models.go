// Package domain defines the operational request log: one row per
// attempted operation, success or failure, for observability.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// RequestLog captures who attempted what, the outcome, and timing.
// Rows are written outside the business transaction and are never
// allowed to fail the operation they describe.
type RequestLog struct {
	ID        snowflake.ID   `gorm:"primaryKey" json:"id"`
	Action    string         `gorm:"column:action;not null;index" json:"action"`
	ActorID   *snowflake.ID  `gorm:"column:actor_id;index" json:"actor_id,omitempty"`
	Outcome   string         `gorm:"column:outcome;not null" json:"outcome"`
	Reason    string         `gorm:"column:reason" json:"reason,omitempty"`
	LatencyMs int64          `gorm:"column:latency_ms" json:"latency_ms"`
	IPAddress string         `gorm:"column:ip_address" json:"ip_address,omitempty"`
	UserAgent string         `gorm:"column:user_agent" json:"user_agent,omitempty"`
	Detail    datatypes.JSON `gorm:"column:detail" json:"detail,omitempty"`
	CreatedAt time.Time      `gorm:"column:created_at;not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (RequestLog) TableName() string { return "request_logs" }
