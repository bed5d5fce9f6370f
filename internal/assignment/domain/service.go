// Package domain defines the assignment balancer: picking the
// least-loaded sales handler for new listings and explicit
// re-assignment.
package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/propbase/propbase/internal/actor"
	"gorm.io/gorm"
)

// Balancer distributes listings across active sales-role holders.
type Balancer interface {
	// PickLeastLoaded returns the active sales holder with the strictly
	// smallest active-property count, ties broken by enumeration order
	// (ascending user id). Returns nil with no error when the pool is
	// empty; the caller leaves the assignment unset.
	PickLeastLoaded(ctx context.Context, tx *gorm.DB) (*snowflake.ID, error)

	// Assign overwrites a property's sales handler. It validates the
	// target user and writes its own audit delta in its own transaction,
	// then emits property:assigned best-effort.
	Assign(ctx context.Context, act actor.Actor, propertyID, salesID snowflake.ID) error
}

// SalesLoad is one row of the load report.
type SalesLoad struct {
	UserID snowflake.ID `gorm:"column:user_id"`
	Load   int64        `gorm:"column:load_count"`
}
