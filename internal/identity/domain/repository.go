package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository is the storage access layer for identity records. Every
// call takes the *gorm.DB handle so callers can pass a transaction.
type Repository interface {
	InsertUser(ctx context.Context, db *gorm.DB, user *User) error
	FindUserByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*User, error)
	FindUserByEmail(ctx context.Context, db *gorm.DB, email string) (*User, error)
	UpdateUserFields(ctx context.Context, db *gorm.DB, id snowflake.ID, fields map[string]any) (int64, error)

	FindRoleByName(ctx context.Context, db *gorm.DB, name string) (*Role, error)
	ActiveRolesOf(ctx context.Context, db *gorm.DB, userID snowflake.ID) ([]Role, error)
	InsertUserRole(ctx context.Context, db *gorm.DB, membership *UserRole) error
	InsertRolePermission(ctx context.Context, db *gorm.DB, grant *RolePermission) error
	FindPermissionByCode(ctx context.Context, db *gorm.DB, code string) (*Permission, error)
}
