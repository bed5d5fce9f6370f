// Package domain contains core types for the credential store: users,
// roles, permissions, and their join records. Role and permission rows
// are static reference data; membership and grants are explicit join
// entities with their own lifecycle, never inferred at query time.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	UserTypeClient = "client"
	UserTypeAdmin  = "admin"
)

// Role names are reference data seeded at startup.
const (
	RoleOwner      = "owner"
	RoleBroker     = "broker"
	RoleAdmin      = "admin"
	RoleSuperAdmin = "super_admin"
	RoleSales      = "sales"
)

// User is an identity record. Users are soft-deleted via IsActive and
// never removed from storage.
type User struct {
	ID           snowflake.ID `gorm:"primaryKey" json:"id"`
	FullName     string       `gorm:"column:full_name;not null" json:"full_name"`
	Email        string       `gorm:"column:email;not null;uniqueIndex" json:"email"`
	Phone        string       `gorm:"column:phone;uniqueIndex" json:"phone,omitempty"`
	UserType     string       `gorm:"column:user_type;not null;default:client" json:"user_type"`
	PasswordHash string       `gorm:"column:password_hash;type:text" json:"-"`
	IsActive     bool         `gorm:"column:is_active;not null;default:true" json:"is_active"`
	CreatedAt    time.Time    `gorm:"column:created_at;not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt    time.Time    `gorm:"column:updated_at;not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (User) TableName() string { return "users" }

// Role is a named capability bucket.
type Role struct {
	ID       snowflake.ID `gorm:"primaryKey" json:"id"`
	Name     string       `gorm:"column:name;not null;uniqueIndex" json:"name"`
	RoleType string       `gorm:"column:role_type;not null" json:"role_type"`
	IsActive bool         `gorm:"column:is_active;not null;default:true" json:"is_active"`
}

// TableName sets the database table name.
func (Role) TableName() string { return "roles" }

// Permission is a named atomic action.
type Permission struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	Code        string       `gorm:"column:code;not null;uniqueIndex" json:"code"`
	Description string       `gorm:"column:description;type:text" json:"description,omitempty"`
	IsActive    bool         `gorm:"column:is_active;not null;default:true" json:"is_active"`
}

// TableName sets the database table name.
func (Permission) TableName() string { return "permissions" }

// UserRole records a role membership.
type UserRole struct {
	ID         snowflake.ID  `gorm:"primaryKey" json:"id"`
	UserID     snowflake.ID  `gorm:"column:user_id;not null;index:idx_user_roles_pair" json:"user_id"`
	RoleID     snowflake.ID  `gorm:"column:role_id;not null;index:idx_user_roles_pair" json:"role_id"`
	AssignedBy *snowflake.ID `gorm:"column:assigned_by" json:"assigned_by,omitempty"`
	AssignedAt time.Time     `gorm:"column:assigned_at;not null;default:CURRENT_TIMESTAMP" json:"assigned_at"`
}

// TableName sets the database table name.
func (UserRole) TableName() string { return "user_roles" }

// RolePermission records a permission grant.
type RolePermission struct {
	ID           snowflake.ID  `gorm:"primaryKey" json:"id"`
	RoleID       snowflake.ID  `gorm:"column:role_id;not null;index:idx_role_permissions_pair" json:"role_id"`
	PermissionID snowflake.ID  `gorm:"column:permission_id;not null;index:idx_role_permissions_pair" json:"permission_id"`
	GrantedBy    *snowflake.ID `gorm:"column:granted_by" json:"granted_by,omitempty"`
	GrantedAt    time.Time     `gorm:"column:granted_at;not null;default:CURRENT_TIMESTAMP" json:"granted_at"`
}

// TableName sets the database table name.
func (RolePermission) TableName() string { return "role_permissions" }
