// Package seed installs the reference data a fresh deployment needs:
// the role catalogue, the permission catalogue, the default grants, and
// optionally a bootstrap super admin account.
package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/propbase/propbase/internal/authorization"
	"github.com/propbase/propbase/internal/config"
	identitydomain "github.com/propbase/propbase/internal/identity/domain"
	"github.com/propbase/propbase/internal/identity/password"
	"gorm.io/gorm"
)

const defaultAdminPassword = "admin"

var roleCatalogue = []identitydomain.Role{
	{Name: identitydomain.RoleOwner, RoleType: identitydomain.UserTypeClient},
	{Name: identitydomain.RoleBroker, RoleType: identitydomain.UserTypeClient},
	{Name: identitydomain.RoleSales, RoleType: identitydomain.UserTypeAdmin},
	{Name: identitydomain.RoleAdmin, RoleType: identitydomain.UserTypeAdmin},
	{Name: identitydomain.RoleSuperAdmin, RoleType: identitydomain.UserTypeAdmin},
}

var defaultGrants = map[string][]string{
	identitydomain.RoleOwner: {
		authorization.PropertyCreate,
		authorization.PropertyUpdate,
		authorization.PropertyView,
		authorization.PropertyDelete,
	},
	identitydomain.RoleBroker: {
		authorization.PropertyCreate,
		authorization.PropertyUpdate,
		authorization.PropertyView,
		authorization.PropertyDelete,
	},
	identitydomain.RoleSales: {
		authorization.PropertyView,
		authorization.PropertyUpdate,
	},
	identitydomain.RoleAdmin: {
		authorization.PropertyCreate,
		authorization.PropertyUpdate,
		authorization.PropertyView,
		authorization.PropertyDelete,
		authorization.PropertyAssign,
		authorization.UserCreate,
		authorization.UserUpdate,
		authorization.UserDelete,
		authorization.UserView,
		authorization.AuditView,
		authorization.RoleAssign,
	},
	identitydomain.RoleSuperAdmin: authorization.AllCodes,
}

// Ensure is idempotent: existing rows are left untouched and only the
// missing pieces are created, all in one transaction.
func Ensure(db *gorm.DB, cfg config.Config) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		roles, err := ensureRoles(ctx, tx, node)
		if err != nil {
			return err
		}
		permissions, err := ensurePermissions(ctx, tx, node)
		if err != nil {
			return err
		}
		if err := ensureGrants(ctx, tx, node, roles, permissions); err != nil {
			return err
		}
		if cfg.BootstrapAdmin {
			return ensureBootstrapAdmin(ctx, tx, node, cfg.BootstrapAdminMail, roles)
		}
		return nil
	})
}

func ensureRoles(ctx context.Context, tx *gorm.DB, node *snowflake.Node) (map[string]identitydomain.Role, error) {
	out := make(map[string]identitydomain.Role, len(roleCatalogue))
	for _, want := range roleCatalogue {
		var role identitydomain.Role
		err := tx.WithContext(ctx).Where("name = ?", want.Name).First(&role).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			role = identitydomain.Role{
				ID:       node.Generate(),
				Name:     want.Name,
				RoleType: want.RoleType,
				IsActive: true,
			}
			err = tx.WithContext(ctx).Create(&role).Error
		}
		if err != nil {
			return nil, err
		}
		out[role.Name] = role
	}
	return out, nil
}

func ensurePermissions(ctx context.Context, tx *gorm.DB, node *snowflake.Node) (map[string]identitydomain.Permission, error) {
	out := make(map[string]identitydomain.Permission, len(authorization.AllCodes))
	for _, code := range authorization.AllCodes {
		var perm identitydomain.Permission
		err := tx.WithContext(ctx).Where("code = ?", code).First(&perm).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			perm = identitydomain.Permission{
				ID:       node.Generate(),
				Code:     code,
				IsActive: true,
			}
			err = tx.WithContext(ctx).Create(&perm).Error
		}
		if err != nil {
			return nil, err
		}
		out[perm.Code] = perm
	}
	return out, nil
}

func ensureGrants(ctx context.Context, tx *gorm.DB, node *snowflake.Node, roles map[string]identitydomain.Role, permissions map[string]identitydomain.Permission) error {
	for roleName, codes := range defaultGrants {
		role, ok := roles[roleName]
		if !ok {
			continue
		}
		for _, code := range codes {
			perm, ok := permissions[code]
			if !ok {
				continue
			}
			var count int64
			err := tx.WithContext(ctx).Model(&identitydomain.RolePermission{}).
				Where("role_id = ? AND permission_id = ?", role.ID, perm.ID).
				Count(&count).Error
			if err != nil {
				return err
			}
			if count > 0 {
				continue
			}
			grant := identitydomain.RolePermission{
				ID:           node.Generate(),
				RoleID:       role.ID,
				PermissionID: perm.ID,
				GrantedAt:    time.Now().UTC(),
			}
			if err := tx.WithContext(ctx).Create(&grant).Error; err != nil {
				return err
			}
		}
	}
	return nil
}

func ensureBootstrapAdmin(ctx context.Context, tx *gorm.DB, node *snowflake.Node, email string, roles map[string]identitydomain.Role) error {
	var user identitydomain.User
	err := tx.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	hashed, err := password.Hash(defaultAdminPassword)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	user = identitydomain.User{
		ID:           node.Generate(),
		FullName:     "Propbase Admin",
		Email:        email,
		UserType:     identitydomain.UserTypeAdmin,
		PasswordHash: hashed,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := tx.WithContext(ctx).Create(&user).Error; err != nil {
		return err
	}

	membership := identitydomain.UserRole{
		ID:         node.Generate(),
		UserID:     user.ID,
		RoleID:     roles[identitydomain.RoleSuperAdmin].ID,
		AssignedAt: now,
	}
	return tx.WithContext(ctx).Create(&membership).Error
}
