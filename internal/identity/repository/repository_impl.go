package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/propbase/propbase/internal/identity/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertUser(ctx context.Context, db *gorm.DB, user *domain.User) error {
	return db.WithContext(ctx).Create(user).Error
}

func (r *repo) FindUserByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.User, error) {
	var user domain.User
	err := db.WithContext(ctx).Where("id = ?", id).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *repo) FindUserByEmail(ctx context.Context, db *gorm.DB, email string) (*domain.User, error) {
	var user domain.User
	err := db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *repo) UpdateUserFields(ctx context.Context, db *gorm.DB, id snowflake.ID, fields map[string]any) (int64, error) {
	tx := db.WithContext(ctx).Model(&domain.User{}).Where("id = ?", id).Updates(fields)
	return tx.RowsAffected, tx.Error
}

func (r *repo) FindRoleByName(ctx context.Context, db *gorm.DB, name string) (*domain.Role, error) {
	var role domain.Role
	err := db.WithContext(ctx).Where("name = ?", name).First(&role).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &role, nil
}

// ActiveRolesOf resolves memberships restricted to roles whose is_active
// flag is set; inactive roles never contribute to an actor's role set.
func (r *repo) ActiveRolesOf(ctx context.Context, db *gorm.DB, userID snowflake.ID) ([]domain.Role, error) {
	var roles []domain.Role
	err := db.WithContext(ctx).Raw(
		`SELECT r.id, r.name, r.role_type, r.is_active
		 FROM roles r
		 JOIN user_roles ur ON ur.role_id = r.id
		 WHERE ur.user_id = ? AND r.is_active = ?
		 ORDER BY ur.assigned_at, r.id`,
		userID,
		true,
	).Scan(&roles).Error
	if err != nil {
		return nil, err
	}
	return roles, nil
}

func (r *repo) InsertUserRole(ctx context.Context, db *gorm.DB, membership *domain.UserRole) error {
	return db.WithContext(ctx).Create(membership).Error
}

func (r *repo) InsertRolePermission(ctx context.Context, db *gorm.DB, grant *domain.RolePermission) error {
	return db.WithContext(ctx).Create(grant).Error
}

func (r *repo) FindPermissionByCode(ctx context.Context, db *gorm.DB, code string) (*domain.Permission, error) {
	var permission domain.Permission
	err := db.WithContext(ctx).Where("code = ?", code).First(&permission).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &permission, nil
}
