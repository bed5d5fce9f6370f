package service

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/propbase/propbase/internal/actor"
	"github.com/propbase/propbase/internal/apperr"
	auditdomain "github.com/propbase/propbase/internal/audit/domain"
	"github.com/propbase/propbase/internal/identity/domain"
	"github.com/propbase/propbase/internal/identity/password"
	"github.com/propbase/propbase/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const minPasswordLength = 8

const entityTypeUser = "user"

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Repo    domain.Repository
	Auditor auditdomain.Recorder
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	repo    domain.Repository
	auditor auditdomain.Recorder
}

func New(p Params) domain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("identity.service"),
		genID:   p.GenID,
		repo:    p.Repo,
		auditor: p.Auditor,
	}
}

func (s *Service) CreateUser(ctx context.Context, act actor.Actor, req domain.CreateUserRequest) (*domain.User, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, apperr.Validation("invalid email address")
	}
	fullName := strings.TrimSpace(req.FullName)
	if fullName == "" {
		return nil, apperr.Validation("full name is required")
	}
	if len(strings.TrimSpace(req.Password)) < minPasswordLength {
		return nil, apperr.Validation("password must be at least %d characters", minPasswordLength)
	}
	userType := strings.TrimSpace(req.UserType)
	if userType == "" {
		userType = domain.UserTypeClient
	}
	if userType != domain.UserTypeClient && userType != domain.UserTypeAdmin {
		return nil, apperr.Validation("unknown user type %q", userType)
	}

	if existing, err := s.repo.FindUserByEmail(ctx, s.db, email); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, apperr.Conflict("email already registered")
	}

	hashed, err := password.Hash(req.Password)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	user := &domain.User{
		ID:           s.genID.Generate(),
		FullName:     fullName,
		Email:        email,
		Phone:        strings.TrimSpace(req.Phone),
		UserType:     userType,
		PasswordHash: hashed,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.InsertUser(ctx, tx, user); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return apperr.Conflict("email or phone already registered")
			}
			return err
		}
		for _, roleName := range req.Roles {
			if err := s.assignRoleTx(ctx, tx, act, user.ID, roleName); err != nil {
				return err
			}
		}
		return s.auditor.RecordInsert(ctx, tx, act, entityTypeUser, user.ID, userToMap(user))
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (s *Service) DeactivateUser(ctx context.Context, act actor.Actor, userID snowflake.ID) error {
	user, err := s.repo.FindUserByID(ctx, s.db, userID)
	if err != nil {
		return err
	}
	if user == nil {
		return apperr.NotFound("user not found")
	}
	if !user.IsActive {
		return nil
	}

	now := time.Now().UTC()
	patch := map[string]any{"is_active": false}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		affected, err := s.repo.UpdateUserFields(ctx, tx, userID, map[string]any{
			"is_active":  false,
			"updated_at": now,
		})
		if err != nil {
			return err
		}
		if affected == 0 {
			return apperr.NotFound("user not found")
		}
		return s.auditor.RecordUpdate(ctx, tx, act, entityTypeUser, userID, userToMap(user), patch)
	})
}

func (s *Service) AssignRole(ctx context.Context, act actor.Actor, userID snowflake.ID, roleName string) error {
	user, err := s.repo.FindUserByID(ctx, s.db, userID)
	if err != nil {
		return err
	}
	if user == nil || !user.IsActive {
		return apperr.NotFound("user not found")
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.assignRoleTx(ctx, tx, act, userID, roleName)
	})
}

func (s *Service) assignRoleTx(ctx context.Context, tx *gorm.DB, act actor.Actor, userID snowflake.ID, roleName string) error {
	role, err := s.repo.FindRoleByName(ctx, tx, strings.TrimSpace(roleName))
	if err != nil {
		return err
	}
	if role == nil || !role.IsActive {
		return apperr.Validation("unknown role %q", roleName)
	}

	membership := &domain.UserRole{
		ID:         s.genID.Generate(),
		UserID:     userID,
		RoleID:     role.ID,
		AssignedAt: time.Now().UTC(),
	}
	if !act.IsZero() {
		assignedBy := act.UserID
		membership.AssignedBy = &assignedBy
	}
	if err := s.repo.InsertUserRole(ctx, tx, membership); err != nil {
		return err
	}
	return s.auditor.RecordInsert(ctx, tx, act, "user_role", membership.ID, map[string]any{
		"user_id": userID.String(),
		"role_id": role.ID.String(),
		"role":    role.Name,
	})
}

func (s *Service) GrantPermission(ctx context.Context, act actor.Actor, roleName, permissionCode string) error {
	role, err := s.repo.FindRoleByName(ctx, s.db, strings.TrimSpace(roleName))
	if err != nil {
		return err
	}
	if role == nil {
		return apperr.Validation("unknown role %q", roleName)
	}
	permission, err := s.repo.FindPermissionByCode(ctx, s.db, strings.TrimSpace(permissionCode))
	if err != nil {
		return err
	}
	if permission == nil {
		return apperr.Validation("unknown permission %q", permissionCode)
	}

	grant := &domain.RolePermission{
		ID:           s.genID.Generate(),
		RoleID:       role.ID,
		PermissionID: permission.ID,
		GrantedAt:    time.Now().UTC(),
	}
	if !act.IsZero() {
		grantedBy := act.UserID
		grant.GrantedBy = &grantedBy
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.InsertRolePermission(ctx, tx, grant); err != nil {
			return err
		}
		return s.auditor.RecordInsert(ctx, tx, act, "role_permission", grant.ID, map[string]any{
			"role_id":       role.ID.String(),
			"permission_id": permission.ID.String(),
			"code":          permission.Code,
		})
	})
}

func (s *Service) ResolveActor(ctx context.Context, userID snowflake.ID, ipAddress, userAgent string) (actor.Actor, error) {
	user, err := s.repo.FindUserByID(ctx, s.db, userID)
	if err != nil {
		return actor.Actor{}, err
	}
	if user == nil || !user.IsActive {
		return actor.Actor{}, apperr.Unauthenticated("unknown or inactive user")
	}

	roles, err := s.repo.ActiveRolesOf(ctx, s.db, userID)
	if err != nil {
		return actor.Actor{}, err
	}

	act := actor.Actor{
		UserID:    user.ID,
		IPAddress: strings.TrimSpace(ipAddress),
		UserAgent: strings.TrimSpace(userAgent),
	}
	for _, role := range roles {
		act.Roles = append(act.Roles, actor.RoleRef{ID: role.ID, Name: role.Name})
	}
	return act, nil
}

func (s *Service) VerifyCredentials(ctx context.Context, email, rawPassword string) (*domain.User, error) {
	normalized, err := normalizeEmail(email)
	if err != nil {
		return nil, apperr.Unauthenticated("invalid credentials")
	}
	user, err := s.repo.FindUserByEmail(ctx, s.db, normalized)
	if err != nil {
		return nil, err
	}
	if user == nil || !user.IsActive {
		return nil, apperr.Unauthenticated("invalid credentials")
	}
	if !password.Verify(rawPassword, user.PasswordHash) {
		return nil, apperr.Unauthenticated("invalid credentials")
	}
	return user, nil
}

func normalizeEmail(raw string) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}
	return strings.ToLower(strings.TrimSpace(addr.Address)), nil
}

func userToMap(user *domain.User) map[string]any {
	return map[string]any{
		"full_name": user.FullName,
		"email":     user.Email,
		"phone":     user.Phone,
		"user_type": user.UserType,
		"is_active": user.IsActive,
	}
}
