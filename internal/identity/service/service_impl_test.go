package service

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/propbase/propbase/internal/actor"
	"github.com/propbase/propbase/internal/apperr"
	auditdomain "github.com/propbase/propbase/internal/audit/domain"
	auditrepository "github.com/propbase/propbase/internal/audit/repository"
	auditservice "github.com/propbase/propbase/internal/audit/service"
	"github.com/propbase/propbase/internal/identity/domain"
	"github.com/propbase/propbase/internal/identity/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	db   *gorm.DB
	node *snowflake.Node
	svc  domain.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&domain.User{},
		&domain.Role{},
		&domain.Permission{},
		&domain.UserRole{},
		&domain.RolePermission{},
		&auditdomain.AuditLog{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	log := zap.NewNop()

	auditor := auditservice.NewService(auditservice.Params{
		DB: db, Log: log, GenID: node, Repo: auditrepository.Provide(),
	})
	svc := New(Params{DB: db, Log: log, GenID: node, Repo: repository.Provide(), Auditor: auditor})
	return &fixture{db: db, node: node, svc: svc}
}

func (f *fixture) seedRole(t *testing.T, name string, active bool) domain.Role {
	t.Helper()
	role := domain.Role{
		ID:       f.node.Generate(),
		Name:     name,
		RoleType: domain.UserTypeClient,
		IsActive: active,
	}
	require.NoError(t, f.db.Create(&role).Error)
	return role
}

func validRequest() domain.CreateUserRequest {
	return domain.CreateUserRequest{
		FullName: "Asha Rao",
		Email:    "asha@example.com",
		Phone:    "9000000001",
		Password: "long-enough-secret",
	}
}

func TestCreateUser_HappyPath(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedRole(t, domain.RoleOwner, true)

	req := validRequest()
	req.Roles = []string{domain.RoleOwner}
	user, err := f.svc.CreateUser(ctx, actor.Actor{}, req)
	require.NoError(t, err)
	assert.True(t, user.IsActive)
	assert.Equal(t, "asha@example.com", user.Email)
	assert.NotEqual(t, req.Password, user.PasswordHash)

	act, err := f.svc.ResolveActor(ctx, user.ID, "10.0.0.1", "test-agent")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleOwner, act.PrimaryRole())

	// One audit row for the user, one for the membership.
	var count int64
	require.NoError(t, f.db.Model(&auditdomain.AuditLog{}).Count(&count).Error)
	assert.EqualValues(t, 2, count)
}

func TestCreateUser_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := validRequest()
	req.Email = "not-an-email"
	_, err := f.svc.CreateUser(ctx, actor.Actor{}, req)
	assert.True(t, apperr.IsValidation(err))

	req = validRequest()
	req.Password = "short"
	_, err = f.svc.CreateUser(ctx, actor.Actor{}, req)
	assert.True(t, apperr.IsValidation(err))

	req = validRequest()
	req.FullName = "  "
	_, err = f.svc.CreateUser(ctx, actor.Actor{}, req)
	assert.True(t, apperr.IsValidation(err))
}

func TestCreateUser_DuplicateEmailConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateUser(ctx, actor.Actor{}, validRequest())
	require.NoError(t, err)

	dup := validRequest()
	dup.Phone = "9000000002"
	_, err = f.svc.CreateUser(ctx, actor.Actor{}, dup)
	require.Error(t, err)
	assert.True(t, apperr.IsConflict(err))
}

func TestCreateUser_UnknownRoleRollsBackUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := validRequest()
	req.Roles = []string{"no-such-role"}
	_, err := f.svc.CreateUser(ctx, actor.Actor{}, req)
	require.Error(t, err)
	assert.True(t, apperr.IsValidation(err))

	var users int64
	require.NoError(t, f.db.Model(&domain.User{}).Count(&users).Error)
	assert.Zero(t, users, "user insert must roll back with the failed role assignment")
}

func TestDeactivateUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	user, err := f.svc.CreateUser(ctx, actor.Actor{}, validRequest())
	require.NoError(t, err)

	require.NoError(t, f.svc.DeactivateUser(ctx, actor.Actor{}, user.ID))

	_, err = f.svc.ResolveActor(ctx, user.ID, "", "")
	assert.True(t, apperr.IsUnauthenticated(err))

	// Idempotent: deactivating again is a no-op.
	require.NoError(t, f.svc.DeactivateUser(ctx, actor.Actor{}, user.ID))

	var row domain.User
	require.NoError(t, f.db.First(&row, "id = ?", user.ID).Error)
	assert.False(t, row.IsActive, "soft delete keeps the row")
}

func TestVerifyCredentials(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.svc.CreateUser(ctx, actor.Actor{}, validRequest())
	require.NoError(t, err)

	user, err := f.svc.VerifyCredentials(ctx, "Asha@Example.com", "long-enough-secret")
	require.NoError(t, err)
	assert.Equal(t, created.ID, user.ID)

	_, err = f.svc.VerifyCredentials(ctx, "asha@example.com", "wrong")
	assert.True(t, apperr.IsUnauthenticated(err))

	_, err = f.svc.VerifyCredentials(ctx, "nobody@example.com", "whatever")
	assert.True(t, apperr.IsUnauthenticated(err))
}

func TestResolveActor_FiltersInactiveRoles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedRole(t, domain.RoleOwner, true)
	dormant := f.seedRole(t, "legacy", false)

	req := validRequest()
	req.Roles = []string{domain.RoleOwner}
	user, err := f.svc.CreateUser(ctx, actor.Actor{}, req)
	require.NoError(t, err)

	// Attach the inactive role directly; assignment would reject it.
	require.NoError(t, f.db.Create(&domain.UserRole{
		ID:     f.node.Generate(),
		UserID: user.ID,
		RoleID: dormant.ID,
	}).Error)

	act, err := f.svc.ResolveActor(ctx, user.ID, "", "")
	require.NoError(t, err)
	require.Len(t, act.Roles, 1)
	assert.Equal(t, domain.RoleOwner, act.Roles[0].Name)
}
