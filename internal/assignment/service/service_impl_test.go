package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/propbase/propbase/internal/actor"
	"github.com/propbase/propbase/internal/apperr"
	"github.com/propbase/propbase/internal/assignment/domain"
	auditdomain "github.com/propbase/propbase/internal/audit/domain"
	auditrepository "github.com/propbase/propbase/internal/audit/repository"
	auditservice "github.com/propbase/propbase/internal/audit/service"
	"github.com/propbase/propbase/internal/authorization"
	identitydomain "github.com/propbase/propbase/internal/identity/domain"
	"github.com/propbase/propbase/internal/notify"
	propertydomain "github.com/propbase/propbase/internal/property/domain"
	requestlogdomain "github.com/propbase/propbase/internal/requestlog/domain"
	requestlogservice "github.com/propbase/propbase/internal/requestlog/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type emitterStub struct {
	mu     sync.Mutex
	events []notify.Event
}

func (e *emitterStub) Emit(_ context.Context, event notify.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
}

func (e *emitterStub) Close() error { return nil }

type fixture struct {
	db        *gorm.DB
	node      *snowflake.Node
	balancer  domain.Balancer
	emitter   *emitterStub
	salesRole identitydomain.Role
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&identitydomain.User{},
		&identitydomain.Role{},
		&identitydomain.Permission{},
		&identitydomain.UserRole{},
		&identitydomain.RolePermission{},
		&propertydomain.Property{},
		&auditdomain.AuditLog{},
		&requestlogdomain.RequestLog{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	log := zap.NewNop()
	emitter := &emitterStub{}

	auditor := auditservice.NewService(auditservice.Params{
		DB: db, Log: log, GenID: node, Repo: auditrepository.Provide(),
	})
	authz := authorization.New(authorization.Params{DB: db, Log: log})
	reqlog := requestlogservice.New(requestlogservice.Params{DB: db, Log: log, GenID: node})
	balancer := New(Params{DB: db, Log: log, Authz: authz, Audit: auditor, Emitter: emitter, ReqLog: reqlog})

	salesRole := identitydomain.Role{
		ID:       node.Generate(),
		Name:     identitydomain.RoleSales,
		RoleType: identitydomain.UserTypeAdmin,
		IsActive: true,
	}
	require.NoError(t, db.Create(&salesRole).Error)

	return &fixture{db: db, node: node, balancer: balancer, emitter: emitter, salesRole: salesRole}
}

func (f *fixture) salesUser(t *testing.T, active bool) snowflake.ID {
	t.Helper()
	user := identitydomain.User{
		ID:       f.node.Generate(),
		FullName: "Sales",
		Email:    f.node.Generate().String() + "@example.com",
		Phone:    f.node.Generate().String(),
		IsActive: active,
	}
	require.NoError(t, f.db.Create(&user).Error)
	require.NoError(t, f.db.Create(&identitydomain.UserRole{
		ID:         f.node.Generate(),
		UserID:     user.ID,
		RoleID:     f.salesRole.ID,
		AssignedAt: time.Now().UTC(),
	}).Error)
	return user.ID
}

func (f *fixture) propertiesFor(t *testing.T, salesID snowflake.ID, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		id := salesID
		p := propertydomain.Property{
			ID:       f.node.Generate(),
			City:     "Pune",
			State:    "Maharashtra",
			SalesID:  &id,
			IsActive: true,
		}
		require.NoError(t, f.db.Create(&p).Error)
	}
}

func TestPickLeastLoaded_FirstEncounteredTieBreak(t *testing.T) {
	f := newFixture(t)

	// Holders enumerate in ascending user id; snowflake ids are
	// monotonic so creation order is enumeration order.
	holders := []snowflake.ID{
		f.salesUser(t, true),
		f.salesUser(t, true),
		f.salesUser(t, true),
		f.salesUser(t, true),
	}
	counts := []int{3, 1, 1, 4}
	for i, n := range counts {
		f.propertiesFor(t, holders[i], n)
	}

	picked, err := f.balancer.PickLeastLoaded(context.Background(), f.db)
	require.NoError(t, err)
	require.NotNil(t, picked)
	assert.Equal(t, holders[1], *picked, "first index reaching the minimum wins")
}

func TestPickLeastLoaded_EmptyPool(t *testing.T) {
	f := newFixture(t)

	picked, err := f.balancer.PickLeastLoaded(context.Background(), f.db)
	require.NoError(t, err)
	assert.Nil(t, picked)
}

func TestPickLeastLoaded_IgnoresInactiveHoldersAndProperties(t *testing.T) {
	f := newFixture(t)

	busy := f.salesUser(t, true)
	f.propertiesFor(t, busy, 2)

	// Soft-deleted listings do not count toward load.
	idle := f.salesUser(t, true)
	f.propertiesFor(t, idle, 5)
	require.NoError(t, f.db.Model(&propertydomain.Property{}).
		Where("sales_id = ?", idle).
		Update("is_active", false).Error)

	f.salesUser(t, false) // inactive holder, never eligible

	picked, err := f.balancer.PickLeastLoaded(context.Background(), f.db)
	require.NoError(t, err)
	require.NotNil(t, picked)
	assert.Equal(t, idle, *picked)
}

func (f *fixture) admin(t *testing.T) actor.Actor {
	t.Helper()
	role := identitydomain.Role{
		ID:       f.node.Generate(),
		Name:     identitydomain.RoleAdmin,
		RoleType: identitydomain.UserTypeAdmin,
		IsActive: true,
	}
	require.NoError(t, f.db.Create(&role).Error)
	perm := identitydomain.Permission{ID: f.node.Generate(), Code: authorization.PropertyAssign, IsActive: true}
	require.NoError(t, f.db.Create(&perm).Error)
	require.NoError(t, f.db.Create(&identitydomain.RolePermission{
		ID: f.node.Generate(), RoleID: role.ID, PermissionID: perm.ID, GrantedAt: time.Now().UTC(),
	}).Error)

	user := identitydomain.User{
		ID:       f.node.Generate(),
		FullName: "Admin",
		Email:    "admin@example.com",
		Phone:    "admin",
		IsActive: true,
	}
	require.NoError(t, f.db.Create(&user).Error)
	require.NoError(t, f.db.Create(&identitydomain.UserRole{
		ID: f.node.Generate(), UserID: user.ID, RoleID: role.ID, AssignedAt: time.Now().UTC(),
	}).Error)
	return actor.Actor{UserID: user.ID, Roles: []actor.RoleRef{{ID: role.ID, Name: role.Name}}}
}

func TestAssign_OverwritesAndAudits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.admin(t)

	oldSales := f.salesUser(t, true)
	newSales := f.salesUser(t, true)

	old := oldSales
	p := propertydomain.Property{
		ID:       f.node.Generate(),
		City:     "Pune",
		State:    "Maharashtra",
		SalesID:  &old,
		IsActive: true,
	}
	require.NoError(t, f.db.Create(&p).Error)

	require.NoError(t, f.balancer.Assign(ctx, admin, p.ID, newSales))

	var row propertydomain.Property
	require.NoError(t, f.db.First(&row, "id = ?", p.ID).Error)
	require.NotNil(t, row.SalesID)
	assert.Equal(t, newSales, *row.SalesID)

	var audits []auditdomain.AuditLog
	require.NoError(t, f.db.Where("operation = ?", auditdomain.OperationUpdate).Find(&audits).Error)
	require.Len(t, audits, 1)
	assert.Contains(t, string(audits[0].OldValue), "sales_id")
	assert.Contains(t, string(audits[0].NewValue), "sales_id")

	require.Len(t, f.emitter.events, 1)
	assert.Equal(t, notify.EventPropertyAssigned, f.emitter.events[0].Name)
	assert.Equal(t, p.ID, f.emitter.events[0].PropertyID)
}

func TestAssign_TargetMustBeActiveSales(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.admin(t)

	p := propertydomain.Property{ID: f.node.Generate(), City: "Pune", State: "Maharashtra", IsActive: true}
	require.NoError(t, f.db.Create(&p).Error)

	err := f.balancer.Assign(ctx, admin, p.ID, f.node.Generate())
	assert.True(t, apperr.IsValidation(err))

	inactive := f.salesUser(t, false)
	err = f.balancer.Assign(ctx, admin, p.ID, inactive)
	assert.True(t, apperr.IsValidation(err))
}

func TestAssign_MissingPropertyIsNotFound(t *testing.T) {
	f := newFixture(t)
	admin := f.admin(t)
	sales := f.salesUser(t, true)

	err := f.balancer.Assign(context.Background(), admin, f.node.Generate(), sales)
	assert.True(t, apperr.IsNotFound(err))
}

func TestAssign_WritesRequestLog(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.admin(t)
	sales := f.salesUser(t, true)

	p := propertydomain.Property{ID: f.node.Generate(), City: "Pune", State: "Maharashtra", IsActive: true}
	require.NoError(t, f.db.Create(&p).Error)

	require.NoError(t, f.balancer.Assign(ctx, admin, p.ID, sales))
	require.Error(t, f.balancer.Assign(ctx, admin, f.node.Generate(), sales))

	var rows []requestlogdomain.RequestLog
	require.NoError(t, f.db.Where("action = ?", "property.assign").Order("id").Find(&rows).Error)
	require.Len(t, rows, 2)
	assert.Equal(t, requestlogdomain.OutcomeSuccess, rows[0].Outcome)
	require.NotNil(t, rows[0].ActorID)
	assert.Equal(t, admin.UserID, *rows[0].ActorID)
	assert.Equal(t, requestlogdomain.OutcomeFailure, rows[1].Outcome)
	assert.Equal(t, "not_found", rows[1].Reason)
}
