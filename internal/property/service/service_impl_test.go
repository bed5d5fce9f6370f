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
	assignmentservice "github.com/propbase/propbase/internal/assignment/service"
	auditdomain "github.com/propbase/propbase/internal/audit/domain"
	auditrepository "github.com/propbase/propbase/internal/audit/repository"
	auditservice "github.com/propbase/propbase/internal/audit/service"
	"github.com/propbase/propbase/internal/authorization"
	identitydomain "github.com/propbase/propbase/internal/identity/domain"
	identityrepository "github.com/propbase/propbase/internal/identity/repository"
	"github.com/propbase/propbase/internal/notify"
	"github.com/propbase/propbase/internal/property/domain"
	"github.com/propbase/propbase/internal/property/repository"
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

func (e *emitterStub) names() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.events))
	for _, ev := range e.events {
		out = append(out, ev.Name)
	}
	return out
}

type fixture struct {
	db      *gorm.DB
	node    *snowflake.Node
	svc     domain.Service
	emitter *emitterStub
	roles   map[string]identitydomain.Role
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
		&domain.Property{},
		&domain.Amenity{},
		&domain.PropertyAmenity{},
		&domain.Media{},
		&domain.Certification{},
		&domain.Connectivity{},
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
	balancer := assignmentservice.New(assignmentservice.Params{
		DB: db, Log: log, Authz: authz, Audit: auditor, Emitter: emitter, ReqLog: reqlog,
	})

	svc := New(Params{
		DB:       db,
		Log:      log,
		GenID:    node,
		Repo:     repository.Provide(),
		Users:    identityrepository.Provide(),
		Authz:    authz,
		Audit:    auditor,
		Balancer: balancer,
		Emitter:  emitter,
		ReqLog:   reqlog,
	})

	return &fixture{db: db, node: node, svc: svc, emitter: emitter, roles: map[string]identitydomain.Role{}}
}

func (f *fixture) role(t *testing.T, name string, codes ...string) identitydomain.Role {
	t.Helper()
	role, ok := f.roles[name]
	if !ok {
		role = identitydomain.Role{
			ID:       f.node.Generate(),
			Name:     name,
			RoleType: identitydomain.UserTypeClient,
			IsActive: true,
		}
		require.NoError(t, f.db.Create(&role).Error)
		f.roles[name] = role
	}
	for _, code := range codes {
		var perm identitydomain.Permission
		err := f.db.Where("code = ?", code).First(&perm).Error
		if err != nil {
			require.ErrorIs(t, err, gorm.ErrRecordNotFound)
			perm = identitydomain.Permission{ID: f.node.Generate(), Code: code, IsActive: true}
			require.NoError(t, f.db.Create(&perm).Error)
		}
		require.NoError(t, f.db.Create(&identitydomain.RolePermission{
			ID:           f.node.Generate(),
			RoleID:       role.ID,
			PermissionID: perm.ID,
			GrantedAt:    time.Now().UTC(),
		}).Error)
	}
	return role
}

func (f *fixture) user(t *testing.T, roleName string, codes ...string) actor.Actor {
	t.Helper()
	role := f.role(t, roleName, codes...)
	user := identitydomain.User{
		ID:       f.node.Generate(),
		FullName: "User " + roleName,
		Email:    f.node.Generate().String() + "@example.com",
		Phone:    f.node.Generate().String(),
		IsActive: true,
	}
	require.NoError(t, f.db.Create(&user).Error)
	require.NoError(t, f.db.Create(&identitydomain.UserRole{
		ID:         f.node.Generate(),
		UserID:     user.ID,
		RoleID:     role.ID,
		AssignedAt: time.Now().UTC(),
	}).Error)
	return actor.Actor{UserID: user.ID, Roles: []actor.RoleRef{{ID: role.ID, Name: roleName}}}
}

func (f *fixture) amenity(t *testing.T, name string, active bool) domain.Amenity {
	t.Helper()
	a := domain.Amenity{ID: f.node.Generate(), Name: name, IsActive: active}
	require.NoError(t, f.db.Create(&a).Error)
	return a
}

func ownerCodes() []string {
	return []string{
		authorization.PropertyCreate,
		authorization.PropertyUpdate,
		authorization.PropertyView,
		authorization.PropertyDelete,
	}
}

func validCreate() domain.CreateRequest {
	return domain.CreateRequest{
		PropertyName: "Sunrise Residency",
		City:         "Pune",
		State:        "Maharashtra",
	}
}

func TestCreate_RoundTripAmenities(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.user(t, identitydomain.RoleOwner, ownerCodes()...)

	a1 := f.amenity(t, "pool", true)
	a2 := f.amenity(t, "gym", true)
	a3 := f.amenity(t, "parking", true)

	req := validCreate()
	req.AmenityIDs = []snowflake.ID{a1.ID, a2.ID, a3.ID}
	req.Certifications = &domain.CertificationInput{Rera: true, Others: []string{"ISO-9001"}}
	req.Connectivity = []domain.ConnectivityInput{{ConnectivityType: "school", Name: "DPS", DistanceKm: "2.5"}}

	agg, err := f.svc.Create(ctx, owner, req)
	require.NoError(t, err)
	require.NotNil(t, agg.Property.OwnerID)
	assert.Equal(t, owner.UserID, *agg.Property.OwnerID)
	assert.Nil(t, agg.Property.BrokerID)

	got, err := f.svc.GetAggregate(ctx, owner, agg.Property.ID)
	require.NoError(t, err)
	gotIDs := make([]snowflake.ID, 0, len(got.Amenities))
	for _, a := range got.Amenities {
		gotIDs = append(gotIDs, a.ID)
	}
	assert.ElementsMatch(t, []snowflake.ID{a1.ID, a2.ID, a3.ID}, gotIDs)

	require.Len(t, got.Connectivity, 1)
	require.NotNil(t, got.Connectivity[0].DistanceKm)
	assert.InDelta(t, 2.5, *got.Connectivity[0].DistanceKm, 0.0001)

	certTypes := make([]string, 0, len(got.Certs))
	for _, c := range got.Certs {
		certTypes = append(certTypes, c.CertificationType)
	}
	assert.ElementsMatch(t, []string{domain.CertificationRera, domain.CertificationOthers}, certTypes)

	var auditRows []auditdomain.AuditLog
	require.NoError(t, f.db.Where("entity_type = ?", "property").Find(&auditRows).Error)
	require.Len(t, auditRows, 1)
	assert.Equal(t, auditdomain.OperationInsert, auditRows[0].Operation)

	assert.Equal(t, []string{notify.EventPropertyCreated}, f.emitter.names())
}

func TestCreate_RequiresCityAndState(t *testing.T) {
	f := newFixture(t)
	owner := f.user(t, identitydomain.RoleOwner, ownerCodes()...)

	req := validCreate()
	req.City = " "
	_, err := f.svc.Create(context.Background(), owner, req)
	assert.True(t, apperr.IsValidation(err))

	req = validCreate()
	req.State = ""
	_, err = f.svc.Create(context.Background(), owner, req)
	assert.True(t, apperr.IsValidation(err))
}

func TestCreate_UnknownAmenityLeavesNoRows(t *testing.T) {
	f := newFixture(t)
	owner := f.user(t, identitydomain.RoleOwner, ownerCodes()...)
	a1 := f.amenity(t, "pool", true)

	req := validCreate()
	req.AmenityIDs = []snowflake.ID{a1.ID, f.node.Generate()}

	_, err := f.svc.Create(context.Background(), owner, req)
	require.Error(t, err)
	assert.True(t, apperr.IsValidation(err))

	var properties, links, audits int64
	require.NoError(t, f.db.Model(&domain.Property{}).Count(&properties).Error)
	require.NoError(t, f.db.Model(&domain.PropertyAmenity{}).Count(&links).Error)
	require.NoError(t, f.db.Model(&auditdomain.AuditLog{}).Count(&audits).Error)
	assert.Zero(t, properties)
	assert.Zero(t, links)
	assert.Zero(t, audits)
	assert.Empty(t, f.emitter.names())
}

func TestCreate_InactiveAmenityRejected(t *testing.T) {
	f := newFixture(t)
	owner := f.user(t, identitydomain.RoleOwner, ownerCodes()...)
	dead := f.amenity(t, "closed-lounge", false)

	req := validCreate()
	req.AmenityIDs = []snowflake.ID{dead.ID}
	_, err := f.svc.Create(context.Background(), owner, req)
	assert.True(t, apperr.IsValidation(err))
}

func TestCreate_BrokerLandsInBrokerSlot(t *testing.T) {
	f := newFixture(t)
	broker := f.user(t, identitydomain.RoleBroker, ownerCodes()...)

	agg, err := f.svc.Create(context.Background(), broker, validCreate())
	require.NoError(t, err)
	assert.Nil(t, agg.Property.OwnerID)
	require.NotNil(t, agg.Property.BrokerID)
	assert.Equal(t, broker.UserID, *agg.Property.BrokerID)
}

func TestCreate_AdminMustNameExactlyOneHolder(t *testing.T) {
	f := newFixture(t)
	admin := f.user(t, identitydomain.RoleAdmin, ownerCodes()...)
	owner := f.user(t, identitydomain.RoleOwner)

	_, err := f.svc.Create(context.Background(), admin, validCreate())
	assert.True(t, apperr.IsValidation(err))

	req := validCreate()
	req.OwnerID = &owner.UserID
	agg, err := f.svc.Create(context.Background(), admin, req)
	require.NoError(t, err)
	require.NotNil(t, agg.Property.OwnerID)
	assert.Equal(t, owner.UserID, *agg.Property.OwnerID)
}

func TestCreate_AdminNamedHolderMustExist(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.user(t, identitydomain.RoleAdmin, ownerCodes()...)

	ghost := f.node.Generate()
	req := validCreate()
	req.OwnerID = &ghost
	_, err := f.svc.Create(ctx, admin, req)
	require.Error(t, err)
	assert.True(t, apperr.IsValidation(err))

	// An inactive user cannot hold the broker slot either.
	retired := f.user(t, identitydomain.RoleBroker)
	require.NoError(t, f.db.Model(&identitydomain.User{}).
		Where("id = ?", retired.UserID).
		Update("is_active", false).Error)
	req = validCreate()
	req.BrokerID = &retired.UserID
	_, err = f.svc.Create(ctx, admin, req)
	assert.True(t, apperr.IsValidation(err))

	var properties int64
	require.NoError(t, f.db.Model(&domain.Property{}).Count(&properties).Error)
	assert.Zero(t, properties, "a dangling holder must not commit a row")
}

func TestCreate_BadConnectivity(t *testing.T) {
	f := newFixture(t)
	owner := f.user(t, identitydomain.RoleOwner, ownerCodes()...)

	req := validCreate()
	req.Connectivity = []domain.ConnectivityInput{{ConnectivityType: "", Name: "no type"}}
	_, err := f.svc.Create(context.Background(), owner, req)
	assert.True(t, apperr.IsValidation(err))

	req = validCreate()
	req.Connectivity = []domain.ConnectivityInput{{ConnectivityType: "metro", DistanceKm: "near"}}
	_, err = f.svc.Create(context.Background(), owner, req)
	assert.True(t, apperr.IsValidation(err))
}

func TestCreate_AssignsLeastLoadedSales(t *testing.T) {
	f := newFixture(t)
	owner := f.user(t, identitydomain.RoleOwner, ownerCodes()...)
	sales := f.user(t, identitydomain.RoleSales)

	agg, err := f.svc.Create(context.Background(), owner, validCreate())
	require.NoError(t, err)
	require.NotNil(t, agg.Property.SalesID)
	assert.Equal(t, sales.UserID, *agg.Property.SalesID)
}

func TestCreate_NoSalesPoolLeavesUnassigned(t *testing.T) {
	f := newFixture(t)
	owner := f.user(t, identitydomain.RoleOwner, ownerCodes()...)

	agg, err := f.svc.Create(context.Background(), owner, validCreate())
	require.NoError(t, err)
	assert.Nil(t, agg.Property.SalesID)
}

func TestCreate_WithoutPermissionForbidden(t *testing.T) {
	f := newFixture(t)
	owner := f.user(t, identitydomain.RoleOwner, authorization.PropertyView)

	_, err := f.svc.Create(context.Background(), owner, validCreate())
	require.Error(t, err)
	assert.True(t, apperr.IsForbidden(err))
	assert.Equal(t, []string{authorization.PropertyCreate}, apperr.MissingCodes(err))
}

func TestUpdate_ProtectedFieldsSilentlyDropped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.user(t, identitydomain.RoleOwner, ownerCodes()...)

	agg, err := f.svc.Create(ctx, owner, validCreate())
	require.NoError(t, err)

	intruder := f.node.Generate()
	city := "Mumbai"
	updated, err := f.svc.Update(ctx, owner, agg.Property.ID, domain.UpdateRequest{
		OwnerID: &intruder,
		City:    &city,
	})
	require.NoError(t, err, "request succeeds for the allowed fields")

	assert.Equal(t, "Mumbai", updated.Property.City)
	require.NotNil(t, updated.Property.OwnerID)
	assert.Equal(t, owner.UserID, *updated.Property.OwnerID, "owner slot must be untouched")
}

func TestUpdate_NothingToUpdate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.user(t, identitydomain.RoleOwner, ownerCodes()...)

	agg, err := f.svc.Create(ctx, owner, validCreate())
	require.NoError(t, err)

	_, err = f.svc.Update(ctx, owner, agg.Property.ID, domain.UpdateRequest{})
	assert.True(t, apperr.IsValidation(err))

	// A write that only touches protected fields is still nothing.
	other := f.node.Generate()
	_, err = f.svc.Update(ctx, owner, agg.Property.ID, domain.UpdateRequest{OwnerID: &other})
	assert.True(t, apperr.IsValidation(err))
}

func TestUpdate_OutOfScopeReadsAsNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.user(t, identitydomain.RoleOwner, ownerCodes()...)
	rival := f.user(t, identitydomain.RoleOwner)

	agg, err := f.svc.Create(ctx, owner, validCreate())
	require.NoError(t, err)

	city := "Nashik"
	_, err = f.svc.Update(ctx, rival, agg.Property.ID, domain.UpdateRequest{City: &city})
	require.Error(t, err)
	assert.True(t, apperr.IsNotFound(err), "existence must not leak as forbidden")
}

func TestUpdate_AdminSeesEverything(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.user(t, identitydomain.RoleOwner, ownerCodes()...)
	admin := f.user(t, identitydomain.RoleAdmin, ownerCodes()...)

	agg, err := f.svc.Create(ctx, owner, validCreate())
	require.NoError(t, err)

	city := "Nagpur"
	updated, err := f.svc.Update(ctx, admin, agg.Property.ID, domain.UpdateRequest{City: &city})
	require.NoError(t, err)
	assert.Equal(t, "Nagpur", updated.Property.City)
}

func TestUpdate_AmenityReplacementIsWholesale(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.user(t, identitydomain.RoleOwner, ownerCodes()...)

	a1 := f.amenity(t, "pool", true)
	a2 := f.amenity(t, "gym", true)
	a3 := f.amenity(t, "park", true)

	req := validCreate()
	req.AmenityIDs = []snowflake.ID{a1.ID, a2.ID}
	agg, err := f.svc.Create(ctx, owner, req)
	require.NoError(t, err)

	newSet := []snowflake.ID{a3.ID}
	updated, err := f.svc.Update(ctx, owner, agg.Property.ID, domain.UpdateRequest{AmenityIDs: &newSet})
	require.NoError(t, err)
	require.Len(t, updated.Amenities, 1)
	assert.Equal(t, a3.ID, updated.Amenities[0].ID)

	var auditRows []auditdomain.AuditLog
	require.NoError(t, f.db.
		Where("entity_type = ? AND operation = ?", "property", auditdomain.OperationUpdate).
		Find(&auditRows).Error)
	require.Len(t, auditRows, 1)
	assert.Contains(t, string(auditRows[0].OldValue), "amenity_ids")
	assert.Contains(t, string(auditRows[0].NewValue), "amenity_ids")
}

func TestSoftDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.user(t, identitydomain.RoleOwner, ownerCodes()...)

	agg, err := f.svc.Create(ctx, owner, validCreate())
	require.NoError(t, err)

	require.NoError(t, f.svc.SoftDelete(ctx, owner, agg.Property.ID))

	_, err = f.svc.GetAggregate(ctx, owner, agg.Property.ID)
	assert.True(t, apperr.IsNotFound(err))

	var row domain.Property
	require.NoError(t, f.db.First(&row, "id = ?", agg.Property.ID).Error)
	assert.False(t, row.IsActive, "soft delete keeps the row")

	var deleteRows int64
	require.NoError(t, f.db.Model(&auditdomain.AuditLog{}).
		Where("operation = ?", auditdomain.OperationDelete).
		Count(&deleteRows).Error)
	assert.EqualValues(t, 1, deleteRows)
}

func TestOperationsWriteRequestLog(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.user(t, identitydomain.RoleOwner, ownerCodes()...)

	_, err := f.svc.Create(ctx, owner, validCreate())
	require.NoError(t, err)

	badReq := validCreate()
	badReq.City = ""
	_, err = f.svc.Create(ctx, owner, badReq)
	require.Error(t, err)

	var rows []requestlogdomain.RequestLog
	require.NoError(t, f.db.Where("action = ?", "property.create").Order("id").Find(&rows).Error)
	require.Len(t, rows, 2)
	assert.Equal(t, requestlogdomain.OutcomeSuccess, rows[0].Outcome)
	assert.Equal(t, requestlogdomain.OutcomeFailure, rows[1].Outcome)
	assert.Equal(t, "validation_error", rows[1].Reason)
}
