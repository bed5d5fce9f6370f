package service

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/propbase/propbase/internal/actor"
	"github.com/propbase/propbase/internal/apperr"
	assignmentdomain "github.com/propbase/propbase/internal/assignment/domain"
	auditdomain "github.com/propbase/propbase/internal/audit/domain"
	"github.com/propbase/propbase/internal/authorization"
	identitydomain "github.com/propbase/propbase/internal/identity/domain"
	"github.com/propbase/propbase/internal/notify"
	"github.com/propbase/propbase/internal/property/domain"
	requestlogdomain "github.com/propbase/propbase/internal/requestlog/domain"
	"github.com/propbase/propbase/pkg/db"
	"github.com/propbase/propbase/pkg/telemetry"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const entityTypeProperty = "property"

const (
	defaultListLimit = 50
	maxListLimit     = 250
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Repo     domain.Repository
	Users    identitydomain.Repository
	Authz    authorization.Service
	Audit    auditdomain.Recorder
	Balancer assignmentdomain.Balancer
	Emitter  notify.Emitter
	ReqLog   requestlogdomain.Recorder
	Metrics  *telemetry.Metrics `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	repo     domain.Repository
	users    identitydomain.Repository
	authz    authorization.Service
	audit    auditdomain.Recorder
	balancer assignmentdomain.Balancer
	emitter  notify.Emitter
	reqlog   requestlogdomain.Recorder
	metrics  *telemetry.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("property.service"),
		genID:    p.GenID,
		repo:     p.Repo,
		users:    p.Users,
		authz:    p.Authz,
		audit:    p.Audit,
		balancer: p.Balancer,
		emitter:  p.Emitter,
		reqlog:   p.ReqLog,
		metrics:  p.Metrics,
	}
}

func (s *Service) Create(ctx context.Context, act actor.Actor, req domain.CreateRequest) (*domain.Aggregate, error) {
	started := time.Now().UTC()
	agg, err := s.create(ctx, act, req)
	s.finish(ctx, act, "property.create", started, err, func() snowflake.ID { return agg.Property.ID })
	if err != nil {
		s.metrics.ObserveMutation(entityTypeProperty, "create", "error")
		return nil, err
	}
	s.metrics.ObserveMutation(entityTypeProperty, "create", "ok")
	s.emit(ctx, notify.EventPropertyCreated, agg.Property.ID, act)
	return agg, nil
}

func (s *Service) create(ctx context.Context, act actor.Actor, req domain.CreateRequest) (*domain.Aggregate, error) {
	if err := s.authz.Authorize(ctx, act, authorization.ModeAll, authorization.PropertyCreate); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.City) == "" {
		return nil, apperr.Validation("city is required")
	}
	if strings.TrimSpace(req.State) == "" {
		return nil, apperr.Validation("state is required")
	}

	ownerID, brokerID, err := resolveHolderSlot(act, req)
	if err != nil {
		return nil, err
	}
	connectivity, err := parseConnectivity(req.Connectivity)
	if err != nil {
		return nil, err
	}
	if err := validateMediaInputs(req.Media); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	p := &domain.Property{
		ID:                 s.genID.Generate(),
		OwnerID:            ownerID,
		BrokerID:           brokerID,
		CaretakerID:        req.CaretakerID,
		PropertyName:       req.PropertyName,
		PropertyType:       req.PropertyType,
		Description:        req.Description,
		AddressLine:        req.AddressLine,
		City:               req.City,
		State:              req.State,
		Pincode:            req.Pincode,
		RegistrationNumber: req.RegistrationNumber,
		Price:              req.Price,
		AreaSqft:           req.AreaSqft,
		Bedrooms:           req.Bedrooms,
		Bathrooms:          req.Bathrooms,
		FurnishingStatus:   req.FurnishingStatus,
		PossessionStatus:   req.PossessionStatus,
		AgeYears:           req.AgeYears,
		FloorNumber:        req.FloorNumber,
		TotalFloors:        req.TotalFloors,
		FacingDirection:    req.FacingDirection,
		MaintenanceCharge:  req.MaintenanceCharge,
		IsActive:           true,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if !act.IsZero() {
		creator := act.UserID
		p.CreatedBy = &creator
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if role := act.PrimaryRole(); role != identitydomain.RoleOwner && role != identitydomain.RoleBroker {
			if err := s.validateHolder(ctx, tx, "owner", ownerID); err != nil {
				return err
			}
			if err := s.validateHolder(ctx, tx, "broker", brokerID); err != nil {
				return err
			}
		}
		if err := s.validateCaretaker(ctx, tx, req.CaretakerID); err != nil {
			return err
		}
		if err := s.validateAmenities(ctx, tx, req.AmenityIDs); err != nil {
			return err
		}

		salesID, err := s.balancer.PickLeastLoaded(ctx, tx)
		if err != nil {
			return err
		}
		p.SalesID = salesID

		if err := s.repo.Insert(ctx, tx, p); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return apperr.Conflict("registration number already in use")
			}
			return err
		}

		links := make([]domain.PropertyAmenity, 0, len(req.AmenityIDs))
		for _, amenityID := range req.AmenityIDs {
			links = append(links, domain.PropertyAmenity{
				ID:         s.genID.Generate(),
				PropertyID: p.ID,
				AmenityID:  amenityID,
			})
		}
		if err := s.repo.InsertPropertyAmenities(ctx, tx, links); err != nil {
			return err
		}

		if err := s.repo.InsertMedia(ctx, tx, s.mediaRows(p.ID, req.Media, now)); err != nil {
			return err
		}
		if err := s.repo.InsertCertifications(ctx, tx, s.certificationRows(p.ID, req.Certifications, now)); err != nil {
			return err
		}
		for i := range connectivity {
			connectivity[i].ID = s.genID.Generate()
			connectivity[i].PropertyID = p.ID
			connectivity[i].CreatedAt = now
		}
		if err := s.repo.InsertConnectivity(ctx, tx, connectivity); err != nil {
			return err
		}

		newRecord := propertyToMap(p)
		newRecord["amenity_ids"] = req.AmenityIDs
		return s.audit.RecordInsert(ctx, tx, act, entityTypeProperty, p.ID, newRecord)
	})
	if err != nil {
		return nil, err
	}

	return s.loadAggregate(ctx, p)
}

func (s *Service) Update(ctx context.Context, act actor.Actor, propertyID snowflake.ID, req domain.UpdateRequest) (*domain.Aggregate, error) {
	started := time.Now().UTC()
	agg, err := s.update(ctx, act, propertyID, req)
	s.finish(ctx, act, "property.update", started, err, func() snowflake.ID { return propertyID })
	if err != nil {
		s.metrics.ObserveMutation(entityTypeProperty, "update", "error")
		return nil, err
	}
	s.metrics.ObserveMutation(entityTypeProperty, "update", "ok")
	s.emit(ctx, notify.EventPropertyUpdated, propertyID, act)
	return agg, nil
}

func (s *Service) update(ctx context.Context, act actor.Actor, propertyID snowflake.ID, req domain.UpdateRequest) (*domain.Aggregate, error) {
	if err := s.authz.Authorize(ctx, act, authorization.ModeAll, authorization.PropertyUpdate); err != nil {
		return nil, err
	}

	if req.OwnerID != nil || req.BrokerID != nil || req.PropertyID != nil {
		s.log.Warn("ignoring write to protected fields",
			zap.Int64("property_id", int64(propertyID)),
			zap.Int64("user_id", int64(act.UserID)),
			zap.Bool("owner_id", req.OwnerID != nil),
			zap.Bool("broker_id", req.BrokerID != nil),
			zap.Bool("property_id", req.PropertyID != nil),
		)
	}

	patch := buildPatch(req)
	if err := validateMediaInputs(req.Media); err != nil {
		return nil, err
	}
	if len(patch) == 0 && req.AmenityIDs == nil && len(req.Media) == 0 {
		return nil, apperr.Validation("nothing to update")
	}

	scope := visibilityOf(act)
	var updated *domain.Property

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := s.repo.FindScoped(ctx, tx, propertyID, scope)
		if err != nil {
			return err
		}
		if row == nil {
			return apperr.NotFound("property not found")
		}

		if caretaker, ok := patch["caretaker_id"]; ok {
			id := caretaker.(snowflake.ID)
			if err := s.validateCaretaker(ctx, tx, &id); err != nil {
				return err
			}
		}

		oldRecord := propertyToMap(row)
		auditPatch := make(map[string]any, len(patch)+2)
		for k, v := range patch {
			auditPatch[k] = v
		}

		if req.AmenityIDs != nil {
			newIDs := *req.AmenityIDs
			if err := s.validateAmenities(ctx, tx, newIDs); err != nil {
				return err
			}
			oldAmenities, err := s.repo.AmenitiesOf(ctx, tx, propertyID)
			if err != nil {
				return err
			}
			oldIDs := make([]snowflake.ID, 0, len(oldAmenities))
			for _, a := range oldAmenities {
				oldIDs = append(oldIDs, a.ID)
			}
			oldRecord["amenity_ids"] = oldIDs
			auditPatch["amenity_ids"] = newIDs

			if err := s.repo.DeletePropertyAmenities(ctx, tx, propertyID); err != nil {
				return err
			}
			links := make([]domain.PropertyAmenity, 0, len(newIDs))
			for _, amenityID := range newIDs {
				links = append(links, domain.PropertyAmenity{
					ID:         s.genID.Generate(),
					PropertyID: propertyID,
					AmenityID:  amenityID,
				})
			}
			if err := s.repo.InsertPropertyAmenities(ctx, tx, links); err != nil {
				return err
			}
		}

		now := time.Now().UTC()
		if len(patch) > 0 {
			patch["updated_at"] = now
			if _, err := s.repo.UpdateFields(ctx, tx, propertyID, patch); err != nil {
				if db.IsDuplicateKeyErr(err) {
					return apperr.Conflict("registration number already in use")
				}
				return err
			}
		}

		if len(req.Media) > 0 {
			if err := s.repo.InsertMedia(ctx, tx, s.mediaRows(propertyID, req.Media, now)); err != nil {
				return err
			}
			urls := make([]string, 0, len(req.Media))
			for _, m := range req.Media {
				urls = append(urls, m.URL)
			}
			auditPatch["media_added"] = urls
		}

		if err := s.audit.RecordUpdate(ctx, tx, act, entityTypeProperty, propertyID, oldRecord, auditPatch); err != nil {
			return err
		}

		updated, err = s.repo.FindScoped(ctx, tx, propertyID, scope)
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.loadAggregate(ctx, updated)
}

func (s *Service) GetAggregate(ctx context.Context, act actor.Actor, propertyID snowflake.ID) (*domain.Aggregate, error) {
	if err := s.authz.Authorize(ctx, act, authorization.ModeAll, authorization.PropertyView); err != nil {
		return nil, err
	}
	row, err := s.repo.FindScoped(ctx, s.db, propertyID, visibilityOf(act))
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if row == nil {
		return nil, apperr.NotFound("property not found")
	}
	return s.loadAggregate(ctx, row)
}

func (s *Service) List(ctx context.Context, act actor.Actor, req domain.ListRequest) ([]domain.Property, error) {
	if err := s.authz.Authorize(ctx, act, authorization.ModeAll, authorization.PropertyView); err != nil {
		return nil, err
	}
	if req.Limit <= 0 {
		req.Limit = defaultListLimit
	}
	if req.Limit > maxListLimit {
		req.Limit = maxListLimit
	}
	out, err := s.repo.ListScoped(ctx, s.db, visibilityOf(act), req)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return out, nil
}

func (s *Service) SoftDelete(ctx context.Context, act actor.Actor, propertyID snowflake.ID) error {
	started := time.Now().UTC()
	err := s.softDelete(ctx, act, propertyID)
	s.finish(ctx, act, "property.delete", started, err, func() snowflake.ID { return propertyID })
	if err != nil {
		s.metrics.ObserveMutation(entityTypeProperty, "delete", "error")
		return err
	}
	s.metrics.ObserveMutation(entityTypeProperty, "delete", "ok")
	s.emit(ctx, notify.EventPropertyDeleted, propertyID, act)
	return nil
}

func (s *Service) softDelete(ctx context.Context, act actor.Actor, propertyID snowflake.ID) error {
	if err := s.authz.Authorize(ctx, act, authorization.ModeAll, authorization.PropertyDelete); err != nil {
		return err
	}
	scope := visibilityOf(act)

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := s.repo.FindScoped(ctx, tx, propertyID, scope)
		if err != nil {
			return err
		}
		if row == nil {
			return apperr.NotFound("property not found")
		}

		if _, err := s.repo.UpdateFields(ctx, tx, propertyID, map[string]any{
			"is_active":  false,
			"updated_at": time.Now().UTC(),
		}); err != nil {
			return err
		}
		return s.audit.RecordDelete(ctx, tx, act, entityTypeProperty, propertyID, propertyToMap(row))
	})
}

// resolveHolderSlot maps the actor's primary role onto the owner/broker
// slot. Owner and broker actors always occupy their own slot; admins
// name the holder explicitly, exactly one of the two.
func resolveHolderSlot(act actor.Actor, req domain.CreateRequest) (*snowflake.ID, *snowflake.ID, error) {
	switch act.PrimaryRole() {
	case identitydomain.RoleOwner:
		id := act.UserID
		return &id, nil, nil
	case identitydomain.RoleBroker:
		id := act.UserID
		return nil, &id, nil
	default:
		if (req.OwnerID == nil) == (req.BrokerID == nil) {
			return nil, nil, apperr.Validation("exactly one of owner_id or broker_id must be set")
		}
		return req.OwnerID, req.BrokerID, nil
	}
}

// visibilityOf returns the row scope for the actor: admins see all
// active rows, everyone else only rows where they hold the owner or
// broker slot. Out-of-scope rows read as not found, never forbidden.
func visibilityOf(act actor.Actor) domain.Scope {
	return domain.Scope{
		Unrestricted: act.HasRole(identitydomain.RoleAdmin) || act.HasRole(identitydomain.RoleSuperAdmin),
		UserID:       act.UserID,
	}
}

func parseConnectivity(inputs []domain.ConnectivityInput) ([]domain.Connectivity, error) {
	rows := make([]domain.Connectivity, 0, len(inputs))
	for _, in := range inputs {
		if strings.TrimSpace(in.ConnectivityType) == "" {
			return nil, apperr.Validation("connectivity entry is missing a type")
		}
		row := domain.Connectivity{
			ConnectivityType: in.ConnectivityType,
			Name:             in.Name,
		}
		if in.DistanceKm != "" {
			km, err := strconv.ParseFloat(in.DistanceKm, 64)
			if err != nil {
				return nil, apperr.Validation("invalid distance %q for connectivity %q", in.DistanceKm, in.ConnectivityType)
			}
			row.DistanceKm = &km
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func validateMediaInputs(inputs []domain.MediaInput) error {
	for _, in := range inputs {
		if in.MediaType != domain.MediaTypePhoto && in.MediaType != domain.MediaTypeVideo {
			return apperr.Validation("unknown media type %q", in.MediaType)
		}
		if strings.TrimSpace(in.URL) == "" {
			return apperr.Validation("media entry is missing a url")
		}
	}
	return nil
}

// validateHolder requires a request-named owner or broker to be an
// existing active user. Owners and brokers landing in their own slot
// skip this; their row was already checked when the identity resolved.
func (s *Service) validateHolder(ctx context.Context, tx *gorm.DB, slot string, holderID *snowflake.ID) error {
	if holderID == nil {
		return nil
	}
	user, err := s.users.FindUserByID(ctx, tx, *holderID)
	if err != nil {
		return err
	}
	if user == nil || !user.IsActive {
		return apperr.Validation("%s %d not found or inactive", slot, *holderID)
	}
	return nil
}

func (s *Service) validateCaretaker(ctx context.Context, tx *gorm.DB, caretakerID *snowflake.ID) error {
	if caretakerID == nil {
		return nil
	}
	user, err := s.users.FindUserByID(ctx, tx, *caretakerID)
	if err != nil {
		return err
	}
	if user == nil || !user.IsActive {
		return apperr.Validation("caretaker %d not found or inactive", *caretakerID)
	}
	return nil
}

// validateAmenities requires every referenced amenity to exist and be
// active; a single bad reference fails the whole set.
func (s *Service) validateAmenities(ctx context.Context, tx *gorm.DB, ids []snowflake.ID) error {
	if len(ids) == 0 {
		return nil
	}
	found, err := s.repo.FindAmenitiesByIDs(ctx, tx, ids)
	if err != nil {
		return err
	}
	byID := make(map[snowflake.ID]domain.Amenity, len(found))
	for _, a := range found {
		byID[a.ID] = a
	}
	for _, id := range ids {
		a, ok := byID[id]
		if !ok || !a.IsActive {
			return apperr.Validation("amenity %d not found or inactive", id)
		}
	}
	return nil
}

func (s *Service) mediaRows(propertyID snowflake.ID, inputs []domain.MediaInput, now time.Time) []domain.Media {
	rows := make([]domain.Media, 0, len(inputs))
	for _, in := range inputs {
		rows = append(rows, domain.Media{
			ID:         s.genID.Generate(),
			PropertyID: propertyID,
			MediaType:  in.MediaType,
			URL:        in.URL,
			CreatedAt:  now,
		})
	}
	return rows
}

func (s *Service) certificationRows(propertyID snowflake.ID, in *domain.CertificationInput, now time.Time) []domain.Certification {
	if in == nil {
		return nil
	}
	var rows []domain.Certification
	add := func(certType string, detail datatypes.JSON) {
		rows = append(rows, domain.Certification{
			ID:                s.genID.Generate(),
			PropertyID:        propertyID,
			CertificationType: certType,
			Detail:            detail,
			CreatedAt:         now,
		})
	}
	if in.Rera {
		add(domain.CertificationRera, nil)
	}
	if in.Leed {
		add(domain.CertificationLeed, nil)
	}
	if in.Igbc {
		add(domain.CertificationIgbc, nil)
	}
	if len(in.Others) > 0 {
		detail, err := json.Marshal(in.Others)
		if err == nil {
			add(domain.CertificationOthers, detail)
		}
	}
	return rows
}

func (s *Service) loadAggregate(ctx context.Context, p *domain.Property) (*domain.Aggregate, error) {
	amenities, err := s.repo.AmenitiesOf(ctx, s.db, p.ID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	media, err := s.repo.MediaOf(ctx, s.db, p.ID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	certs, err := s.repo.CertificationsOf(ctx, s.db, p.ID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	connectivity, err := s.repo.ConnectivityOf(ctx, s.db, p.ID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return &domain.Aggregate{
		Property:     *p,
		Amenities:    amenities,
		Media:        media,
		Certs:        certs,
		Connectivity: connectivity,
	}, nil
}

func (s *Service) emit(ctx context.Context, name string, propertyID snowflake.ID, act actor.Actor) {
	event := notify.Event{
		Name:       name,
		PropertyID: propertyID,
		IPAddress:  act.IPAddress,
		UserAgent:  act.UserAgent,
		OccurredAt: time.Now().UTC(),
	}
	if !act.IsZero() {
		id := act.UserID
		event.ActorID = &id
	}
	s.emitter.Emit(ctx, event)
}

func (s *Service) finish(ctx context.Context, act actor.Actor, action string, started time.Time, err error, recordID func() snowflake.ID) {
	detail := map[string]any{}
	if err == nil && recordID != nil {
		detail["property_id"] = recordID().String()
	}
	s.reqlog.Record(ctx, requestlogdomain.Entry{
		Action:  action,
		Actor:   act,
		Err:     err,
		Started: started,
		Detail:  detail,
	})
}

// buildPatch maps the non-nil allow-listed request fields onto column
// names. Protected fields never enter the patch.
func buildPatch(req domain.UpdateRequest) map[string]any {
	patch := map[string]any{}
	if req.CaretakerID != nil {
		patch["caretaker_id"] = *req.CaretakerID
	}
	setStr := func(col string, v *string) {
		if v != nil {
			patch[col] = *v
		}
	}
	setF64 := func(col string, v *float64) {
		if v != nil {
			patch[col] = *v
		}
	}
	setInt := func(col string, v *int) {
		if v != nil {
			patch[col] = *v
		}
	}
	setStr("property_name", req.PropertyName)
	setStr("property_type", req.PropertyType)
	setStr("description", req.Description)
	setStr("address_line", req.AddressLine)
	setStr("city", req.City)
	setStr("state", req.State)
	setStr("pincode", req.Pincode)
	setStr("registration_number", req.RegistrationNumber)
	setF64("price", req.Price)
	setF64("area_sqft", req.AreaSqft)
	setInt("bedrooms", req.Bedrooms)
	setInt("bathrooms", req.Bathrooms)
	setStr("furnishing_status", req.FurnishingStatus)
	setStr("possession_status", req.PossessionStatus)
	setInt("age_years", req.AgeYears)
	setInt("floor_number", req.FloorNumber)
	setInt("total_floors", req.TotalFloors)
	setStr("facing_direction", req.FacingDirection)
	setF64("maintenance_charge", req.MaintenanceCharge)
	return patch
}

// propertyToMap flattens the root row for audit old/new values. Pointer
// fields flatten to their value or nil so delta comparison sees the
// same concrete types a patch carries.
func propertyToMap(p *domain.Property) map[string]any {
	return map[string]any{
		"id":                  p.ID,
		"owner_id":            idValue(p.OwnerID),
		"broker_id":           idValue(p.BrokerID),
		"sales_id":            idValue(p.SalesID),
		"caretaker_id":        idValue(p.CaretakerID),
		"property_name":       p.PropertyName,
		"property_type":       p.PropertyType,
		"description":         p.Description,
		"address_line":        p.AddressLine,
		"city":                p.City,
		"state":               p.State,
		"pincode":             p.Pincode,
		"registration_number": p.RegistrationNumber,
		"price":               f64Value(p.Price),
		"area_sqft":           f64Value(p.AreaSqft),
		"bedrooms":            intValue(p.Bedrooms),
		"bathrooms":           intValue(p.Bathrooms),
		"furnishing_status":   p.FurnishingStatus,
		"possession_status":   p.PossessionStatus,
		"age_years":           intValue(p.AgeYears),
		"floor_number":        intValue(p.FloorNumber),
		"total_floors":        intValue(p.TotalFloors),
		"facing_direction":    p.FacingDirection,
		"maintenance_charge":  f64Value(p.MaintenanceCharge),
		"is_active":           p.IsActive,
	}
}

func idValue(p *snowflake.ID) any {
	if p == nil {
		return nil
	}
	return *p
}

func f64Value(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}

func intValue(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}
