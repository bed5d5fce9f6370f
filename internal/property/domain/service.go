package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/propbase/propbase/internal/actor"
	"gorm.io/gorm"
)

// MediaInput references an already-uploaded file.
type MediaInput struct {
	MediaType string `json:"media_type"`
	URL       string `json:"url"`
}

// ConnectivityInput arrives with the distance as a string and is parsed
// during validation.
type ConnectivityInput struct {
	ConnectivityType string `json:"connectivity_type"`
	Name             string `json:"name,omitempty"`
	DistanceKm       string `json:"distance_km,omitempty"`
}

// CertificationInput is the request-shape certification block.
type CertificationInput struct {
	Rera   bool     `json:"rera,omitempty"`
	Leed   bool     `json:"leed,omitempty"`
	Igbc   bool     `json:"igbc,omitempty"`
	Others []string `json:"others,omitempty"`
}

// CreateRequest is the flat create payload plus child inputs. OwnerID
// and BrokerID are honored only for admin callers; owner and broker
// actors always land in their own slot.
type CreateRequest struct {
	OwnerID            *snowflake.ID       `json:"owner_id,omitempty"`
	BrokerID           *snowflake.ID       `json:"broker_id,omitempty"`
	CaretakerID        *snowflake.ID       `json:"caretaker_id,omitempty"`
	PropertyName       string              `json:"property_name"`
	PropertyType       string              `json:"property_type"`
	Description        string              `json:"description,omitempty"`
	AddressLine        string              `json:"address_line,omitempty"`
	City               string              `json:"city"`
	State              string              `json:"state"`
	Pincode            string              `json:"pincode,omitempty"`
	RegistrationNumber string              `json:"registration_number,omitempty"`
	Price              *float64            `json:"price,omitempty"`
	AreaSqft           *float64            `json:"area_sqft,omitempty"`
	Bedrooms           *int                `json:"bedrooms,omitempty"`
	Bathrooms          *int                `json:"bathrooms,omitempty"`
	FurnishingStatus   string              `json:"furnishing_status,omitempty"`
	PossessionStatus   string              `json:"possession_status,omitempty"`
	AgeYears           *int                `json:"age_years,omitempty"`
	FloorNumber        *int                `json:"floor_number,omitempty"`
	TotalFloors        *int                `json:"total_floors,omitempty"`
	FacingDirection    string              `json:"facing_direction,omitempty"`
	MaintenanceCharge  *float64            `json:"maintenance_charge,omitempty"`
	AmenityIDs         []snowflake.ID      `json:"amenity_ids,omitempty"`
	Media              []MediaInput        `json:"media,omitempty"`
	Certifications     *CertificationInput `json:"certifications,omitempty"`
	Connectivity       []ConnectivityInput `json:"connectivity,omitempty"`
}

// UpdateRequest carries the mutable field patch. Nil pointers mean
// "unchanged". OwnerID, BrokerID, and PropertyID are protected: values
// arriving here are dropped with a warning, never applied.
type UpdateRequest struct {
	OwnerID    *snowflake.ID `json:"owner_id,omitempty"`
	BrokerID   *snowflake.ID `json:"broker_id,omitempty"`
	PropertyID *snowflake.ID `json:"property_id,omitempty"`

	CaretakerID        *snowflake.ID `json:"caretaker_id,omitempty"`
	PropertyName       *string       `json:"property_name,omitempty"`
	PropertyType       *string       `json:"property_type,omitempty"`
	Description        *string       `json:"description,omitempty"`
	AddressLine        *string       `json:"address_line,omitempty"`
	City               *string       `json:"city,omitempty"`
	State              *string       `json:"state,omitempty"`
	Pincode            *string       `json:"pincode,omitempty"`
	RegistrationNumber *string       `json:"registration_number,omitempty"`
	Price              *float64      `json:"price,omitempty"`
	AreaSqft           *float64      `json:"area_sqft,omitempty"`
	Bedrooms           *int          `json:"bedrooms,omitempty"`
	Bathrooms          *int          `json:"bathrooms,omitempty"`
	FurnishingStatus   *string       `json:"furnishing_status,omitempty"`
	PossessionStatus   *string       `json:"possession_status,omitempty"`
	AgeYears           *int          `json:"age_years,omitempty"`
	FloorNumber        *int          `json:"floor_number,omitempty"`
	TotalFloors        *int          `json:"total_floors,omitempty"`
	FacingDirection    *string       `json:"facing_direction,omitempty"`
	MaintenanceCharge  *float64      `json:"maintenance_charge,omitempty"`

	AmenityIDs *[]snowflake.ID `json:"amenity_ids,omitempty"`
	Media      []MediaInput    `json:"media,omitempty"`
}

// ListRequest scopes and pages the listing query.
type ListRequest struct {
	City   string
	State  string
	Limit  int
	Offset int
}

// Service is the aggregate mutation orchestrator. Every mutating call
// authorizes first, then runs all writes and the audit entry in one
// transaction; events fire only after commit.
type Service interface {
	Create(ctx context.Context, act actor.Actor, req CreateRequest) (*Aggregate, error)
	Update(ctx context.Context, act actor.Actor, propertyID snowflake.ID, req UpdateRequest) (*Aggregate, error)
	GetAggregate(ctx context.Context, act actor.Actor, propertyID snowflake.ID) (*Aggregate, error)
	List(ctx context.Context, act actor.Actor, req ListRequest) ([]Property, error)
	SoftDelete(ctx context.Context, act actor.Actor, propertyID snowflake.ID) error
}

// Scope restricts which property rows an actor can see. Unrestricted
// actors (admin, super admin) see everything active; everyone else
// sees rows where they hold the owner or broker slot.
type Scope struct {
	Unrestricted bool
	UserID       snowflake.ID
}

// Repository is the storage port for the aggregate. Every method takes
// the database handle so calls compose into a caller-owned transaction.
type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, p *Property) error
	FindScoped(ctx context.Context, db *gorm.DB, id snowflake.ID, scope Scope) (*Property, error)
	ListScoped(ctx context.Context, db *gorm.DB, scope Scope, req ListRequest) ([]Property, error)
	UpdateFields(ctx context.Context, db *gorm.DB, id snowflake.ID, fields map[string]any) (int64, error)

	FindAmenitiesByIDs(ctx context.Context, db *gorm.DB, ids []snowflake.ID) ([]Amenity, error)
	AmenitiesOf(ctx context.Context, db *gorm.DB, propertyID snowflake.ID) ([]Amenity, error)
	InsertPropertyAmenities(ctx context.Context, db *gorm.DB, rows []PropertyAmenity) error
	DeletePropertyAmenities(ctx context.Context, db *gorm.DB, propertyID snowflake.ID) error

	InsertMedia(ctx context.Context, db *gorm.DB, rows []Media) error
	MediaOf(ctx context.Context, db *gorm.DB, propertyID snowflake.ID) ([]Media, error)

	InsertCertifications(ctx context.Context, db *gorm.DB, rows []Certification) error
	CertificationsOf(ctx context.Context, db *gorm.DB, propertyID snowflake.ID) ([]Certification, error)

	InsertConnectivity(ctx context.Context, db *gorm.DB, rows []Connectivity) error
	ConnectivityOf(ctx context.Context, db *gorm.DB, propertyID snowflake.ID) ([]Connectivity, error)
}
