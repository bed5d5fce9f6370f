// Package domain contains the property aggregate: the root listing row
// and its owned child collections. Children are only ever written as
// part of a property-scoped transaction.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Property is the aggregate root. Exactly one of OwnerID/BrokerID is
// set at any time; SalesID is the assigned internal handler and may be
// empty. Rows are soft-deleted via IsActive.
type Property struct {
	ID                 snowflake.ID  `gorm:"primaryKey" json:"id"`
	OwnerID            *snowflake.ID `gorm:"column:owner_id;index" json:"owner_id,omitempty"`
	BrokerID           *snowflake.ID `gorm:"column:broker_id;index" json:"broker_id,omitempty"`
	SalesID            *snowflake.ID `gorm:"column:sales_id;index" json:"sales_id,omitempty"`
	CaretakerID        *snowflake.ID `gorm:"column:caretaker_id" json:"caretaker_id,omitempty"`
	PropertyName       string        `gorm:"column:property_name" json:"property_name,omitempty"`
	PropertyType       string        `gorm:"column:property_type" json:"property_type,omitempty"`
	Description        string        `gorm:"column:description;type:text" json:"description,omitempty"`
	AddressLine        string        `gorm:"column:address_line" json:"address_line,omitempty"`
	City               string        `gorm:"column:city;not null;index" json:"city"`
	State              string        `gorm:"column:state;not null;index" json:"state"`
	Pincode            string        `gorm:"column:pincode" json:"pincode,omitempty"`
	RegistrationNumber string        `gorm:"column:registration_number;uniqueIndex" json:"registration_number,omitempty"`
	Price              *float64      `gorm:"column:price" json:"price,omitempty"`
	AreaSqft           *float64      `gorm:"column:area_sqft" json:"area_sqft,omitempty"`
	Bedrooms           *int          `gorm:"column:bedrooms" json:"bedrooms,omitempty"`
	Bathrooms          *int          `gorm:"column:bathrooms" json:"bathrooms,omitempty"`
	FurnishingStatus   string        `gorm:"column:furnishing_status" json:"furnishing_status,omitempty"`
	PossessionStatus   string        `gorm:"column:possession_status" json:"possession_status,omitempty"`
	AgeYears           *int          `gorm:"column:age_years" json:"age_years,omitempty"`
	FloorNumber        *int          `gorm:"column:floor_number" json:"floor_number,omitempty"`
	TotalFloors        *int          `gorm:"column:total_floors" json:"total_floors,omitempty"`
	FacingDirection    string        `gorm:"column:facing_direction" json:"facing_direction,omitempty"`
	MaintenanceCharge  *float64      `gorm:"column:maintenance_charge" json:"maintenance_charge,omitempty"`
	IsActive           bool          `gorm:"column:is_active;not null;default:true" json:"is_active"`
	CreatedBy          *snowflake.ID `gorm:"column:created_by" json:"created_by,omitempty"`
	CreatedAt          time.Time     `gorm:"column:created_at;not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt          time.Time     `gorm:"column:updated_at;not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Property) TableName() string { return "properties" }

// Amenity is reference data shared across properties.
type Amenity struct {
	ID       snowflake.ID `gorm:"primaryKey" json:"id"`
	Name     string       `gorm:"column:name;not null;uniqueIndex" json:"name"`
	IsActive bool         `gorm:"column:is_active;not null;default:true" json:"is_active"`
}

// TableName sets the database table name.
func (Amenity) TableName() string { return "amenities" }

// PropertyAmenity links a property to an amenity.
type PropertyAmenity struct {
	ID         snowflake.ID `gorm:"primaryKey" json:"id"`
	PropertyID snowflake.ID `gorm:"column:property_id;not null;index:idx_property_amenities_pair" json:"property_id"`
	AmenityID  snowflake.ID `gorm:"column:amenity_id;not null;index:idx_property_amenities_pair" json:"amenity_id"`
}

// TableName sets the database table name.
func (PropertyAmenity) TableName() string { return "property_amenities" }

const (
	MediaTypePhoto = "photo"
	MediaTypeVideo = "video"
)

// Media is an uploaded photo or video reference. Upload transport is
// external; only the stored location lives here.
type Media struct {
	ID         snowflake.ID `gorm:"primaryKey" json:"id"`
	PropertyID snowflake.ID `gorm:"column:property_id;not null;index" json:"property_id"`
	MediaType  string       `gorm:"column:media_type;not null" json:"media_type"`
	URL        string       `gorm:"column:url;type:text;not null" json:"url"`
	CreatedAt  time.Time    `gorm:"column:created_at;not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (Media) TableName() string { return "property_media" }

const (
	CertificationRera   = "rera"
	CertificationLeed   = "leed"
	CertificationIgbc   = "igbc"
	CertificationOthers = "others"
)

// Certification rows are keyed by (PropertyID, CertificationType). The
// free-form "others" entries collapse into one row of type "others"
// with the values in Detail, keeping the key unique.
type Certification struct {
	ID                snowflake.ID   `gorm:"primaryKey" json:"id"`
	PropertyID        snowflake.ID   `gorm:"column:property_id;not null;uniqueIndex:idx_property_certifications_key" json:"property_id"`
	CertificationType string         `gorm:"column:certification_type;not null;uniqueIndex:idx_property_certifications_key" json:"certification_type"`
	Detail            datatypes.JSON `gorm:"column:detail" json:"detail,omitempty"`
	CreatedAt         time.Time      `gorm:"column:created_at;not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (Certification) TableName() string { return "property_certifications" }

// Connectivity is a nearby-place entry (school, station, hospital).
type Connectivity struct {
	ID               snowflake.ID `gorm:"primaryKey" json:"id"`
	PropertyID       snowflake.ID `gorm:"column:property_id;not null;index" json:"property_id"`
	ConnectivityType string       `gorm:"column:connectivity_type;not null" json:"connectivity_type"`
	Name             string       `gorm:"column:name" json:"name,omitempty"`
	DistanceKm       *float64     `gorm:"column:distance_km" json:"distance_km,omitempty"`
	CreatedAt        time.Time    `gorm:"column:created_at;not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (Connectivity) TableName() string { return "property_connectivity" }

// Aggregate is the read model: the root plus all child collections.
type Aggregate struct {
	Property     Property       `json:"property"`
	Amenities    []Amenity      `json:"amenities"`
	Media        []Media        `json:"media"`
	Certs        []Certification `json:"certifications"`
	Connectivity []Connectivity `json:"connectivity"`
}
