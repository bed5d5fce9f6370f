package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/propbase/propbase/internal/property/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, p *domain.Property) error {
	return db.WithContext(ctx).Create(p).Error
}

func scoped(q *gorm.DB, scope domain.Scope) *gorm.DB {
	q = q.Where("is_active = ?", true)
	if scope.Unrestricted {
		return q
	}
	return q.Where("owner_id = ? OR broker_id = ?", scope.UserID, scope.UserID)
}

func (r *repo) FindScoped(ctx context.Context, db *gorm.DB, id snowflake.ID, scope domain.Scope) (*domain.Property, error) {
	var p domain.Property
	err := scoped(db.WithContext(ctx).Where("id = ?", id), scope).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repo) ListScoped(ctx context.Context, db *gorm.DB, scope domain.Scope, req domain.ListRequest) ([]domain.Property, error) {
	q := scoped(db.WithContext(ctx).Model(&domain.Property{}), scope)
	if req.City != "" {
		q = q.Where("city = ?", req.City)
	}
	if req.State != "" {
		q = q.Where("state = ?", req.State)
	}
	var out []domain.Property
	err := q.Order("created_at desc").
		Limit(req.Limit).
		Offset(req.Offset).
		Find(&out).Error
	return out, err
}

func (r *repo) UpdateFields(ctx context.Context, db *gorm.DB, id snowflake.ID, fields map[string]any) (int64, error) {
	tx := db.WithContext(ctx).Model(&domain.Property{}).Where("id = ?", id).Updates(fields)
	return tx.RowsAffected, tx.Error
}

func (r *repo) FindAmenitiesByIDs(ctx context.Context, db *gorm.DB, ids []snowflake.ID) ([]domain.Amenity, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var out []domain.Amenity
	err := db.WithContext(ctx).Where("id IN ?", ids).Find(&out).Error
	return out, err
}

func (r *repo) AmenitiesOf(ctx context.Context, db *gorm.DB, propertyID snowflake.ID) ([]domain.Amenity, error) {
	var out []domain.Amenity
	err := db.WithContext(ctx).Raw(`
		SELECT a.id, a.name, a.is_active
		FROM amenities a
		JOIN property_amenities pa ON pa.amenity_id = a.id
		WHERE pa.property_id = ?
		ORDER BY a.id`, propertyID).
		Scan(&out).Error
	return out, err
}

func (r *repo) InsertPropertyAmenities(ctx context.Context, db *gorm.DB, rows []domain.PropertyAmenity) error {
	if len(rows) == 0 {
		return nil
	}
	return db.WithContext(ctx).Create(&rows).Error
}

func (r *repo) DeletePropertyAmenities(ctx context.Context, db *gorm.DB, propertyID snowflake.ID) error {
	return db.WithContext(ctx).
		Where("property_id = ?", propertyID).
		Delete(&domain.PropertyAmenity{}).Error
}

func (r *repo) InsertMedia(ctx context.Context, db *gorm.DB, rows []domain.Media) error {
	if len(rows) == 0 {
		return nil
	}
	return db.WithContext(ctx).Create(&rows).Error
}

func (r *repo) MediaOf(ctx context.Context, db *gorm.DB, propertyID snowflake.ID) ([]domain.Media, error) {
	var out []domain.Media
	err := db.WithContext(ctx).
		Where("property_id = ?", propertyID).
		Order("id").
		Find(&out).Error
	return out, err
}

func (r *repo) InsertCertifications(ctx context.Context, db *gorm.DB, rows []domain.Certification) error {
	if len(rows) == 0 {
		return nil
	}
	return db.WithContext(ctx).Create(&rows).Error
}

func (r *repo) CertificationsOf(ctx context.Context, db *gorm.DB, propertyID snowflake.ID) ([]domain.Certification, error) {
	var out []domain.Certification
	err := db.WithContext(ctx).
		Where("property_id = ?", propertyID).
		Order("certification_type").
		Find(&out).Error
	return out, err
}

func (r *repo) InsertConnectivity(ctx context.Context, db *gorm.DB, rows []domain.Connectivity) error {
	if len(rows) == 0 {
		return nil
	}
	return db.WithContext(ctx).Create(&rows).Error
}

func (r *repo) ConnectivityOf(ctx context.Context, db *gorm.DB, propertyID snowflake.ID) ([]domain.Connectivity, error) {
	var out []domain.Connectivity
	err := db.WithContext(ctx).
		Where("property_id = ?", propertyID).
		Order("id").
		Find(&out).Error
	return out, err
}
