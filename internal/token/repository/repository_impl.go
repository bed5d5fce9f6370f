package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/propbase/propbase/internal/token/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, token *domain.Token) error {
	return db.WithContext(ctx).Create(token).Error
}

func (r *repo) FindByRefreshToken(ctx context.Context, db *gorm.DB, raw string) (*domain.Token, error) {
	var token domain.Token
	err := db.WithContext(ctx).Where("refresh_token = ?", raw).First(&token).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &token, nil
}

func (r *repo) FindActiveByUserDevice(ctx context.Context, db *gorm.DB, userID snowflake.ID, deviceID string) (*domain.Token, error) {
	var token domain.Token
	err := db.WithContext(ctx).
		Where("user_id = ? AND device_id = ? AND is_active = ?", userID, deviceID, true).
		Order("created_at desc").
		First(&token).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &token, nil
}

func (r *repo) UpdateFields(ctx context.Context, db *gorm.DB, id snowflake.ID, fields map[string]any) (int64, error) {
	tx := db.WithContext(ctx).Model(&domain.Token{}).Where("id = ?", id).Updates(fields)
	return tx.RowsAffected, tx.Error
}

func (r *repo) RevokeByRefreshToken(ctx context.Context, db *gorm.DB, raw, reason string) (int64, error) {
	tx := db.WithContext(ctx).Model(&domain.Token{}).
		Where("refresh_token = ? AND is_active = ?", raw, true).
		Updates(map[string]any{
			"is_active":         false,
			"revocation_reason": reason,
			"updated_at":        time.Now().UTC(),
		})
	return tx.RowsAffected, tx.Error
}

func (r *repo) RevokeAllForUser(ctx context.Context, db *gorm.DB, userID snowflake.ID, reason string) (int64, error) {
	tx := db.WithContext(ctx).Model(&domain.Token{}).
		Where("user_id = ? AND is_active = ?", userID, true).
		Updates(map[string]any{
			"is_active":         false,
			"revocation_reason": reason,
			"updated_at":        time.Now().UTC(),
		})
	return tx.RowsAffected, tx.Error
}
