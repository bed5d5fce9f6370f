package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Manager issues, verifies, and revokes session credentials. Access
// tokens are stateless and never persisted; refresh tokens are rows in
// the tokens table and go through the Issued → Active → Expired|Revoked
// lifecycle.
type Manager interface {
	IssueAccessToken(userID snowflake.ID, role string) (string, error)
	IssueRefreshToken(ctx context.Context, userID snowflake.ID, role string, device DeviceContext) (string, *Token, error)
	VerifyAccessToken(raw string) (*Claims, error)
	VerifyRefreshToken(ctx context.Context, raw string) (*Token, *Claims, error)
	Revoke(ctx context.Context, raw string, reason string) (int64, error)
	RevokeAll(ctx context.Context, userID snowflake.ID, reason string) (int64, error)

	Login(ctx context.Context, req LoginRequest) (*TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*TokenPair, error)
	Logout(ctx context.Context, refreshToken string) error
}

type LoginRequest struct {
	Email    string
	Password string
	Device   DeviceContext
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, token *Token) error
	FindByRefreshToken(ctx context.Context, db *gorm.DB, raw string) (*Token, error)
	FindActiveByUserDevice(ctx context.Context, db *gorm.DB, userID snowflake.ID, deviceID string) (*Token, error)
	UpdateFields(ctx context.Context, db *gorm.DB, id snowflake.ID, fields map[string]any) (int64, error)
	RevokeByRefreshToken(ctx context.Context, db *gorm.DB, raw, reason string) (int64, error)
	RevokeAllForUser(ctx context.Context, db *gorm.DB, userID snowflake.ID, reason string) (int64, error)
}

// Verification failure reasons. The revoked/missing message is a wire
// contract consumed by clients; keep the wording stable.
var (
	ErrTokenExpired  = errors.New("token expired")
	ErrTokenInvalid  = errors.New("token signature invalid")
	ErrTokenRevoked  = errors.New("Token not found or revoked")
	ErrWrongTokenUse = errors.New("wrong token type")
)
