// Package domain contains core types for the token manager.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/golang-jwt/jwt/v5"
)

// Token is a persisted refresh credential. A row transitions active to
// inactive exactly once and never back; expiry is derived from ExpiresAt
// at verification time, not stored as a flag.
type Token struct {
	ID               snowflake.ID `gorm:"primaryKey" json:"id"`
	UserID           snowflake.ID `gorm:"column:user_id;not null;index" json:"user_id"`
	RefreshToken     string       `gorm:"column:refresh_token;type:text;not null;uniqueIndex" json:"-"`
	DeviceID         string       `gorm:"column:device_id;type:text" json:"device_id,omitempty"`
	ExpiresAt        time.Time    `gorm:"column:expires_at;not null;index" json:"expires_at"`
	IsActive         bool         `gorm:"column:is_active;not null;default:true" json:"is_active"`
	RevocationReason *string      `gorm:"column:revocation_reason;type:text" json:"revocation_reason,omitempty"`
	CreatedAt        time.Time    `gorm:"column:created_at;not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt        time.Time    `gorm:"column:updated_at;not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Token) TableName() string { return "tokens" }

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// Claims is the signed payload carried by both token types. Subject
// holds the user ID; Role is the primary role resolved at issuance.
type Claims struct {
	Role      string `json:"role"`
	TokenType string `json:"token_type"`
	DeviceID  string `json:"device_id,omitempty"`
	jwt.RegisteredClaims
}

// SubjectID parses the subject claim back into a user ID.
func (c *Claims) SubjectID() (snowflake.ID, error) {
	return snowflake.ParseString(c.Subject)
}

// DeviceContext describes the client device a refresh token is bound to.
type DeviceContext struct {
	DeviceID  string
	IPAddress string
	UserAgent string
}

// TokenPair is the issuance result returned to clients.
type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	TokenType    string    `json:"token_type"`
}
