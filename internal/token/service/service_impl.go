package service

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/propbase/propbase/internal/actor"
	"github.com/propbase/propbase/internal/apperr"
	"github.com/propbase/propbase/internal/config"
	identitydomain "github.com/propbase/propbase/internal/identity/domain"
	requestlogdomain "github.com/propbase/propbase/internal/requestlog/domain"
	"github.com/propbase/propbase/internal/token/domain"
	"github.com/propbase/propbase/pkg/telemetry"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Repo     domain.Repository
	Identity identitydomain.Service
	Config   config.Config
	ReqLog   requestlogdomain.Recorder
	Metrics  *telemetry.Metrics `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	repo     domain.Repository
	identity identitydomain.Service
	reqlog   requestlogdomain.Recorder
	metrics  *telemetry.Metrics

	secret     []byte
	accessTTL  string
	refreshTTL string
}

func New(p Params) domain.Manager {
	if p.Config.AuthJWTSecret == "" {
		p.Log.Warn("AUTH_JWT_SECRET is empty; issued tokens will not survive restarts securely")
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("token.service"),
		genID:      p.GenID,
		repo:       p.Repo,
		identity:   p.Identity,
		reqlog:     p.ReqLog,
		metrics:    p.Metrics,
		secret:     []byte(p.Config.AuthJWTSecret),
		accessTTL:  p.Config.AccessTokenTTL,
		refreshTTL: p.Config.RefreshTokenTTL,
	}
}

var durationPattern = regexp.MustCompile(`^(\d+)([dhms])$`)

// CalculateExpiryDate resolves a human-readable duration string of the
// form "<N><unit>" (unit one of d, h, m, s) against the given instant.
// Malformed input fails with a descriptive validation error; there is
// deliberately no silent default.
func CalculateExpiryDate(from time.Time, duration string) (time.Time, error) {
	match := durationPattern.FindStringSubmatch(strings.TrimSpace(duration))
	if match == nil {
		return time.Time{}, apperr.Validation("invalid duration %q: expected <number><d|h|m|s>", duration)
	}
	n, err := strconv.ParseInt(match[1], 10, 64)
	if err != nil {
		return time.Time{}, apperr.Validation("invalid duration %q: %v", duration, err)
	}
	switch match[2] {
	case "d":
		return from.Add(time.Duration(n) * 24 * time.Hour), nil
	case "h":
		return from.Add(time.Duration(n) * time.Hour), nil
	case "m":
		return from.Add(time.Duration(n) * time.Minute), nil
	default:
		return from.Add(time.Duration(n) * time.Second), nil
	}
}

func (s *Service) IssueAccessToken(userID snowflake.ID, role string) (string, error) {
	signed, _, err := s.issueAccess(userID, role)
	return signed, err
}

func (s *Service) issueAccess(userID snowflake.ID, role string) (string, time.Time, error) {
	now := time.Now().UTC()
	expiresAt, err := CalculateExpiryDate(now, s.accessTTL)
	if err != nil {
		return "", time.Time{}, err
	}

	claims := &domain.Claims{
		Role:      role,
		TokenType: domain.TokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	s.metrics.ObserveTokenIssued(domain.TokenTypeAccess)
	return signed, expiresAt, nil
}

// IssueRefreshToken persists the refresh credential. When an active row
// already exists for the (user, device) pair it is updated in place
// rather than duplicated. The read-then-write is not atomic across
// concurrent logins for the same device.
func (s *Service) IssueRefreshToken(ctx context.Context, userID snowflake.ID, role string, device domain.DeviceContext) (string, *domain.Token, error) {
	now := time.Now().UTC()
	expiresAt, err := CalculateExpiryDate(now, s.refreshTTL)
	if err != nil {
		return "", nil, err
	}

	claims := &domain.Claims{
		Role:      role,
		TokenType: domain.TokenTypeRefresh,
		DeviceID:  device.DeviceID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", nil, err
	}

	existing, err := s.repo.FindActiveByUserDevice(ctx, s.db, userID, device.DeviceID)
	if err != nil {
		return "", nil, err
	}
	if existing != nil {
		if _, err := s.repo.UpdateFields(ctx, s.db, existing.ID, map[string]any{
			"refresh_token": raw,
			"expires_at":    expiresAt,
			"updated_at":    now,
		}); err != nil {
			return "", nil, err
		}
		existing.RefreshToken = raw
		existing.ExpiresAt = expiresAt
		existing.UpdatedAt = now
		s.metrics.ObserveTokenIssued(domain.TokenTypeRefresh)
		return raw, existing, nil
	}

	token := &domain.Token{
		ID:           s.genID.Generate(),
		UserID:       userID,
		RefreshToken: raw,
		DeviceID:     device.DeviceID,
		ExpiresAt:    expiresAt,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Insert(ctx, s.db, token); err != nil {
		return "", nil, err
	}
	s.metrics.ObserveTokenIssued(domain.TokenTypeRefresh)
	return raw, token, nil
}

// VerifyAccessToken checks signature and expiry only; it never touches
// storage.
func (s *Service) VerifyAccessToken(raw string) (*domain.Claims, error) {
	claims, err := s.parse(raw)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != domain.TokenTypeAccess {
		return nil, domain.ErrWrongTokenUse
	}
	return claims, nil
}

// VerifyRefreshToken checks the persisted row before the signature: a
// revoked or missing row wins over any cryptographic state, and a row
// past its expiry is rejected even when is_active is still set.
func (s *Service) VerifyRefreshToken(ctx context.Context, raw string) (*domain.Token, *domain.Claims, error) {
	token, err := s.repo.FindByRefreshToken(ctx, s.db, raw)
	if err != nil {
		return nil, nil, err
	}
	if token == nil || !token.IsActive {
		return nil, nil, domain.ErrTokenRevoked
	}
	if time.Now().UTC().After(token.ExpiresAt) {
		return nil, nil, domain.ErrTokenExpired
	}

	claims, err := s.parse(raw)
	if err != nil {
		return nil, nil, err
	}
	if claims.TokenType != domain.TokenTypeRefresh {
		return nil, nil, domain.ErrWrongTokenUse
	}
	return token, claims, nil
}

func (s *Service) Revoke(ctx context.Context, raw string, reason string) (int64, error) {
	return s.repo.RevokeByRefreshToken(ctx, s.db, raw, reason)
}

func (s *Service) RevokeAll(ctx context.Context, userID snowflake.ID, reason string) (int64, error) {
	return s.repo.RevokeAllForUser(ctx, s.db, userID, reason)
}

func (s *Service) Login(ctx context.Context, req domain.LoginRequest) (*domain.TokenPair, error) {
	started := time.Now().UTC()
	pair, act, err := s.login(ctx, req)
	s.finish(ctx, "auth.login", act, started, err)
	if err != nil {
		return nil, err
	}
	return pair, nil
}

func (s *Service) login(ctx context.Context, req domain.LoginRequest) (*domain.TokenPair, actor.Actor, error) {
	// Until credentials check out the caller is only request metadata.
	meta := actor.Actor{IPAddress: req.Device.IPAddress, UserAgent: req.Device.UserAgent}

	user, err := s.identity.VerifyCredentials(ctx, req.Email, req.Password)
	if err != nil {
		return nil, meta, err
	}

	act, err := s.identity.ResolveActor(ctx, user.ID, req.Device.IPAddress, req.Device.UserAgent)
	if err != nil {
		return nil, meta, err
	}
	role := act.PrimaryRole()

	access, accessExpiry, err := s.issueAccess(user.ID, role)
	if err != nil {
		return nil, act, err
	}
	refresh, _, err := s.IssueRefreshToken(ctx, user.ID, role, req.Device)
	if err != nil {
		return nil, act, err
	}

	return &domain.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    accessExpiry,
		TokenType:    "Bearer",
	}, act, nil
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (*domain.TokenPair, error) {
	started := time.Now().UTC()
	pair, act, err := s.refresh(ctx, refreshToken)
	s.finish(ctx, "auth.refresh", act, started, err)
	if err != nil {
		return nil, err
	}
	return pair, nil
}

func (s *Service) refresh(ctx context.Context, refreshToken string) (*domain.TokenPair, actor.Actor, error) {
	token, claims, err := s.VerifyRefreshToken(ctx, refreshToken)
	if err != nil {
		return nil, actor.Actor{}, apperr.Unauthenticated(err.Error())
	}

	act, err := s.identity.ResolveActor(ctx, token.UserID, "", "")
	if err != nil {
		return nil, actor.Actor{}, err
	}
	role := act.PrimaryRole()
	if role == "" {
		role = claims.Role
	}

	access, accessExpiry, err := s.issueAccess(token.UserID, role)
	if err != nil {
		return nil, act, err
	}
	return &domain.TokenPair{
		AccessToken:  access,
		RefreshToken: refreshToken,
		ExpiresAt:    accessExpiry,
		TokenType:    "Bearer",
	}, act, nil
}

func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	started := time.Now().UTC()
	_, err := s.Revoke(ctx, refreshToken, "logout")
	s.finish(ctx, "auth.logout", actor.Actor{}, started, err)
	return err
}

func (s *Service) finish(ctx context.Context, action string, act actor.Actor, started time.Time, err error) {
	s.reqlog.Record(ctx, requestlogdomain.Entry{
		Action:  action,
		Actor:   act,
		Err:     err,
		Started: started,
	})
}

func (s *Service) parse(raw string) (*domain.Claims, error) {
	claims := &domain.Claims{}
	parsed, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, domain.ErrTokenInvalid
		}
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, domain.ErrTokenExpired
		}
		return nil, domain.ErrTokenInvalid
	}
	if !parsed.Valid {
		return nil, domain.ErrTokenInvalid
	}
	return claims, nil
}
