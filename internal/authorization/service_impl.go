package authorization

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/propbase/propbase/internal/actor"
	"github.com/propbase/propbase/internal/apperr"
	"github.com/propbase/propbase/pkg/telemetry"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Metrics *telemetry.Metrics `optional:"true"`
}

type service struct {
	db      *gorm.DB
	log     *zap.Logger
	metrics *telemetry.Metrics
}

func New(p Params) Service {
	return &service{
		db:      p.DB,
		log:     p.Log.Named("authorization.service"),
		metrics: p.Metrics,
	}
}

func (s *service) Authorize(ctx context.Context, act actor.Actor, mode Mode, codes ...string) error {
	if act.IsZero() {
		return apperr.Unauthenticated("missing identity")
	}
	if len(codes) == 0 {
		return nil
	}

	granted, err := s.GrantedCodes(ctx, act.UserID, codes)
	if err != nil {
		return apperr.Internal(err)
	}

	missing := make([]string, 0, len(codes))
	held := 0
	for _, code := range codes {
		if granted[code] {
			held++
			continue
		}
		missing = append(missing, code)
	}

	switch mode {
	case ModeAny:
		if held > 0 {
			return nil
		}
	case ModeAll:
		if len(missing) == 0 {
			return nil
		}
	default:
		return apperr.Validation("unknown authorization mode %q", mode)
	}

	for _, code := range missing {
		s.metrics.ObserveAuthDenial(code)
	}
	s.log.Info("authorization denied",
		zap.Int64("user_id", int64(act.UserID)),
		zap.String("mode", string(mode)),
		zap.Strings("missing", missing),
	)
	return apperr.ForbiddenMissing(missing)
}

// GrantedCodes walks user_roles → roles → role_permissions →
// permissions in one query. Only the role's active flag filters the
// join; a permission row stays effective even when its own is_active
// is cleared.
func (s *service) GrantedCodes(ctx context.Context, userID snowflake.ID, codes []string) (map[string]bool, error) {
	if len(codes) == 0 {
		return map[string]bool{}, nil
	}

	var held []string
	err := s.db.WithContext(ctx).Raw(`
		SELECT DISTINCT p.code
		FROM permissions p
		JOIN role_permissions rp ON rp.permission_id = p.id
		JOIN roles r ON r.id = rp.role_id
		JOIN user_roles ur ON ur.role_id = r.id
		WHERE ur.user_id = ?
		  AND r.is_active = ?
		  AND p.code IN ?`, userID, true, codes).
		Scan(&held).Error
	if err != nil {
		return nil, err
	}

	granted := make(map[string]bool, len(held))
	for _, code := range held {
		granted[code] = true
	}
	return granted, nil
}
