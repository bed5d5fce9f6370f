package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/propbase/propbase/internal/actor"
	"github.com/propbase/propbase/internal/apperr"
	"github.com/propbase/propbase/internal/assignment/domain"
	auditdomain "github.com/propbase/propbase/internal/audit/domain"
	"github.com/propbase/propbase/internal/authorization"
	identitydomain "github.com/propbase/propbase/internal/identity/domain"
	"github.com/propbase/propbase/internal/notify"
	requestlogdomain "github.com/propbase/propbase/internal/requestlog/domain"
	"github.com/propbase/propbase/pkg/telemetry"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Authz   authorization.Service
	Audit   auditdomain.Recorder
	Emitter notify.Emitter
	ReqLog  requestlogdomain.Recorder
	Metrics *telemetry.Metrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	authz   authorization.Service
	audit   auditdomain.Recorder
	emitter notify.Emitter
	reqlog  requestlogdomain.Recorder
	metrics *telemetry.Metrics
}

func New(p Params) domain.Balancer {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("assignment.service"),
		authz:   p.Authz,
		audit:   p.Audit,
		emitter: p.Emitter,
		reqlog:  p.ReqLog,
		metrics: p.Metrics,
	}
}

// PickLeastLoaded enumerates active sales holders ordered by user id
// and scans for the strict minimum, so the first holder reaching the
// minimum wins a tie. The query runs on the caller's transaction to
// stay on the same snapshot as the assignment write.
func (s *Service) PickLeastLoaded(ctx context.Context, tx *gorm.DB) (*snowflake.ID, error) {
	var loads []domain.SalesLoad
	err := tx.WithContext(ctx).Raw(`
		SELECT u.id AS user_id, COUNT(p.id) AS load_count
		FROM users u
		JOIN user_roles ur ON ur.user_id = u.id
		JOIN roles r ON r.id = ur.role_id
		LEFT JOIN properties p ON p.sales_id = u.id AND p.is_active = ?
		WHERE r.name = ? AND r.is_active = ? AND u.is_active = ?
		GROUP BY u.id
		ORDER BY u.id`,
		true, identitydomain.RoleSales, true, true).
		Scan(&loads).Error
	if err != nil {
		return nil, err
	}
	if len(loads) == 0 {
		return nil, nil
	}

	best := loads[0]
	for _, l := range loads[1:] {
		if l.Load < best.Load {
			best = l
		}
	}
	return &best.UserID, nil
}

func (s *Service) Assign(ctx context.Context, act actor.Actor, propertyID, salesID snowflake.ID) error {
	started := time.Now().UTC()
	err := s.assign(ctx, act, propertyID, salesID)
	s.finish(ctx, act, started, err, propertyID, salesID)
	if err != nil {
		s.metrics.ObserveMutation("property", "assign", "error")
		return err
	}

	s.metrics.ObserveMutation("property", "assign", "ok")
	s.emitter.Emit(ctx, notify.Event{
		Name:       notify.EventPropertyAssigned,
		PropertyID: propertyID,
		ActorID:    actorID(act),
		IPAddress:  act.IPAddress,
		UserAgent:  act.UserAgent,
		OccurredAt: time.Now().UTC(),
	})
	return nil
}

func (s *Service) assign(ctx context.Context, act actor.Actor, propertyID, salesID snowflake.ID) error {
	if err := s.authz.Authorize(ctx, act, authorization.ModeAll, authorization.PropertyAssign); err != nil {
		return err
	}

	target, err := s.salesHolder(ctx, salesID)
	if err != nil {
		return apperr.Internal(err)
	}
	if target == nil {
		return apperr.Validation("user %d does not hold an active sales role", salesID)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := s.findProperty(ctx, tx, propertyID)
		if err != nil {
			return err
		}
		if row == nil {
			return apperr.NotFound("property not found")
		}

		res := tx.WithContext(ctx).Exec(
			`UPDATE properties SET sales_id = ?, updated_at = ? WHERE id = ?`,
			salesID, time.Now().UTC(), propertyID,
		)
		if res.Error != nil {
			return res.Error
		}

		var oldValue any
		if row.SalesID != nil {
			oldValue = *row.SalesID
		}
		return s.audit.RecordUpdate(ctx, tx, act, "property", propertyID,
			map[string]any{"sales_id": oldValue},
			map[string]any{"sales_id": salesID},
		)
	})
}

func (s *Service) finish(ctx context.Context, act actor.Actor, started time.Time, err error, propertyID, salesID snowflake.ID) {
	detail := map[string]any{}
	if err == nil {
		detail["property_id"] = propertyID.String()
		detail["sales_id"] = salesID.String()
	}
	s.reqlog.Record(ctx, requestlogdomain.Entry{
		Action:  "property.assign",
		Actor:   act,
		Err:     err,
		Started: started,
		Detail:  detail,
	})
}

type propertyRow struct {
	ID      snowflake.ID  `gorm:"column:id"`
	SalesID *snowflake.ID `gorm:"column:sales_id"`
}

func (s *Service) findProperty(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*propertyRow, error) {
	var rows []propertyRow
	err := tx.WithContext(ctx).Raw(
		`SELECT id, sales_id FROM properties WHERE id = ? AND is_active = ?`, id, true).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (s *Service) salesHolder(ctx context.Context, userID snowflake.ID) (*snowflake.ID, error) {
	var ids []snowflake.ID
	err := s.db.WithContext(ctx).Raw(`
		SELECT u.id
		FROM users u
		JOIN user_roles ur ON ur.user_id = u.id
		JOIN roles r ON r.id = ur.role_id
		WHERE u.id = ? AND u.is_active = ? AND r.name = ? AND r.is_active = ?`,
		userID, true, identitydomain.RoleSales, true).
		Scan(&ids).Error
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	return &ids[0], nil
}

func actorID(act actor.Actor) *snowflake.ID {
	if act.IsZero() {
		return nil
	}
	id := act.UserID
	return &id
}
