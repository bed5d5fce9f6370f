package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/propbase/propbase/internal/apperr"
	"github.com/propbase/propbase/internal/requestlog/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
}

func New(p Params) domain.Recorder {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("requestlog.service"),
		genID: p.GenID,
	}
}

func (s *Service) Record(ctx context.Context, entry domain.Entry) {
	now := time.Now().UTC()
	row := &domain.RequestLog{
		ID:        s.genID.Generate(),
		Action:    entry.Action,
		Outcome:   domain.OutcomeSuccess,
		IPAddress: entry.Actor.IPAddress,
		UserAgent: entry.Actor.UserAgent,
		CreatedAt: now,
	}
	if !entry.Actor.IsZero() {
		id := entry.Actor.UserID
		row.ActorID = &id
	}
	if !entry.Started.IsZero() {
		row.LatencyMs = now.Sub(entry.Started).Milliseconds()
	}
	if entry.Err != nil {
		row.Outcome = domain.OutcomeFailure
		row.Reason = apperr.KindOf(entry.Err).String()
	}
	if len(entry.Detail) > 0 {
		if raw, err := json.Marshal(entry.Detail); err == nil {
			row.Detail = datatypes.JSON(raw)
		}
	}

	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		s.log.Warn("request log write failed",
			zap.String("action", entry.Action),
			zap.Error(err),
		)
	}
}
