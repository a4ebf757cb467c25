package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/velvetlounge/gatekeeper/internal/clock"
	eventdomain "github.com/velvetlounge/gatekeeper/internal/event/domain"
	"github.com/velvetlounge/gatekeeper/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
}

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
}

func NewService(p ServiceParam) eventdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("event.service"),
		genID: p.GenID,
		clock: p.Clock,
	}
}

// Emit implements domain.Service.
func (s *Service) Emit(ctx context.Context, req eventdomain.EmitRequest) error {
	now := s.clock.Now()
	event := eventdomain.AccessEvent{
		ID:         s.genID.Generate(),
		EntityID:   req.EntityID,
		EventType:  req.EventType,
		Payload:    datatypes.JSONMap(req.Payload),
		OccurredAt: now,
		CreatedAt:  now,
	}
	if event.Payload == nil {
		event.Payload = datatypes.JSONMap{}
	}
	if req.DedupeKey != "" {
		key := req.DedupeKey
		event.DedupeKey = &key
	}

	if err := s.db.WithContext(ctx).Create(&event).Error; err != nil {
		if db.IsDuplicateKeyErr(err) {
			s.log.Debug("event deduplicated",
				zap.String("event_type", req.EventType),
				zap.String("dedupe_key", req.DedupeKey),
			)
			return nil
		}
		return err
	}
	return nil
}

// ListByEntity implements domain.Service.
func (s *Service) ListByEntity(ctx context.Context, entityID string) ([]eventdomain.AccessEvent, error) {
	var events []eventdomain.AccessEvent
	err := s.db.WithContext(ctx).
		Where("entity_id = ?", entityID).
		Order("id asc").
		Find(&events).Error
	return events, err
}
