package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/velvetlounge/gatekeeper/internal/clock"
	"github.com/velvetlounge/gatekeeper/internal/config"
	eventdomain "github.com/velvetlounge/gatekeeper/internal/event/domain"
	"github.com/velvetlounge/gatekeeper/internal/invite/domain"
	"github.com/velvetlounge/gatekeeper/internal/platform"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	cfg      config.Config
	repo     domain.Repository
	platform platform.Client
	events   eventdomain.Service
	genID    *snowflake.Node
	clock    clock.Clock
}

type ServiceParam struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Config   config.Config
	Repo     domain.Repository
	Platform platform.Client
	Events   eventdomain.Service
	GenID    *snowflake.Node
	Clock    clock.Clock
}

func NewService(p ServiceParam) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("invite.service"),
		cfg:      p.Config,
		repo:     p.Repo,
		platform: p.Platform,
		events:   p.Events,
		genID:    p.GenID,
		clock:    p.Clock,
	}
}

// Issue implements domain.Service.
func (s *Service) Issue(ctx context.Context, req domain.IssueRequest) (domain.Token, error) {
	recipientID, err := snowflake.ParseString(req.RecipientID)
	if err != nil {
		return domain.Token{}, fmt.Errorf("parse recipient id: %w", err)
	}
	issuerID, err := snowflake.ParseString(req.IssuerID)
	if err != nil {
		return domain.Token{}, fmt.Errorf("parse issuer id: %w", err)
	}

	ttl := s.cfg.InviteTTL
	if req.TTL != nil {
		ttl = *req.TTL
	}
	useLimit := s.cfg.InviteUseLimit
	if req.UseLimit != nil {
		useLimit = *req.UseLimit
	}
	if useLimit < 1 {
		return domain.Token{}, domain.ErrInvalidUseLimit
	}

	existing, err := s.repo.FindActiveByRecipient(ctx, s.db, recipientID)
	if err != nil {
		return domain.Token{}, err
	}
	if existing != nil && existing.Valid(s.clock.Now()) {
		return domain.Token{}, domain.ErrActiveExists
	}

	now := s.clock.Now()
	expiresAt := now.Add(ttl)

	// The platform link is created before the row so a persisted token
	// always carries a working URL.
	url, err := s.platform.CreateInviteLink(ctx, s.cfg.PlatformGroupID, platform.InviteLinkParams{
		ExpiresAt: expiresAt,
		UseLimit:  useLimit,
	})
	if err != nil {
		return domain.Token{}, fmt.Errorf("create invite link: %w", err)
	}

	token := domain.Token{
		ID:          s.genID.Generate(),
		RecipientID: recipientID,
		IssuerID:    issuerID,
		URL:         url,
		Status:      domain.StatusActive,
		ExpiresAt:   expiresAt,
		UseLimit:    useLimit,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Insert(ctx, s.db, &token); err != nil {
		if revokeErr := s.platform.RevokeInviteLink(ctx, url); revokeErr != nil {
			s.log.Warn("failed to revoke orphaned invite link",
				zap.String("url", url),
				zap.Error(revokeErr),
			)
		}
		return domain.Token{}, err
	}

	s.emit(ctx, eventdomain.EmitRequest{
		EntityID:  token.ID.String(),
		EventType: eventdomain.TypeInviteIssued,
		Payload: map[string]any{
			"recipient_id": token.RecipientID.String(),
			"issuer_id":    token.IssuerID.String(),
			"expires_at":   token.ExpiresAt,
			"use_limit":    token.UseLimit,
		},
		DedupeKey: "invite.issued:" + token.ID.String(),
	})

	s.log.Info("invite issued",
		zap.String("token_id", token.ID.String()),
		zap.String("recipient_id", token.RecipientID.String()),
		zap.Time("expires_at", token.ExpiresAt),
	)
	return token, nil
}

// Validate implements domain.Service. A lapsed token is persisted as
// terminal on the spot; a concurrent persist of the same transition is
// treated as done.
func (s *Service) Validate(ctx context.Context, tokenID string) (bool, error) {
	token, err := s.find(ctx, tokenID)
	if err != nil {
		return false, err
	}

	now := s.clock.Now()
	lapsed, changed := token.Lapse(now)
	if changed {
		if err := s.repo.Update(ctx, s.db, &lapsed); err != nil && !errors.Is(err, domain.ErrStaleToken) {
			return false, err
		}
		return false, nil
	}
	return token.Valid(now), nil
}

// Consume implements domain.Service.
func (s *Service) Consume(ctx context.Context, tokenID, memberID string) (domain.Token, error) {
	token, err := s.find(ctx, tokenID)
	if err != nil {
		return domain.Token{}, err
	}
	member, err := snowflake.ParseString(memberID)
	if err != nil {
		return domain.Token{}, fmt.Errorf("parse member id: %w", err)
	}

	now := s.clock.Now()
	if lapsed, changed := token.Lapse(now); changed {
		if err := s.repo.Update(ctx, s.db, &lapsed); err != nil && !errors.Is(err, domain.ErrStaleToken) {
			return domain.Token{}, err
		}
		token = lapsed
	}

	next, err := token.Consume(member, now)
	if err != nil {
		return domain.Token{}, err
	}
	if err := s.repo.Update(ctx, s.db, &next); err != nil {
		return domain.Token{}, err
	}

	s.emit(ctx, eventdomain.EmitRequest{
		EntityID:  next.ID.String(),
		EventType: eventdomain.TypeInviteConsumed,
		Payload: map[string]any{
			"member_id":     member.String(),
			"uses_consumed": next.UsesConsumed,
			"use_limit":     next.UseLimit,
		},
		DedupeKey: "invite.consumed:" + next.ID.String() + ":" + member.String(),
	})

	s.log.Info("invite consumed",
		zap.String("token_id", next.ID.String()),
		zap.String("member_id", member.String()),
		zap.Int("uses_consumed", next.UsesConsumed),
	)
	return next, nil
}

// Revoke implements domain.Service.
func (s *Service) Revoke(ctx context.Context, tokenID, reason string) error {
	token, err := s.find(ctx, tokenID)
	if err != nil {
		return err
	}

	next, err := token.Revoke(reason, s.clock.Now())
	if err != nil {
		return err
	}
	if err := s.repo.Update(ctx, s.db, &next); err != nil {
		return err
	}

	if err := s.platform.RevokeInviteLink(ctx, next.URL); err != nil {
		s.log.Warn("failed to revoke platform invite link",
			zap.String("token_id", next.ID.String()),
			zap.Error(err),
		)
	}

	s.emit(ctx, eventdomain.EmitRequest{
		EntityID:  next.ID.String(),
		EventType: eventdomain.TypeInviteRevoked,
		Payload: map[string]any{
			"reason": reason,
		},
		DedupeKey: "invite.revoked:" + next.ID.String(),
	})
	return nil
}

// SweepLapsed implements domain.Service.
func (s *Service) SweepLapsed(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}
	now := s.clock.Now()

	tokens, err := s.repo.ListLapsed(ctx, s.db, now, limit)
	if err != nil {
		return 0, err
	}

	var (
		processed int
		errs      []error
	)
	for _, token := range tokens {
		lapsed, changed := token.Lapse(now)
		if !changed {
			continue
		}
		if err := s.repo.Update(ctx, s.db, &lapsed); err != nil {
			if errors.Is(err, domain.ErrStaleToken) {
				continue
			}
			errs = append(errs, fmt.Errorf("token %s: %w", token.ID, err))
			continue
		}
		if err := s.platform.RevokeInviteLink(ctx, lapsed.URL); err != nil {
			s.log.Warn("failed to revoke lapsed invite link",
				zap.String("token_id", lapsed.ID.String()),
				zap.Error(err),
			)
		}
		processed++
	}

	if len(errs) > 0 {
		s.log.Warn("invite sweep finished with errors",
			zap.Int("processed", processed),
			zap.Int("failed", len(errs)),
		)
	}
	return processed, errors.Join(errs...)
}

func (s *Service) find(ctx context.Context, tokenID string) (domain.Token, error) {
	id, err := snowflake.ParseString(tokenID)
	if err != nil {
		return domain.Token{}, fmt.Errorf("parse token id: %w", err)
	}
	token, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.Token{}, err
	}
	if token == nil {
		return domain.Token{}, domain.ErrTokenNotFound
	}
	return *token, nil
}

func (s *Service) emit(ctx context.Context, req eventdomain.EmitRequest) {
	if err := s.events.Emit(ctx, req); err != nil {
		s.log.Warn("failed to emit event",
			zap.String("event_type", req.EventType),
			zap.String("entity_id", req.EntityID),
			zap.Error(err),
		)
	}
}
