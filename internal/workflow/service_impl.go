package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/velvetlounge/gatekeeper/internal/access"
	"github.com/velvetlounge/gatekeeper/internal/clock"
	"github.com/velvetlounge/gatekeeper/internal/config"
	"github.com/velvetlounge/gatekeeper/internal/entitlement"
	eventdomain "github.com/velvetlounge/gatekeeper/internal/event/domain"
	invitedomain "github.com/velvetlounge/gatekeeper/internal/invite/domain"
	memberdomain "github.com/velvetlounge/gatekeeper/internal/member/domain"
	"github.com/velvetlounge/gatekeeper/internal/observability/metrics"
	"github.com/velvetlounge/gatekeeper/internal/platform"
	"github.com/velvetlounge/gatekeeper/internal/workflow/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const inviteSweepBatchSize = 200

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	cfg          config.Config
	members      memberdomain.Repository
	invites      invitedomain.Service
	events       eventdomain.Service
	platform     platform.Client
	entitlements entitlement.Service
	genID        *snowflake.Node
	clock        clock.Clock
}

type ServiceParam struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	Config       config.Config
	Members      memberdomain.Repository
	Invites      invitedomain.Service
	Events       eventdomain.Service
	Platform     platform.Client
	Entitlements entitlement.Service
	GenID        *snowflake.Node
	Clock        clock.Clock
}

func NewService(p ServiceParam) domain.Service {
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("workflow.service"),
		cfg:          p.Config,
		members:      p.Members,
		invites:      p.Invites,
		events:       p.Events,
		platform:     p.Platform,
		entitlements: p.Entitlements,
		genID:        p.GenID,
		clock:        p.Clock,
	}
}

// Intake implements domain.Service.
func (s *Service) Intake(ctx context.Context, req domain.IntakeRequest) (domain.IntakeResult, error) {
	now := s.clock.Now()

	existing, err := s.members.FindByExternalID(ctx, s.db, req.ExternalID)
	if err != nil {
		return domain.IntakeResult{}, err
	}

	if existing == nil {
		if req.InviteTokenID != "" {
			// Tokens are bound to an existing member record; an unknown
			// external ID can never be a token's recipient.
			return domain.IntakeResult{}, invitedomain.ErrWrongRecipient
		}
		member := memberdomain.NewMember(s.genID.Generate(), req.ExternalID, req.DisplayName, now)
		if err := s.members.Insert(ctx, s.db, &member); err != nil {
			return domain.IntakeResult{}, err
		}
		s.emit(ctx, eventdomain.EmitRequest{
			EntityID:  member.ID.String(),
			EventType: eventdomain.TypeMemberAdmitted,
			Payload: map[string]any{
				"external_id": member.ExternalID,
				"status":      string(member.Status),
				"joined_at":   member.JoinedAt,
			},
			DedupeKey: fmt.Sprintf("member.admitted:%s:%d", member.ID, member.JoinedAt.Unix()),
		})
		metrics.Scheduler().IncMemberTransition("none", string(member.Status))
		s.log.Info("member admitted",
			zap.String("member_id", member.ID.String()),
			zap.String("external_id", member.ExternalID),
		)
		return domain.IntakeResult{Member: member, Applied: true}, nil
	}

	if !existing.Out() {
		// Re-delivered join signal for a member who is already in.
		return domain.IntakeResult{Member: *existing}, nil
	}

	if req.InviteTokenID != "" {
		if _, err := s.invites.Consume(ctx, req.InviteTokenID, existing.ID.String()); err != nil {
			if !errors.Is(err, invitedomain.ErrAlreadyConsumed) {
				return domain.IntakeResult{}, err
			}
		}
	}

	before := *existing
	next, err := existing.Reactivate(req.DisplayName, now)
	if err != nil {
		return domain.IntakeResult{}, err
	}
	if err := s.members.Update(ctx, s.db, &next); err != nil {
		return domain.IntakeResult{}, err
	}
	s.emit(ctx, eventdomain.EmitRequest{
		EntityID:  next.ID.String(),
		EventType: eventdomain.TypeMemberAdmitted,
		Payload: map[string]any{
			"external_id": next.ExternalID,
			"status":      string(next.Status),
			"joined_at":   next.JoinedAt,
			"readmitted":  true,
		},
		DedupeKey: fmt.Sprintf("member.admitted:%s:%d", next.ID, next.JoinedAt.Unix()),
	})
	metrics.Scheduler().IncMemberTransition(string(before.Status), string(next.Status))
	s.log.Info("member readmitted",
		zap.String("member_id", next.ID.String()),
		zap.String("external_id", next.ExternalID),
	)
	return domain.IntakeResult{Member: next, Readmitted: true, Applied: true}, nil
}

// RulesAccepted implements domain.Service.
func (s *Service) RulesAccepted(ctx context.Context, externalID string) (memberdomain.Member, bool, error) {
	member, err := s.findByExternalID(ctx, externalID)
	if err != nil {
		return memberdomain.Member{}, false, err
	}

	now := s.clock.Now()
	next, err := member.AcceptRules(now, s.cfg.AcceptanceWindow)
	if err != nil {
		if errors.Is(err, memberdomain.ErrAlreadyActive) {
			return member, false, nil
		}
		return memberdomain.Member{}, false, err
	}
	if err := s.members.Update(ctx, s.db, &next); err != nil {
		return memberdomain.Member{}, false, err
	}

	s.emit(ctx, eventdomain.EmitRequest{
		EntityID:  next.ID.String(),
		EventType: eventdomain.TypeMemberActivated,
		Payload: map[string]any{
			"external_id": next.ExternalID,
			"accepted_at": now,
		},
		DedupeKey: fmt.Sprintf("member.activated:%s:%d", next.ID, next.JoinedAt.Unix()),
	})
	s.emitAccessDiff(ctx, member, next, "rules_accepted")
	metrics.Scheduler().IncMemberTransition(string(member.Status), string(next.Status))
	s.log.Info("member activated",
		zap.String("member_id", next.ID.String()),
		zap.String("external_id", next.ExternalID),
	)
	return next, true, nil
}

// Verify implements domain.Service. The operator notification goes out
// before the latch commits, so a crash in between re-sends rather than
// silently dropping the one-time ping.
func (s *Service) Verify(ctx context.Context, externalID, identityNumber string) (memberdomain.Member, error) {
	member, err := s.findByExternalID(ctx, externalID)
	if err != nil {
		return memberdomain.Member{}, err
	}
	if member.Verified && member.VerifiedNotified {
		return member, nil
	}

	now := s.clock.Now()
	next := member.MarkVerified(identityNumber, now)
	if access.ShouldNotifyOperators(next) {
		msg := fmt.Sprintf("member %s verified their identity", next.DisplayName)
		if err := s.platform.SendMessage(ctx, s.cfg.PlatformGroupID, msg); err != nil {
			return memberdomain.Member{}, fmt.Errorf("notify operators: %w", err)
		}
		next = next.MarkOperatorsNotified(now)
	}
	if err := s.members.Update(ctx, s.db, &next); err != nil {
		return memberdomain.Member{}, err
	}

	s.emitAccessDiff(ctx, member, next, "verified")
	s.log.Info("member verified",
		zap.String("member_id", next.ID.String()),
		zap.String("external_id", next.ExternalID),
	)
	return next, nil
}

// Promote implements domain.Service. Tiers below admin derive from
// lifecycle facts and cannot be handed out directly.
func (s *Service) Promote(ctx context.Context, actorExternalID, targetExternalID string, requested access.Tier) (memberdomain.Member, error) {
	actor, err := s.findByExternalID(ctx, actorExternalID)
	if err != nil {
		return memberdomain.Member{}, err
	}
	target, err := s.findByExternalID(ctx, targetExternalID)
	if err != nil {
		return memberdomain.Member{}, err
	}

	if err := access.ValidatePromotion(access.DeriveTier(target), requested, access.DeriveTier(actor)); err != nil {
		return target, err
	}
	if requested != access.TierAdmin {
		return target, domain.ErrTierNotAssignable
	}

	now := s.clock.Now()
	next, err := target.ElevateToAdmin(now)
	if err != nil {
		return memberdomain.Member{}, err
	}
	if err := s.members.Update(ctx, s.db, &next); err != nil {
		return memberdomain.Member{}, err
	}

	s.emitAccessDiff(ctx, target, next, "promoted")
	metrics.Scheduler().IncMemberTransition(string(target.Status), string(next.Status))
	s.log.Info("member promoted",
		zap.String("member_id", next.ID.String()),
		zap.String("actor_external_id", actorExternalID),
		zap.String("tier", requested.String()),
	)
	return next, nil
}

// Leave implements domain.Service.
func (s *Service) Leave(ctx context.Context, externalID string) (memberdomain.Member, error) {
	member, err := s.findByExternalID(ctx, externalID)
	if err != nil {
		return memberdomain.Member{}, err
	}

	now := s.clock.Now()
	next, err := member.Leave(now)
	if err != nil {
		if errors.Is(err, memberdomain.ErrAlreadyOut) {
			return member, nil
		}
		return memberdomain.Member{}, err
	}
	if err := s.members.Update(ctx, s.db, &next); err != nil {
		return memberdomain.Member{}, err
	}

	s.emitAccessDiff(ctx, member, next, "left")
	metrics.Scheduler().IncMemberTransition(string(member.Status), string(next.Status))
	return next, nil
}

// Permissions implements domain.Service.
func (s *Service) Permissions(ctx context.Context, externalID string) (access.PermissionSet, memberdomain.Member, error) {
	member, err := s.findByExternalID(ctx, externalID)
	if err != nil {
		return access.PermissionSet{}, memberdomain.Member{}, err
	}
	return access.Derive(member), member, nil
}

// IssueInvite implements domain.Service.
func (s *Service) IssueInvite(ctx context.Context, req domain.IssueInviteRequest) (string, error) {
	issuer, err := s.findByExternalID(ctx, req.IssuerExternalID)
	if err != nil {
		return "", err
	}
	if access.DeriveTier(issuer) < access.TierAdmin {
		return "", domain.ErrIssuerNotAllowed
	}
	recipient, err := s.findByExternalID(ctx, req.RecipientExternalID)
	if err != nil {
		return "", err
	}

	token, err := s.invites.Issue(ctx, invitedomain.IssueRequest{
		RecipientID: recipient.ID.String(),
		IssuerID:    issuer.ID.String(),
		TTL:         req.TTL,
		UseLimit:    req.UseLimit,
	})
	if err != nil {
		return "", err
	}
	return token.URL, nil
}

// VerificationSweep implements domain.Service.
func (s *Service) VerificationSweep(ctx context.Context) (domain.SweepReport, error) {
	var (
		report domain.SweepReport
		errs   []error
	)
	now := s.clock.Now()
	mm := metrics.Scheduler()

	// Stage 1: acceptance-window lapse. Listing by current status dedupes
	// the removal: a member already Removed or Active is never selected, so
	// a repeated or delayed sweep cannot remove twice.
	windowCutoff := now.Add(-s.cfg.AcceptanceWindow)
	restricted, err := s.members.List(ctx, s.db, memberdomain.Filter{
		Statuses:     []memberdomain.MemberStatus{memberdomain.StatusRestricted},
		JoinedBefore: &windowCutoff,
	})
	if err != nil {
		return report, err
	}
	for _, m := range restricted {
		report.Scanned++
		if err := s.removeMember(ctx, m, memberdomain.ReasonRulesNotAccepted); err != nil {
			if errors.Is(err, memberdomain.ErrAlreadyOut) || errors.Is(err, memberdomain.ErrStaleMember) {
				continue
			}
			report.Failed++
			mm.IncSweepError(metrics.StageVerificationSweep, err)
			errs = append(errs, fmt.Errorf("member %s: %w", m.ID, err))
			continue
		}
		report.Removed++
	}

	// Stage 2: entitlement re-check for verified active members. A failed
	// lookup keeps the last known entitlement.
	verified := true
	actives, err := s.members.List(ctx, s.db, memberdomain.Filter{
		Statuses: []memberdomain.MemberStatus{memberdomain.StatusActive},
		Verified: &verified,
	})
	if err != nil {
		return report, errors.Join(append(errs, err)...)
	}
	for _, m := range actives {
		report.Scanned++
		ent, err := s.entitlements.Lookup(ctx, m.IdentityNumber)
		if err != nil {
			report.Failed++
			mm.IncSweepError(metrics.StageVerificationSweep, err)
			errs = append(errs, fmt.Errorf("member %s: entitlement lookup: %w", m.ID, err))
			continue
		}
		if ent.Active == m.HasActiveEntitlement {
			continue
		}
		next := m.SetEntitlement(ent.Active, ent.PlanName, now)
		if err := s.members.Update(ctx, s.db, &next); err != nil {
			if errors.Is(err, memberdomain.ErrStaleMember) {
				continue
			}
			report.Failed++
			mm.IncSweepError(metrics.StageVerificationSweep, err)
			errs = append(errs, fmt.Errorf("member %s: %w", m.ID, err))
			continue
		}
		reason := "entitlement_lapsed"
		if ent.Active {
			report.AccessGranted++
			reason = "entitlement_restored"
		} else {
			report.AccessRevoked++
		}
		s.emitAccessDiff(ctx, m, next, reason)
	}

	s.log.Info("verification sweep finished",
		zap.Int("scanned", report.Scanned),
		zap.Int("removed", report.Removed),
		zap.Int("access_granted", report.AccessGranted),
		zap.Int("access_revoked", report.AccessRevoked),
		zap.Int("failed", report.Failed),
	)
	return report, errors.Join(errs...)
}

// Cleanup implements domain.Service.
func (s *Service) Cleanup(ctx context.Context) (domain.CleanupReport, error) {
	var (
		report domain.CleanupReport
		errs   []error
	)
	now := s.clock.Now()
	mm := metrics.Scheduler()

	lapsed, err := s.invites.SweepLapsed(ctx, inviteSweepBatchSize)
	report.TokensLapsed = lapsed
	if err != nil {
		report.Failed++
		mm.IncSweepError(metrics.StageInviteCleanup, err)
		errs = append(errs, err)
	}

	inactive := false
	graceCutoff := now.Add(-s.cfg.EntitlementGracePeriod)
	members, err := s.members.List(ctx, s.db, memberdomain.Filter{
		Statuses:             []memberdomain.MemberStatus{memberdomain.StatusActive},
		HasActiveEntitlement: &inactive,
		LapsedBefore:         &graceCutoff,
	})
	if err != nil {
		return report, errors.Join(append(errs, err)...)
	}
	for _, m := range members {
		if err := s.removeMember(ctx, m, memberdomain.ReasonEntitlementInactive); err != nil {
			if errors.Is(err, memberdomain.ErrAlreadyOut) ||
				errors.Is(err, memberdomain.ErrProtectedMember) ||
				errors.Is(err, memberdomain.ErrStaleMember) {
				continue
			}
			report.Failed++
			mm.IncSweepError(metrics.StageMemberCleanup, err)
			errs = append(errs, fmt.Errorf("member %s: %w", m.ID, err))
			continue
		}
		report.MembersRemoved++
	}

	s.log.Info("cleanup finished",
		zap.Int("tokens_lapsed", report.TokensLapsed),
		zap.Int("members_removed", report.MembersRemoved),
		zap.Int("failed", report.Failed),
	)
	return report, errors.Join(errs...)
}

// removeMember applies an automated removal: precondition, platform kick,
// then the state commit. A platform failure leaves the record untouched so
// the next sweep retries.
func (s *Service) removeMember(ctx context.Context, m memberdomain.Member, reason string) error {
	if err := m.CanBeRemoved(); err != nil {
		return err
	}
	if err := s.platform.RemoveMember(ctx, s.cfg.PlatformGroupID, m.ExternalID); err != nil {
		return fmt.Errorf("platform removal: %w", err)
	}

	now := s.clock.Now()
	next, err := m.Remove(reason, now)
	if err != nil {
		return err
	}
	if err := s.members.Update(ctx, s.db, &next); err != nil {
		return err
	}

	s.emit(ctx, eventdomain.EmitRequest{
		EntityID:  next.ID.String(),
		EventType: eventdomain.TypeMemberRemoved,
		Payload: map[string]any{
			"external_id": next.ExternalID,
			"reason":      reason,
		},
		DedupeKey: fmt.Sprintf("member.removed:%s:%d", next.ID, next.JoinedAt.Unix()),
	})
	s.emitAccessDiff(ctx, m, next, reason)
	metrics.Scheduler().IncMemberTransition(string(m.Status), string(next.Status))
	s.log.Info("member removed",
		zap.String("member_id", next.ID.String()),
		zap.String("external_id", next.ExternalID),
		zap.String("reason", reason),
	)
	return nil
}

func (s *Service) findByExternalID(ctx context.Context, externalID string) (memberdomain.Member, error) {
	member, err := s.members.FindByExternalID(ctx, s.db, externalID)
	if err != nil {
		return memberdomain.Member{}, err
	}
	if member == nil {
		return memberdomain.Member{}, memberdomain.ErrMemberNotFound
	}
	return *member, nil
}

// emitAccessDiff emits AccessGranted or AccessRevoked when the derived tier
// actually moved between two snapshots.
func (s *Service) emitAccessDiff(ctx context.Context, before, after memberdomain.Member, reason string) {
	change, moved := access.Diff(before, after)
	if !moved {
		return
	}
	eventType := eventdomain.TypeAccessGranted
	if change.After.Tier < change.Before.Tier {
		eventType = eventdomain.TypeAccessRevoked
	}
	s.emit(ctx, eventdomain.EmitRequest{
		EntityID:  after.ID.String(),
		EventType: eventType,
		Payload: map[string]any{
			"external_id": after.ExternalID,
			"before_tier": change.Before.Tier.String(),
			"after_tier":  change.After.Tier.String(),
			"sections":    change.After.Sections,
			"reason":      reason,
		},
		DedupeKey: fmt.Sprintf("%s:%s:%s:%s", eventType, after.ID, change.Before.Tier, change.After.Tier),
	})
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
