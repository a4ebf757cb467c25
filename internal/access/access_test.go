package access

import (
	"errors"
	"testing"
	"time"

	memberdomain "github.com/velvetlounge/gatekeeper/internal/member/domain"
)

func TestDeriveTier(t *testing.T) {
	tests := []struct {
		name   string
		member memberdomain.Member
		want   Tier
	}{
		{
			name:   "restricted newcomer",
			member: memberdomain.Member{Status: memberdomain.StatusRestricted},
			want:   TierRestricted,
		},
		{
			name:   "active unverified",
			member: memberdomain.Member{Status: memberdomain.StatusActive},
			want:   TierRestricted,
		},
		{
			name:   "active verified without entitlement",
			member: memberdomain.Member{Status: memberdomain.StatusActive, Verified: true},
			want:   TierVerified,
		},
		{
			name: "active verified with entitlement",
			member: memberdomain.Member{
				Status:               memberdomain.StatusActive,
				Verified:             true,
				HasActiveEntitlement: true,
			},
			want: TierMember,
		},
		{
			name:   "admin",
			member: memberdomain.Member{Status: memberdomain.StatusAdmin},
			want:   TierAdmin,
		},
		{
			name:   "owner",
			member: memberdomain.Member{Status: memberdomain.StatusOwner},
			want:   TierOwner,
		},
		{
			name:   "left member falls to restricted",
			member: memberdomain.Member{Status: memberdomain.StatusLeft, Verified: true},
			want:   TierRestricted,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := DeriveTier(tc.member); got != tc.want {
				t.Fatalf("expected tier %s, got %s", tc.want, got)
			}
		})
	}
}

func TestDeriveBannedMemberHasNoCapabilities(t *testing.T) {
	reason := memberdomain.ReasonBanned
	now := time.Now()
	banned := memberdomain.Member{
		Status:        memberdomain.StatusRemoved,
		Verified:      true,
		RemovalReason: &reason,
		LeftAt:        &now,
	}

	set := Derive(banned)
	if set.Tier != TierRestricted {
		t.Fatalf("expected restricted tier, got %s", set.Tier)
	}
	if set.CanPost || set.CanShareMedia || set.CanPoll {
		t.Fatalf("expected no capabilities, got %+v", set)
	}
	if len(set.Sections) != 0 {
		t.Fatalf("expected no sections, got %v", set.Sections)
	}
}

func TestGrantsReturnsIndependentSectionSlices(t *testing.T) {
	first := Grants(TierMember)
	first.Sections[0] = "mutated"

	second := Grants(TierMember)
	if second.Sections[0] == "mutated" {
		t.Fatal("Grants leaked a shared sections slice")
	}
}

func TestValidatePromotion(t *testing.T) {
	tests := []struct {
		name      string
		current   Tier
		requested Tier
		actor     Tier
		wantErr   error
	}{
		{
			name:      "no-op when requested at current",
			current:   TierMember,
			requested: TierMember,
			actor:     TierOwner,
			wantErr:   ErrPromotionNoOp,
		},
		{
			name:      "no-op when requested below current",
			current:   TierModerator,
			requested: TierMember,
			actor:     TierOwner,
			wantErr:   ErrPromotionNoOp,
		},
		{
			name:      "owner may grant anything",
			current:   TierMember,
			requested: TierAdmin,
			actor:     TierOwner,
		},
		{
			name:      "admin cannot create admins",
			current:   TierMember,
			requested: TierAdmin,
			actor:     TierAdmin,
			wantErr:   ErrAdminCreationOnly,
		},
		{
			name:      "target at actor tier denied",
			current:   TierAdmin,
			requested: TierOwner,
			actor:     TierAdmin,
			wantErr:   ErrAdminCreationOnly,
		},
		{
			name:      "target not below actor",
			current:   TierVerified,
			requested: TierMember,
			actor:     TierVerified,
			wantErr:   ErrTargetNotBelow,
		},
		{
			name:      "requested at actor tier denied",
			current:   TierMember,
			requested: TierModerator,
			actor:     TierModerator,
			wantErr:   ErrTierExceedsActor,
		},
		{
			name:      "admin may raise member to moderator",
			current:   TierMember,
			requested: TierModerator,
			actor:     TierAdmin,
		},
		{
			name:      "owner may elevate an admin",
			current:   TierAdmin,
			requested: TierOwner,
			actor:     TierOwner,
		},
		{
			name:      "moderator cannot touch a peer",
			current:   TierModerator,
			requested: TierAdmin,
			actor:     TierModerator,
			wantErr:   ErrAdminCreationOnly,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidatePromotion(tc.current, tc.requested, tc.actor)
			if tc.wantErr == nil {
				if err != nil {
					t.Fatalf("expected promotion allowed, got %v", err)
				}
				return
			}
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestDiffReportsTierMove(t *testing.T) {
	before := memberdomain.Member{Status: memberdomain.StatusActive, Verified: true}
	after := before
	after.HasActiveEntitlement = true

	change, moved := Diff(before, after)
	if !moved {
		t.Fatal("expected a tier move")
	}
	if change.Before.Tier != TierVerified || change.After.Tier != TierMember {
		t.Fatalf("unexpected change %s -> %s", change.Before.Tier, change.After.Tier)
	}

	if _, moved := Diff(before, before); moved {
		t.Fatal("expected no tier move for identical snapshots")
	}
}

func TestShouldNotifyOperators(t *testing.T) {
	m := memberdomain.Member{Status: memberdomain.StatusActive, Verified: true}
	if !ShouldNotifyOperators(m) {
		t.Fatal("expected notification on first verification")
	}
	m.VerifiedNotified = true
	if ShouldNotifyOperators(m) {
		t.Fatal("expected no notification once latched")
	}
}

func TestParseTier(t *testing.T) {
	tier, err := ParseTier(" Admin ")
	if err != nil {
		t.Fatalf("parse tier: %v", err)
	}
	if tier != TierAdmin {
		t.Fatalf("expected admin, got %s", tier)
	}

	if _, err := ParseTier("sovereign"); !errors.Is(err, ErrUnknownTier) {
		t.Fatalf("expected ErrUnknownTier, got %v", err)
	}
}
