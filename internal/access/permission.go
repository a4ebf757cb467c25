// Package access holds the pure access-control rule engine: tier ordering,
// permission derivation and promotion checks. Nothing here performs I/O, so
// every function is safe from any goroutine.
package access

import (
	"github.com/gosimple/slug"
	memberdomain "github.com/velvetlounge/gatekeeper/internal/member/domain"
)

// Section keys for the channel areas a permission set can expose.
var (
	SectionRules     = slug.Make("House Rules")
	SectionLounge    = slug.Make("Main Lounge")
	SectionMedia     = slug.Make("Media Floor")
	SectionPolls     = slug.Make("Polls")
	SectionBackstage = slug.Make("Backstage")
)

var allSections = []string{SectionRules, SectionLounge, SectionMedia, SectionPolls, SectionBackstage}

// PermissionSet is an immutable capability snapshot for one tier. It is
// always derived fresh from the member record, never stored.
type PermissionSet struct {
	Tier          Tier
	CanPost       bool
	CanShareMedia bool
	CanPoll       bool
	Sections      []string
}

var tierGrants = map[Tier]PermissionSet{
	TierRestricted: {Tier: TierRestricted, Sections: []string{SectionRules}},
	TierVerified:   {Tier: TierVerified, Sections: []string{SectionRules}},
	TierMember:     {Tier: TierMember, CanPost: true, CanShareMedia: true, CanPoll: true, Sections: allSections},
	TierModerator:  {Tier: TierModerator, CanPost: true, CanShareMedia: true, CanPoll: true, Sections: allSections},
	TierAdmin:      {Tier: TierAdmin, CanPost: true, CanShareMedia: true, CanPoll: true, Sections: allSections},
	TierOwner:      {Tier: TierOwner, CanPost: true, CanShareMedia: true, CanPoll: true, Sections: allSections},
}

// Grants returns the fixed capability set for a tier.
func Grants(tier Tier) PermissionSet {
	set, ok := tierGrants[tier]
	if !ok {
		set = tierGrants[TierRestricted]
	}
	out := set
	out.Sections = append([]string(nil), set.Sections...)
	return out
}

// Derive maps a member record to its authoritative permission set. A banned
// member holds zero capabilities and sees nothing; the same applies to any
// terminal state.
func Derive(m memberdomain.Member) PermissionSet {
	if m.Banned() || m.Out() {
		return PermissionSet{Tier: TierRestricted}
	}
	return Grants(DeriveTier(m))
}

// DeriveTier computes the tier floor purely from member state.
func DeriveTier(m memberdomain.Member) Tier {
	switch m.Status {
	case memberdomain.StatusOwner:
		return TierOwner
	case memberdomain.StatusAdmin:
		return TierAdmin
	case memberdomain.StatusActive:
		if m.Verified && m.HasActiveEntitlement {
			return TierMember
		}
		if m.Verified {
			return TierVerified
		}
		return TierRestricted
	default:
		return TierRestricted
	}
}

// CanGrantElevatedAccess reports whether a member qualifies for the full
// member tier.
func CanGrantElevatedAccess(m memberdomain.Member) bool {
	return m.Status == memberdomain.StatusActive &&
		m.Verified &&
		m.HasActiveEntitlement &&
		!m.Banned()
}

// ShouldNotifyOperators is true exactly on the first successful
// verification. Repeated contract re-checks stay silent.
func ShouldNotifyOperators(m memberdomain.Member) bool {
	return m.Verified && !m.VerifiedNotified
}

// ValidatePromotion decides whether an actor may raise a target from
// current to requested. Owners may do anything; everyone else acts only on
// targets strictly below their own tier and never grants at or above it.
// A request that would not strictly increase privilege is ErrPromotionNoOp,
// reported apart from denial so callers can treat it as harmless.
func ValidatePromotion(current, requested, actor Tier) error {
	if requested <= current {
		return ErrPromotionNoOp
	}
	if actor == TierOwner {
		return nil
	}
	if requested >= TierAdmin {
		return ErrAdminCreationOnly
	}
	if current >= actor {
		return ErrTargetNotBelow
	}
	if requested >= actor {
		return ErrTierExceedsActor
	}
	return nil
}

// Change captures before/after permission states for one transition.
type Change struct {
	Before PermissionSet
	After  PermissionSet
}

// Diff derives the permission change between two member snapshots and
// reports whether the tier actually moved.
func Diff(before, after memberdomain.Member) (Change, bool) {
	change := Change{Before: Derive(before), After: Derive(after)}
	return change, change.Before.Tier != change.After.Tier
}
