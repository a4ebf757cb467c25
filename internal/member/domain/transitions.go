package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Transitions return a new Member value instead of mutating in place, so a
// decision computed from one snapshot can never leak into another. The
// repository bumps Version when the replacement is persisted.

// NewMember creates a provisionally admitted member.
func NewMember(id snowflake.ID, externalID, displayName string, now time.Time) Member {
	return Member{
		ID:          id,
		ExternalID:  externalID,
		DisplayName: displayName,
		Status:      StatusRestricted,
		JoinedAt:    now,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Reactivate re-admits a member out of a terminal state. The acceptance
// window restarts from now.
func (m Member) Reactivate(displayName string, now time.Time) (Member, error) {
	if !m.Out() {
		return m, ErrNotReadmittable
	}
	next := m
	next.Status = StatusRestricted
	next.DisplayName = displayName
	next.Verified = false
	next.VerifiedNotified = false
	next.HasActiveEntitlement = false
	next.EntitlementPlan = nil
	next.EntitlementLapsedAt = nil
	next.JoinedAt = now
	next.LeftAt = nil
	next.RemovalReason = nil
	next.UpdatedAt = now
	return next, nil
}

// AcceptRules moves a restricted member to active, provided the acceptance
// window is still open.
func (m Member) AcceptRules(now time.Time, window time.Duration) (Member, error) {
	if m.Status == StatusActive {
		return m, ErrAlreadyActive
	}
	if m.Status != StatusRestricted {
		return m, ErrNotRestricted
	}
	if m.AcceptanceWindowLapsed(now, window) {
		return m, ErrAcceptanceWindowClosed
	}
	next := m
	next.Status = StatusActive
	next.LastActivityAt = &now
	next.UpdatedAt = now
	return next, nil
}

// MarkVerified records a successful identity verification.
func (m Member) MarkVerified(identityNumber string, now time.Time) Member {
	next := m
	next.Verified = true
	next.IdentityNumber = identityNumber
	next.UpdatedAt = now
	return next
}

// MarkOperatorsNotified latches the one-time verification notification.
func (m Member) MarkOperatorsNotified(now time.Time) Member {
	next := m
	next.VerifiedNotified = true
	next.UpdatedAt = now
	return next
}

// SetEntitlement applies the latest CRM contract status. The first
// transition to inactive records when the entitlement lapsed.
func (m Member) SetEntitlement(active bool, plan string, now time.Time) Member {
	next := m
	next.HasActiveEntitlement = active
	if plan != "" {
		next.EntitlementPlan = &plan
	}
	if active {
		next.EntitlementLapsedAt = nil
	} else if m.HasActiveEntitlement || m.EntitlementLapsedAt == nil {
		next.EntitlementLapsedAt = &now
	}
	next.UpdatedAt = now
	return next
}

// CanBeRemoved is the automated-removal precondition. ErrAlreadyOut marks
// the no-op case; callers treat it as success without a state change.
func (m Member) CanBeRemoved() error {
	if m.Out() {
		return ErrAlreadyOut
	}
	if m.Protected() {
		return ErrProtectedMember
	}
	return nil
}

// Remove transitions the member to removed with the given reason.
func (m Member) Remove(reason string, now time.Time) (Member, error) {
	if err := m.CanBeRemoved(); err != nil {
		return m, err
	}
	next := m
	next.Status = StatusRemoved
	next.RemovalReason = &reason
	next.LeftAt = &now
	next.UpdatedAt = now
	return next, nil
}

// ElevateToAdmin records a manual promotion into channel administration.
func (m Member) ElevateToAdmin(now time.Time) (Member, error) {
	if m.Out() {
		return m, ErrAlreadyOut
	}
	next := m
	next.Status = StatusAdmin
	next.UpdatedAt = now
	return next, nil
}

// Leave records a voluntary departure.
func (m Member) Leave(now time.Time) (Member, error) {
	if m.Out() {
		return m, ErrAlreadyOut
	}
	next := m
	next.Status = StatusLeft
	next.LeftAt = &now
	next.UpdatedAt = now
	return next, nil
}

// AddWarning increments the moderation warning counter.
func (m Member) AddWarning(now time.Time) Member {
	next := m
	next.WarningCount++
	next.UpdatedAt = now
	return next
}

// Touch records member activity.
func (m Member) Touch(now time.Time) Member {
	next := m
	next.LastActivityAt = &now
	next.UpdatedAt = now
	return next
}
