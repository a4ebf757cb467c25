// Package domain contains the member entity and its lifecycle transitions.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// MemberStatus represents a member's standing in the channel.
type MemberStatus string

const (
	StatusOwner      MemberStatus = "OWNER"
	StatusAdmin      MemberStatus = "ADMIN"
	StatusActive     MemberStatus = "ACTIVE"
	StatusRestricted MemberStatus = "RESTRICTED"
	StatusLeft       MemberStatus = "LEFT"
	StatusRemoved    MemberStatus = "REMOVED"
)

// Removal reasons recorded on automated transitions.
const (
	ReasonRulesNotAccepted    = "rules_not_accepted"
	ReasonEntitlementInactive = "entitlement_inactive"
	ReasonBanned              = "banned"
)

// Member captures a channel member. Terminal records are never deleted;
// re-admission reactivates the same row.
type Member struct {
	ID                   snowflake.ID `gorm:"primaryKey"`
	ExternalID           string       `gorm:"type:text;not null;uniqueIndex"`
	DisplayName          string       `gorm:"type:text"`
	IdentityNumber       string       `gorm:"type:text"`
	Status               MemberStatus `gorm:"type:text;not null;index"`
	Verified             bool         `gorm:"not null;default:false"`
	VerifiedNotified     bool         `gorm:"not null;default:false"`
	HasActiveEntitlement bool         `gorm:"not null;default:false"`
	EntitlementPlan      *string      `gorm:"type:text"`
	EntitlementLapsedAt  *time.Time   `gorm:""`
	JoinedAt             time.Time    `gorm:"not null"`
	LeftAt               *time.Time   `gorm:""`
	RemovalReason        *string      `gorm:"type:text"`
	LastActivityAt       *time.Time   `gorm:""`
	WarningCount         int          `gorm:"not null;default:0"`
	Version              int64        `gorm:"not null;default:1"`
	CreatedAt            time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt            time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Member) TableName() string { return "members" }

// Banned reports whether the member was removed for a ban.
func (m Member) Banned() bool {
	return m.Status == StatusRemoved && m.RemovalReason != nil && *m.RemovalReason == ReasonBanned
}

// Out reports whether the member is in a terminal state.
func (m Member) Out() bool {
	return m.Status == StatusLeft || m.Status == StatusRemoved
}

// Protected reports whether automated rules may never remove this member.
func (m Member) Protected() bool {
	return m.Status == StatusOwner || m.Status == StatusAdmin
}

// AcceptanceDeadline is the instant the rules-acceptance window closes.
func (m Member) AcceptanceDeadline(window time.Duration) time.Time {
	return m.JoinedAt.Add(window)
}

// AcceptanceWindowLapsed reports whether the window closed before now.
func (m Member) AcceptanceWindowLapsed(now time.Time, window time.Duration) bool {
	return now.After(m.AcceptanceDeadline(window))
}

// Validate checks the record invariants that must hold in any state.
func (m Member) Validate() error {
	if (m.RemovalReason != nil) != (m.Status == StatusRemoved) {
		return ErrInvariantRemovalReason
	}
	if (m.LeftAt != nil) != m.Out() {
		return ErrInvariantLeftAt
	}
	if m.WarningCount < 0 {
		return ErrInvariantWarnings
	}
	return nil
}
