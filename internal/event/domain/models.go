// Package domain contains the access-event outbox model.
package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Event types exposed to collaborators and operators.
const (
	TypeMemberAdmitted  = "member.admitted"
	TypeMemberActivated = "member.activated"
	TypeMemberRemoved   = "member.removed"
	TypeAccessGranted   = "access.granted"
	TypeAccessRevoked   = "access.revoked"
	TypeInviteIssued    = "invite.issued"
	TypeInviteConsumed  = "invite.consumed"
	TypeInviteRevoked   = "invite.revoked"
	TypeTaskDue         = "task.due"
	TypeTaskCompleted   = "task.completed"
	TypeTaskFailed      = "task.failed"
)

// AccessEvent captures outbox events for lifecycle workflows. Rows are
// immutable once written; per-entity delivery order follows commit order.
type AccessEvent struct {
	ID          snowflake.ID      `gorm:"primaryKey"`
	EntityID    string            `gorm:"type:text;not null;index"`
	EventType   string            `gorm:"type:text;not null"`
	Payload     datatypes.JSONMap `gorm:"type:jsonb;not null"`
	DedupeKey   *string           `gorm:"type:text;uniqueIndex"`
	Published   bool              `gorm:"not null;default:false"`
	PublishedAt *time.Time        `gorm:""`
	OccurredAt  time.Time         `gorm:"not null"`
	CreatedAt   time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (AccessEvent) TableName() string { return "access_events" }

type EmitRequest struct {
	EntityID  string
	EventType string
	Payload   map[string]any
	// DedupeKey makes re-delivered triggers emit at most once.
	DedupeKey string
}

type Service interface {
	// Emit appends an event; a dedupe-key collision is a silent no-op.
	Emit(ctx context.Context, req EmitRequest) error
	ListByEntity(ctx context.Context, entityID string) ([]AccessEvent, error)
}
