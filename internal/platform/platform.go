// Package platform defines the chat-platform contract consumed by the
// lifecycle workflows. Every operation is at-least-once safe: re-invoking
// an already-applied action is a no-op on the platform side.
package platform

import (
	"context"
	"errors"
	"time"
)

var ErrNotConfigured = errors.New("chat platform is not configured")

// InviteLinkParams bounds a platform invite link.
type InviteLinkParams struct {
	ExpiresAt time.Time
	UseLimit  int
}

type Client interface {
	SendMessage(ctx context.Context, target, text string) error
	RemoveMember(ctx context.Context, groupID, memberExternalID string) error
	CreateInviteLink(ctx context.Context, groupID string, params InviteLinkParams) (string, error)
	RevokeInviteLink(ctx context.Context, url string) error
	ListAdmins(ctx context.Context, groupID string) (map[string]struct{}, error)
}
