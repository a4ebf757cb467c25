package domain

import (
	"context"
	"time"
)

type IssueRequest struct {
	RecipientID string         `json:"recipient_id"`
	IssuerID    string         `json:"issuer_id"`
	TTL         *time.Duration `json:"ttl,omitempty"`
	UseLimit    *int           `json:"use_limit,omitempty"`
}

type Service interface {
	// Issue creates a token scoped to one recipient. The platform link is
	// created before the token is persisted, so a stored token always has
	// a working URL.
	Issue(ctx context.Context, req IssueRequest) (Token, error)
	// Validate runs the lazy-expiry check and persists any terminal
	// transition it observes.
	Validate(ctx context.Context, tokenID string) (bool, error)
	Consume(ctx context.Context, tokenID, memberID string) (Token, error)
	Revoke(ctx context.Context, tokenID, reason string) error
	// SweepLapsed persists terminal statuses for all lapsed active tokens
	// and revokes their platform links. Per-token failures do not abort
	// the batch.
	SweepLapsed(ctx context.Context, limit int) (int, error)
}
