// Package domain defines the orchestration workflows that tie the member,
// invite, access and event modules together. Every workflow is idempotent:
// re-delivered triggers resolve to no-ops, and entity mutations commit only
// after the external action they depend on is confirmed.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/velvetlounge/gatekeeper/internal/access"
	memberdomain "github.com/velvetlounge/gatekeeper/internal/member/domain"
)

var (
	ErrIssuerNotAllowed  = errors.New("issuer lacks the authority to invite")
	ErrTierNotAssignable = errors.New("tier is derived from lifecycle state and cannot be granted")
)

type IntakeRequest struct {
	ExternalID  string `json:"external_id"`
	DisplayName string `json:"display_name"`
	// InviteTokenID, when set, must name a valid token held by this member.
	// Used for re-admission of members in a terminal state.
	InviteTokenID string `json:"invite_token_id,omitempty"`
}

type IntakeResult struct {
	Member memberdomain.Member
	// Readmitted is true when an existing terminal record was reactivated
	// instead of a new one created.
	Readmitted bool
	// Applied is false when the member was already in and nothing changed.
	Applied bool
}

type IssueInviteRequest struct {
	IssuerExternalID    string         `json:"issuer_external_id"`
	RecipientExternalID string         `json:"recipient_external_id"`
	TTL                 *time.Duration `json:"ttl,omitempty"`
	UseLimit            *int           `json:"use_limit,omitempty"`
}

// SweepReport summarizes one verification sweep run.
type SweepReport struct {
	Scanned       int `json:"scanned"`
	Removed       int `json:"removed"`
	AccessGranted int `json:"access_granted"`
	AccessRevoked int `json:"access_revoked"`
	Failed        int `json:"failed"`
}

// CleanupReport summarizes one cleanup run.
type CleanupReport struct {
	TokensLapsed   int `json:"tokens_lapsed"`
	MembersRemoved int `json:"members_removed"`
	Failed         int `json:"failed"`
}

type Service interface {
	// Intake admits a member provisionally, reactivating a terminal record
	// when one exists. A supplied invite token is consumed first; a failed
	// consumption leaves the member record untouched.
	Intake(ctx context.Context, req IntakeRequest) (IntakeResult, error)
	// RulesAccepted activates a restricted member. Already-active members
	// report applied=false with no error.
	RulesAccepted(ctx context.Context, externalID string) (memberdomain.Member, bool, error)
	// Verify records identity verification and sends the one-time operator
	// notification before the latch is persisted.
	Verify(ctx context.Context, externalID, identityNumber string) (memberdomain.Member, error)
	// Promote applies a manual tier elevation after the promotion rules pass.
	Promote(ctx context.Context, actorExternalID, targetExternalID string, requested access.Tier) (memberdomain.Member, error)
	// Leave records a voluntary departure.
	Leave(ctx context.Context, externalID string) (memberdomain.Member, error)
	// Permissions returns the authoritative derived set for a member.
	Permissions(ctx context.Context, externalID string) (access.PermissionSet, memberdomain.Member, error)
	// IssueInvite checks the issuer's authority and delegates to the invite
	// service, which rejects recipients that already hold an active token.
	IssueInvite(ctx context.Context, req IssueInviteRequest) (string, error)
	// VerificationSweep removes members whose acceptance window lapsed and
	// re-checks entitlements against the CRM. Per-item failures never abort
	// the batch; a lookup failure keeps the member's last known entitlement.
	VerificationSweep(ctx context.Context) (SweepReport, error)
	// Cleanup persists terminal statuses for lapsed invite tokens and
	// removes members whose entitlement has been inactive past the grace
	// period.
	Cleanup(ctx context.Context) (CleanupReport, error)
}
