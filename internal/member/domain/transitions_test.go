package domain

import (
	"errors"
	"testing"
	"time"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

const window = 24 * time.Hour

func TestNewMemberStartsRestricted(t *testing.T) {
	m := NewMember(1, "ext-1", "Ada", t0)
	if m.Status != StatusRestricted {
		t.Fatalf("expected restricted, got %s", m.Status)
	}
	if m.Version != 1 {
		t.Fatalf("expected version 1, got %d", m.Version)
	}
	if err := m.Validate(); err != nil {
		t.Fatalf("new member violates invariants: %v", err)
	}
}

func TestAcceptRulesWithinWindow(t *testing.T) {
	m := NewMember(1, "ext-1", "Ada", t0)

	next, err := m.AcceptRules(t0.Add(time.Hour), window)
	if err != nil {
		t.Fatalf("accept rules: %v", err)
	}
	if next.Status != StatusActive {
		t.Fatalf("expected active, got %s", next.Status)
	}
	if m.Status != StatusRestricted {
		t.Fatal("transition mutated the original snapshot")
	}

	if _, err := next.AcceptRules(t0.Add(2*time.Hour), window); !errors.Is(err, ErrAlreadyActive) {
		t.Fatalf("expected ErrAlreadyActive, got %v", err)
	}
}

func TestAcceptRulesAfterWindowClosed(t *testing.T) {
	m := NewMember(1, "ext-1", "Ada", t0)

	if _, err := m.AcceptRules(t0.Add(window+time.Second), window); !errors.Is(err, ErrAcceptanceWindowClosed) {
		t.Fatalf("expected ErrAcceptanceWindowClosed, got %v", err)
	}
	// Exactly at the deadline the window is still open.
	if _, err := m.AcceptRules(t0.Add(window), window); err != nil {
		t.Fatalf("expected acceptance at deadline, got %v", err)
	}
}

func TestRemoveRecordsReasonAndTimestamp(t *testing.T) {
	m := NewMember(1, "ext-1", "Ada", t0)

	removed, err := m.Remove(ReasonRulesNotAccepted, t0.Add(window+time.Hour))
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if removed.Status != StatusRemoved {
		t.Fatalf("expected removed, got %s", removed.Status)
	}
	if removed.RemovalReason == nil || *removed.RemovalReason != ReasonRulesNotAccepted {
		t.Fatalf("expected removal reason recorded, got %v", removed.RemovalReason)
	}
	if removed.LeftAt == nil {
		t.Fatal("expected left timestamp")
	}
	if err := removed.Validate(); err != nil {
		t.Fatalf("removed member violates invariants: %v", err)
	}

	if _, err := removed.Remove(ReasonRulesNotAccepted, t0); !errors.Is(err, ErrAlreadyOut) {
		t.Fatalf("expected ErrAlreadyOut, got %v", err)
	}
}

func TestRemoveProtectedStatuses(t *testing.T) {
	for _, status := range []MemberStatus{StatusOwner, StatusAdmin} {
		m := Member{ID: 1, Status: status}
		if _, err := m.Remove(ReasonEntitlementInactive, t0); !errors.Is(err, ErrProtectedMember) {
			t.Fatalf("status %s: expected ErrProtectedMember, got %v", status, err)
		}
	}
}

func TestReactivateResetsLifecycleState(t *testing.T) {
	m := NewMember(1, "ext-1", "Ada", t0)
	m.Verified = true
	m.VerifiedNotified = true
	m.HasActiveEntitlement = true

	left, err := m.Leave(t0.Add(time.Hour))
	if err != nil {
		t.Fatalf("leave: %v", err)
	}

	rejoined := t0.Add(48 * time.Hour)
	next, err := left.Reactivate("Ada Again", rejoined)
	if err != nil {
		t.Fatalf("reactivate: %v", err)
	}
	if next.Status != StatusRestricted {
		t.Fatalf("expected restricted after re-admission, got %s", next.Status)
	}
	if next.Verified || next.VerifiedNotified || next.HasActiveEntitlement {
		t.Fatalf("expected cleared verification state, got %+v", next)
	}
	if !next.JoinedAt.Equal(rejoined) {
		t.Fatalf("expected acceptance window restart at %v, got %v", rejoined, next.JoinedAt)
	}
	if next.LeftAt != nil || next.RemovalReason != nil {
		t.Fatal("expected terminal markers cleared")
	}
	if err := next.Validate(); err != nil {
		t.Fatalf("reactivated member violates invariants: %v", err)
	}
}

func TestReactivateRequiresTerminalState(t *testing.T) {
	m := NewMember(1, "ext-1", "Ada", t0)
	if _, err := m.Reactivate("Ada", t0); !errors.Is(err, ErrNotReadmittable) {
		t.Fatalf("expected ErrNotReadmittable, got %v", err)
	}
}

func TestSetEntitlementRecordsFirstLapse(t *testing.T) {
	m := NewMember(1, "ext-1", "Ada", t0)
	m.HasActiveEntitlement = true

	lapsedAt := t0.Add(time.Hour)
	lapsed := m.SetEntitlement(false, "", lapsedAt)
	if lapsed.EntitlementLapsedAt == nil || !lapsed.EntitlementLapsedAt.Equal(lapsedAt) {
		t.Fatalf("expected lapse recorded at %v, got %v", lapsedAt, lapsed.EntitlementLapsedAt)
	}

	// A repeated inactive observation keeps the original lapse instant.
	again := lapsed.SetEntitlement(false, "", lapsedAt.Add(time.Hour))
	if !again.EntitlementLapsedAt.Equal(lapsedAt) {
		t.Fatalf("expected lapse timestamp preserved, got %v", again.EntitlementLapsedAt)
	}

	restored := again.SetEntitlement(true, "gold", lapsedAt.Add(2*time.Hour))
	if restored.EntitlementLapsedAt != nil {
		t.Fatal("expected lapse cleared on restore")
	}
	if restored.EntitlementPlan == nil || *restored.EntitlementPlan != "gold" {
		t.Fatalf("expected plan recorded, got %v", restored.EntitlementPlan)
	}
}

func TestBannedDetection(t *testing.T) {
	m := NewMember(1, "ext-1", "Ada", t0)
	banned, err := m.Remove(ReasonBanned, t0.Add(time.Hour))
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if !banned.Banned() {
		t.Fatal("expected banned")
	}

	removed, err := m.Remove(ReasonRulesNotAccepted, t0.Add(time.Hour))
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if removed.Banned() {
		t.Fatal("rules-lapse removal is not a ban")
	}
}

func TestValidateInvariants(t *testing.T) {
	reason := ReasonBanned
	now := t0

	bad := Member{Status: StatusActive, RemovalReason: &reason}
	if err := bad.Validate(); !errors.Is(err, ErrInvariantRemovalReason) {
		t.Fatalf("expected removal-reason invariant, got %v", err)
	}

	bad = Member{Status: StatusActive, LeftAt: &now}
	if err := bad.Validate(); !errors.Is(err, ErrInvariantLeftAt) {
		t.Fatalf("expected left-at invariant, got %v", err)
	}

	bad = Member{Status: StatusActive, WarningCount: -1}
	if err := bad.Validate(); !errors.Is(err, ErrInvariantWarnings) {
		t.Fatalf("expected warning invariant, got %v", err)
	}
}
