package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/velvetlounge/gatekeeper/internal/member/domain"
	"github.com/velvetlounge/gatekeeper/pkg/db"
	"gorm.io/gorm"
)

var joined = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := db.NewTest()
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := conn.AutoMigrate(&domain.Member{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return conn
}

func TestInsertAndFind(t *testing.T) {
	conn := newTestDB(t)
	repo := Provide()
	ctx := context.Background()

	member := domain.NewMember(1001, "ext-1", "Ada", joined)
	if err := repo.Insert(ctx, conn, &member); err != nil {
		t.Fatalf("insert: %v", err)
	}

	found, err := repo.FindByExternalID(ctx, conn, "ext-1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if found == nil {
		t.Fatal("expected member")
	}
	if found.ID != member.ID || found.Status != domain.StatusRestricted {
		t.Fatalf("unexpected member %+v", found)
	}

	missing, err := repo.FindByExternalID(ctx, conn, "nobody")
	if err != nil {
		t.Fatalf("find missing: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for unknown external id, got %+v", missing)
	}
}

func TestUpdateCompareAndSwap(t *testing.T) {
	conn := newTestDB(t)
	repo := Provide()
	ctx := context.Background()

	member := domain.NewMember(1001, "ext-1", "Ada", joined)
	if err := repo.Insert(ctx, conn, &member); err != nil {
		t.Fatalf("insert: %v", err)
	}

	// Two snapshots of the same row racing on version 1.
	winner := member
	loser := member

	active, err := winner.AcceptRules(joined.Add(time.Hour), 24*time.Hour)
	if err != nil {
		t.Fatalf("accept rules: %v", err)
	}
	if err := repo.Update(ctx, conn, &active); err != nil {
		t.Fatalf("winning update: %v", err)
	}
	if active.Version != 2 {
		t.Fatalf("expected version bump to 2, got %d", active.Version)
	}

	stale, err := loser.Leave(joined.Add(time.Hour))
	if err != nil {
		t.Fatalf("leave: %v", err)
	}
	if err := repo.Update(ctx, conn, &stale); !errors.Is(err, domain.ErrStaleMember) {
		t.Fatalf("expected ErrStaleMember for losing writer, got %v", err)
	}

	current, err := repo.FindByID(ctx, conn, member.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if current.Status != domain.StatusActive {
		t.Fatalf("expected winning status to persist, got %s", current.Status)
	}
}

func TestListFilters(t *testing.T) {
	conn := newTestDB(t)
	repo := Provide()
	ctx := context.Background()

	early := domain.NewMember(1, "ext-early", "Early", joined)
	late := domain.NewMember(2, "ext-late", "Late", joined.Add(10*time.Hour))
	activeMember := domain.NewMember(3, "ext-active", "Active", joined)
	activeMember.Status = domain.StatusActive
	activeMember.Verified = true

	for _, m := range []*domain.Member{&early, &late, &activeMember} {
		if err := repo.Insert(ctx, conn, m); err != nil {
			t.Fatalf("insert %s: %v", m.ExternalID, err)
		}
	}

	cutoff := joined.Add(time.Hour)
	restricted, err := repo.List(ctx, conn, domain.Filter{
		Statuses:     []domain.MemberStatus{domain.StatusRestricted},
		JoinedBefore: &cutoff,
	})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(restricted) != 1 || restricted[0].ExternalID != "ext-early" {
		t.Fatalf("expected only the early restricted member, got %+v", restricted)
	}

	verified := true
	actives, err := repo.List(ctx, conn, domain.Filter{
		Statuses: []domain.MemberStatus{domain.StatusActive},
		Verified: &verified,
	})
	if err != nil {
		t.Fatalf("list actives: %v", err)
	}
	if len(actives) != 1 || actives[0].ExternalID != "ext-active" {
		t.Fatalf("expected the verified active member, got %+v", actives)
	}
}

func TestListLapsedBefore(t *testing.T) {
	conn := newTestDB(t)
	repo := Provide()
	ctx := context.Background()

	lapsedAt := joined.Add(time.Hour)
	lapsedMember := domain.NewMember(1, "ext-lapsed", "Lapsed", joined)
	lapsedMember.Status = domain.StatusActive
	lapsedMember.EntitlementLapsedAt = &lapsedAt

	freshMember := domain.NewMember(2, "ext-fresh", "Fresh", joined)
	freshMember.Status = domain.StatusActive

	for _, m := range []*domain.Member{&lapsedMember, &freshMember} {
		if err := repo.Insert(ctx, conn, m); err != nil {
			t.Fatalf("insert %s: %v", m.ExternalID, err)
		}
	}

	inactive := false
	graceCutoff := lapsedAt.Add(72 * time.Hour)
	out, err := repo.List(ctx, conn, domain.Filter{
		Statuses:             []domain.MemberStatus{domain.StatusActive},
		HasActiveEntitlement: &inactive,
		LapsedBefore:         &graceCutoff,
	})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(out) != 1 || out[0].ExternalID != "ext-lapsed" {
		t.Fatalf("expected only the lapsed member, got %+v", out)
	}
}
