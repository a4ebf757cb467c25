package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/velvetlounge/gatekeeper/internal/clock"
	eventdomain "github.com/velvetlounge/gatekeeper/internal/event/domain"
	"github.com/velvetlounge/gatekeeper/pkg/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (eventdomain.Service, *gorm.DB) {
	t.Helper()
	conn, err := db.NewTest()
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := conn.AutoMigrate(&eventdomain.AccessEvent{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	svc := NewService(ServiceParam{
		DB:    conn,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clock.NewFakeClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)),
	})
	return svc, conn
}

func TestEmitDeduplicatesByKey(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()

	req := eventdomain.EmitRequest{
		EntityID:  "42",
		EventType: eventdomain.TypeMemberAdmitted,
		Payload:   map[string]any{"external_id": "ext-42"},
		DedupeKey: "member.admitted:42:1",
	}
	if err := svc.Emit(ctx, req); err != nil {
		t.Fatalf("first emit: %v", err)
	}
	if err := svc.Emit(ctx, req); err != nil {
		t.Fatalf("duplicate emit should be a silent no-op, got %v", err)
	}

	var count int64
	if err := conn.Model(&eventdomain.AccessEvent{}).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly one stored event, got %d", count)
	}
}

func TestEmitWithoutDedupeKeyAppendsEveryTime(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()

	req := eventdomain.EmitRequest{
		EntityID:  "42",
		EventType: eventdomain.TypeTaskCompleted,
	}
	if err := svc.Emit(ctx, req); err != nil {
		t.Fatalf("emit: %v", err)
	}
	if err := svc.Emit(ctx, req); err != nil {
		t.Fatalf("emit: %v", err)
	}

	var count int64
	if err := conn.Model(&eventdomain.AccessEvent{}).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected two stored events, got %d", count)
	}
}

func TestListByEntityReturnsCommitOrder(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	types := []string{
		eventdomain.TypeMemberAdmitted,
		eventdomain.TypeMemberActivated,
		eventdomain.TypeAccessGranted,
	}
	for i, eventType := range types {
		err := svc.Emit(ctx, eventdomain.EmitRequest{
			EntityID:  "42",
			EventType: eventType,
			DedupeKey: eventType + ":42",
		})
		if err != nil {
			t.Fatalf("emit %d: %v", i, err)
		}
	}
	if err := svc.Emit(ctx, eventdomain.EmitRequest{EntityID: "other", EventType: eventdomain.TypeMemberAdmitted}); err != nil {
		t.Fatalf("emit other entity: %v", err)
	}

	events, err := svc.ListByEntity(ctx, "42")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(events) != len(types) {
		t.Fatalf("expected %d events, got %d", len(types), len(events))
	}
	for i, eventType := range types {
		if events[i].EventType != eventType {
			t.Fatalf("position %d: expected %s, got %s", i, eventType, events[i].EventType)
		}
	}
}
