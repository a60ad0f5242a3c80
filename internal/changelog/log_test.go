package changelog

import (
	"context"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func newTestLog(t *testing.T) *Log {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&ChangeEntry{}); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}
	log, err := NewLog(LogConfig{
		Database: db,
		Clock:    func() time.Time { return time.Unix(1700000000, 0) },
	})
	if err != nil {
		t.Fatalf("failed to construct log: %v", err)
	}
	return log
}

func TestAppendAssignsMonotonicIDs(t *testing.T) {
	log := newTestLog(t)
	ctx := context.Background()

	first, err := log.Append(ctx, EntityTypeNote, 1, ActionCreate)
	if err != nil {
		t.Fatalf("unexpected append error: %v", err)
	}
	second, err := log.Append(ctx, EntityTypeNote, 1, ActionUpdate)
	if err != nil {
		t.Fatalf("unexpected append error: %v", err)
	}
	if second <= first {
		t.Fatalf("expected monotonic ids, got %d then %d", first, second)
	}
}

func TestListPendingPreservesInsertionOrder(t *testing.T) {
	log := newTestLog(t)
	ctx := context.Background()

	mutations := []struct {
		entityType EntityType
		entityID   uint
		action     Action
	}{
		{EntityTypeNote, 7, ActionCreate},
		{EntityTypeCalendarEvent, 3, ActionCreate},
		{EntityTypeNote, 7, ActionUpdate},
		{EntityTypeNote, 7, ActionDelete},
	}
	for _, mutation := range mutations {
		if _, err := log.Append(ctx, mutation.entityType, mutation.entityID, mutation.action); err != nil {
			t.Fatalf("unexpected append error: %v", err)
		}
	}

	pending, err := log.ListPending(ctx)
	if err != nil {
		t.Fatalf("unexpected list error: %v", err)
	}
	if len(pending) != len(mutations) {
		t.Fatalf("expected %d pending entries, got %d", len(mutations), len(pending))
	}
	for index, entry := range pending {
		if entry.Action != mutations[index].action || entry.EntityType != mutations[index].entityType {
			t.Fatalf("entry %d out of order: %+v", index, entry)
		}
	}
}

func TestMarkSyncedIsIdempotent(t *testing.T) {
	log := newTestLog(t)
	ctx := context.Background()

	var ids []uint
	for i := 0; i < 3; i++ {
		id, err := log.Append(ctx, EntityTypeNote, uint(i+1), ActionCreate)
		if err != nil {
			t.Fatalf("unexpected append error: %v", err)
		}
		ids = append(ids, id)
	}

	if err := log.MarkSynced(ctx, ids[:2]); err != nil {
		t.Fatalf("unexpected mark error: %v", err)
	}
	// Overlapping second call must behave like marking the union once.
	if err := log.MarkSynced(ctx, ids); err != nil {
		t.Fatalf("unexpected mark error: %v", err)
	}

	count, err := log.PendingCount(ctx)
	if err != nil {
		t.Fatalf("unexpected count error: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no pending entries, got %d", count)
	}

	if err := log.MarkSynced(ctx, ids); err != nil {
		t.Fatalf("re-marking synced ids should be a no-op: %v", err)
	}
}

func TestMarkSyncedIgnoresUnknownIDs(t *testing.T) {
	log := newTestLog(t)
	ctx := context.Background()

	if err := log.MarkSynced(ctx, []uint{404, 405}); err != nil {
		t.Fatalf("unexpected error marking unknown ids: %v", err)
	}
	if err := log.MarkSynced(ctx, nil); err != nil {
		t.Fatalf("unexpected error marking empty set: %v", err)
	}
}

func TestByEntityReturnsFullHistory(t *testing.T) {
	log := newTestLog(t)
	ctx := context.Background()

	if _, err := log.Append(ctx, EntityTypeNote, 9, ActionCreate); err != nil {
		t.Fatalf("unexpected append error: %v", err)
	}
	id, err := log.Append(ctx, EntityTypeNote, 9, ActionUpdate)
	if err != nil {
		t.Fatalf("unexpected append error: %v", err)
	}
	if _, err := log.Append(ctx, EntityTypeCalendar, 9, ActionCreate); err != nil {
		t.Fatalf("unexpected append error: %v", err)
	}

	if err := log.MarkSynced(ctx, []uint{id}); err != nil {
		t.Fatalf("unexpected mark error: %v", err)
	}

	history, err := log.ByEntity(ctx, EntityTypeNote, 9)
	if err != nil {
		t.Fatalf("unexpected history error: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected note history of 2, got %d", len(history))
	}
	if history[0].Action != ActionCreate || history[1].Action != ActionUpdate {
		t.Fatalf("history out of order: %+v", history)
	}
	if !history[1].Synced {
		t.Fatalf("expected marked entry to remain in history as synced")
	}
}

func TestHasPendingForTracksEntityState(t *testing.T) {
	log := newTestLog(t)
	ctx := context.Background()

	id, err := log.Append(ctx, EntityTypeCalendarEvent, 5, ActionCreate)
	if err != nil {
		t.Fatalf("unexpected append error: %v", err)
	}

	pending, err := log.HasPendingFor(ctx, EntityTypeCalendarEvent, 5)
	if err != nil {
		t.Fatalf("unexpected lookup error: %v", err)
	}
	if !pending {
		t.Fatalf("expected entity to have pending changes")
	}

	if err := log.MarkSynced(ctx, []uint{id}); err != nil {
		t.Fatalf("unexpected mark error: %v", err)
	}

	pending, err = log.HasPendingFor(ctx, EntityTypeCalendarEvent, 5)
	if err != nil {
		t.Fatalf("unexpected lookup error: %v", err)
	}
	if pending {
		t.Fatalf("expected no pending changes after marking")
	}
}
