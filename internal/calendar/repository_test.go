package calendar

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/pathshala-app/pathshala/internal/changelog"
	"gorm.io/gorm"
)

func newTestRepository(t *testing.T) (*Repository, *changelog.Log) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Calendar{}, &Event{}, &changelog.ChangeEntry{}); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}

	log, err := changelog.NewLog(changelog.LogConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to construct change log: %v", err)
	}
	repository, err := NewRepository(RepositoryConfig{
		Database:  db,
		ChangeLog: log,
		Clock:     func() time.Time { return time.Unix(1700000000, 0) },
	})
	if err != nil {
		t.Fatalf("failed to construct repository: %v", err)
	}
	return repository, log
}

func classEventInput(calendarID, userID uint, start time.Time) EventInput {
	return EventInput{
		CalendarID: calendarID,
		Title:      "Unit test revision",
		Type:       EventTypeStudy,
		StartAt:    start,
		EndAt:      start.Add(time.Hour),
		UserID:     userID,
		Scope:      ScopeClass,
		ClassLevel: 8,
	}
}

func TestCreatePersonalCalendarStaysLocal(t *testing.T) {
	repository, log := newTestRepository(t)
	ctx := context.Background()

	_, err := repository.CreateCalendar(ctx, CalendarInput{
		UserID:    1,
		Name:      "My study plan",
		IsVisible: true,
		Scope:     ScopePersonal,
	})
	if err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}

	count, err := log.PendingCount(ctx)
	if err != nil {
		t.Fatalf("unexpected count error: %v", err)
	}
	if count != 0 {
		t.Fatalf("personal calendar must not be change-logged, got %d entries", count)
	}
}

func TestCreateClassCalendarIsLogged(t *testing.T) {
	repository, log := newTestRepository(t)
	ctx := context.Background()

	cal, err := repository.CreateCalendar(ctx, CalendarInput{
		UserID:     2,
		Name:       "Class 8 Science",
		IsVisible:  true,
		Scope:      ScopeClass,
		ClassLevel: 8,
		SubjectID:  3,
	})
	if err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}

	history, err := log.ByEntity(ctx, changelog.EntityTypeCalendar, cal.ID)
	if err != nil {
		t.Fatalf("unexpected history error: %v", err)
	}
	if len(history) != 1 || history[0].Action != changelog.ActionCreate {
		t.Fatalf("expected single create entry, got %+v", history)
	}
}

func TestCreateEventAlwaysLogged(t *testing.T) {
	repository, log := newTestRepository(t)
	ctx := context.Background()

	event, err := repository.CreateEvent(ctx, EventInput{
		CalendarID: 1,
		Title:      "Revise chapter 2",
		Type:       EventTypeStudy,
		StartAt:    time.Unix(1700005000, 0),
		EndAt:      time.Unix(1700008600, 0),
		UserID:     1,
		Scope:      ScopePersonal,
	})
	if err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}
	if event.SyncStatus != SyncStatusPending {
		t.Fatalf("expected pending sync status, got %q", event.SyncStatus)
	}

	history, err := log.ByEntity(ctx, changelog.EntityTypeCalendarEvent, event.ID)
	if err != nil {
		t.Fatalf("unexpected history error: %v", err)
	}
	if len(history) != 1 || history[0].Action != changelog.ActionCreate {
		t.Fatalf("expected create entry for personal event too, got %+v", history)
	}
}

func TestCanUserEditEventOnlyForCreator(t *testing.T) {
	repository, _ := newTestRepository(t)
	ctx := context.Background()

	event, err := repository.CreateEvent(ctx, classEventInput(1, 11, time.Unix(1700005000, 0)))
	if err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}

	editable, err := repository.CanUserEditEvent(ctx, event.ID, 11)
	if err != nil {
		t.Fatalf("unexpected check error: %v", err)
	}
	if !editable {
		t.Fatalf("creator must be allowed to edit")
	}

	for _, otherUser := range []uint{12, 99, 0} {
		editable, err = repository.CanUserEditEvent(ctx, event.ID, otherUser)
		if err != nil {
			t.Fatalf("unexpected check error: %v", err)
		}
		if editable {
			t.Fatalf("user %d must not be allowed to edit", otherUser)
		}
	}

	if _, err := repository.CanUserEditEvent(ctx, 4242, 11); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing event, got %v", err)
	}
}

func TestDeleteCalendarCascadesToEvents(t *testing.T) {
	repository, log := newTestRepository(t)
	ctx := context.Background()

	cal, err := repository.CreateCalendar(ctx, CalendarInput{
		UserID:     2,
		Name:       "Class 8 Maths",
		Scope:      ScopeClass,
		ClassLevel: 8,
	})
	if err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}

	var eventIDs []uint
	for i := 0; i < 2; i++ {
		event, err := repository.CreateEvent(ctx, classEventInput(cal.ID, 2, time.Unix(1700005000+int64(i)*3600, 0)))
		if err != nil {
			t.Fatalf("unexpected create error: %v", err)
		}
		eventIDs = append(eventIDs, event.ID)
	}

	if err := repository.DeleteCalendar(ctx, cal.ID); err != nil {
		t.Fatalf("unexpected delete error: %v", err)
	}

	for _, eventID := range eventIDs {
		history, err := log.ByEntity(ctx, changelog.EntityTypeCalendarEvent, eventID)
		if err != nil {
			t.Fatalf("unexpected history error: %v", err)
		}
		if len(history) != 2 || history[1].Action != changelog.ActionDelete {
			t.Fatalf("expected event %d delete to be logged, got %+v", eventID, history)
		}
	}

	history, err := log.ByEntity(ctx, changelog.EntityTypeCalendar, cal.ID)
	if err != nil {
		t.Fatalf("unexpected history error: %v", err)
	}
	if len(history) != 2 || history[1].Action != changelog.ActionDelete {
		t.Fatalf("expected calendar delete to be logged, got %+v", history)
	}
}

func TestListEventsByRangeMergesPersonalAndClass(t *testing.T) {
	repository, _ := newTestRepository(t)
	ctx := context.Background()

	base := time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC)

	// Personal event for user 1 inside the range.
	if _, err := repository.CreateEvent(ctx, EventInput{
		CalendarID: 1, Title: "own", Type: EventTypeStudy,
		StartAt: base.Add(2 * time.Hour), EndAt: base.Add(3 * time.Hour),
		UserID: 1, Scope: ScopePersonal,
	}); err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}
	// Class event authored by the teacher, visible to class level 8.
	if _, err := repository.CreateEvent(ctx, classEventInput(2, 50, base.Add(time.Hour))); err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}
	// Personal event of another user must not leak.
	if _, err := repository.CreateEvent(ctx, EventInput{
		CalendarID: 3, Title: "foreign", Type: EventTypeStudy,
		StartAt: base.Add(2 * time.Hour), EndAt: base.Add(3 * time.Hour),
		UserID: 2, Scope: ScopePersonal,
	}); err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}
	// Event outside the range.
	if _, err := repository.CreateEvent(ctx, EventInput{
		CalendarID: 1, Title: "later", Type: EventTypeStudy,
		StartAt: base.AddDate(0, 2, 0), EndAt: base.AddDate(0, 2, 0).Add(time.Hour),
		UserID: 1, Scope: ScopePersonal,
	}); err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}

	events, err := repository.ListEventsByMonth(ctx, 2026, time.March, 1, 8)
	if err != nil {
		t.Fatalf("unexpected list error: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected personal + class events, got %d", len(events))
	}
	if events[0].Title != "Unit test revision" || events[1].Title != "own" {
		t.Fatalf("expected events sorted by start time, got %q then %q", events[0].Title, events[1].Title)
	}
}

func TestToggleCalendarVisibility(t *testing.T) {
	repository, _ := newTestRepository(t)
	ctx := context.Background()

	cal, err := repository.CreateCalendar(ctx, CalendarInput{
		UserID: 1, Name: "plan", IsVisible: true, Scope: ScopePersonal,
	})
	if err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}

	if err := repository.ToggleCalendarVisibility(ctx, cal.ID); err != nil {
		t.Fatalf("unexpected toggle error: %v", err)
	}
	visible, err := repository.ListVisibleCalendars(ctx, 1)
	if err != nil {
		t.Fatalf("unexpected list error: %v", err)
	}
	if len(visible) != 0 {
		t.Fatalf("expected calendar to be hidden, got %d visible", len(visible))
	}

	if err := repository.ToggleCalendarVisibility(ctx, 4242); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
