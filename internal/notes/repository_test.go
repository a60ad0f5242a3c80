package notes

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

type recordingPublisher struct {
	tables []string
}

func (p *recordingPublisher) Publish(table string) {
	p.tables = append(p.tables, table)
}

func newTestRepository(t *testing.T) (*Repository, *changelog.Log, *recordingPublisher) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Note{}, &Bookmark{}, &changelog.ChangeEntry{}); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}

	log, err := changelog.NewLog(changelog.LogConfig{
		Database: db,
		Clock:    func() time.Time { return time.Unix(1700000000, 0) },
	})
	if err != nil {
		t.Fatalf("failed to construct change log: %v", err)
	}

	publisher := &recordingPublisher{}
	repository, err := NewRepository(RepositoryConfig{
		Database:  db,
		ChangeLog: log,
		Clock:     func() time.Time { return time.Unix(1700000100, 0) },
		Publisher: publisher,
	})
	if err != nil {
		t.Fatalf("failed to construct repository: %v", err)
	}
	return repository, log, publisher
}

func TestCreateNoteAppendsChangeLogEntry(t *testing.T) {
	repository, log, publisher := newTestRepository(t)
	ctx := context.Background()

	note, err := repository.CreateNote(ctx, NoteInput{
		Content:   "photosynthesis summary",
		SectionID: 2,
		ChapterID: 1,
		UserID:    10,
		Tags:      []string{"biology"},
	})
	if err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}
	if note.ID == 0 {
		t.Fatalf("expected assigned note id")
	}
	if note.SyncStatus != SyncStatusPending {
		t.Fatalf("expected pending sync status, got %q", note.SyncStatus)
	}

	history, err := log.ByEntity(ctx, changelog.EntityTypeNote, note.ID)
	if err != nil {
		t.Fatalf("unexpected history error: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected exactly one change entry, got %d", len(history))
	}
	if history[0].Action != changelog.ActionCreate || history[0].Synced {
		t.Fatalf("unexpected change entry: %+v", history[0])
	}

	if len(publisher.tables) == 0 || publisher.tables[0] != "notes" {
		t.Fatalf("expected notes table notification, got %v", publisher.tables)
	}
}

func TestCreateNoteLocalOnlySkipsChangeLog(t *testing.T) {
	repository, log, _ := newTestRepository(t)
	ctx := context.Background()

	note, err := repository.CreateNote(ctx, NoteInput{
		Content:   "scratch",
		SectionID: 1,
		ChapterID: 1,
		UserID:    10,
		LocalOnly: true,
	})
	if err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}
	if note.SyncStatus != SyncStatusSynced {
		t.Fatalf("local-only note should not show a pending badge, got %q", note.SyncStatus)
	}

	count, err := log.PendingCount(ctx)
	if err != nil {
		t.Fatalf("unexpected count error: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected empty change log, got %d pending entries", count)
	}
}

func TestUpdateNoteLogsUpdateAfterCreate(t *testing.T) {
	repository, log, _ := newTestRepository(t)
	ctx := context.Background()

	note, err := repository.CreateNote(ctx, NoteInput{Content: "first", SectionID: 1, ChapterID: 1, UserID: 3})
	if err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}

	content := "second"
	updated, err := repository.UpdateNote(ctx, note.ID, NoteUpdate{Content: &content, Tags: []string{"revised"}})
	if err != nil {
		t.Fatalf("unexpected update error: %v", err)
	}
	if updated.Content != "second" {
		t.Fatalf("expected updated content, got %q", updated.Content)
	}
	if updated.UpdatedAtSeconds == 0 {
		t.Fatalf("expected updated timestamp to be set")
	}

	history, err := log.ByEntity(ctx, changelog.EntityTypeNote, note.ID)
	if err != nil {
		t.Fatalf("unexpected history error: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected create then update entries, got %d", len(history))
	}
	if history[0].Action != changelog.ActionCreate || history[1].Action != changelog.ActionUpdate {
		t.Fatalf("entries out of creation order: %+v", history)
	}
}

func TestUpdateNoteReturnsNotFound(t *testing.T) {
	repository, _, _ := newTestRepository(t)

	content := "orphan"
	_, err := repository.UpdateNote(context.Background(), 4242, NoteUpdate{Content: &content})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteNoteLogsDelete(t *testing.T) {
	repository, log, _ := newTestRepository(t)
	ctx := context.Background()

	note, err := repository.CreateNote(ctx, NoteInput{Content: "to remove", SectionID: 1, ChapterID: 1, UserID: 3})
	if err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}

	if err := repository.DeleteNote(ctx, note.ID); err != nil {
		t.Fatalf("unexpected delete error: %v", err)
	}
	if _, err := repository.GetNote(ctx, note.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected deleted note to be gone, got %v", err)
	}
	if err := repository.DeleteNote(ctx, note.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on double delete, got %v", err)
	}

	history, err := log.ByEntity(ctx, changelog.EntityTypeNote, note.ID)
	if err != nil {
		t.Fatalf("unexpected history error: %v", err)
	}
	if len(history) != 2 || history[1].Action != changelog.ActionDelete {
		t.Fatalf("expected create then delete entries, got %+v", history)
	}
}

func TestSearchNotesMatchesContentAndTags(t *testing.T) {
	repository, _, _ := newTestRepository(t)
	ctx := context.Background()

	seed := []NoteInput{
		{Content: "Mitochondria are the powerhouse", SectionID: 1, ChapterID: 1, UserID: 5, Tags: []string{"biology"}},
		{Content: "Quadratic equations", SectionID: 2, ChapterID: 2, UserID: 5, Tags: []string{"maths", "algebra"}},
		{Content: "someone else's note", SectionID: 1, ChapterID: 1, UserID: 6, Tags: []string{"biology"}},
	}
	for _, input := range seed {
		if _, err := repository.CreateNote(ctx, input); err != nil {
			t.Fatalf("unexpected create error: %v", err)
		}
	}

	byContent, err := repository.SearchNotes(ctx, "mitochondria", 5)
	if err != nil {
		t.Fatalf("unexpected search error: %v", err)
	}
	if len(byContent) != 1 {
		t.Fatalf("expected single content match, got %d", len(byContent))
	}

	byTag, err := repository.SearchNotes(ctx, "algebra", 5)
	if err != nil {
		t.Fatalf("unexpected search error: %v", err)
	}
	if len(byTag) != 1 || byTag[0].Content != "Quadratic equations" {
		t.Fatalf("expected tag match, got %+v", byTag)
	}

	tagged, err := repository.ListByTag(ctx, "biology", 5)
	if err != nil {
		t.Fatalf("unexpected tag list error: %v", err)
	}
	if len(tagged) != 1 {
		t.Fatalf("expected one tagged note for user 5, got %d", len(tagged))
	}
}

func TestToggleBookmarkLogsBothDirections(t *testing.T) {
	repository, log, _ := newTestRepository(t)
	ctx := context.Background()

	bookmarked, err := repository.ToggleBookmark(ctx, 7, 5)
	if err != nil {
		t.Fatalf("unexpected toggle error: %v", err)
	}
	if !bookmarked {
		t.Fatalf("expected first toggle to bookmark")
	}
	if state, err := repository.IsBookmarked(ctx, 7, 5); err != nil || !state {
		t.Fatalf("expected section to be bookmarked, got %v %v", state, err)
	}

	bookmarked, err = repository.ToggleBookmark(ctx, 7, 5)
	if err != nil {
		t.Fatalf("unexpected toggle error: %v", err)
	}
	if bookmarked {
		t.Fatalf("expected second toggle to remove bookmark")
	}

	pending, err := log.ListPending(ctx)
	if err != nil {
		t.Fatalf("unexpected list error: %v", err)
	}
	actions := make([]changelog.Action, 0, len(pending))
	for _, entry := range pending {
		if entry.EntityType == changelog.EntityTypeBookmark {
			actions = append(actions, entry.Action)
		}
	}
	if len(actions) != 2 || actions[0] != changelog.ActionCreate || actions[1] != changelog.ActionDelete {
		t.Fatalf("expected bookmark create then delete, got %v", actions)
	}
}
