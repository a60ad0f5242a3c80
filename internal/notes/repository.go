package notes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pathshala-app/pathshala/internal/changelog"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrNotFound indicates a mutation targeted a nonexistent note or bookmark.
	ErrNotFound = errors.New("notes: not found")

	errMissingDatabase  = errors.New("notes: database handle is required")
	errMissingChangeLog = errors.New("notes: change log is required")
	noOpLogger          = zap.NewNop()
)

// TablePublisher receives change notifications after a table mutation commits.
type TablePublisher interface {
	Publish(table string)
}

// RepositoryConfig describes the dependencies of the notes repository.
type RepositoryConfig struct {
	Database  *gorm.DB
	ChangeLog *changelog.Log
	Clock     func() time.Time
	Publisher TablePublisher
	Logger    *zap.Logger
}

// Repository persists notes and bookmarks. Every mutation writes the domain
// row and its change log entry in one transaction, unless the caller asks for
// a local-only write.
type Repository struct {
	db        *gorm.DB
	changeLog *changelog.Log
	clock     func() time.Time
	publisher TablePublisher
	logger    *zap.Logger
}

// NewRepository constructs the notes repository.
func NewRepository(cfg RepositoryConfig) (*Repository, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	if cfg.ChangeLog == nil {
		return nil, errMissingChangeLog
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Repository{
		db:        cfg.Database,
		changeLog: cfg.ChangeLog,
		clock:     clock,
		publisher: cfg.Publisher,
		logger:    logger,
	}, nil
}

// NoteInput carries the caller-supplied fields of a new note. LocalOnly skips
// the change log entry for writes that must never reach the remote.
type NoteInput struct {
	Content   string
	SectionID uint
	ChapterID uint
	UserID    uint
	Tags      []string
	LocalOnly bool
}

// NoteUpdate carries partial note changes; nil fields are left untouched.
type NoteUpdate struct {
	Content   *string
	Tags      []string
	LocalOnly bool
}

// CreateNote persists a new note and, unless LocalOnly is set, appends a
// create entry to the change log in the same transaction.
func (r *Repository) CreateNote(ctx context.Context, input NoteInput) (Note, error) {
	note := Note{
		Content:          input.Content,
		SectionID:        input.SectionID,
		ChapterID:        input.ChapterID,
		UserID:           input.UserID,
		Tags:             input.Tags,
		SyncStatus:       SyncStatusPending,
		CreatedAtSeconds: r.clock().UTC().Unix(),
	}
	if input.LocalOnly {
		note.SyncStatus = SyncStatusSynced
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&note).Error; err != nil {
			return fmt.Errorf("notes: create: %w", err)
		}
		if input.LocalOnly {
			return nil
		}
		_, err := r.changeLog.AppendIn(tx, changelog.EntityTypeNote, note.ID, changelog.ActionCreate)
		return err
	})
	if err != nil {
		return Note{}, err
	}

	r.publish()
	return note, nil
}

// UpdateNote applies a partial update and logs an update intent.
func (r *Repository) UpdateNote(ctx context.Context, id uint, update NoteUpdate) (Note, error) {
	var note Note
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Take(&note, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: note %d", ErrNotFound, id)
			}
			return fmt.Errorf("notes: load: %w", err)
		}

		if update.Content != nil {
			note.Content = *update.Content
		}
		if update.Tags != nil {
			note.Tags = update.Tags
		}
		note.UpdatedAtSeconds = r.clock().UTC().Unix()
		if !update.LocalOnly {
			note.SyncStatus = SyncStatusPending
		}

		if err := tx.Save(&note).Error; err != nil {
			return fmt.Errorf("notes: update: %w", err)
		}
		if update.LocalOnly {
			return nil
		}
		_, err := r.changeLog.AppendIn(tx, changelog.EntityTypeNote, note.ID, changelog.ActionUpdate)
		return err
	})
	if err != nil {
		return Note{}, err
	}

	r.publish()
	return note, nil
}

// DeleteNote removes a note and logs a delete intent.
func (r *Repository) DeleteNote(ctx context.Context, id uint) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Delete(&Note{}, id)
		if result.Error != nil {
			return fmt.Errorf("notes: delete: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: note %d", ErrNotFound, id)
		}
		_, err := r.changeLog.AppendIn(tx, changelog.EntityTypeNote, id, changelog.ActionDelete)
		return err
	})
	if err != nil {
		return err
	}

	r.publish()
	return nil
}

// GetNote loads a single note by id.
func (r *Repository) GetNote(ctx context.Context, id uint) (Note, error) {
	var note Note
	if err := r.db.WithContext(ctx).Take(&note, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Note{}, fmt.Errorf("%w: note %d", ErrNotFound, id)
		}
		return Note{}, fmt.Errorf("notes: load: %w", err)
	}
	return note, nil
}

// ListBySection returns a user's notes for one section, newest first.
func (r *Repository) ListBySection(ctx context.Context, sectionID, userID uint) ([]Note, error) {
	return r.list(ctx, "section_id = ? AND user_id = ?", sectionID, userID)
}

// ListByChapter returns a user's notes for one chapter, newest first.
func (r *Repository) ListByChapter(ctx context.Context, chapterID, userID uint) ([]Note, error) {
	return r.list(ctx, "chapter_id = ? AND user_id = ?", chapterID, userID)
}

// ListByUser returns all of a user's notes, newest first.
func (r *Repository) ListByUser(ctx context.Context, userID uint) ([]Note, error) {
	return r.list(ctx, "user_id = ?", userID)
}

// SearchNotes filters a user's notes by content or tag substring match.
func (r *Repository) SearchNotes(ctx context.Context, query string, userID uint) ([]Note, error) {
	all, err := r.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(query)
	matched := make([]Note, 0, len(all))
	for _, note := range all {
		if strings.Contains(strings.ToLower(note.Content), needle) || matchesTag(note.Tags, needle) {
			matched = append(matched, note)
		}
	}
	return matched, nil
}

// ListByTag returns a user's notes carrying the exact tag.
func (r *Repository) ListByTag(ctx context.Context, tag string, userID uint) ([]Note, error) {
	all, err := r.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	matched := make([]Note, 0, len(all))
	for _, note := range all {
		for _, candidate := range note.Tags {
			if candidate == tag {
				matched = append(matched, note)
				break
			}
		}
	}
	return matched, nil
}

// ToggleBookmark flips the bookmark state of a section for a user and reports
// the new state. Both directions are change-logged.
func (r *Repository) ToggleBookmark(ctx context.Context, sectionID, userID uint) (bool, error) {
	bookmarked := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing Bookmark
		err := tx.Where("section_id = ? AND user_id = ?", sectionID, userID).Take(&existing).Error
		switch {
		case err == nil:
			if err := tx.Delete(&Bookmark{}, existing.ID).Error; err != nil {
				return fmt.Errorf("notes: delete bookmark: %w", err)
			}
			_, err := r.changeLog.AppendIn(tx, changelog.EntityTypeBookmark, existing.ID, changelog.ActionDelete)
			return err
		case errors.Is(err, gorm.ErrRecordNotFound):
			bookmark := Bookmark{
				SectionID:        sectionID,
				UserID:           userID,
				CreatedAtSeconds: r.clock().UTC().Unix(),
			}
			if err := tx.Create(&bookmark).Error; err != nil {
				return fmt.Errorf("notes: create bookmark: %w", err)
			}
			bookmarked = true
			_, err := r.changeLog.AppendIn(tx, changelog.EntityTypeBookmark, bookmark.ID, changelog.ActionCreate)
			return err
		default:
			return fmt.Errorf("notes: bookmark lookup: %w", err)
		}
	})
	if err != nil {
		return false, err
	}

	if r.publisher != nil {
		r.publisher.Publish(Bookmark{}.TableName())
	}
	return bookmarked, nil
}

// IsBookmarked reports whether the user bookmarked the section.
func (r *Repository) IsBookmarked(ctx context.Context, sectionID, userID uint) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&Bookmark{}).
		Where("section_id = ? AND user_id = ?", sectionID, userID).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("notes: bookmark lookup: %w", err)
	}
	return count > 0, nil
}

// ListBookmarks returns a user's bookmarks, newest first.
func (r *Repository) ListBookmarks(ctx context.Context, userID uint) ([]Bookmark, error) {
	var bookmarks []Bookmark
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at_s DESC").
		Find(&bookmarks).Error; err != nil {
		return nil, fmt.Errorf("notes: list bookmarks: %w", err)
	}
	return bookmarks, nil
}

func (r *Repository) list(ctx context.Context, condition string, args ...interface{}) ([]Note, error) {
	var result []Note
	if err := r.db.WithContext(ctx).
		Where(condition, args...).
		Order("created_at_s DESC").
		Order("id DESC").
		Find(&result).Error; err != nil {
		return nil, fmt.Errorf("notes: list: %w", err)
	}
	return result, nil
}

func (r *Repository) publish() {
	if r.publisher != nil {
		r.publisher.Publish(Note{}.TableName())
	}
}

func matchesTag(tags []string, needle string) bool {
	for _, tag := range tags {
		if strings.Contains(strings.ToLower(tag), needle) {
			return true
		}
	}
	return false
}
