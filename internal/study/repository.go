package study

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

var errMissingDatabase = errors.New("study: database handle is required")

// Event records time a user spent on one section. Study events are local
// analytics and are not change-logged.
type Event struct {
	ID               uint  `gorm:"column:id;primaryKey;autoIncrement"`
	UserID           uint  `gorm:"column:user_id;not null;index;index:idx_study_events_section_user,priority:2"`
	SectionID        uint  `gorm:"column:section_id;not null;index:idx_study_events_section_user,priority:1"`
	DurationSeconds  int   `gorm:"column:duration_s;not null;default:0"`
	CreatedAtSeconds int64 `gorm:"column:created_at_s;not null;index"`
}

// TableName provides the explicit table binding for GORM.
func (Event) TableName() string {
	return "study_events"
}

// RepositoryConfig describes the dependencies of the study repository.
type RepositoryConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
}

// Repository persists study events and derives progress aggregates.
type Repository struct {
	db    *gorm.DB
	clock func() time.Time
}

// NewRepository constructs the study repository.
func NewRepository(cfg RepositoryConfig) (*Repository, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Repository{db: cfg.Database, clock: clock}, nil
}

// LogEvent records study time on a section.
func (r *Repository) LogEvent(ctx context.Context, userID, sectionID uint, duration time.Duration) (Event, error) {
	event := Event{
		UserID:           userID,
		SectionID:        sectionID,
		DurationSeconds:  int(duration / time.Second),
		CreatedAtSeconds: r.clock().UTC().Unix(),
	}
	if err := r.db.WithContext(ctx).Create(&event).Error; err != nil {
		return Event{}, fmt.Errorf("study: log event: %w", err)
	}
	return event, nil
}

// ListBySections returns a user's study events across the given sections.
func (r *Repository) ListBySections(ctx context.Context, userID uint, sectionIDs []uint) ([]Event, error) {
	if len(sectionIDs) == 0 {
		return nil, nil
	}
	var events []Event
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND section_id IN ?", userID, sectionIDs).
		Find(&events).Error; err != nil {
		return nil, fmt.Errorf("study: list events: %w", err)
	}
	return events, nil
}

// ChapterProgress reports the percentage (0..100) of the chapter's sections
// the user has touched. The caller supplies the chapter's section ids since
// content metadata lives outside this subsystem.
func (r *Repository) ChapterProgress(ctx context.Context, userID uint, sectionIDs []uint) (int, error) {
	if len(sectionIDs) == 0 {
		return 0, nil
	}
	events, err := r.ListBySections(ctx, userID, sectionIDs)
	if err != nil {
		return 0, err
	}
	touched := make(map[uint]bool, len(events))
	for _, event := range events {
		touched[event.SectionID] = true
	}
	return int(float64(len(touched)) / float64(len(sectionIDs)) * 100), nil
}

// TotalStudyTime sums a user's recorded study time.
func (r *Repository) TotalStudyTime(ctx context.Context, userID uint) (time.Duration, error) {
	var total int64
	if err := r.db.WithContext(ctx).
		Model(&Event{}).
		Where("user_id = ?", userID).
		Select("COALESCE(SUM(duration_s), 0)").
		Scan(&total).Error; err != nil {
		return 0, fmt.Errorf("study: total time: %w", err)
	}
	return time.Duration(total) * time.Second, nil
}

// SectionStudyTime sums a user's recorded time on one section.
func (r *Repository) SectionStudyTime(ctx context.Context, userID, sectionID uint) (time.Duration, error) {
	var total int64
	if err := r.db.WithContext(ctx).
		Model(&Event{}).
		Where("user_id = ? AND section_id = ?", userID, sectionID).
		Select("COALESCE(SUM(duration_s), 0)").
		Scan(&total).Error; err != nil {
		return 0, fmt.Errorf("study: section time: %w", err)
	}
	return time.Duration(total) * time.Second, nil
}
