package calendar

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/pathshala-app/pathshala/internal/changelog"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrNotFound indicates a mutation targeted a nonexistent calendar or event.
	ErrNotFound = errors.New("calendar: not found")

	errMissingDatabase  = errors.New("calendar: database handle is required")
	errMissingChangeLog = errors.New("calendar: change log is required")
	noOpLogger          = zap.NewNop()
)

// TablePublisher receives change notifications after a table mutation commits.
type TablePublisher interface {
	Publish(table string)
}

// RepositoryConfig describes the dependencies of the calendar repository.
type RepositoryConfig struct {
	Database  *gorm.DB
	ChangeLog *changelog.Log
	Clock     func() time.Time
	Publisher TablePublisher
	Logger    *zap.Logger
}

// Repository persists calendars and events. Class-scope calendars and all
// events are change-logged; personal calendars stay device-local.
type Repository struct {
	db        *gorm.DB
	changeLog *changelog.Log
	clock     func() time.Time
	publisher TablePublisher
	logger    *zap.Logger
}

// NewRepository constructs the calendar repository.
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

// CalendarInput carries caller-supplied fields of a new calendar.
type CalendarInput struct {
	UserID       uint
	Name         string
	DefaultColor string
	IsVisible    bool
	Scope        Scope
	ClassLevel   int
	SubjectID    uint
}

// CreateCalendar persists a calendar. Personal calendars are local-only, so
// only class-scope calendars get a change log entry.
func (r *Repository) CreateCalendar(ctx context.Context, input CalendarInput) (Calendar, error) {
	cal := Calendar{
		UserID:           input.UserID,
		Name:             input.Name,
		DefaultColor:     input.DefaultColor,
		IsVisible:        input.IsVisible,
		Scope:            input.Scope,
		ClassLevel:       input.ClassLevel,
		SubjectID:        input.SubjectID,
		CreatedAtSeconds: r.clock().UTC().Unix(),
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&cal).Error; err != nil {
			return fmt.Errorf("calendar: create: %w", err)
		}
		if cal.Scope != ScopeClass {
			return nil
		}
		_, err := r.changeLog.AppendIn(tx, changelog.EntityTypeCalendar, cal.ID, changelog.ActionCreate)
		return err
	})
	if err != nil {
		return Calendar{}, err
	}

	r.publishCalendars()
	return cal, nil
}

// CalendarUpdate carries partial calendar changes; nil fields stay untouched.
type CalendarUpdate struct {
	Name         *string
	DefaultColor *string
	IsVisible    *bool
}

// UpdateCalendar applies a partial update, logging it for class calendars.
func (r *Repository) UpdateCalendar(ctx context.Context, id uint, update CalendarUpdate) (Calendar, error) {
	var cal Calendar
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Take(&cal, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: calendar %d", ErrNotFound, id)
			}
			return fmt.Errorf("calendar: load: %w", err)
		}
		if update.Name != nil {
			cal.Name = *update.Name
		}
		if update.DefaultColor != nil {
			cal.DefaultColor = *update.DefaultColor
		}
		if update.IsVisible != nil {
			cal.IsVisible = *update.IsVisible
		}
		if err := tx.Save(&cal).Error; err != nil {
			return fmt.Errorf("calendar: update: %w", err)
		}
		if cal.Scope != ScopeClass {
			return nil
		}
		_, err := r.changeLog.AppendIn(tx, changelog.EntityTypeCalendar, cal.ID, changelog.ActionUpdate)
		return err
	})
	if err != nil {
		return Calendar{}, err
	}

	r.publishCalendars()
	return cal, nil
}

// DeleteCalendar removes a calendar and all its events. Every removed event
// is change-logged individually so the remote can drop them too.
func (r *Repository) DeleteCalendar(ctx context.Context, id uint) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cal Calendar
		if err := tx.Take(&cal, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: calendar %d", ErrNotFound, id)
			}
			return fmt.Errorf("calendar: load: %w", err)
		}

		var events []Event
		if err := tx.Where("calendar_id = ?", id).Find(&events).Error; err != nil {
			return fmt.Errorf("calendar: load events: %w", err)
		}
		for _, event := range events {
			if err := tx.Delete(&Event{}, event.ID).Error; err != nil {
				return fmt.Errorf("calendar: delete event: %w", err)
			}
			if _, err := r.changeLog.AppendIn(tx, changelog.EntityTypeCalendarEvent, event.ID, changelog.ActionDelete); err != nil {
				return err
			}
		}

		if err := tx.Delete(&Calendar{}, id).Error; err != nil {
			return fmt.Errorf("calendar: delete: %w", err)
		}
		if cal.Scope != ScopeClass {
			return nil
		}
		_, err := r.changeLog.AppendIn(tx, changelog.EntityTypeCalendar, id, changelog.ActionDelete)
		return err
	})
	if err != nil {
		return err
	}

	r.publishCalendars()
	r.publishEvents()
	return nil
}

// ToggleCalendarVisibility flips visibility without touching the change log;
// visibility is a device-local display preference.
func (r *Repository) ToggleCalendarVisibility(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).
		Model(&Calendar{}).
		Where("id = ?", id).
		Update("is_visible", gorm.Expr("NOT is_visible"))
	if result.Error != nil {
		return fmt.Errorf("calendar: toggle visibility: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: calendar %d", ErrNotFound, id)
	}
	r.publishCalendars()
	return nil
}

// ListUserCalendars returns all calendars the user created.
func (r *Repository) ListUserCalendars(ctx context.Context, userID uint) ([]Calendar, error) {
	var calendars []Calendar
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Find(&calendars).Error; err != nil {
		return nil, fmt.Errorf("calendar: list: %w", err)
	}
	return calendars, nil
}

// ListVisibleCalendars returns the user's currently visible calendars.
func (r *Repository) ListVisibleCalendars(ctx context.Context, userID uint) ([]Calendar, error) {
	var calendars []Calendar
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND is_visible = ?", userID, true).
		Find(&calendars).Error; err != nil {
		return nil, fmt.Errorf("calendar: list visible: %w", err)
	}
	return calendars, nil
}

// ListClassCalendars returns class calendars for a class level, optionally
// narrowed to a subject.
func (r *Repository) ListClassCalendars(ctx context.Context, classLevel int, subjectID uint) ([]Calendar, error) {
	query := r.db.WithContext(ctx).
		Where("scope = ? AND class_level = ?", ScopeClass, classLevel)
	if subjectID != 0 {
		query = query.Where("subject_id = ?", subjectID)
	}
	var calendars []Calendar
	if err := query.Find(&calendars).Error; err != nil {
		return nil, fmt.Errorf("calendar: list class calendars: %w", err)
	}
	return calendars, nil
}

// EventInput carries caller-supplied fields of a new event.
type EventInput struct {
	CalendarID      uint
	Title           string
	Description     string
	Type            EventType
	StartAt         time.Time
	EndAt           time.Time
	IsAllDay        bool
	Color           string
	ChapterID       uint
	SubjectID       uint
	UserID          uint
	Scope           Scope
	ClassLevel      int
	TargetSubjectID uint
}

// CreateEvent persists an event and logs a create intent. Events are always
// change-logged regardless of scope.
func (r *Repository) CreateEvent(ctx context.Context, input EventInput) (Event, error) {
	event := Event{
		CalendarID:       input.CalendarID,
		Title:            input.Title,
		Description:      input.Description,
		Type:             input.Type,
		StartAtSeconds:   input.StartAt.UTC().Unix(),
		EndAtSeconds:     input.EndAt.UTC().Unix(),
		IsAllDay:         input.IsAllDay,
		Color:            input.Color,
		ChapterID:        input.ChapterID,
		SubjectID:        input.SubjectID,
		UserID:           input.UserID,
		Scope:            input.Scope,
		ClassLevel:       input.ClassLevel,
		TargetSubjectID:  input.TargetSubjectID,
		SyncStatus:       SyncStatusPending,
		CreatedAtSeconds: r.clock().UTC().Unix(),
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&event).Error; err != nil {
			return fmt.Errorf("calendar: create event: %w", err)
		}
		_, err := r.changeLog.AppendIn(tx, changelog.EntityTypeCalendarEvent, event.ID, changelog.ActionCreate)
		return err
	})
	if err != nil {
		return Event{}, err
	}

	r.publishEvents()
	return event, nil
}

// EventUpdate carries partial event changes; nil fields stay untouched.
type EventUpdate struct {
	Title       *string
	Description *string
	Type        *EventType
	StartAt     *time.Time
	EndAt       *time.Time
	IsAllDay    *bool
	Color       *string
}

// UpdateEvent applies a partial update and logs an update intent.
func (r *Repository) UpdateEvent(ctx context.Context, id uint, update EventUpdate) (Event, error) {
	var event Event
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Take(&event, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: event %d", ErrNotFound, id)
			}
			return fmt.Errorf("calendar: load event: %w", err)
		}
		if update.Title != nil {
			event.Title = *update.Title
		}
		if update.Description != nil {
			event.Description = *update.Description
		}
		if update.Type != nil {
			event.Type = *update.Type
		}
		if update.StartAt != nil {
			event.StartAtSeconds = update.StartAt.UTC().Unix()
		}
		if update.EndAt != nil {
			event.EndAtSeconds = update.EndAt.UTC().Unix()
		}
		if update.IsAllDay != nil {
			event.IsAllDay = *update.IsAllDay
		}
		if update.Color != nil {
			event.Color = *update.Color
		}
		event.UpdatedAtSeconds = r.clock().UTC().Unix()
		event.SyncStatus = SyncStatusPending

		if err := tx.Save(&event).Error; err != nil {
			return fmt.Errorf("calendar: update event: %w", err)
		}
		_, err := r.changeLog.AppendIn(tx, changelog.EntityTypeCalendarEvent, event.ID, changelog.ActionUpdate)
		return err
	})
	if err != nil {
		return Event{}, err
	}

	r.publishEvents()
	return event, nil
}

// DeleteEvent removes an event and logs a delete intent.
func (r *Repository) DeleteEvent(ctx context.Context, id uint) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Delete(&Event{}, id)
		if result.Error != nil {
			return fmt.Errorf("calendar: delete event: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: event %d", ErrNotFound, id)
		}
		_, err := r.changeLog.AppendIn(tx, changelog.EntityTypeCalendarEvent, id, changelog.ActionDelete)
		return err
	})
	if err != nil {
		return err
	}

	r.publishEvents()
	return nil
}

// CanUserEditEvent reports whether the user created the event. This is an
// advisory read-side check: the UI treats class events from other authors as
// read-only, but the repository does not block writes on it.
func (r *Repository) CanUserEditEvent(ctx context.Context, eventID, userID uint) (bool, error) {
	var event Event
	if err := r.db.WithContext(ctx).Take(&event, eventID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, fmt.Errorf("%w: event %d", ErrNotFound, eventID)
		}
		return false, fmt.Errorf("calendar: load event: %w", err)
	}
	return event.UserID == userID, nil
}

// ListEventsByRange returns the union of a user's personal events and the
// class events for their class level inside [start, end], sorted by start.
func (r *Repository) ListEventsByRange(ctx context.Context, start, end time.Time, userID uint, classLevel int) ([]Event, error) {
	startSeconds := start.UTC().Unix()
	endSeconds := end.UTC().Unix()

	var personal []Event
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND scope = ? AND start_at_s >= ? AND start_at_s <= ?",
			userID, ScopePersonal, startSeconds, endSeconds).
		Find(&personal).Error; err != nil {
		return nil, fmt.Errorf("calendar: list personal events: %w", err)
	}

	var class []Event
	if classLevel != 0 {
		if err := r.db.WithContext(ctx).
			Where("scope = ? AND class_level = ? AND start_at_s >= ? AND start_at_s <= ?",
				ScopeClass, classLevel, startSeconds, endSeconds).
			Find(&class).Error; err != nil {
			return nil, fmt.Errorf("calendar: list class events: %w", err)
		}
	}

	combined := append(personal, class...)
	sort.Slice(combined, func(i, j int) bool {
		return combined[i].StartAtSeconds < combined[j].StartAtSeconds
	})
	return combined, nil
}

// ListEventsByMonth returns events for one calendar month.
func (r *Repository) ListEventsByMonth(ctx context.Context, year int, month time.Month, userID uint, classLevel int) ([]Event, error) {
	start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0).Add(-time.Second)
	return r.ListEventsByRange(ctx, start, end, userID, classLevel)
}

// ListUpcomingEvents returns the next events after now, at most limit.
func (r *Repository) ListUpcomingEvents(ctx context.Context, limit int, userID uint, classLevel int) ([]Event, error) {
	now := r.clock().UTC()
	horizon := now.AddDate(1, 0, 0)
	events, err := r.ListEventsByRange(ctx, now, horizon, userID, classLevel)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}

func (r *Repository) publishCalendars() {
	if r.publisher != nil {
		r.publisher.Publish(Calendar{}.TableName())
	}
}

func (r *Repository) publishEvents() {
	if r.publisher != nil {
		r.publisher.Publish(Event{}.TableName())
	}
}
