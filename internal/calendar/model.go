package calendar

// Scope controls visibility of calendars and events: personal entries stay on
// the device, class entries are shared with a class level.
type Scope string

const (
	// ScopePersonal marks device-local calendars and events.
	ScopePersonal Scope = "personal"
	// ScopeClass marks calendars and events shared with a class.
	ScopeClass Scope = "class"
)

// EventType categorises calendar events for display.
type EventType string

const (
	EventTypeStudy      EventType = "study"
	EventTypeExam       EventType = "exam"
	EventTypeAssignment EventType = "assignment"
	EventTypeOther      EventType = "other"
)

// SyncStatus mirrors whether an unsynced change log entry exists for an
// event. Best-effort UI sugar; the change log stays authoritative.
type SyncStatus string

const (
	SyncStatusPending SyncStatus = "pending"
	SyncStatusSynced  SyncStatus = "synced"
)

// Calendar groups events under a name, colour and scope.
type Calendar struct {
	ID               uint   `gorm:"column:id;primaryKey;autoIncrement"`
	UserID           uint   `gorm:"column:user_id;not null;index"`
	Name             string `gorm:"column:name;size:190;not null"`
	DefaultColor     string `gorm:"column:default_color;size:32;not null;default:''"`
	IsVisible        bool   `gorm:"column:is_visible;not null;default:true"`
	Scope            Scope  `gorm:"column:scope;size:16;not null;index:idx_calendars_scope_class,priority:1"`
	ClassLevel       int    `gorm:"column:class_level;not null;default:0;index:idx_calendars_scope_class,priority:2"`
	SubjectID        uint   `gorm:"column:subject_id;not null;default:0;index"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Calendar) TableName() string {
	return "calendars"
}

// Event is a scheduled entry on a calendar.
type Event struct {
	ID               uint       `gorm:"column:id;primaryKey;autoIncrement"`
	CalendarID       uint       `gorm:"column:calendar_id;not null;index"`
	Title            string     `gorm:"column:title;size:190;not null"`
	Description      string     `gorm:"column:description;type:text;not null;default:''"`
	Type             EventType  `gorm:"column:event_type;size:16;not null"`
	StartAtSeconds   int64      `gorm:"column:start_at_s;not null;index"`
	EndAtSeconds     int64      `gorm:"column:end_at_s;not null"`
	IsAllDay         bool       `gorm:"column:is_all_day;not null;default:false"`
	Color            string     `gorm:"column:color;size:32;not null;default:''"`
	ChapterID        uint       `gorm:"column:chapter_id;not null;default:0"`
	SubjectID        uint       `gorm:"column:subject_id;not null;default:0"`
	UserID           uint       `gorm:"column:user_id;not null;index"`
	Scope            Scope      `gorm:"column:scope;size:16;not null;index:idx_events_scope_class,priority:1"`
	ClassLevel       int        `gorm:"column:class_level;not null;default:0;index:idx_events_scope_class,priority:2"`
	TargetSubjectID  uint       `gorm:"column:target_subject_id;not null;default:0;index"`
	SyncStatus       SyncStatus `gorm:"column:sync_status;size:16;not null;default:'pending';index"`
	CreatedAtSeconds int64      `gorm:"column:created_at_s;not null"`
	UpdatedAtSeconds int64      `gorm:"column:updated_at_s;not null;default:0"`
}

// TableName provides the explicit table binding for GORM.
func (Event) TableName() string {
	return "calendar_events"
}
