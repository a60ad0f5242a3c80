package changelog

// Action enumerates the mutation intents recorded in the change log.
type Action string

const (
	// ActionCreate records the local creation of an entity.
	ActionCreate Action = "create"
	// ActionUpdate records a local modification of an existing entity.
	ActionUpdate Action = "update"
	// ActionDelete records the local removal of an entity.
	ActionDelete Action = "delete"
)

// EntityType tags which domain aggregate a change entry belongs to.
type EntityType string

const (
	EntityTypeNote          EntityType = "note"
	EntityTypeBookmark      EntityType = "bookmark"
	EntityTypeCalendar      EntityType = "calendar"
	EntityTypeCalendarEvent EntityType = "calendarEvent"
	EntityTypeQuizSession   EntityType = "quizSession"
	EntityTypeSkillEvent    EntityType = "skillEvent"
)

// ChangeEntry is one row of the append-only mutation ledger. Rows are never
// deleted; the only permitted update is flipping Synced from false to true.
type ChangeEntry struct {
	ID               uint       `gorm:"column:id;primaryKey;autoIncrement"`
	EntityType       EntityType `gorm:"column:entity_type;size:64;not null;index:idx_change_log_entity,priority:1"`
	EntityID         uint       `gorm:"column:entity_id;not null;index:idx_change_log_entity,priority:2"`
	Action           Action     `gorm:"column:action;size:16;not null"`
	CreatedAtSeconds int64      `gorm:"column:created_at_s;not null"`
	Synced           bool       `gorm:"column:synced;not null;default:false;index:idx_change_log_synced"`
}

// TableName provides the explicit table binding for GORM.
func (ChangeEntry) TableName() string {
	return "change_log"
}
