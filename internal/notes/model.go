package notes

// SyncStatus mirrors whether an unsynced change log entry exists for a note.
// It is a denormalized cache for fast UI badges; the change log is
// authoritative for sync decisions.
type SyncStatus string

const (
	// SyncStatusPending marks a note with local changes awaiting sync.
	SyncStatusPending SyncStatus = "pending"
	// SyncStatusSynced marks a note whose changes the remote has accepted.
	SyncStatusSynced SyncStatus = "synced"
)

// Note models a study note attached to a section of content.
type Note struct {
	ID               uint       `gorm:"column:id;primaryKey;autoIncrement"`
	Content          string     `gorm:"column:content;type:text;not null"`
	SectionID        uint       `gorm:"column:section_id;not null;index:idx_notes_section_user,priority:1"`
	ChapterID        uint       `gorm:"column:chapter_id;not null;index:idx_notes_chapter_user,priority:1"`
	UserID           uint       `gorm:"column:user_id;not null;index;index:idx_notes_section_user,priority:2;index:idx_notes_chapter_user,priority:2"`
	Tags             []string   `gorm:"column:tags;type:text;serializer:json"`
	SyncStatus       SyncStatus `gorm:"column:sync_status;size:16;not null;default:'pending';index"`
	CreatedAtSeconds int64      `gorm:"column:created_at_s;not null"`
	UpdatedAtSeconds int64      `gorm:"column:updated_at_s;not null;default:0"`
}

// TableName provides the explicit table binding for GORM.
func (Note) TableName() string {
	return "notes"
}

// Bookmark marks a section a user wants to return to.
type Bookmark struct {
	ID               uint  `gorm:"column:id;primaryKey;autoIncrement"`
	SectionID        uint  `gorm:"column:section_id;not null;index:idx_bookmarks_section_user,priority:1"`
	UserID           uint  `gorm:"column:user_id;not null;index;index:idx_bookmarks_section_user,priority:2"`
	CreatedAtSeconds int64 `gorm:"column:created_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Bookmark) TableName() string {
	return "bookmarks"
}
