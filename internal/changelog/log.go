package changelog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase = errors.New("changelog: database handle is required")
	noOpLogger         = zap.NewNop()
)

// LogConfig describes the dependencies of the change log service.
type LogConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Log owns the append-only mutation ledger. Repositories append through it,
// the sync manager drains it and flips entries to synced.
type Log struct {
	db     *gorm.DB
	clock  func() time.Time
	logger *zap.Logger
}

// NewLog constructs the change log service.
func NewLog(cfg LogConfig) (*Log, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Log{db: cfg.Database, clock: clock, logger: logger}, nil
}

// Append records a mutation intent and returns its id. Duplicate or
// out-of-order entries for the same entity are deliberately tolerated: a
// create followed by an update yields two entries, both replayed in order.
func (l *Log) Append(ctx context.Context, entityType EntityType, entityID uint, action Action) (uint, error) {
	return l.AppendIn(l.db.WithContext(ctx), entityType, entityID, action)
}

// AppendIn records a mutation intent inside the caller's transaction so the
// ledger entry commits or rolls back together with the domain write.
func (l *Log) AppendIn(tx *gorm.DB, entityType EntityType, entityID uint, action Action) (uint, error) {
	entry := ChangeEntry{
		EntityType:       entityType,
		EntityID:         entityID,
		Action:           action,
		CreatedAtSeconds: l.clock().UTC().Unix(),
		Synced:           false,
	}
	if err := tx.Create(&entry).Error; err != nil {
		l.logger.Error("change log append failed",
			zap.String("operation", "changelog.append"),
			zap.String("entity_type", string(entityType)),
			zap.Uint("entity_id", entityID),
			zap.Error(err))
		return 0, fmt.Errorf("changelog: append %s/%d: %w", entityType, entityID, err)
	}
	return entry.ID, nil
}

// ListPending returns every unsynced entry in insertion order, so replays
// preserve the causal order of mutations on the same entity.
func (l *Log) ListPending(ctx context.Context) ([]ChangeEntry, error) {
	var entries []ChangeEntry
	if err := l.db.WithContext(ctx).
		Where("synced = ?", false).
		Order("id ASC").
		Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("changelog: list pending: %w", err)
	}
	return entries, nil
}

// PendingCount reports how many entries are still awaiting remote confirmation.
func (l *Log) PendingCount(ctx context.Context) (int, error) {
	var count int64
	if err := l.db.WithContext(ctx).
		Model(&ChangeEntry{}).
		Where("synced = ?", false).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("changelog: pending count: %w", err)
	}
	return int(count), nil
}

// MarkSynced flips the listed entries to synced. Marking an already-synced or
// unknown id is a no-op, which makes retries after partial failures safe.
func (l *Log) MarkSynced(ctx context.Context, ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	if err := l.db.WithContext(ctx).
		Model(&ChangeEntry{}).
		Where("id IN ? AND synced = ?", ids, false).
		Update("synced", true).Error; err != nil {
		l.logger.Error("change log mark synced failed",
			zap.String("operation", "changelog.mark_synced"),
			zap.Int("entry_count", len(ids)),
			zap.Error(err))
		return fmt.Errorf("changelog: mark synced: %w", err)
	}
	return nil
}

// ByEntity returns the full recorded history of one entity, oldest first.
func (l *Log) ByEntity(ctx context.Context, entityType EntityType, entityID uint) ([]ChangeEntry, error) {
	var entries []ChangeEntry
	if err := l.db.WithContext(ctx).
		Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Order("id ASC").
		Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("changelog: list by entity: %w", err)
	}
	return entries, nil
}

// HasPendingFor reports whether an unsynced entry exists for the entity. The
// denormalized sync_status columns on notes and calendar events mirror this;
// the ledger stays authoritative when the two disagree.
func (l *Log) HasPendingFor(ctx context.Context, entityType EntityType, entityID uint) (bool, error) {
	var count int64
	if err := l.db.WithContext(ctx).
		Model(&ChangeEntry{}).
		Where("entity_type = ? AND entity_id = ? AND synced = ?", entityType, entityID, false).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("changelog: pending lookup: %w", err)
	}
	return count > 0, nil
}
