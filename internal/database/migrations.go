package database

import (
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationRepairSyncStatusMirrors = "2026-07-18_repair_sync_status_mirrors"

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationRepairSyncStatusMirrors, apply: repairSyncStatusMirrors},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// repairSyncStatusMirrors rebuilds the denormalized sync_status columns from
// the change log, which is authoritative. The mirrors can drift when a crash
// lands between a sync round and the status write-back.
func repairSyncStatusMirrors(db *gorm.DB) error {
	statements := []string{
		`UPDATE notes SET sync_status = 'pending'
		   WHERE id IN (SELECT entity_id FROM change_log WHERE entity_type = 'note' AND synced = 0);`,
		`UPDATE notes SET sync_status = 'synced'
		   WHERE id NOT IN (SELECT entity_id FROM change_log WHERE entity_type = 'note' AND synced = 0);`,
		`UPDATE calendar_events SET sync_status = 'pending'
		   WHERE id IN (SELECT entity_id FROM change_log WHERE entity_type = 'calendarEvent' AND synced = 0);`,
		`UPDATE calendar_events SET sync_status = 'synced'
		   WHERE id NOT IN (SELECT entity_id FROM change_log WHERE entity_type = 'calendarEvent' AND synced = 0);`,
	}
	for _, statement := range statements {
		if err := db.Exec(statement).Error; err != nil {
			return err
		}
	}
	return nil
}
