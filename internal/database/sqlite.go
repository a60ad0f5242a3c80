package database

import (
	"fmt"

	sqlite "github.com/glebarez/sqlite"
	"github.com/pathshala-app/pathshala/internal/calendar"
	"github.com/pathshala-app/pathshala/internal/changelog"
	"github.com/pathshala-app/pathshala/internal/notes"
	"github.com/pathshala-app/pathshala/internal/quiz"
	"github.com/pathshala-app/pathshala/internal/study"
	"github.com/pathshala-app/pathshala/internal/users"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// OpenSQLite establishes a SQLite connection and performs schema migrations.
func OpenSQLite(path string, logger *zap.Logger) (*gorm.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(
		&changelog.ChangeEntry{},
		&notes.Note{},
		&notes.Bookmark{},
		&calendar.Calendar{},
		&calendar.Event{},
		&quiz.Question{},
		&quiz.Session{},
		&quiz.Answer{},
		&quiz.SkillEvent{},
		&study.Event{},
		&users.User{},
		&migrationRecord{},
	); err != nil {
		return nil, err
	}

	if err := applyMigrations(db, logger); err != nil {
		return nil, err
	}

	if logger != nil {
		logger.Info("database initialized", zap.String("path", path))
	}

	return db, nil
}
