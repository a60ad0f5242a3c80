package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

var (
	// ErrNotFound indicates the user id or username does not exist.
	ErrNotFound = errors.New("users: not found")
	// ErrInvalidCredentials indicates a failed username/password check.
	ErrInvalidCredentials = errors.New("users: invalid credentials")
	// ErrUsernameTaken indicates a registration conflict.
	ErrUsernameTaken = errors.New("users: username already taken")

	errMissingDatabase = errors.New("users: database handle is required")
)

// ServiceConfig describes the dependencies of the user service.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
}

// Service manages device-local user accounts.
type Service struct {
	db    *gorm.DB
	clock func() time.Time
}

// NewService constructs the user service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{db: cfg.Database, clock: clock}, nil
}

// UserInput carries the fields of a new account.
type UserInput struct {
	Username string
	Password string
	Role     Role
	Name     string
	Class    string
	Language string
}

// Create registers a new account with a unique username.
func (s *Service) Create(ctx context.Context, input UserInput) (User, error) {
	username := strings.TrimSpace(input.Username)
	if username == "" {
		return User{}, fmt.Errorf("users: username is required")
	}

	taken, err := s.UsernameExists(ctx, username)
	if err != nil {
		return User{}, err
	}
	if taken {
		return User{}, fmt.Errorf("%w: %s", ErrUsernameTaken, username)
	}

	now := s.clock().UTC().Unix()
	user := User{
		Username:           username,
		Password:           input.Password,
		Role:               input.Role,
		Name:               input.Name,
		Class:              input.Class,
		Language:           input.Language,
		CreatedAtSeconds:   now,
		LastLoginAtSeconds: now,
	}
	if user.Language == "" {
		user.Language = "en"
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		return User{}, fmt.Errorf("users: create: %w", err)
	}
	return user, nil
}

// GetByUsername loads an account by its username.
func (s *Service) GetByUsername(ctx context.Context, username string) (User, error) {
	var user User
	err := s.db.WithContext(ctx).
		Where("username = ?", strings.TrimSpace(username)).
		Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, fmt.Errorf("%w: %s", ErrNotFound, username)
	}
	if err != nil {
		return User{}, fmt.Errorf("users: load: %w", err)
	}
	return user, nil
}

// ValidateCredentials checks the password and records the login time.
func (s *Service) ValidateCredentials(ctx context.Context, username, password string) (User, error) {
	user, err := s.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return User{}, ErrInvalidCredentials
		}
		return User{}, err
	}
	if user.Password != password {
		return User{}, ErrInvalidCredentials
	}
	if err := s.RecordLogin(ctx, user.ID); err != nil {
		return User{}, err
	}
	user.LastLoginAtSeconds = s.clock().UTC().Unix()
	return user, nil
}

// RecordLogin stamps the account's last login time.
func (s *Service) RecordLogin(ctx context.Context, userID uint) error {
	result := s.db.WithContext(ctx).
		Model(&User{}).
		Where("id = ?", userID).
		Update("last_login_at_s", s.clock().UTC().Unix())
	if result.Error != nil {
		return fmt.Errorf("users: record login: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: user %d", ErrNotFound, userID)
	}
	return nil
}

// LastLoggedIn returns the account that signed in most recently.
func (s *Service) LastLoggedIn(ctx context.Context) (User, error) {
	var user User
	err := s.db.WithContext(ctx).
		Order("last_login_at_s DESC").
		Order("id DESC").
		Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("users: last logged in: %w", err)
	}
	return user, nil
}

// UsernameExists reports whether the username is already registered.
func (s *Service) UsernameExists(ctx context.Context, username string) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).
		Model(&User{}).
		Where("username = ?", strings.TrimSpace(username)).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("users: username lookup: %w", err)
	}
	return count > 0, nil
}

// ProfileUpdate carries partial profile changes; nil fields stay untouched.
type ProfileUpdate struct {
	Name     *string
	Class    *string
	Language *string
}

// UpdateProfile applies a partial profile update.
func (s *Service) UpdateProfile(ctx context.Context, userID uint, update ProfileUpdate) (User, error) {
	var user User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Take(&user, userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: user %d", ErrNotFound, userID)
			}
			return fmt.Errorf("users: load: %w", err)
		}
		if update.Name != nil {
			user.Name = *update.Name
		}
		if update.Class != nil {
			user.Class = *update.Class
		}
		if update.Language != nil {
			user.Language = *update.Language
		}
		if err := tx.Save(&user).Error; err != nil {
			return fmt.Errorf("users: update: %w", err)
		}
		return nil
	})
	if err != nil {
		return User{}, err
	}
	return user, nil
}
