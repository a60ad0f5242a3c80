package quiz

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/pathshala-app/pathshala/internal/changelog"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrNotFound indicates a mutation targeted a nonexistent session.
	ErrNotFound = errors.New("quiz: not found")

	errMissingDatabase  = errors.New("quiz: database handle is required")
	errMissingChangeLog = errors.New("quiz: change log is required")
	noOpLogger          = zap.NewNop()
)

// TablePublisher receives change notifications after a table mutation commits.
type TablePublisher interface {
	Publish(table string)
}

// RepositoryConfig describes the dependencies of the quiz repository.
type RepositoryConfig struct {
	Database  *gorm.DB
	ChangeLog *changelog.Log
	Clock     func() time.Time
	Shuffle   func(n int, swap func(i, j int))
	Publisher TablePublisher
	Logger    *zap.Logger
}

// Repository persists quiz sessions, answers and skill events. Session
// completion and skill events are change-logged; starting a session and
// recording individual answers stay local until completion.
type Repository struct {
	db        *gorm.DB
	changeLog *changelog.Log
	clock     func() time.Time
	shuffle   func(n int, swap func(i, j int))
	publisher TablePublisher
	logger    *zap.Logger
}

// NewRepository constructs the quiz repository.
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
	shuffle := cfg.Shuffle
	if shuffle == nil {
		shuffle = rand.Shuffle
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Repository{
		db:        cfg.Database,
		changeLog: cfg.ChangeLog,
		clock:     clock,
		shuffle:   shuffle,
		publisher: cfg.Publisher,
		logger:    logger,
	}, nil
}

// StartSession opens a quiz attempt. The attempt is not change-logged until
// it completes; abandoned sessions never reach the remote.
func (r *Repository) StartSession(ctx context.Context, userID, chapterID uint) (Session, error) {
	session := Session{
		UserID:           userID,
		ChapterID:        chapterID,
		CreatedAtSeconds: r.clock().UTC().Unix(),
	}
	if err := r.db.WithContext(ctx).Create(&session).Error; err != nil {
		return Session{}, fmt.Errorf("quiz: start session: %w", err)
	}
	r.publish(Session{}.TableName())
	return session, nil
}

// CompleteSession records the final score and logs the session for sync.
func (r *Repository) CompleteSession(ctx context.Context, sessionID uint, score float64) (Session, error) {
	var session Session
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Take(&session, sessionID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: session %d", ErrNotFound, sessionID)
			}
			return fmt.Errorf("quiz: load session: %w", err)
		}
		completedAt := r.clock().UTC().Unix()
		session.Score = &score
		session.CompletedAtSeconds = &completedAt
		if err := tx.Save(&session).Error; err != nil {
			return fmt.Errorf("quiz: complete session: %w", err)
		}
		_, err := r.changeLog.AppendIn(tx, changelog.EntityTypeQuizSession, session.ID, changelog.ActionUpdate)
		return err
	})
	if err != nil {
		return Session{}, err
	}
	r.publish(Session{}.TableName())
	return session, nil
}

// RecordAnswer stores one answered question. Answers stay local; the session
// completion entry carries the result to the remote.
func (r *Repository) RecordAnswer(ctx context.Context, sessionID, questionID uint, answer string, correct bool) (Answer, error) {
	record := Answer{
		SessionID:  sessionID,
		QuestionID: questionID,
		Answer:     answer,
		Correct:    correct,
	}
	if err := r.db.WithContext(ctx).Create(&record).Error; err != nil {
		return Answer{}, fmt.Errorf("quiz: record answer: %w", err)
	}
	return record, nil
}

// RecordSkillEvent stores a per-question outcome and logs it for sync so the
// remote sees skill signals without waiting for session completion.
func (r *Repository) RecordSkillEvent(ctx context.Context, userID, questionID uint, correct bool, timeTaken time.Duration) (SkillEvent, error) {
	event := SkillEvent{
		UserID:           userID,
		QuestionID:       questionID,
		Correct:          correct,
		TimeTakenSeconds: int(timeTaken / time.Second),
		CreatedAtSeconds: r.clock().UTC().Unix(),
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&event).Error; err != nil {
			return fmt.Errorf("quiz: record skill event: %w", err)
		}
		_, err := r.changeLog.AppendIn(tx, changelog.EntityTypeSkillEvent, event.ID, changelog.ActionCreate)
		return err
	})
	if err != nil {
		return SkillEvent{}, err
	}
	r.publish(SkillEvent{}.TableName())
	return event, nil
}

// ListQuestionsByChapter returns a chapter's questions, optionally filtered
// by difficulty and capped at limit.
func (r *Repository) ListQuestionsByChapter(ctx context.Context, chapterID uint, difficulty Difficulty, limit int) ([]Question, error) {
	query := r.db.WithContext(ctx).Where("chapter_id = ?", chapterID)
	if difficulty != "" {
		query = query.Where("difficulty = ?", difficulty)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	var questions []Question
	if err := query.Order("id ASC").Find(&questions).Error; err != nil {
		return nil, fmt.Errorf("quiz: list questions: %w", err)
	}
	return questions, nil
}

// RandomQuestions picks up to count random questions from a chapter.
func (r *Repository) RandomQuestions(ctx context.Context, chapterID uint, count int, difficulty Difficulty) ([]Question, error) {
	questions, err := r.ListQuestionsByChapter(ctx, chapterID, difficulty, 0)
	if err != nil {
		return nil, err
	}
	r.shuffle(len(questions), func(i, j int) {
		questions[i], questions[j] = questions[j], questions[i]
	})
	if count < len(questions) {
		questions = questions[:count]
	}
	return questions, nil
}

// History returns a user's most recent sessions, newest first.
func (r *Repository) History(ctx context.Context, userID uint, limit int) ([]Session, error) {
	query := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at_s DESC").
		Order("id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var sessions []Session
	if err := query.Find(&sessions).Error; err != nil {
		return nil, fmt.Errorf("quiz: history: %w", err)
	}
	return sessions, nil
}

// ChapterPerformance summarises a user's completed sessions on a chapter.
type ChapterPerformance struct {
	TotalQuizzes int
	AverageScore float64
	BestScore    float64
}

// Performance aggregates scores across a user's completed chapter sessions.
func (r *Repository) Performance(ctx context.Context, userID, chapterID uint) (ChapterPerformance, error) {
	var sessions []Session
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND chapter_id = ? AND completed_at_s IS NOT NULL", userID, chapterID).
		Find(&sessions).Error; err != nil {
		return ChapterPerformance{}, fmt.Errorf("quiz: performance: %w", err)
	}
	if len(sessions) == 0 {
		return ChapterPerformance{}, nil
	}

	var total, best float64
	for _, session := range sessions {
		if session.Score == nil {
			continue
		}
		total += *session.Score
		if *session.Score > best {
			best = *session.Score
		}
	}
	average := total / float64(len(sessions))
	return ChapterPerformance{
		TotalQuizzes: len(sessions),
		AverageScore: math.Round(average*10) / 10,
		BestScore:    best,
	}, nil
}

// SkillProficiency returns the fraction of correct outcomes (0..1) across a
// user's skill events for questions carrying the tag.
func (r *Repository) SkillProficiency(ctx context.Context, userID uint, skillTag string) (float64, error) {
	var questions []Question
	if err := r.db.WithContext(ctx).Find(&questions).Error; err != nil {
		return 0, fmt.Errorf("quiz: load questions: %w", err)
	}
	tagged := make(map[uint]bool, len(questions))
	for _, question := range questions {
		for _, tag := range question.SkillTags {
			if tag == skillTag {
				tagged[question.ID] = true
				break
			}
		}
	}
	if len(tagged) == 0 {
		return 0, nil
	}

	var events []SkillEvent
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Find(&events).Error; err != nil {
		return 0, fmt.Errorf("quiz: load skill events: %w", err)
	}

	var attempts, correct int
	for _, event := range events {
		if !tagged[event.QuestionID] {
			continue
		}
		attempts++
		if event.Correct {
			correct++
		}
	}
	if attempts == 0 {
		return 0, nil
	}
	return float64(correct) / float64(attempts), nil
}

// SeedQuestions inserts bundled question content. Seeded content is never
// change-logged; it originates from the authority, not the device.
func (r *Repository) SeedQuestions(ctx context.Context, questions []Question) error {
	if len(questions) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Create(&questions).Error; err != nil {
		return fmt.Errorf("quiz: seed questions: %w", err)
	}
	r.publish(Question{}.TableName())
	return nil
}

func (r *Repository) publish(table string) {
	if r.publisher != nil {
		r.publisher.Publish(table)
	}
}
