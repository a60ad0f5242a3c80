package quiz

// QuestionType enumerates the supported question formats.
type QuestionType string

const (
	QuestionTypeMCQ   QuestionType = "mcq"
	QuestionTypeShort QuestionType = "short"
	QuestionTypeLong  QuestionType = "long"
)

// Difficulty grades a question.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Question is a quiz question attached to a chapter.
type Question struct {
	ID            uint         `gorm:"column:id;primaryKey;autoIncrement"`
	ChapterID     uint         `gorm:"column:chapter_id;not null;index"`
	Type          QuestionType `gorm:"column:question_type;size:16;not null"`
	Difficulty    Difficulty   `gorm:"column:difficulty;size:16;not null;index"`
	Body          string       `gorm:"column:body;type:text;not null"`
	Options       []string     `gorm:"column:options;type:text;serializer:json"`
	CorrectAnswer string       `gorm:"column:correct_answer;type:text;not null"`
	Explanation   string       `gorm:"column:explanation;type:text;not null;default:''"`
	SkillTags     []string     `gorm:"column:skill_tags;type:text;serializer:json"`
}

// TableName provides the explicit table binding for GORM.
func (Question) TableName() string {
	return "questions"
}

// Session is one quiz attempt on a chapter.
type Session struct {
	ID                 uint     `gorm:"column:id;primaryKey;autoIncrement"`
	ChapterID          uint     `gorm:"column:chapter_id;not null;index:idx_quiz_sessions_user_chapter,priority:2"`
	UserID             uint     `gorm:"column:user_id;not null;index;index:idx_quiz_sessions_user_chapter,priority:1"`
	Score              *float64 `gorm:"column:score"`
	CompletedAtSeconds *int64   `gorm:"column:completed_at_s;index"`
	CreatedAtSeconds   int64    `gorm:"column:created_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Session) TableName() string {
	return "quiz_sessions"
}

// Answer records one answered question inside a session.
type Answer struct {
	ID         uint   `gorm:"column:id;primaryKey;autoIncrement"`
	SessionID  uint   `gorm:"column:session_id;not null;index"`
	QuestionID uint   `gorm:"column:question_id;not null;index"`
	Answer     string `gorm:"column:answer;type:text;not null"`
	Correct    bool   `gorm:"column:correct;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Answer) TableName() string {
	return "quiz_answers"
}

// SkillEvent records one question outcome for skill tracking.
type SkillEvent struct {
	ID               uint  `gorm:"column:id;primaryKey;autoIncrement"`
	UserID           uint  `gorm:"column:user_id;not null;index"`
	QuestionID       uint  `gorm:"column:question_id;not null;index"`
	Correct          bool  `gorm:"column:correct;not null"`
	TimeTakenSeconds int   `gorm:"column:time_taken_s;not null;default:0"`
	CreatedAtSeconds int64 `gorm:"column:created_at_s;not null;index"`
}

// TableName provides the explicit table binding for GORM.
func (SkillEvent) TableName() string {
	return "skill_events"
}
