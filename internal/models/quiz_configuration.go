package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// QuizRules is the rule set a session is played under. Presets overwrite
// all of it at once.
type QuizRules struct {
	// Attempt Settings
	AllowRetake bool `json:"allow_retake" yaml:"allow_retake"`
	MaxAttempts int  `json:"max_attempts" yaml:"max_attempts" gorm:"not null" validate:"min=1"`

	// Result Settings
	ShowCorrectAnswers bool `json:"show_correct_answers" yaml:"show_correct_answers"`
	ShowExplanations   bool `json:"show_explanations" yaml:"show_explanations"`
	ShowScoreBreakdown bool `json:"show_score_breakdown" yaml:"show_score_breakdown"`
	ImmediateFeedback  bool `json:"immediate_feedback" yaml:"immediate_feedback"`

	// Question Display Settings
	RandomizeQuestions  bool `json:"randomize_questions" yaml:"randomize_questions"`
	RandomizeAnswers    bool `json:"randomize_answers" yaml:"randomize_answers"`
	RequireAllQuestions bool `json:"require_all_questions" yaml:"require_all_questions"`
	AllowSkipQuestions  bool `json:"allow_skip_questions" yaml:"allow_skip_questions"`
	ShowProgress        bool `json:"show_progress" yaml:"show_progress"`

	// Time Settings
	TimeLimit  *int `json:"time_limit,omitempty" yaml:"time_limit" validate:"omitempty,min=1"` // Seconds
	ShowTimer  bool `json:"show_timer" yaml:"show_timer"`
	AutoSubmit bool `json:"auto_submit" yaml:"auto_submit"`

	PassThreshold int `json:"pass_threshold" yaml:"pass_threshold" gorm:"not null" validate:"min=0,max=100"`
}

// AttemptLimit is the number of attempts a learner gets under these rules.
func (r QuizRules) AttemptLimit() int {
	if !r.AllowRetake {
		return 1
	}
	return r.MaxAttempts
}

type QuizConfiguration struct {
	ID       string  `json:"id" gorm:"primaryKey;size:36"`
	CourseID string  `json:"course_id" gorm:"size:36;not null;index:idx_quiz_configurations_course,priority:1" validate:"required"`
	QuizID   *string `json:"quiz_id,omitempty" gorm:"size:36;uniqueIndex"`

	QuizRules `gorm:"embedded"`

	CustomFeedback *string `json:"custom_feedback,omitempty" gorm:"type:text" validate:"omitempty,max=1000"`
	Preset         *string `json:"preset,omitempty" gorm:"size:32"`

	CreatedAt time.Time `json:"created_at" gorm:"index:idx_quiz_configurations_course,priority:2"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (c *QuizConfiguration) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

// IsCourseDefault reports whether the configuration applies course-wide.
func (c *QuizConfiguration) IsCourseDefault() bool {
	return c.QuizID == nil
}
