package services

import (
	"context"
	"time"

	"github.com/SAP-F-2025/quiz-service/internal/events"
	"github.com/SAP-F-2025/quiz-service/internal/models"
	"github.com/SAP-F-2025/quiz-service/internal/presets"
)

// ServiceManager exposes every engine service to the transport layer.
type ServiceManager interface {
	Configuration() ConfigurationService
	Session() SessionService
	Ledger() AttemptLedger
	Certificate() CertificateService
	Analytics() AnalyticsEmitter
	// Clock is the time source the sessions run on.
	Clock() Clock
}

// ===== CONFIGURATION =====

type ConfigurationService interface {
	// Resolve returns exactly one configuration for the pair, creating a
	// course default from the default preset when none exists.
	Resolve(ctx context.Context, courseID string, quizID *string) (*models.QuizConfiguration, error)
	Create(ctx context.Context, req *CreateConfigurationRequest) (*models.QuizConfiguration, error)
	Update(ctx context.Context, id string, req *UpdateConfigurationRequest) (*models.QuizConfiguration, error)
	Duplicate(ctx context.Context, sourceID, targetCourseID string, targetQuizID *string) (*models.QuizConfiguration, error)
	ApplyPreset(ctx context.Context, configID, presetName string) (*models.QuizConfiguration, error)
	Presets() []presets.Preset
	// Validate reports every violation at once; nil means valid.
	Validate(candidate *models.QuizConfiguration) ValidationErrors
}

// RulesPatch overrides individual rule fields; nil fields are left alone.
type RulesPatch struct {
	AllowRetake         *bool `json:"allow_retake,omitempty"`
	MaxAttempts         *int  `json:"max_attempts,omitempty"`
	ShowCorrectAnswers  *bool `json:"show_correct_answers,omitempty"`
	ShowExplanations    *bool `json:"show_explanations,omitempty"`
	ShowScoreBreakdown  *bool `json:"show_score_breakdown,omitempty"`
	ImmediateFeedback   *bool `json:"immediate_feedback,omitempty"`
	RandomizeQuestions  *bool `json:"randomize_questions,omitempty"`
	RandomizeAnswers    *bool `json:"randomize_answers,omitempty"`
	RequireAllQuestions *bool `json:"require_all_questions,omitempty"`
	AllowSkipQuestions  *bool `json:"allow_skip_questions,omitempty"`
	ShowProgress        *bool `json:"show_progress,omitempty"`
	TimeLimit           *int  `json:"time_limit,omitempty"`
	ClearTimeLimit      bool  `json:"clear_time_limit,omitempty"`
	ShowTimer           *bool `json:"show_timer,omitempty"`
	AutoSubmit          *bool `json:"auto_submit,omitempty"`
	PassThreshold       *int  `json:"pass_threshold,omitempty"`
}

type CreateConfigurationRequest struct {
	CourseID string  `json:"course_id" validate:"required,max=36"`
	QuizID   *string `json:"quiz_id,omitempty" validate:"omitempty,max=36"`
	// Preset seeds every rule before the patch is applied; default when empty.
	Preset         string  `json:"preset,omitempty" validate:"omitempty,preset_name"`
	CustomFeedback *string `json:"custom_feedback,omitempty"`
	RulesPatch
}

type UpdateConfigurationRequest struct {
	CustomFeedback      *string `json:"custom_feedback,omitempty"`
	ClearCustomFeedback bool    `json:"clear_custom_feedback,omitempty"`
	RulesPatch
}

type DuplicateConfigurationRequest struct {
	TargetCourseID string  `json:"target_course_id" validate:"required,max=36"`
	TargetQuizID   *string `json:"target_quiz_id,omitempty" validate:"omitempty,max=36"`
}

// ===== SESSIONS =====

type SessionService interface {
	Start(ctx context.Context, learner models.LearnerContext, quizID string) (*QuizSession, error)
	// Get returns a live session, restoring it from the snapshot store when
	// this process does not hold it.
	Get(ctx context.Context, sessionID string) (*QuizSession, error)
	SubmitAnswer(ctx context.Context, session *QuizSession, req *SubmitAnswerRequest) (*AnswerFeedback, error)
	Advance(ctx context.Context, session *QuizSession) (int, error)
	Previous(ctx context.Context, session *QuizSession) (int, error)
	GoTo(ctx context.Context, session *QuizSession, index int) (int, error)
	Submit(ctx context.Context, session *QuizSession) (*models.QuizResult, error)
	Retake(ctx context.Context, session *QuizSession) (*QuizSession, error)
	Exit(ctx context.Context, session *QuizSession) error
	Restore(ctx context.Context, sessionID string) (*QuizSession, error)
	// Close cancels every timer the service owns.
	Close()
}

// SessionStore persists snapshots of live sessions. Load reports a missing
// snapshot with an error matching cache.ErrCacheMiss.
type SessionStore interface {
	Save(ctx context.Context, snapshot *models.SessionSnapshot) error
	Load(ctx context.Context, sessionID string) (*models.SessionSnapshot, error)
	Delete(ctx context.Context, sessionID string) error
}

type SubmitAnswerRequest struct {
	QuestionID string             `json:"question_id" validate:"required"`
	Value      models.AnswerValue `json:"value" validate:"required,min=1,dive,max=2000"`
	TimeSpent  int                `json:"time_spent" validate:"min=0"`
}

// AnswerFeedback acknowledges a stored answer. Correctness details are only
// filled in when the rules allow immediate feedback.
type AnswerFeedback struct {
	QuestionID    string   `json:"question_id"`
	Recorded      bool     `json:"recorded"`
	IsCorrect     *bool    `json:"is_correct,omitempty"`
	Explanation   *string  `json:"explanation,omitempty"`
	CorrectAnswer []string `json:"correct_answer,omitempty"`
	RemainingTime *int     `json:"remaining_time,omitempty"`
}

// ===== ATTEMPTS =====

type AttemptLedger interface {
	CountAttempts(ctx context.Context, learnerID, quizID string) (int, error)
	CanAttempt(ctx context.Context, learnerID, quizID string, rules models.QuizRules) (bool, error)
	// CheckAvailability returns an *AttemptLimitError when no attempt is left.
	CheckAvailability(ctx context.Context, learnerID, quizID string, rules models.QuizRules) error
	// Record appends attempt unless the limit is already reached. Recording
	// the same attempt id twice is a no-op.
	Record(ctx context.Context, attempt *models.QuizAttempt, rules models.QuizRules) error
	History(ctx context.Context, learnerID, quizID string) ([]*models.QuizAttempt, error)
}

// ===== CERTIFICATES =====

type CertificateService interface {
	// IssueIfEligible returns nil without error when the result does not
	// earn a certificate, and the existing certificate when the enrollment
	// already holds an active one.
	IssueIfEligible(ctx context.Context, result *models.QuizResult, quizID string, learner models.LearnerContext) (*models.Certificate, error)
	// Verify never fails for an unknown code.
	Verify(ctx context.Context, code string) (*models.CertificateVerification, error)
	Revoke(ctx context.Context, id string, reason string) (*models.Certificate, error)
	ExpireDue(ctx context.Context) (int64, error)
}

// ===== ANALYTICS =====

type AnalyticsEmitter interface {
	// Emit queues an event and returns immediately.
	Emit(eventType events.EventType, payload interface{})
	// Close stops accepting events and drains the queue.
	Close(ctx context.Context) error
}

// EmitterConfig tunes the analytics worker.
type EmitterConfig struct {
	BufferSize     int
	PublishTimeout time.Duration
}
