package services

import (
	"errors"
	"fmt"
	"strings"

	apperrors "github.com/SAP-F-2025/quiz-service/internal/errors"
)

// ===== COMMON SERVICE ERRORS =====

var (
	// Infrastructure errors
	ErrStoreUnavailable        = errors.New("store unavailable")
	ErrCodeGenerationExhausted = errors.New("verification code generation exhausted")

	// Configuration errors
	ErrConfigurationNotFound = errors.New("configuration not found")
	ErrConfigurationExists   = errors.New("configuration already exists for this quiz")
	ErrUnknownPreset         = errors.New("unknown preset")

	// Session state errors
	ErrSessionNotFound      = errors.New("session not found")
	ErrSessionNotInProgress = errors.New("session is not in progress")
	ErrSessionNotFinished   = errors.New("session has not been submitted or abandoned")
	ErrUnknownQuestion      = errors.New("question is not part of this session")
	ErrAnswerOutOfOrder     = errors.New("only the current question can be answered")
	ErrAnswerLocked         = errors.New("question was already answered")
	ErrQuestionOutOfRange   = errors.New("question index out of range")
	ErrTimeExpired          = errors.New("session time has expired")
	ErrSubmissionPending    = errors.New("session time expired and awaits submission")
	ErrUnansweredQuestions  = errors.New("all questions must be answered before submitting")

	// Policy errors
	ErrNoQuestionsFound     = errors.New("quiz has no questions")
	ErrAttemptLimitExceeded = errors.New("maximum attempts exceeded")

	// Certificate errors
	ErrCertificateNotFound  = errors.New("certificate not found")
	ErrCertificateNotActive = errors.New("certificate is not active")
)

// ===== CUSTOM ERROR TYPES =====

type ValidationError = apperrors.ValidationError
type ValidationErrors = apperrors.ValidationErrors

// AttemptLimitError carries the figures a learner is shown when the attempt
// limit stops a start or retake.
type AttemptLimitError struct {
	Count int `json:"count"`
	Max   int `json:"max"`
}

func (e *AttemptLimitError) Error() string {
	return fmt.Sprintf("%s: %d of %d attempts used", ErrAttemptLimitExceeded, e.Count, e.Max)
}

func (e *AttemptLimitError) Unwrap() error {
	return ErrAttemptLimitExceeded
}

// UnansweredQuestionsError lists the questions still missing an answer.
type UnansweredQuestionsError struct {
	QuestionIDs []string `json:"question_ids"`
}

func (e *UnansweredQuestionsError) Error() string {
	return fmt.Sprintf("%s: %s", ErrUnansweredQuestions, strings.Join(e.QuestionIDs, ", "))
}

func (e *UnansweredQuestionsError) Unwrap() error {
	return ErrUnansweredQuestions
}

// PendingSubmissionError names the expired session that must be submitted
// or exited before the learner can start the quiz again.
type PendingSubmissionError struct {
	SessionID string `json:"session_id"`
}

func (e *PendingSubmissionError) Error() string {
	return fmt.Sprintf("%s: %s", ErrSubmissionPending, e.SessionID)
}

func (e *PendingSubmissionError) Unwrap() error {
	return ErrSubmissionPending
}

type BusinessRuleError struct {
	Rule    string                 `json:"rule"`
	Message string                 `json:"message"`
	Context map[string]interface{} `json:"context,omitempty"`
}

func (bre *BusinessRuleError) Error() string {
	return fmt.Sprintf("business rule violation (%s): %s", bre.Rule, bre.Message)
}

// ===== ERROR HELPERS =====

func NewValidationError(field, message string, value interface{}) *ValidationError {
	return apperrors.NewValidationError(field, message, value)
}

func NewBusinessRuleError(rule, message string, context map[string]interface{}) *BusinessRuleError {
	return &BusinessRuleError{
		Rule:    rule,
		Message: message,
		Context: context,
	}
}

// storeError marks a persistence failure so callers can tell it apart from
// rule violations.
func storeError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}

// IsValidation checks if error represents invalid input
func IsValidation(err error) bool {
	var ve ValidationErrors
	return errors.As(err, &ve)
}

// IsState checks if error was caused by calling an operation in the wrong session state
func IsState(err error) bool {
	return errors.Is(err, ErrSessionNotInProgress) ||
		errors.Is(err, ErrSessionNotFinished) ||
		errors.Is(err, ErrUnknownQuestion) ||
		errors.Is(err, ErrAnswerOutOfOrder) ||
		errors.Is(err, ErrAnswerLocked) ||
		errors.Is(err, ErrQuestionOutOfRange) ||
		errors.Is(err, ErrTimeExpired) ||
		errors.Is(err, ErrSubmissionPending) ||
		errors.Is(err, ErrUnansweredQuestions) ||
		errors.Is(err, ErrConfigurationExists) ||
		errors.Is(err, ErrCertificateNotActive)
}

// IsPolicy checks if error is a rule the learner cannot get around by retrying
func IsPolicy(err error) bool {
	return errors.Is(err, ErrAttemptLimitExceeded) ||
		errors.Is(err, ErrNoQuestionsFound)
}

// IsInfrastructure checks if error came from an unavailable dependency
func IsInfrastructure(err error) bool {
	return errors.Is(err, ErrStoreUnavailable) ||
		errors.Is(err, ErrCodeGenerationExhausted)
}

// IsNotFound checks if error represents a "not found" condition
func IsNotFound(err error) bool {
	return errors.Is(err, ErrConfigurationNotFound) ||
		errors.Is(err, ErrUnknownPreset) ||
		errors.Is(err, ErrSessionNotFound) ||
		errors.Is(err, ErrCertificateNotFound)
}

// IsBusinessRule checks if error represents a business rule violation
func IsBusinessRule(err error) bool {
	var bre *BusinessRuleError
	return errors.As(err, &bre)
}
