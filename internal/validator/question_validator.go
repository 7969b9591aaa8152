package validator

import (
	"fmt"
	"strings"

	"github.com/SAP-F-2025/quiz-service/internal/models"
)

// QuestionValidator checks that question bank content can be scored
type QuestionValidator struct{}

// NewQuestionValidator creates a new question validator
func NewQuestionValidator() *QuestionValidator {
	return &QuestionValidator{}
}

// ValidateQuestion validates a complete question object
func (v *QuestionValidator) ValidateQuestion(question *models.Question) error {
	if strings.TrimSpace(question.Text) == "" {
		return fmt.Errorf("question text is required")
	}

	if question.Points < 1 {
		return fmt.Errorf("question points must be at least 1")
	}

	switch question.Type {
	case models.QuestionMultipleChoice:
		return v.validateMultipleChoice(question)
	case models.QuestionTrueFalse:
		return v.validateTrueFalse(question)
	case models.QuestionShortAnswer:
		return v.validateShortAnswer(question)
	default:
		return fmt.Errorf("unsupported question type: %s", question.Type)
	}
}

// ValidateBatch validates multiple questions
func (v *QuestionValidator) ValidateBatch(questions []*models.Question) error {
	for i, question := range questions {
		if err := v.ValidateQuestion(question); err != nil {
			return fmt.Errorf("validation failed for question %d (%s): %w", i+1, question.ID, err)
		}
	}

	return nil
}

func (v *QuestionValidator) validateMultipleChoice(question *models.Question) error {
	if len(question.Options) < 2 {
		return fmt.Errorf("multiple choice question must have at least 2 options")
	}

	seen := make(map[string]bool, len(question.Options))
	for _, opt := range question.Options {
		if strings.TrimSpace(opt) == "" {
			return fmt.Errorf("option text cannot be empty")
		}
		if seen[opt] {
			return fmt.Errorf("duplicate option %q", opt)
		}
		seen[opt] = true
	}

	// An option containing a comma can only be named by its index.
	correct, err := question.CanonicalCorrectAnswers()
	if err != nil {
		return err
	}
	if len(correct) == 0 {
		return fmt.Errorf("at least one correct option is required")
	}

	return nil
}

func (v *QuestionValidator) validateTrueFalse(question *models.Question) error {
	tokens := question.CorrectTokens()
	if len(tokens) != 1 {
		return fmt.Errorf("true/false question must have exactly one correct answer")
	}
	if !strings.EqualFold(tokens[0], "true") && !strings.EqualFold(tokens[0], "false") {
		return fmt.Errorf("true/false answer must be true or false")
	}

	return nil
}

func (v *QuestionValidator) validateShortAnswer(question *models.Question) error {
	if len(question.CorrectTokens()) == 0 {
		return fmt.Errorf("short answer question must have at least one accepted answer")
	}

	return nil
}
