package models

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type QuestionType string

const (
	QuestionMultipleChoice QuestionType = "multiple_choice"
	QuestionTrueFalse      QuestionType = "true_false"
	QuestionShortAnswer    QuestionType = "short_answer"
)

// MatchMode controls how short answers are compared.
type MatchMode string

const (
	MatchExact      MatchMode = "exact"
	MatchNormalized MatchMode = "normalized"
)

// Question is owned by course authoring; the engine only reads it.
type Question struct {
	ID            string                      `json:"id" gorm:"primaryKey;size:36"`
	QuizID        string                      `json:"quiz_id" gorm:"size:36;not null;index:idx_questions_quiz_order,priority:1" validate:"required"`
	ModuleID      *string                     `json:"module_id,omitempty" gorm:"size:36"`
	Text          string                      `json:"text" gorm:"type:text;not null" validate:"required"`
	Type          QuestionType                `json:"type" gorm:"size:32;not null" validate:"required,question_type"`
	Options       datatypes.JSONSlice[string] `json:"options,omitempty"`
	CorrectAnswer string                      `json:"correct_answer" gorm:"type:text;not null" validate:"required"`
	Explanation   *string                     `json:"explanation,omitempty" gorm:"type:text"`
	Points        int                         `json:"points" gorm:"not null;default:1" validate:"min=1"`
	TimeLimit     *int                        `json:"time_limit,omitempty" validate:"omitempty,min=1"`
	OrderIndex    int                         `json:"order_index" gorm:"not null;index:idx_questions_quiz_order,priority:2"`
	MatchMode     MatchMode                   `json:"match_mode,omitempty" gorm:"size:16" validate:"omitempty,match_mode"`

	// ResolvedAnswer pins the correct options by text on a session's copy
	// of the question, so option order no longer matters. Never stored.
	ResolvedAnswer []string `json:"-" gorm:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (q *Question) BeforeCreate(tx *gorm.DB) error {
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	return nil
}

// CorrectTokens splits the stored comma-joined correct answer.
func (q *Question) CorrectTokens() []string {
	return SplitTokens(q.CorrectAnswer)
}

// SplitTokens splits a comma-joined list, trimming blanks.
func SplitTokens(s string) []string {
	parts := strings.Split(s, ",")
	tokens := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			tokens = append(tokens, p)
		}
	}
	return tokens
}

// CanonicalCorrectAnswers returns the correct answer as option text. For
// multiple choice, a token that matches no option but parses as an integer
// is a zero-based index into the authored option order.
func (q *Question) CanonicalCorrectAnswers() ([]string, error) {
	if q.ResolvedAnswer != nil {
		return slices.Clone(q.ResolvedAnswer), nil
	}

	tokens := q.CorrectTokens()
	if q.Type != QuestionMultipleChoice {
		return tokens, nil
	}

	out := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if slices.Contains(q.Options, tok) {
			out = append(out, tok)
			continue
		}
		idx, err := strconv.Atoi(tok)
		if err != nil || idx < 0 || idx >= len(q.Options) {
			return nil, fmt.Errorf("correct answer %q matches no option of question %s", tok, q.ID)
		}
		out = append(out, q.Options[idx])
	}
	return out, nil
}
