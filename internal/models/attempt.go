package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type AttemptStatus string

const (
	AttemptInProgress AttemptStatus = "in_progress"
	AttemptCompleted  AttemptStatus = "completed"
	AttemptAbandoned  AttemptStatus = "abandoned"
)

// AnswerValue holds one submitted value or a set of them. On the wire it is
// either a JSON string or an array of strings.
type AnswerValue []string

func (v AnswerValue) MarshalJSON() ([]byte, error) {
	if len(v) == 1 {
		return json.Marshal(v[0])
	}
	return json.Marshal([]string(v))
}

func (v *AnswerValue) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*v = AnswerValue{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*v = many
	return nil
}

type Answer struct {
	QuestionID  string      `json:"question_id"`
	Value       AnswerValue `json:"value"`
	IsCorrect   bool        `json:"is_correct"`
	TimeSpent   int         `json:"time_spent"` // Seconds
	SubmittedAt time.Time   `json:"submitted_at"`
}

// QuizAttempt is append-only; the ledger never updates or deletes rows.
type QuizAttempt struct {
	ID            string                      `json:"id" gorm:"primaryKey;size:36"`
	QuizID        string                      `json:"quiz_id" gorm:"size:36;not null;uniqueIndex:idx_quiz_attempts_learner_number,priority:2"`
	CourseID      string                      `json:"course_id" gorm:"size:36;not null;index"`
	ModuleID      *string                     `json:"module_id,omitempty" gorm:"size:36"`
	LearnerID     string                      `json:"learner_id" gorm:"size:64;not null;uniqueIndex:idx_quiz_attempts_learner_number,priority:1"`
	AttemptNumber int                         `json:"attempt_number" gorm:"not null;uniqueIndex:idx_quiz_attempts_learner_number,priority:3"`
	Answers       datatypes.JSONSlice[Answer] `json:"answers"`
	Score         int                         `json:"score"`
	TotalPoints   int                         `json:"total_points"`
	EarnedPoints  int                         `json:"earned_points"`
	TimeSpent     int                         `json:"time_spent"` // Seconds
	Passed        bool                        `json:"passed"`
	Status        AttemptStatus               `json:"status" gorm:"size:16;not null;index"`
	CompletedAt   *time.Time                  `json:"completed_at,omitempty"`
	CreatedAt     time.Time                   `json:"created_at"`
}

func (a *QuizAttempt) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}
