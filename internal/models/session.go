package models

import "time"

type SessionStatus string

const (
	SessionNotStarted SessionStatus = "not_started"
	SessionInProgress SessionStatus = "in_progress"
	SessionCompleted  SessionStatus = "completed"
	SessionAbandoned  SessionStatus = "abandoned"
)

// SessionSubStatus refines a completed session.
type SessionSubStatus string

const (
	SubStatusNone                   SessionSubStatus = ""
	SubStatusTimeExpiredUnsubmitted SessionSubStatus = "time_expired_not_submitted"
)

// IsTerminal reports whether no further transitions are possible.
func (s SessionStatus) IsTerminal() bool {
	return s == SessionCompleted || s == SessionAbandoned
}

// SessionSnapshot is the persisted form of a live session. The question
// order is not stored: replaying the seed over the same question set
// reproduces it.
type SessionSnapshot struct {
	ID              string            `json:"id"`
	QuizID          string            `json:"quiz_id"`
	ConfigurationID string            `json:"configuration_id"`
	Rules           QuizRules         `json:"rules"`
	CustomFeedback  *string           `json:"custom_feedback,omitempty"`
	Learner         LearnerContext    `json:"learner"`
	Seed            int64             `json:"seed"`
	CurrentIndex    int               `json:"current_index"`
	Answers         map[string]Answer `json:"answers"`
	Status          SessionStatus     `json:"status"`
	SubStatus       SessionSubStatus  `json:"sub_status,omitempty"`
	Submitted       bool              `json:"submitted"`
	StartedAt       time.Time         `json:"started_at"`
	CompletedAt     *time.Time        `json:"completed_at,omitempty"`
}
