package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	eventSource  = "quiz-service"
	eventVersion = "1.0"
)

// EventType represents the kinds of analytics events the engine emits
type EventType string

const (
	// Session events
	EventSessionStarted   EventType = "session.started"
	EventAnswerSubmitted  EventType = "session.answer"
	EventSessionCompleted EventType = "session.completed"
	EventSessionAbandoned EventType = "session.abandoned"

	// Certificate events
	EventCertificateIssued EventType = "certificate.issued"
)

// AnalyticsEvent is the envelope every analytics record is published in
type AnalyticsEvent struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Source    string                 `json:"source"`
	Version   string                 `json:"version"`
	Data      interface{}            `json:"data"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// SessionScope identifies the quiz and learner an event belongs to
type SessionScope struct {
	SessionID string  `json:"session_id"`
	QuizID    string  `json:"quiz_id"`
	CourseID  string  `json:"course_id"`
	ModuleID  *string `json:"module_id,omitempty"`
	LearnerID string  `json:"learner_id"`
}

type SessionStartedEvent struct {
	SessionScope
	QuestionCount int       `json:"question_count"`
	TimeLimit     *int      `json:"time_limit,omitempty"` // seconds
	Randomized    bool      `json:"randomized"`
	StartedAt     time.Time `json:"started_at"`
}

type AnswerSubmittedEvent struct {
	SessionScope
	QuestionID string `json:"question_id"`
	IsCorrect  bool   `json:"is_correct"`
	TimeSpent  int    `json:"time_spent"` // seconds on the question
	Elapsed    int    `json:"elapsed"`    // seconds since session start
}

type SessionCompletedEvent struct {
	SessionScope
	AttemptNumber int  `json:"attempt_number"`
	Score         int  `json:"score"`
	Passed        bool `json:"passed"`
	EarnedPoints  int  `json:"earned_points"`
	TotalPoints   int  `json:"total_points"`
	Duration      int  `json:"duration"` // seconds
	TimeExpired   bool `json:"time_expired"`
	AutoSubmitted bool `json:"auto_submitted"`
}

type SessionAbandonedEvent struct {
	SessionScope
	AnsweredCount int `json:"answered_count"`
	Duration      int `json:"duration"` // seconds
}

type CertificateIssuedEvent struct {
	CertificateID     string    `json:"certificate_id"`
	CertificateNumber string    `json:"certificate_number"`
	LearnerID         string    `json:"learner_id"`
	CourseID          string    `json:"course_id"`
	EnrollmentID      string    `json:"enrollment_id"`
	QuizID            string    `json:"quiz_id"`
	Score             int       `json:"score"`
	IssuedAt          time.Time `json:"issued_at"`
}

// NewAnalyticsEvent wraps data in an envelope stamped at the given time
func NewAnalyticsEvent(eventType EventType, data interface{}, at time.Time) *AnalyticsEvent {
	return &AnalyticsEvent{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: at,
		Source:    eventSource,
		Version:   eventVersion,
		Data:      data,
	}
}
