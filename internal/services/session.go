package services

import (
	"sync"
	"time"

	"github.com/SAP-F-2025/quiz-service/internal/events"
	"github.com/SAP-F-2025/quiz-service/internal/models"
)

// QuizSession is one learner's live attempt. All fields are guarded by mu;
// user calls and the expiry timer serialize on it.
type QuizSession struct {
	mu sync.Mutex

	id              string
	quizID          string
	configurationID string
	rules           models.QuizRules
	customFeedback  *string
	learner         models.LearnerContext
	seed            int64

	questions    []*models.Question
	positions    map[string]int
	currentIndex int
	answers      map[string]models.Answer

	status      models.SessionStatus
	subStatus   models.SessionSubStatus
	submitted   bool
	startedAt   time.Time
	completedAt *time.Time
	deadline    *time.Time

	timer Timer
	// generation is bumped whenever the timer is re-armed or cancelled; a
	// callback carrying an older value does nothing.
	generation uint64

	result             *models.QuizResult
	certificatePending bool
}

func (s *QuizSession) ID() string {
	return s.id
}

// LearnerID is immutable and safe to read without the lock.
func (s *QuizSession) LearnerID() string {
	return s.learner.LearnerID
}

func (s *QuizSession) Status() models.SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// QuestionOrder lists question ids in the order they are presented.
func (s *QuizSession) QuestionOrder() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, len(s.questions))
	for i, q := range s.questions {
		ids[i] = q.ID
	}
	return ids
}

// QuestionView is a question as shown to the learner, without its answer.
type QuestionView struct {
	ID        string              `json:"id"`
	Text      string              `json:"text"`
	Type      models.QuestionType `json:"type"`
	Options   []string            `json:"options,omitempty"`
	Points    int                 `json:"points"`
	TimeLimit *int                `json:"time_limit,omitempty"`
}

type SessionView struct {
	ID             string                        `json:"id"`
	QuizID         string                        `json:"quiz_id"`
	CourseID       string                        `json:"course_id"`
	Status         models.SessionStatus          `json:"status"`
	SubStatus      models.SessionSubStatus       `json:"sub_status,omitempty"`
	Submitted      bool                          `json:"submitted"`
	CurrentIndex   int                           `json:"current_index"`
	TotalQuestions int                           `json:"total_questions"`
	AnsweredCount  *int                          `json:"answered_count,omitempty"`
	RemainingTime  *int                          `json:"remaining_time,omitempty"`
	Questions      []QuestionView                `json:"questions"`
	Answers        map[string]models.AnswerValue `json:"answers"`
	Rules          models.QuizRules              `json:"rules"`
	StartedAt      time.Time                     `json:"started_at"`
	CompletedAt    *time.Time                    `json:"completed_at,omitempty"`
	Result         *models.QuizResult            `json:"result,omitempty"`
}

// View renders the session for the learner at now. Progress and timer
// figures are only included when the rules show them.
func (s *QuizSession) View(now time.Time) *SessionView {
	s.mu.Lock()
	defer s.mu.Unlock()

	view := &SessionView{
		ID:             s.id,
		QuizID:         s.quizID,
		CourseID:       s.learner.CourseID,
		Status:         s.status,
		SubStatus:      s.subStatus,
		Submitted:      s.submitted,
		CurrentIndex:   s.currentIndex,
		TotalQuestions: len(s.questions),
		Questions:      make([]QuestionView, len(s.questions)),
		Answers:        make(map[string]models.AnswerValue, len(s.answers)),
		Rules:          s.rules,
		StartedAt:      s.startedAt,
		CompletedAt:    s.completedAt,
	}
	if s.result != nil {
		result := *s.result
		view.Result = &result
	}
	for i, q := range s.questions {
		view.Questions[i] = QuestionView{
			ID:        q.ID,
			Text:      q.Text,
			Type:      q.Type,
			Options:   q.Options,
			Points:    q.Points,
			TimeLimit: q.TimeLimit,
		}
	}
	for id, a := range s.answers {
		view.Answers[id] = a.Value
	}
	if s.rules.ShowProgress {
		answered := len(s.answers)
		view.AnsweredCount = &answered
	}
	if s.rules.ShowTimer && s.status == models.SessionInProgress {
		view.RemainingTime = s.remainingLocked(now)
	}
	return view
}

// remainingLocked is the whole seconds left, or nil without a time limit.
func (s *QuizSession) remainingLocked(now time.Time) *int {
	if s.deadline == nil {
		return nil
	}
	remaining := int(s.deadline.Sub(now).Seconds())
	if remaining < 0 {
		remaining = 0
	}
	return &remaining
}

func (s *QuizSession) expiredLocked(now time.Time) bool {
	return s.deadline != nil && !now.Before(*s.deadline)
}

// awaitingSubmissionLocked reports a session whose time ran out without
// auto-submit and that the learner has not submitted yet.
func (s *QuizSession) awaitingSubmissionLocked() bool {
	return s.status == models.SessionCompleted &&
		s.subStatus == models.SubStatusTimeExpiredUnsubmitted &&
		!s.submitted
}

// stopTimerLocked cancels any pending expiry callback.
func (s *QuizSession) stopTimerLocked() {
	s.generation++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// elapsedLocked is the time spent in seconds, capped at the time limit.
func (s *QuizSession) elapsedLocked(until time.Time) int {
	elapsed := until.Sub(s.startedAt)
	if s.deadline != nil && until.After(*s.deadline) {
		elapsed = s.deadline.Sub(s.startedAt)
	}
	if elapsed < 0 {
		return 0
	}
	return int(elapsed.Seconds())
}

func (s *QuizSession) scopeLocked() events.SessionScope {
	return events.SessionScope{
		SessionID: s.id,
		QuizID:    s.quizID,
		CourseID:  s.learner.CourseID,
		ModuleID:  s.learner.ModuleID,
		LearnerID: s.learner.LearnerID,
	}
}

func (s *QuizSession) snapshotLocked() *models.SessionSnapshot {
	answers := make(map[string]models.Answer, len(s.answers))
	for id, a := range s.answers {
		answers[id] = a
	}
	return &models.SessionSnapshot{
		ID:              s.id,
		QuizID:          s.quizID,
		ConfigurationID: s.configurationID,
		Rules:           s.rules,
		CustomFeedback:  s.customFeedback,
		Learner:         s.learner,
		Seed:            s.seed,
		CurrentIndex:    s.currentIndex,
		Answers:         answers,
		Status:          s.status,
		SubStatus:       s.subStatus,
		Submitted:       s.submitted,
		StartedAt:       s.startedAt,
		CompletedAt:     s.completedAt,
	}
}

func (s *QuizSession) unansweredLocked() []string {
	var missing []string
	for _, q := range s.questions {
		if _, ok := s.answers[q.ID]; !ok {
			missing = append(missing, q.ID)
		}
	}
	return missing
}

func (s *QuizSession) answerListLocked() []models.Answer {
	list := make([]models.Answer, 0, len(s.answers))
	for _, q := range s.questions {
		if a, ok := s.answers[q.ID]; ok {
			list = append(list, a)
		}
	}
	return list
}
