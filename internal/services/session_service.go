package services

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"slices"
	"sync"
	"time"

	"github.com/SAP-F-2025/quiz-service/internal/cache"
	"github.com/SAP-F-2025/quiz-service/internal/events"
	"github.com/SAP-F-2025/quiz-service/internal/models"
	"github.com/SAP-F-2025/quiz-service/internal/repositories"
	"github.com/SAP-F-2025/quiz-service/internal/validator"
	"github.com/google/uuid"
)

const (
	// terminalRetention keeps finished sessions around for result reads
	// and repeated submits.
	terminalRetention = time.Hour
	// unsubmittedRetention is how long an expired session waits for the
	// learner to submit before it is recorded as abandoned.
	unsubmittedRetention = 24 * time.Hour
	// abandonRetryDelay spaces out retries of a failed abandonment record.
	abandonRetryDelay = time.Minute
	// expirySubmitTimeout bounds an auto-submit started by the timer.
	expirySubmitTimeout = 30 * time.Second

	defaultPassFeedback = "Congratulations! You passed the quiz."
	defaultFailFeedback = "You did not reach the passing score. Review the material and try again."
)

type sessionService struct {
	repo      repositories.Repository
	configs   ConfigurationService
	ledger    AttemptLedger
	certs     CertificateService
	emitter   AnalyticsEmitter
	store     SessionStore
	clock     Clock
	logger    *slog.Logger
	opLog     *ServiceLogger
	validator *validator.Validator
	newSeed   func() int64

	mu        sync.Mutex
	sessions  map[string]*QuizSession
	active    map[string]string // learner/quiz -> in-progress session id
	evictions map[string]Timer
	closed    bool
}

type SessionOption func(*sessionService)

// WithSessionStore enables snapshots so sessions survive restarts.
func WithSessionStore(store SessionStore) SessionOption {
	return func(s *sessionService) {
		s.store = store
	}
}

// WithSeedSource replaces the per-session shuffle seed generator.
func WithSeedSource(fn func() int64) SessionOption {
	return func(s *sessionService) {
		s.newSeed = fn
	}
}

func NewSessionService(
	repo repositories.Repository,
	configs ConfigurationService,
	ledger AttemptLedger,
	certs CertificateService,
	emitter AnalyticsEmitter,
	clock Clock,
	logger *slog.Logger,
	validator *validator.Validator,
	opts ...SessionOption,
) SessionService {
	s := &sessionService{
		repo:      repo,
		configs:   configs,
		ledger:    ledger,
		certs:     certs,
		emitter:   emitter,
		clock:     clock,
		logger:    logger,
		opLog:     NewServiceLogger(logger, LogConfig{Service: "quiz-service", Component: "session"}),
		validator: validator,
		newSeed:   rand.Int63,
		sessions:  make(map[string]*QuizSession),
		active:    make(map[string]string),
		evictions: make(map[string]Timer),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ===== LIFECYCLE =====

func (s *sessionService) Start(ctx context.Context, learner models.LearnerContext, quizID string) (session *QuizSession, err error) {
	ol := s.opLog.WithOperation(ctx, "start_session", learner.LearnerID)
	defer func() { ol.LogResult(sessionID(session), "quiz_session", err) }()

	errs := s.validator.Validate(&learner)
	if quizID == "" {
		errs = append(errs, *NewValidationError("quiz_id", "is required", quizID))
	}
	if len(errs) > 0 {
		return nil, errs
	}

	if existing := s.activeSession(learner.LearnerID, quizID); existing != nil {
		if err := resumable(existing); err != nil {
			return nil, err
		}
		s.logger.Info("Resuming existing session",
			"session_id", existing.id,
			"learner_id", learner.LearnerID,
			"quiz_id", quizID)
		return existing, nil
	}

	cfg, err := s.configs.Resolve(ctx, learner.CourseID, &quizID)
	if err != nil {
		return nil, err
	}
	if err := s.ledger.CheckAvailability(ctx, learner.LearnerID, quizID, cfg.QuizRules); err != nil {
		return nil, err
	}

	questions, err := s.loadQuestions(ctx, quizID)
	if err != nil {
		return nil, err
	}

	session, err = s.buildSession(uuid.NewString(), quizID, cfg.ID, cfg.QuizRules, cfg.CustomFeedback, learner, s.newSeed(), questions)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	session.status = models.SessionInProgress
	session.startedAt = now
	if limit := session.rules.TimeLimit; limit != nil {
		deadline := now.Add(time.Duration(*limit) * time.Second)
		session.deadline = &deadline
	}

	if registered := s.register(session); registered != session {
		// A concurrent start for the same learner registered first.
		if err := resumable(registered); err != nil {
			return nil, err
		}
		return registered, nil
	}

	session.mu.Lock()
	defer session.mu.Unlock()
	s.armTimerLocked(session)
	s.saveSnapshotLocked(ctx, session)

	s.emitter.Emit(events.EventSessionStarted, events.SessionStartedEvent{
		SessionScope:  session.scopeLocked(),
		QuestionCount: len(session.questions),
		TimeLimit:     session.rules.TimeLimit,
		Randomized:    session.rules.RandomizeQuestions,
		StartedAt:     now,
	})
	return session, nil
}

func (s *sessionService) Get(ctx context.Context, sessionID string) (*QuizSession, error) {
	return s.Restore(ctx, sessionID)
}

func (s *sessionService) SubmitAnswer(ctx context.Context, session *QuizSession, req *SubmitAnswerRequest) (feedback *AnswerFeedback, err error) {
	ol := s.opLog.WithOperation(ctx, "submit_answer", session.LearnerID())
	defer func() { ol.LogResult(session.ID(), "quiz_session", err) }()

	if errs := s.validator.Validate(req); errs != nil {
		return nil, errs
	}

	session.mu.Lock()
	defer session.mu.Unlock()

	now := s.clock.Now()
	if err := s.ensureActiveLocked(ctx, session, now); err != nil {
		return nil, err
	}

	idx, ok := session.positions[req.QuestionID]
	if !ok {
		return nil, ErrUnknownQuestion
	}
	if !session.rules.AllowSkipQuestions && idx != session.currentIndex {
		return nil, ErrAnswerOutOfOrder
	}
	if _, answered := session.answers[req.QuestionID]; answered && session.rules.ImmediateFeedback {
		return nil, ErrAnswerLocked
	}

	question := session.questions[idx]
	correct := ScoreAnswer(question, req.Value)
	session.answers[req.QuestionID] = models.Answer{
		QuestionID:  req.QuestionID,
		Value:       slices.Clone(req.Value),
		IsCorrect:   correct,
		TimeSpent:   req.TimeSpent,
		SubmittedAt: now,
	}
	s.saveSnapshotLocked(ctx, session)

	s.emitter.Emit(events.EventAnswerSubmitted, events.AnswerSubmittedEvent{
		SessionScope: session.scopeLocked(),
		QuestionID:   req.QuestionID,
		IsCorrect:    correct,
		TimeSpent:    req.TimeSpent,
		Elapsed:      session.elapsedLocked(now),
	})

	feedback = &AnswerFeedback{
		QuestionID: req.QuestionID,
		Recorded:   true,
	}
	if session.rules.ShowTimer {
		feedback.RemainingTime = session.remainingLocked(now)
	}
	if session.rules.ImmediateFeedback {
		feedback.IsCorrect = &correct
		if session.rules.ShowExplanations {
			feedback.Explanation = question.Explanation
		}
		if session.rules.ShowCorrectAnswers {
			if correctAnswer, err := question.CanonicalCorrectAnswers(); err == nil {
				feedback.CorrectAnswer = correctAnswer
			}
		}
	}
	return feedback, nil
}

// ===== NAVIGATION =====

func (s *sessionService) Advance(ctx context.Context, session *QuizSession) (int, error) {
	return s.moveCursor(ctx, session, func(current int) int { return current + 1 })
}

func (s *sessionService) Previous(ctx context.Context, session *QuizSession) (int, error) {
	return s.moveCursor(ctx, session, func(current int) int { return current - 1 })
}

func (s *sessionService) GoTo(ctx context.Context, session *QuizSession, index int) (int, error) {
	return s.moveCursor(ctx, session, func(int) int { return index })
}

func (s *sessionService) moveCursor(ctx context.Context, session *QuizSession, next func(current int) int) (int, error) {
	session.mu.Lock()
	defer session.mu.Unlock()

	if err := s.ensureActiveLocked(ctx, session, s.clock.Now()); err != nil {
		return session.currentIndex, err
	}

	target := next(session.currentIndex)
	if target < 0 || target >= len(session.questions) {
		return session.currentIndex, ErrQuestionOutOfRange
	}
	session.currentIndex = target
	s.saveSnapshotLocked(ctx, session)
	return target, nil
}

// ===== SUBMISSION =====

func (s *sessionService) Submit(ctx context.Context, session *QuizSession) (result *models.QuizResult, err error) {
	ol := s.opLog.WithOperation(ctx, "submit_quiz", session.LearnerID())
	defer func() { ol.LogResult(session.ID(), "quiz_session", err) }()

	session.mu.Lock()
	defer session.mu.Unlock()
	return s.submitLocked(ctx, session, false)
}

// submitLocked scores, records and certifies in that order. Nothing on the
// session changes until the attempt is recorded, so a failed record can be
// retried by submitting again.
func (s *sessionService) submitLocked(ctx context.Context, session *QuizSession, auto bool) (*models.QuizResult, error) {
	if session.submitted {
		if session.certificatePending {
			s.issueCertificateLocked(ctx, session)
		}
		return copyResult(session.result), nil
	}

	now := s.clock.Now()
	timeExpired := auto
	switch {
	case session.status == models.SessionInProgress:
		if session.expiredLocked(now) {
			timeExpired = true
			auto = auto || session.rules.AutoSubmit
		}
	case session.status == models.SessionCompleted && session.subStatus == models.SubStatusTimeExpiredUnsubmitted:
		timeExpired = true
	default:
		return nil, ErrSessionNotInProgress
	}

	if !timeExpired && session.rules.RequireAllQuestions {
		if missing := session.unansweredLocked(); len(missing) > 0 {
			return nil, &UnansweredQuestionsError{QuestionIDs: missing}
		}
	}

	completedAt := now
	if session.completedAt != nil {
		completedAt = *session.completedAt
	}

	summary := ScoreQuiz(session.questions, session.answers, session.rules.PassThreshold)
	attempt := &models.QuizAttempt{
		ID:           session.id,
		QuizID:       session.quizID,
		CourseID:     session.learner.CourseID,
		ModuleID:     session.learner.ModuleID,
		LearnerID:    session.learner.LearnerID,
		Answers:      session.answerListLocked(),
		Score:        summary.Score,
		TotalPoints:  summary.TotalPoints,
		EarnedPoints: summary.EarnedPoints,
		TimeSpent:    session.elapsedLocked(completedAt),
		Passed:       summary.Passed,
		Status:       models.AttemptCompleted,
		CompletedAt:  &completedAt,
	}
	if err := s.ledger.Record(ctx, attempt, session.rules); err != nil {
		return nil, err
	}

	session.stopTimerLocked()
	session.status = models.SessionCompleted
	session.subStatus = models.SubStatusNone
	session.submitted = true
	session.completedAt = &completedAt
	session.result = s.buildResult(session, summary, attempt, timeExpired)

	s.emitter.Emit(events.EventSessionCompleted, events.SessionCompletedEvent{
		SessionScope:  session.scopeLocked(),
		AttemptNumber: attempt.AttemptNumber,
		Score:         summary.Score,
		Passed:        summary.Passed,
		EarnedPoints:  summary.EarnedPoints,
		TotalPoints:   summary.TotalPoints,
		Duration:      attempt.TimeSpent,
		TimeExpired:   timeExpired,
		AutoSubmitted: auto,
	})

	if summary.Passed && session.learner.CertificatesEnabled {
		session.certificatePending = true
		s.issueCertificateLocked(ctx, session)
	}

	s.finishLocked(ctx, session)
	return copyResult(session.result), nil
}

// issueCertificateLocked leaves the session marked pending on failure; the
// next submit retries issuance only.
func (s *sessionService) issueCertificateLocked(ctx context.Context, session *QuizSession) {
	cert, err := s.certs.IssueIfEligible(ctx, session.result, session.quizID, session.learner)
	if err != nil {
		s.logger.Error("Certificate issuance failed, will retry on next submit",
			"session_id", session.id,
			"learner_id", session.learner.LearnerID,
			"error", err)
		session.result.CertificatePending = true
		return
	}
	session.certificatePending = false
	session.result.CertificatePending = false
	session.result.Certificate = cert
}

func (s *sessionService) buildResult(session *QuizSession, summary ScoreSummary, attempt *models.QuizAttempt, timeExpired bool) *models.QuizResult {
	result := &models.QuizResult{
		AttemptID:      attempt.ID,
		AttemptNumber:  attempt.AttemptNumber,
		Score:          summary.Score,
		TotalQuestions: summary.TotalQuestions,
		CorrectAnswers: summary.CorrectAnswers,
		TotalPoints:    summary.TotalPoints,
		EarnedPoints:   summary.EarnedPoints,
		TimeSpent:      attempt.TimeSpent,
		Passed:         summary.Passed,
		PassThreshold:  session.rules.PassThreshold,
		TimeExpired:    timeExpired,
		Answers:        attempt.Answers,
		Feedback:       feedbackFor(session.customFeedback, summary.Passed),
	}

	if session.rules.ShowScoreBreakdown {
		result.Breakdown = make([]models.QuestionScore, len(summary.Breakdown))
		for i, entry := range summary.Breakdown {
			if !session.rules.ShowCorrectAnswers {
				entry.CorrectAnswer = nil
			}
			if !session.rules.ShowExplanations {
				entry.Explanation = nil
			}
			result.Breakdown[i] = entry
		}
	}
	return result
}

// feedbackFor prefers the configured custom text over the pass/fail default.
func feedbackFor(custom *string, passed bool) *string {
	if custom != nil && *custom != "" {
		text := *custom
		return &text
	}
	text := defaultFailFeedback
	if passed {
		text = defaultPassFeedback
	}
	return &text
}

// Retake is allowed once the current session is submitted or abandoned and
// the ledger still has an attempt left.
func (s *sessionService) Retake(ctx context.Context, session *QuizSession) (next *QuizSession, err error) {
	ol := s.opLog.WithOperation(ctx, "retake_quiz", session.LearnerID())
	defer func() { ol.LogResult(sessionID(next), "quiz_session", err) }()

	session.mu.Lock()
	if !session.submitted && session.status != models.SessionAbandoned {
		session.mu.Unlock()
		return nil, ErrSessionNotFinished
	}
	learner, quizID, rules := session.learner, session.quizID, session.rules
	session.mu.Unlock()

	if err := s.ledger.CheckAvailability(ctx, learner.LearnerID, quizID, rules); err != nil {
		return nil, err
	}

	s.discard(ctx, session)
	return s.Start(ctx, learner, quizID)
}

// Exit abandons the session. The abandoned attempt is recorded and counts
// toward the attempt limit. A session whose time ran out without being
// submitted can be exited as well.
func (s *sessionService) Exit(ctx context.Context, session *QuizSession) (err error) {
	ol := s.opLog.WithOperation(ctx, "exit_quiz", session.LearnerID())
	defer func() { ol.LogResult(session.ID(), "quiz_session", err) }()

	session.mu.Lock()
	defer session.mu.Unlock()

	if session.status != models.SessionInProgress && !session.awaitingSubmissionLocked() {
		return ErrSessionNotInProgress
	}
	return s.abandonLocked(ctx, session)
}

func (s *sessionService) abandonLocked(ctx context.Context, session *QuizSession) error {
	now := s.clock.Now()
	completedAt := now
	if session.completedAt != nil {
		completedAt = *session.completedAt
	}

	total := 0
	for _, q := range session.questions {
		total += q.Points
	}
	attempt := &models.QuizAttempt{
		ID:          session.id,
		QuizID:      session.quizID,
		CourseID:    session.learner.CourseID,
		ModuleID:    session.learner.ModuleID,
		LearnerID:   session.learner.LearnerID,
		Answers:     session.answerListLocked(),
		TotalPoints: total,
		TimeSpent:   session.elapsedLocked(completedAt),
		Status:      models.AttemptAbandoned,
		CompletedAt: &completedAt,
	}
	if err := s.ledger.Record(ctx, attempt, session.rules); err != nil {
		if !errors.Is(err, ErrAttemptLimitExceeded) {
			return err
		}
		// The limit is already used up; there is nothing left to consume.
		s.logger.Info("Abandoned attempt not recorded, limit reached",
			"session_id", session.id,
			"learner_id", session.learner.LearnerID)
	}

	session.stopTimerLocked()
	session.status = models.SessionAbandoned
	session.subStatus = models.SubStatusNone
	session.completedAt = &completedAt

	s.emitter.Emit(events.EventSessionAbandoned, events.SessionAbandonedEvent{
		SessionScope:  session.scopeLocked(),
		AnsweredCount: len(session.answers),
		Duration:      attempt.TimeSpent,
	})

	s.finishLocked(ctx, session)
	return nil
}

// Restore returns the live session, rebuilding it from its snapshot when
// this process does not hold it. Replaying the stored seed reproduces the
// original question order.
func (s *sessionService) Restore(ctx context.Context, id string) (*QuizSession, error) {
	if session := s.lookup(id); session != nil {
		return session, nil
	}
	if s.store == nil {
		return nil, ErrSessionNotFound
	}

	snapshot, err := s.store.Load(ctx, id)
	if err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, ErrSessionNotFound
		}
		return nil, storeError("load session snapshot", err)
	}
	if snapshot.Submitted || (snapshot.Status.IsTerminal() && snapshot.SubStatus != models.SubStatusTimeExpiredUnsubmitted) {
		return nil, ErrSessionNotFound
	}

	questions, err := s.loadQuestions(ctx, snapshot.QuizID)
	if err != nil {
		return nil, err
	}
	session, err := s.buildSession(snapshot.ID, snapshot.QuizID, snapshot.ConfigurationID, snapshot.Rules, snapshot.CustomFeedback, snapshot.Learner, snapshot.Seed, questions)
	if err != nil {
		return nil, err
	}

	session.status = snapshot.Status
	session.subStatus = snapshot.SubStatus
	session.startedAt = snapshot.StartedAt
	session.completedAt = snapshot.CompletedAt
	if snapshot.CurrentIndex >= 0 && snapshot.CurrentIndex < len(session.questions) {
		session.currentIndex = snapshot.CurrentIndex
	}
	for qid, answer := range snapshot.Answers {
		if _, ok := session.positions[qid]; ok {
			session.answers[qid] = answer
		}
	}
	if limit := session.rules.TimeLimit; limit != nil {
		deadline := session.startedAt.Add(time.Duration(*limit) * time.Second)
		session.deadline = &deadline
	}

	restored := s.register(session)
	if restored != session {
		return restored, nil
	}

	session.mu.Lock()
	defer session.mu.Unlock()
	switch {
	case session.status == models.SessionInProgress && session.expiredLocked(s.clock.Now()):
		s.expireLocked(ctx, session)
	case session.status == models.SessionInProgress:
		s.armTimerLocked(session)
	case session.awaitingSubmissionLocked() && session.completedAt != nil:
		s.armAbandonLocked(session, session.completedAt.Add(unsubmittedRetention))
	}

	s.logger.Info("Session restored from snapshot",
		"session_id", session.id,
		"learner_id", session.learner.LearnerID,
		"answered", len(session.answers))
	return session, nil
}

// Close cancels every timer the service owns.
func (s *sessionService) Close() {
	s.mu.Lock()
	s.closed = true
	for id, t := range s.evictions {
		t.Stop()
		delete(s.evictions, id)
	}
	live := make([]*QuizSession, 0, len(s.sessions))
	for _, session := range s.sessions {
		live = append(live, session)
	}
	s.mu.Unlock()

	for _, session := range live {
		session.mu.Lock()
		session.stopTimerLocked()
		session.mu.Unlock()
	}
}

// ===== TIMERS =====

func (s *sessionService) armTimerLocked(session *QuizSession) {
	if session.deadline == nil {
		return
	}
	session.stopTimerLocked()
	generation := session.generation

	wait := session.deadline.Sub(s.clock.Now())
	if wait < 0 {
		wait = 0
	}
	session.timer = s.clock.AfterFunc(wait, func() {
		s.onExpiry(session, generation)
	})
}

func (s *sessionService) onExpiry(session *QuizSession, generation uint64) {
	session.mu.Lock()
	defer session.mu.Unlock()

	if session.generation != generation || session.status != models.SessionInProgress {
		return
	}
	session.timer = nil

	ctx, cancel := context.WithTimeout(context.Background(), expirySubmitTimeout)
	defer cancel()
	s.expireLocked(ctx, session)
}

// expireLocked auto-submits when the rules ask for it and otherwise parks
// the session as completed but not submitted. A parked session that is
// still unsubmitted after unsubmittedRetention is recorded as abandoned.
func (s *sessionService) expireLocked(ctx context.Context, session *QuizSession) {
	if session.rules.AutoSubmit {
		if _, err := s.submitLocked(ctx, session, true); err != nil {
			s.logger.Error("Auto-submit on time expiry failed",
				"session_id", session.id,
				"learner_id", session.learner.LearnerID,
				"error", err)
		}
		return
	}

	now := s.clock.Now()
	session.stopTimerLocked()
	session.status = models.SessionCompleted
	session.subStatus = models.SubStatusTimeExpiredUnsubmitted
	session.completedAt = &now
	s.saveSnapshotLocked(ctx, session)
	s.armAbandonLocked(session, now.Add(unsubmittedRetention))

	s.logger.Info("Session time expired without submission",
		"session_id", session.id,
		"learner_id", session.learner.LearnerID)
}

func (s *sessionService) armAbandonLocked(session *QuizSession, at time.Time) {
	session.stopTimerLocked()
	generation := session.generation

	wait := at.Sub(s.clock.Now())
	if wait < 0 {
		wait = 0
	}
	session.timer = s.clock.AfterFunc(wait, func() {
		s.onAbandon(session, generation)
	})
}

func (s *sessionService) onAbandon(session *QuizSession, generation uint64) {
	session.mu.Lock()
	defer session.mu.Unlock()

	if session.generation != generation || !session.awaitingSubmissionLocked() {
		return
	}
	session.timer = nil

	ctx, cancel := context.WithTimeout(context.Background(), expirySubmitTimeout)
	defer cancel()
	if err := s.abandonLocked(ctx, session); err != nil {
		s.logger.Error("Recording unsubmitted session as abandoned failed, will retry",
			"session_id", session.id,
			"learner_id", session.learner.LearnerID,
			"error", err)
		s.armAbandonLocked(session, s.clock.Now().Add(abandonRetryDelay))
		return
	}
	s.logger.Info("Unsubmitted session recorded as abandoned",
		"session_id", session.id,
		"learner_id", session.learner.LearnerID)
}

// ensureActiveLocked rejects calls on sessions that no longer accept
// input, running expiry first when the deadline has passed.
func (s *sessionService) ensureActiveLocked(ctx context.Context, session *QuizSession, now time.Time) error {
	if session.status != models.SessionInProgress {
		if session.subStatus == models.SubStatusTimeExpiredUnsubmitted {
			return ErrTimeExpired
		}
		return ErrSessionNotInProgress
	}
	if session.expiredLocked(now) {
		s.expireLocked(ctx, session)
		return ErrTimeExpired
	}
	return nil
}

// ===== REGISTRY =====

func (s *sessionService) buildSession(id, quizID, configurationID string, rules models.QuizRules, customFeedback *string, learner models.LearnerContext, seed int64, questions []*models.Question) (*QuizSession, error) {
	materialized, err := materialize(questions, rules, seed)
	if err != nil {
		return nil, err
	}

	positions := make(map[string]int, len(materialized))
	for i, q := range materialized {
		positions[q.ID] = i
	}

	return &QuizSession{
		id:              id,
		quizID:          quizID,
		configurationID: configurationID,
		rules:           rules,
		customFeedback:  customFeedback,
		learner:         learner,
		seed:            seed,
		questions:       materialized,
		positions:       positions,
		answers:         make(map[string]models.Answer),
		status:          models.SessionNotStarted,
	}, nil
}

// questionInvalidator is implemented by question stores that cache.
type questionInvalidator interface {
	Invalidate(ctx context.Context, quizID string) error
}

// loadQuestions refuses a question set that cannot be scored. A cached
// copy of a rejected set is dropped so a corrected bank is read next time.
func (s *sessionService) loadQuestions(ctx context.Context, quizID string) ([]*models.Question, error) {
	store := s.repo.Question()
	questions, err := store.ListByQuiz(ctx, nil, quizID)
	if err != nil {
		return nil, storeError("list questions", err)
	}
	if len(questions) == 0 {
		return nil, ErrNoQuestionsFound
	}

	if err := s.validator.Question().ValidateBatch(questions); err != nil {
		if cached, ok := store.(questionInvalidator); ok {
			if invErr := cached.Invalidate(ctx, quizID); invErr != nil {
				s.logger.Warn("Failed to invalidate cached questions", "quiz_id", quizID, "error", invErr)
			}
		}
		return nil, NewBusinessRuleError("scorable_question_bank", err.Error(), map[string]interface{}{
			"quiz_id": quizID,
		})
	}
	return questions, nil
}

// register stores session unless the learner already has a live one for
// the quiz, in which case that one is returned.
func (s *sessionService) register(session *QuizSession) *QuizSession {
	key := activeKey(session.learner.LearnerID, session.quizID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.sessions[session.id]; ok {
		return existing
	}
	if id, ok := s.active[key]; ok {
		if existing, ok := s.sessions[id]; ok {
			return existing
		}
	}
	s.sessions[session.id] = session
	s.active[key] = session.id
	return session
}

func (s *sessionService) lookup(id string) *QuizSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[id]
}

// activeSession returns the session holding the learner's slot for the
// quiz: one in progress or one waiting for submission after expiry.
func (s *sessionService) activeSession(learnerID, quizID string) *QuizSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.active[activeKey(learnerID, quizID)]
	if !ok {
		return nil
	}
	return s.sessions[id]
}

// resumable fails when session is waiting for submission after expiry, in
// which case a second start must not hand it back as a fresh attempt.
func resumable(session *QuizSession) error {
	session.mu.Lock()
	defer session.mu.Unlock()
	if session.awaitingSubmissionLocked() {
		return &PendingSubmissionError{SessionID: session.id}
	}
	return nil
}

// finishLocked releases the learner's active slot, drops the snapshot and
// schedules the session for eviction.
func (s *sessionService) finishLocked(ctx context.Context, session *QuizSession) {
	s.deleteSnapshot(ctx, session.id)

	s.mu.Lock()
	defer s.mu.Unlock()
	key := activeKey(session.learner.LearnerID, session.quizID)
	if s.active[key] == session.id {
		delete(s.active, key)
	}
	if s.closed {
		return
	}
	if t, ok := s.evictions[session.id]; ok {
		t.Stop()
	}
	id := session.id
	s.evictions[id] = s.clock.AfterFunc(terminalRetention, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.sessions, id)
		delete(s.evictions, id)
	})
}

// discard forgets a finished session right away, e.g. before a retake.
func (s *sessionService) discard(ctx context.Context, session *QuizSession) {
	session.mu.Lock()
	session.stopTimerLocked()
	session.mu.Unlock()

	s.deleteSnapshot(ctx, session.id)

	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.evictions[session.id]; ok {
		t.Stop()
		delete(s.evictions, session.id)
	}
	delete(s.sessions, session.id)
	key := activeKey(session.learner.LearnerID, session.quizID)
	if s.active[key] == session.id {
		delete(s.active, key)
	}
}

func (s *sessionService) saveSnapshotLocked(ctx context.Context, session *QuizSession) {
	if s.store == nil {
		return
	}
	if err := s.store.Save(ctx, session.snapshotLocked()); err != nil {
		s.logger.Warn("Failed to save session snapshot", "session_id", session.id, "error", err)
	}
}

func (s *sessionService) deleteSnapshot(ctx context.Context, id string) {
	if s.store == nil {
		return
	}
	if err := s.store.Delete(ctx, id); err != nil {
		s.logger.Warn("Failed to delete session snapshot", "session_id", id, "error", err)
	}
}

func activeKey(learnerID, quizID string) string {
	return learnerID + "/" + quizID
}

func sessionID(session *QuizSession) string {
	if session == nil {
		return ""
	}
	return session.ID()
}

func copyResult(result *models.QuizResult) *models.QuizResult {
	if result == nil {
		return nil
	}
	out := *result
	return &out
}
