package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/SAP-F-2025/quiz-service/internal/cache"
	"github.com/SAP-F-2025/quiz-service/internal/events"
	"github.com/SAP-F-2025/quiz-service/internal/models"
	"github.com/SAP-F-2025/quiz-service/internal/presets"
	"github.com/SAP-F-2025/quiz-service/internal/repositories"
	"github.com/SAP-F-2025/quiz-service/internal/validator"
	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func answerAll(t *testing.T, e *testEngine, session *QuizSession, values ...string) {
	t.Helper()
	for i, id := range session.QuestionOrder() {
		if i >= len(values) {
			return
		}
		_, err := e.sessions.SubmitAnswer(context.Background(), session, &SubmitAnswerRequest{QuestionID: id, Value: answer(values[i])})
		require.NoError(t, err)
	}
}

func startQuiz(t *testing.T, e *testEngine, learnerID string) *QuizSession {
	t.Helper()
	session, err := e.sessions.Start(context.Background(), newLearner(learnerID), "quiz-1")
	require.NoError(t, err)
	return session
}

func completedPayload(t *testing.T, e *testEngine) events.SessionCompletedEvent {
	t.Helper()
	for _, ev := range e.publisher.GetPublishedEvents() {
		if ev.Type == events.EventSessionCompleted {
			payload, ok := ev.Data.(events.SessionCompletedEvent)
			require.True(t, ok)
			return payload
		}
	}
	t.Fatal("no session.completed event published")
	return events.SessionCompletedEvent{}
}

func TestSessionService_SubmitBelowThreshold(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	seedQuiz(t, e.repo, "quiz-1", 4)
	e.configure(t, "course-1", "quiz-1", presets.Default, RulesPatch{PassThreshold: intPtr(80)})

	session := startQuiz(t, e, "learner-1")
	assert.Equal(t, models.SessionInProgress, session.Status())
	assert.Equal(t, []string{"quiz-1-q1", "quiz-1-q2", "quiz-1-q3", "quiz-1-q4"}, session.QuestionOrder())

	answerAll(t, e, session, "true", "true", "true", "false")

	result, err := e.sessions.Submit(ctx, session)
	require.NoError(t, err)
	assert.Equal(t, 75, result.Score)
	assert.Equal(t, 30, result.EarnedPoints)
	assert.Equal(t, 40, result.TotalPoints)
	assert.Equal(t, 3, result.CorrectAnswers)
	assert.False(t, result.Passed)
	assert.False(t, result.TimeExpired)
	assert.Equal(t, 1, result.AttemptNumber)
	assert.Equal(t, session.ID(), result.AttemptID)
	assert.Equal(t, defaultFailFeedback, *result.Feedback)
	require.Len(t, result.Breakdown, 4)
	assert.Equal(t, []string{"true"}, result.Breakdown[3].CorrectAnswer)
	assert.Len(t, result.Answers, 4)
	assert.Equal(t, models.SessionCompleted, session.Status())

	assert.Equal(t, []events.EventType{
		events.EventSessionStarted,
		events.EventAnswerSubmitted,
		events.EventAnswerSubmitted,
		events.EventAnswerSubmitted,
		events.EventAnswerSubmitted,
		events.EventSessionCompleted,
	}, e.drainEvents(t))
}

func TestSessionService_SubmitPassing(t *testing.T) {
	e := newTestEngine(t)
	seedQuiz(t, e.repo, "quiz-1", 4)
	_, err := e.configs.Create(context.Background(), &CreateConfigurationRequest{
		CourseID:       "course-1",
		QuizID:         strPtr("quiz-1"),
		CustomFeedback: strPtr("Great work on the Go basics."),
		RulesPatch:     RulesPatch{PassThreshold: intPtr(80)},
	})
	require.NoError(t, err)

	session := startQuiz(t, e, "learner-1")
	answerAll(t, e, session, "true", "true", "true", "true")

	result, err := e.sessions.Submit(context.Background(), session)
	require.NoError(t, err)
	assert.Equal(t, 100, result.Score)
	assert.True(t, result.Passed)
	assert.Equal(t, "Great work on the Go basics.", *result.Feedback)
	assert.Nil(t, result.Certificate, "certificates are not enabled for this learner")
}

func TestSessionService_SubmitIsIdempotent(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	seedQuiz(t, e.repo, "quiz-1", 4)

	session := startQuiz(t, e, "learner-1")
	answerAll(t, e, session, "true", "false")

	first, err := e.sessions.Submit(ctx, session)
	require.NoError(t, err)
	second, err := e.sessions.Submit(ctx, session)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	count, err := e.ledger.CountAttempts(ctx, "learner-1", "quiz-1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestSessionService_ConcurrentSubmitsRecordOnce(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	seedQuiz(t, e.repo, "quiz-1", 4)

	session := startQuiz(t, e, "learner-1")
	answerAll(t, e, session, "true", "true", "true", "true")

	const workers = 6
	results := make([]*models.QuizResult, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			result, err := e.sessions.Submit(ctx, session)
			if assert.NoError(t, err) {
				results[i] = result
			}
		}(i)
	}
	wg.Wait()

	for _, r := range results {
		require.NotNil(t, r)
		assert.Equal(t, results[0].AttemptID, r.AttemptID)
	}
	count, err := e.ledger.CountAttempts(ctx, "learner-1", "quiz-1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestSessionService_RetakeDisallowed(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	seedQuiz(t, e.repo, "quiz-1", 4)
	e.configure(t, "course-1", "quiz-1", presets.Default, RulesPatch{AllowRetake: boolPtr(false), MaxAttempts: intPtr(3)})

	session := startQuiz(t, e, "learner-1")
	answerAll(t, e, session, "true")
	_, err := e.sessions.Submit(ctx, session)
	require.NoError(t, err)

	_, err = e.sessions.Retake(ctx, session)
	var limitErr *AttemptLimitError
	require.ErrorAs(t, err, &limitErr)
	assert.Equal(t, 1, limitErr.Count)
	assert.Equal(t, 1, limitErr.Max)

	_, err = e.sessions.Start(ctx, newLearner("learner-1"), "quiz-1")
	assert.ErrorIs(t, err, ErrAttemptLimitExceeded)
}

func TestSessionService_RetakeUntilLimit(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	seedQuiz(t, e.repo, "quiz-1", 4)

	session := startQuiz(t, e, "learner-1")
	_, err := e.sessions.Retake(ctx, session)
	assert.ErrorIs(t, err, ErrSessionNotFinished)

	seen := map[string]bool{}
	for attempt := 1; attempt <= 3; attempt++ {
		seen[session.ID()] = true
		result, err := e.sessions.Submit(ctx, session)
		require.NoError(t, err)
		assert.Equal(t, attempt, result.AttemptNumber)

		if attempt == 3 {
			break
		}
		session, err = e.sessions.Retake(ctx, session)
		require.NoError(t, err)
		assert.False(t, seen[session.ID()], "a retake starts a fresh session")
		assert.Equal(t, models.SessionInProgress, session.Status())
	}

	_, err = e.sessions.Retake(ctx, session)
	var limitErr *AttemptLimitError
	require.ErrorAs(t, err, &limitErr)
	assert.Equal(t, 3, limitErr.Count)
	assert.Equal(t, 3, limitErr.Max)
}

func TestSessionService_AutoSubmitOnExpiry(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	seedQuiz(t, e.repo, "quiz-1", 4)
	e.configure(t, "course-1", "quiz-1", presets.Default, RulesPatch{
		TimeLimit:     intPtr(30),
		AutoSubmit:    boolPtr(true),
		PassThreshold: intPtr(80),
	})

	session := startQuiz(t, e, "learner-1")
	answerAll(t, e, session, "true", "true")

	e.clock.Advance(29 * time.Second)
	assert.Equal(t, models.SessionInProgress, session.Status())

	e.clock.Advance(time.Second)
	assert.Equal(t, models.SessionCompleted, session.Status())

	view := session.View(e.clock.Now())
	assert.True(t, view.Submitted)
	require.NotNil(t, view.Result)
	assert.True(t, view.Result.TimeExpired)
	assert.Equal(t, 50, view.Result.Score)
	assert.Equal(t, 20, view.Result.EarnedPoints)
	assert.Equal(t, 40, view.Result.TotalPoints)
	assert.Equal(t, 30, view.Result.TimeSpent)
	assert.False(t, view.Result.Passed)

	_, err := e.sessions.SubmitAnswer(ctx, session, &SubmitAnswerRequest{QuestionID: "quiz-1-q3", Value: answer("true")})
	assert.ErrorIs(t, err, ErrSessionNotInProgress)

	again, err := e.sessions.Submit(ctx, session)
	require.NoError(t, err)
	assert.Equal(t, view.Result.AttemptID, again.AttemptID)

	attempts, err := e.ledger.History(ctx, "learner-1", "quiz-1")
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.Equal(t, 20, attempts[0].EarnedPoints)

	e.drainEvents(t)
	payload := completedPayload(t, e)
	assert.True(t, payload.AutoSubmitted)
	assert.True(t, payload.TimeExpired)
}

func TestSessionService_ExpiryWithoutAutoSubmit(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	seedQuiz(t, e.repo, "quiz-1", 4)
	e.configure(t, "course-1", "quiz-1", presets.Default, RulesPatch{TimeLimit: intPtr(30), AutoSubmit: boolPtr(false)})

	session := startQuiz(t, e, "learner-1")
	answerAll(t, e, session, "true")

	e.clock.Advance(31 * time.Second)

	view := session.View(e.clock.Now())
	assert.Equal(t, models.SessionCompleted, view.Status)
	assert.Equal(t, models.SubStatusTimeExpiredUnsubmitted, view.SubStatus)
	assert.False(t, view.Submitted)
	assert.Nil(t, view.Result)

	_, err := e.sessions.SubmitAnswer(ctx, session, &SubmitAnswerRequest{QuestionID: "quiz-1-q2", Value: answer("true")})
	assert.ErrorIs(t, err, ErrTimeExpired)
	_, err = e.sessions.Advance(ctx, session)
	assert.ErrorIs(t, err, ErrTimeExpired)

	count, err := e.ledger.CountAttempts(ctx, "learner-1", "quiz-1")
	require.NoError(t, err)
	assert.Zero(t, count, "nothing is recorded until the learner submits")

	result, err := e.sessions.Submit(ctx, session)
	require.NoError(t, err)
	assert.True(t, result.TimeExpired)
	assert.Equal(t, 25, result.Score)
	assert.Equal(t, 30, result.TimeSpent)

	view = session.View(e.clock.Now())
	assert.True(t, view.Submitted)
	assert.Equal(t, models.SubStatusNone, view.SubStatus)
}

func TestSessionService_RequireAllQuestions(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	seedQuiz(t, e.repo, "quiz-1", 4)
	e.configure(t, "course-1", "quiz-1", presets.Default, RulesPatch{RequireAllQuestions: boolPtr(true)})

	session := startQuiz(t, e, "learner-1")
	answerAll(t, e, session, "true")

	_, err := e.sessions.Submit(ctx, session)
	var missing *UnansweredQuestionsError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, []string{"quiz-1-q2", "quiz-1-q3", "quiz-1-q4"}, missing.QuestionIDs)
	assert.True(t, IsState(err))
	assert.Equal(t, models.SessionInProgress, session.Status())

	count, err := e.ledger.CountAttempts(ctx, "learner-1", "quiz-1")
	require.NoError(t, err)
	assert.Zero(t, count)

	answerAll(t, e, session, "true", "true", "true", "true")
	result, err := e.sessions.Submit(ctx, session)
	require.NoError(t, err)
	assert.Equal(t, 100, result.Score)
}

func TestSessionService_NavigationWithoutSkipping(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	seedQuiz(t, e.repo, "quiz-1", 4)
	e.configure(t, "course-1", "quiz-1", presets.Default, RulesPatch{AllowSkipQuestions: boolPtr(false)})

	session := startQuiz(t, e, "learner-1")

	_, err := e.sessions.SubmitAnswer(ctx, session, &SubmitAnswerRequest{QuestionID: "quiz-1-q2", Value: answer("true")})
	assert.ErrorIs(t, err, ErrAnswerOutOfOrder)

	_, err = e.sessions.SubmitAnswer(ctx, session, &SubmitAnswerRequest{QuestionID: "quiz-1-q1", Value: answer("true")})
	require.NoError(t, err)

	idx, err := e.sessions.Previous(ctx, session)
	assert.ErrorIs(t, err, ErrQuestionOutOfRange)
	assert.Equal(t, 0, idx)

	idx, err = e.sessions.Advance(ctx, session)
	require.NoError(t, err)
	assert.Equal(t, 1, idx)

	_, err = e.sessions.SubmitAnswer(ctx, session, &SubmitAnswerRequest{QuestionID: "quiz-1-q2", Value: answer("false")})
	require.NoError(t, err)

	idx, err = e.sessions.GoTo(ctx, session, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, idx)

	idx, err = e.sessions.GoTo(ctx, session, 4)
	assert.ErrorIs(t, err, ErrQuestionOutOfRange)
	assert.Equal(t, 3, idx)

	idx, err = e.sessions.Advance(ctx, session)
	assert.ErrorIs(t, err, ErrQuestionOutOfRange)
	assert.Equal(t, 3, idx)
	assert.Equal(t, 3, session.View(e.clock.Now()).CurrentIndex)
}

func TestSessionService_ImmediateFeedback(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	seedQuiz(t, e.repo, "quiz-1", 4)
	e.configure(t, "course-1", "quiz-1", presets.Learning, RulesPatch{})

	session := startQuiz(t, e, "learner-1")

	feedback, err := e.sessions.SubmitAnswer(ctx, session, &SubmitAnswerRequest{QuestionID: "quiz-1-q1", Value: answer("false"), TimeSpent: 12})
	require.NoError(t, err)
	assert.True(t, feedback.Recorded)
	require.NotNil(t, feedback.IsCorrect)
	assert.False(t, *feedback.IsCorrect)
	require.NotNil(t, feedback.Explanation)
	assert.Equal(t, "Statement 1 is true.", *feedback.Explanation)
	assert.Equal(t, []string{"true"}, feedback.CorrectAnswer)
	assert.Nil(t, feedback.RemainingTime, "the learning preset hides the timer")

	_, err = e.sessions.SubmitAnswer(ctx, session, &SubmitAnswerRequest{QuestionID: "quiz-1-q1", Value: answer("true")})
	assert.ErrorIs(t, err, ErrAnswerLocked)
}

func TestSessionService_DeferredFeedbackAllowsChangingAnswers(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	seedQuiz(t, e.repo, "quiz-1", 1)
	e.configure(t, "course-1", "quiz-1", presets.Default, RulesPatch{ShowTimer: boolPtr(false)})

	session := startQuiz(t, e, "learner-1")

	feedback, err := e.sessions.SubmitAnswer(ctx, session, &SubmitAnswerRequest{QuestionID: "quiz-1-q1", Value: answer("false")})
	require.NoError(t, err)
	assert.Nil(t, feedback.IsCorrect)
	assert.Nil(t, feedback.Explanation)
	assert.Empty(t, feedback.CorrectAnswer)

	_, err = e.sessions.SubmitAnswer(ctx, session, &SubmitAnswerRequest{QuestionID: "quiz-1-q1", Value: answer("true")})
	require.NoError(t, err)

	result, err := e.sessions.Submit(ctx, session)
	require.NoError(t, err)
	assert.Equal(t, 100, result.Score)
}

func TestSessionService_RejectsInvalidAnswers(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	seedQuiz(t, e.repo, "quiz-1", 2)

	session := startQuiz(t, e, "learner-1")

	_, err := e.sessions.SubmitAnswer(ctx, session, &SubmitAnswerRequest{QuestionID: "other-quiz-q1", Value: answer("true")})
	assert.ErrorIs(t, err, ErrUnknownQuestion)

	_, err = e.sessions.SubmitAnswer(ctx, session, &SubmitAnswerRequest{Value: answer("true")})
	assert.True(t, IsValidation(err))

	_, err = e.sessions.SubmitAnswer(ctx, session, &SubmitAnswerRequest{QuestionID: "quiz-1-q1"})
	assert.True(t, IsValidation(err))

	_, err = e.sessions.SubmitAnswer(ctx, session, &SubmitAnswerRequest{QuestionID: "quiz-1-q1", Value: answer("true"), TimeSpent: -1})
	assert.True(t, IsValidation(err))
}

func TestSessionService_StartValidation(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	seedQuiz(t, e.repo, "quiz-1", 2)

	_, err := e.sessions.Start(ctx, models.LearnerContext{CourseID: "course-1"}, "quiz-1")
	assert.True(t, IsValidation(err))

	_, err = e.sessions.Start(ctx, newLearner("learner-1"), "")
	assert.True(t, IsValidation(err))

	certified := newLearner("learner-1")
	certified.CertificatesEnabled = true
	certified.EnrollmentID = ""
	_, err = e.sessions.Start(ctx, certified, "quiz-1")
	assert.True(t, IsValidation(err))

	_, err = e.sessions.Start(ctx, newLearner("learner-1"), "empty-quiz")
	assert.ErrorIs(t, err, ErrNoQuestionsFound)
	assert.True(t, IsPolicy(err))
}

func TestSessionService_StartResumesInProgressSession(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	seedQuiz(t, e.repo, "quiz-1", 2)

	first := startQuiz(t, e, "learner-1")
	second := startQuiz(t, e, "learner-1")
	assert.Same(t, first, second)

	other := startQuiz(t, e, "learner-2")
	assert.NotEqual(t, first.ID(), other.ID())

	_, err := e.sessions.Submit(ctx, first)
	require.NoError(t, err)
	third := startQuiz(t, e, "learner-1")
	assert.NotEqual(t, first.ID(), third.ID())
}

func TestSessionService_ExitRecordsAbandonedAttempt(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	seedQuiz(t, e.repo, "quiz-1", 4)

	session := startQuiz(t, e, "learner-1")
	answerAll(t, e, session, "true")
	require.NoError(t, e.sessions.Exit(ctx, session))
	assert.Equal(t, models.SessionAbandoned, session.Status())

	attempts, err := e.ledger.History(ctx, "learner-1", "quiz-1")
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.Equal(t, models.AttemptAbandoned, attempts[0].Status)
	assert.Equal(t, 40, attempts[0].TotalPoints)
	assert.Len(t, attempts[0].Answers, 1)

	assert.ErrorIs(t, e.sessions.Exit(ctx, session), ErrSessionNotInProgress)
	_, err = e.sessions.Submit(ctx, session)
	assert.ErrorIs(t, err, ErrSessionNotInProgress)

	next, err := e.sessions.Retake(ctx, session)
	require.NoError(t, err)
	assert.NotEqual(t, session.ID(), next.ID())

	assert.Contains(t, e.drainEvents(t), events.EventSessionAbandoned)
}

func TestSessionService_ExitConsumesTheOnlyAttempt(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	seedQuiz(t, e.repo, "quiz-1", 2)
	e.configure(t, "course-1", "quiz-1", presets.Default, RulesPatch{AllowRetake: boolPtr(false)})

	session := startQuiz(t, e, "learner-1")
	require.NoError(t, e.sessions.Exit(ctx, session))

	_, err := e.sessions.Start(ctx, newLearner("learner-1"), "quiz-1")
	assert.ErrorIs(t, err, ErrAttemptLimitExceeded)
}

func TestSessionService_RandomizedOrderIsReproducible(t *testing.T) {
	e := newTestEngine(t)
	questions := seedQuiz(t, e.repo, "quiz-1", 8)
	cfg := e.configure(t, "course-1", "quiz-1", presets.Default, RulesPatch{RandomizeQuestions: boolPtr(true)})

	session := startQuiz(t, e, "learner-1")

	expected, err := materialize(questions, cfg.QuizRules, 1)
	require.NoError(t, err)
	assert.Equal(t, ids(expected), session.QuestionOrder())
	assert.ElementsMatch(t, ids(questions), session.QuestionOrder())
}

func TestSessionService_ViewHonoursDisplayRules(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	seedQuiz(t, e.repo, "quiz-1", 4)
	e.configure(t, "course-1", "quiz-1", presets.Default, RulesPatch{TimeLimit: intPtr(60)})

	session := startQuiz(t, e, "learner-1")
	answerAll(t, e, session, "true")
	e.clock.Advance(10 * time.Second)

	view := session.View(e.clock.Now())
	require.NotNil(t, view.AnsweredCount)
	assert.Equal(t, 1, *view.AnsweredCount)
	require.NotNil(t, view.RemainingTime)
	assert.Equal(t, 50, *view.RemainingTime)
	assert.Equal(t, 4, view.TotalQuestions)
	assert.Equal(t, answer("true"), view.Answers["quiz-1-q1"])

	feedback, err := e.sessions.SubmitAnswer(ctx, session, &SubmitAnswerRequest{QuestionID: "quiz-1-q2", Value: answer("true")})
	require.NoError(t, err)
	require.NotNil(t, feedback.RemainingTime)
	assert.Equal(t, 50, *feedback.RemainingTime)

	hidden := newTestEngine(t)
	seedQuiz(t, hidden.repo, "quiz-1", 4)
	hidden.configure(t, "course-1", "quiz-1", presets.Default, RulesPatch{
		TimeLimit:    intPtr(60),
		ShowProgress: boolPtr(false),
		ShowTimer:    boolPtr(false),
	})
	view = startQuiz(t, hidden, "learner-1").View(hidden.clock.Now())
	assert.Nil(t, view.AnsweredCount)
	assert.Nil(t, view.RemainingTime)
}

func TestSessionService_ResultHonoursDisplayRules(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	seedQuiz(t, e.repo, "quiz-1", 2)
	e.configure(t, "course-1", "quiz-1", presets.Default, RulesPatch{
		ShowCorrectAnswers: boolPtr(false),
		ShowExplanations:   boolPtr(false),
	})

	session := startQuiz(t, e, "learner-1")
	result, err := e.sessions.Submit(ctx, session)
	require.NoError(t, err)
	require.Len(t, result.Breakdown, 2)
	for _, entry := range result.Breakdown {
		assert.Nil(t, entry.CorrectAnswer)
		assert.Nil(t, entry.Explanation)
		assert.False(t, entry.Answered)
	}

	noBreakdown := newTestEngine(t)
	seedQuiz(t, noBreakdown.repo, "quiz-1", 2)
	noBreakdown.configure(t, "course-1", "quiz-1", presets.Default, RulesPatch{ShowScoreBreakdown: boolPtr(false)})
	result, err = noBreakdown.sessions.Submit(ctx, startQuiz(t, noBreakdown, "learner-1"))
	require.NoError(t, err)
	assert.Nil(t, result.Breakdown)
}

func TestSessionService_FinishedSessionsAreEvicted(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	seedQuiz(t, e.repo, "quiz-1", 2)

	session := startQuiz(t, e, "learner-1")
	_, err := e.sessions.Submit(ctx, session)
	require.NoError(t, err)

	got, err := e.sessions.Get(ctx, session.ID())
	require.NoError(t, err)
	assert.Same(t, session, got)

	e.clock.Advance(terminalRetention)

	_, err = e.sessions.Get(ctx, session.ID())
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionService_CloseStopsTimers(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	seedQuiz(t, e.repo, "quiz-1", 2)
	e.configure(t, "course-1", "quiz-1", presets.Default, RulesPatch{TimeLimit: intPtr(30), AutoSubmit: boolPtr(true)})

	session := startQuiz(t, e, "learner-1")
	e.sessions.Close()
	e.clock.Advance(time.Minute)

	assert.Equal(t, models.SessionInProgress, session.Status())
	count, err := e.ledger.CountAttempts(ctx, "learner-1", "quiz-1")
	require.NoError(t, err)
	assert.Zero(t, count)
}

// ===== CERTIFICATES =====

type flakyCertificates struct {
	CertificateService
	failures int
	calls    int
}

func (f *flakyCertificates) IssueIfEligible(ctx context.Context, result *models.QuizResult, quizID string, learner models.LearnerContext) (*models.Certificate, error) {
	f.calls++
	if f.failures > 0 {
		f.failures--
		return nil, storeError("issue certificate", errors.New("deadlock detected"))
	}
	return f.CertificateService.IssueIfEligible(ctx, result, quizID, learner)
}

func TestSessionService_IssuesCertificateOnPass(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	seedQuiz(t, e.repo, "quiz-1", 2)

	learner := newLearner("learner-1")
	learner.CertificatesEnabled = true
	session, err := e.sessions.Start(ctx, learner, "quiz-1")
	require.NoError(t, err)
	answerAll(t, e, session, "true", "true")

	result, err := e.sessions.Submit(ctx, session)
	require.NoError(t, err)
	require.NotNil(t, result.Certificate)
	assert.False(t, result.CertificatePending)
	assert.Equal(t, session.ID(), result.Certificate.AttemptID)

	verification, err := e.certs.Verify(ctx, result.Certificate.VerificationCode)
	require.NoError(t, err)
	assert.True(t, verification.IsValid)

	assert.Contains(t, e.drainEvents(t), events.EventCertificateIssued)
}

func TestSessionService_CertificateFailureIsRetriedOnSubmit(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	seedQuiz(t, e.repo, "quiz-1", 2)

	certs := &flakyCertificates{CertificateService: e.certs, failures: 1}
	e.sessions.Close()
	e.sessions = NewSessionService(e.repo, e.configs, e.ledger, certs, e.emitter, e.clock, testLogger(), validator.New())

	learner := newLearner("learner-1")
	learner.CertificatesEnabled = true
	session, err := e.sessions.Start(ctx, learner, "quiz-1")
	require.NoError(t, err)
	answerAll(t, e, session, "true", "true")

	result, err := e.sessions.Submit(ctx, session)
	require.NoError(t, err, "the attempt stands even when issuance fails")
	assert.True(t, result.Passed)
	assert.True(t, result.CertificatePending)
	assert.Nil(t, result.Certificate)
	assert.Equal(t, models.SessionCompleted, session.Status())

	result, err = e.sessions.Submit(ctx, session)
	require.NoError(t, err)
	assert.False(t, result.CertificatePending)
	require.NotNil(t, result.Certificate)

	_, err = e.sessions.Submit(ctx, session)
	require.NoError(t, err)
	assert.Equal(t, 2, certs.calls, "issuance is not retried once it succeeded")

	count, err := e.ledger.CountAttempts(ctx, "learner-1", "quiz-1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

// ===== STORE FAILURES =====

type flakyAttempts struct {
	repositories.AttemptRepository
	mu       sync.Mutex
	failures int
}

func (f *flakyAttempts) AppendIfBelow(ctx context.Context, tx *gorm.DB, attempt *models.QuizAttempt, limit int) (int64, error) {
	f.mu.Lock()
	if f.failures > 0 {
		f.failures--
		f.mu.Unlock()
		return 0, errors.New("connection reset by peer")
	}
	f.mu.Unlock()
	return f.AttemptRepository.AppendIfBelow(ctx, tx, attempt, limit)
}

type flakyRepository struct {
	repositories.Repository
	attempts *flakyAttempts
}

func (r *flakyRepository) Attempt() repositories.AttemptRepository {
	return r.attempts
}

func TestSessionService_FailedRecordLeavesSessionRetryable(t *testing.T) {
	base := newTestRepo(t)
	repo := &flakyRepository{
		Repository: base,
		attempts:   &flakyAttempts{AttemptRepository: base.Attempt(), failures: 1},
	}
	e := newTestEngineOver(t, repo)
	ctx := context.Background()
	seedQuiz(t, e.repo, "quiz-1", 2)

	session := startQuiz(t, e, "learner-1")
	answerAll(t, e, session, "true", "true")

	_, err := e.sessions.Submit(ctx, session)
	require.Error(t, err)
	assert.True(t, IsInfrastructure(err))
	assert.Equal(t, models.SessionInProgress, session.Status())
	assert.False(t, session.View(e.clock.Now()).Submitted)

	result, err := e.sessions.Submit(ctx, session)
	require.NoError(t, err)
	assert.Equal(t, 100, result.Score)
}

// ===== RESTORE =====

func newSnapshotStore(t *testing.T) SessionStore {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return cache.NewRedisSessionStore(cache.NewRedisCache(client, testLogger()), time.Hour)
}

func TestSessionService_RestoreAfterRestart(t *testing.T) {
	store := newSnapshotStore(t)
	e := newTestEngine(t, WithSessionStore(store))
	ctx := context.Background()
	seedQuiz(t, e.repo, "quiz-1", 6)
	e.configure(t, "course-1", "quiz-1", presets.Default, RulesPatch{RandomizeQuestions: boolPtr(true)})

	session := startQuiz(t, e, "learner-1")
	order := session.QuestionOrder()
	_, err := e.sessions.SubmitAnswer(ctx, session, &SubmitAnswerRequest{QuestionID: order[0], Value: answer("true")})
	require.NoError(t, err)
	_, err = e.sessions.Advance(ctx, session)
	require.NoError(t, err)

	e.sessions.Close()
	restarted := NewSessionService(e.repo, e.configs, e.ledger, e.certs, e.emitter, e.clock, testLogger(), validator.New(), WithSessionStore(store))
	t.Cleanup(restarted.Close)

	restored, err := restarted.Get(ctx, session.ID())
	require.NoError(t, err)
	assert.NotSame(t, session, restored)
	assert.Equal(t, order, restored.QuestionOrder())

	view := restored.View(e.clock.Now())
	assert.Equal(t, models.SessionInProgress, view.Status)
	assert.Equal(t, 1, view.CurrentIndex)
	assert.Equal(t, answer("true"), view.Answers[order[0]])

	again, err := restarted.Get(ctx, session.ID())
	require.NoError(t, err)
	assert.Same(t, restored, again)

	result, err := restarted.Submit(ctx, restored)
	require.NoError(t, err)
	assert.Equal(t, 1, result.CorrectAnswers)

	_, err = store.Load(ctx, session.ID())
	assert.ErrorIs(t, err, cache.ErrCacheMiss, "the snapshot is dropped once the session finishes")

	_, err = restarted.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionService_RestorePastDeadlineAutoSubmits(t *testing.T) {
	store := newSnapshotStore(t)
	e := newTestEngine(t, WithSessionStore(store))
	ctx := context.Background()
	seedQuiz(t, e.repo, "quiz-1", 4)
	e.configure(t, "course-1", "quiz-1", presets.Default, RulesPatch{TimeLimit: intPtr(30), AutoSubmit: boolPtr(true)})

	session := startQuiz(t, e, "learner-1")
	answerAll(t, e, session, "true")

	e.sessions.Close()
	e.clock.Advance(time.Minute)

	restarted := NewSessionService(e.repo, e.configs, e.ledger, e.certs, e.emitter, e.clock, testLogger(), validator.New(), WithSessionStore(store))
	t.Cleanup(restarted.Close)

	restored, err := restarted.Get(ctx, session.ID())
	require.NoError(t, err)

	view := restored.View(e.clock.Now())
	assert.Equal(t, models.SessionCompleted, view.Status)
	require.NotNil(t, view.Result)
	assert.True(t, view.Result.TimeExpired)
	assert.Equal(t, 25, view.Result.Score)
	assert.Equal(t, 30, view.Result.TimeSpent)
}

func TestSessionService_RestoreWithoutStore(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.sessions.Restore(context.Background(), "unknown")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.True(t, IsNotFound(err))
}

func seedQuestions(t *testing.T, repo repositories.Repository, questions ...*models.Question) {
	t.Helper()
	err := repo.WithTransaction(context.Background(), func(tx *gorm.DB) error {
		for _, q := range questions {
			if err := tx.Create(q).Error; err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
}

func TestSessionService_OptionWithCommaScoresByIndex(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	seedQuestions(t, e.repo, &models.Question{
		ID:            "quiz-1-colour",
		QuizID:        "quiz-1",
		Text:          "Which pair mixes to yellow light?",
		Type:          models.QuestionMultipleChoice,
		Options:       []string{"Red, green", "Blue"},
		CorrectAnswer: "0",
		Points:        10,
	})
	e.configure(t, "course-1", "quiz-1", presets.Default, RulesPatch{RandomizeAnswers: boolPtr(true)})

	session := startQuiz(t, e, "learner-1")
	answerAll(t, e, session, "Red, green")

	result, err := e.sessions.Submit(ctx, session)
	require.NoError(t, err)
	assert.Equal(t, 100, result.Score)
	assert.Equal(t, 1, result.CorrectAnswers)
}

type invalidatingQuestions struct {
	repositories.QuestionRepository
	invalidated []string
}

func (q *invalidatingQuestions) Invalidate(_ context.Context, quizID string) error {
	q.invalidated = append(q.invalidated, quizID)
	return nil
}

type questionsOverride struct {
	repositories.Repository
	questions repositories.QuestionRepository
}

func (r questionsOverride) Question() repositories.QuestionRepository {
	return r.questions
}

func TestSessionService_RejectsUnscorableQuestionBank(t *testing.T) {
	base := newTestRepo(t)
	questions := &invalidatingQuestions{QuestionRepository: base.Question()}
	e := newTestEngineOver(t, questionsOverride{Repository: base, questions: questions})
	ctx := context.Background()
	seedQuestions(t, e.repo, &models.Question{
		ID:            "quiz-1-q1",
		QuizID:        "quiz-1",
		Text:          "Water is wet?",
		Type:          models.QuestionTrueFalse,
		CorrectAnswer: "yes",
		Points:        10,
	})

	_, err := e.sessions.Start(ctx, newLearner("learner-1"), "quiz-1")
	require.Error(t, err)
	assert.True(t, IsBusinessRule(err))

	var rule *BusinessRuleError
	require.ErrorAs(t, err, &rule)
	assert.Equal(t, "scorable_question_bank", rule.Rule)
	assert.Equal(t, "quiz-1", rule.Context["quiz_id"])
	assert.Contains(t, rule.Message, "must be true or false")
	assert.Equal(t, []string{"quiz-1"}, questions.invalidated)

	count, err := e.ledger.CountAttempts(ctx, "learner-1", "quiz-1")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestSessionService_ExpiredUnsubmittedSessionBlocksStart(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	seedQuiz(t, e.repo, "quiz-1", 4)
	e.configure(t, "course-1", "quiz-1", presets.Default, RulesPatch{TimeLimit: intPtr(30), AutoSubmit: boolPtr(false)})

	session := startQuiz(t, e, "learner-1")
	answerAll(t, e, session, "true")
	e.clock.Advance(31 * time.Second)

	_, err := e.sessions.Start(ctx, newLearner("learner-1"), "quiz-1")
	var pending *PendingSubmissionError
	require.ErrorAs(t, err, &pending)
	assert.Equal(t, session.ID(), pending.SessionID)
	assert.True(t, IsState(err))

	require.NoError(t, e.sessions.Exit(ctx, session))
	assert.Equal(t, models.SessionAbandoned, session.Status())

	attempts, err := e.ledger.History(ctx, "learner-1", "quiz-1")
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.Equal(t, models.AttemptAbandoned, attempts[0].Status)
	assert.Equal(t, 30, attempts[0].TimeSpent)

	next := startQuiz(t, e, "learner-1")
	assert.NotEqual(t, session.ID(), next.ID())
	assert.Equal(t, models.SessionInProgress, next.Status())
}

func TestSessionService_UnsubmittedSessionIsAbandonedAfterRetention(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	seedQuiz(t, e.repo, "quiz-1", 4)
	e.configure(t, "course-1", "quiz-1", presets.Default, RulesPatch{TimeLimit: intPtr(30), AutoSubmit: boolPtr(false)})

	session := startQuiz(t, e, "learner-1")
	answerAll(t, e, session, "true", "true")
	e.clock.Advance(31 * time.Second)

	e.clock.Advance(unsubmittedRetention - time.Second)
	assert.Equal(t, models.SessionCompleted, session.Status())

	e.clock.Advance(time.Second)
	assert.Equal(t, models.SessionAbandoned, session.Status())

	attempts, err := e.ledger.History(ctx, "learner-1", "quiz-1")
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.Equal(t, models.AttemptAbandoned, attempts[0].Status)
	assert.Len(t, attempts[0].Answers, 2)

	e.clock.Advance(terminalRetention)
	_, err = e.sessions.Get(ctx, session.ID())
	assert.ErrorIs(t, err, ErrSessionNotFound)

	next := startQuiz(t, e, "learner-1")
	assert.NotEqual(t, session.ID(), next.ID())

	assert.Contains(t, e.drainEvents(t), events.EventSessionAbandoned)
}
