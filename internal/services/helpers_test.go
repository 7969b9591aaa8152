package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/SAP-F-2025/quiz-service/internal/events"
	"github.com/SAP-F-2025/quiz-service/internal/models"
	"github.com/SAP-F-2025/quiz-service/internal/repositories"
	"github.com/SAP-F-2025/quiz-service/internal/repositories/postgres"
	"github.com/SAP-F-2025/quiz-service/internal/validator"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRepo(t *testing.T) repositories.Repository {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, postgres.Migrate(context.Background(), db))
	return postgres.NewRepository(db)
}

// fakeClock fires timers only when the test advances it.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	fn      func()
	stopped bool
	fired   bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), fn: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// Advance moves time forward and runs due callbacks outside the clock lock,
// in deadline order.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.at.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	sort.SliceStable(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
	for _, t := range due {
		t.fn()
	}
}

func intPtr(v int) *int       { return &v }
func boolPtr(v bool) *bool    { return &v }
func strPtr(v string) *string { return &v }

func answer(v ...string) models.AnswerValue { return models.AnswerValue(v) }

// seedQuiz stores n true/false questions worth 10 points each whose correct
// answer is "true".
func seedQuiz(t *testing.T, repo repositories.Repository, quizID string, n int) []*models.Question {
	t.Helper()
	ctx := context.Background()

	questions := make([]*models.Question, n)
	err := repo.WithTransaction(ctx, func(tx *gorm.DB) error {
		for i := 0; i < n; i++ {
			questions[i] = &models.Question{
				ID:            fmt.Sprintf("%s-q%d", quizID, i+1),
				QuizID:        quizID,
				Text:          fmt.Sprintf("Statement %d holds?", i+1),
				Type:          models.QuestionTrueFalse,
				CorrectAnswer: "true",
				Explanation:   strPtr(fmt.Sprintf("Statement %d is true.", i+1)),
				Points:        10,
				OrderIndex:    i,
			}
			if err := tx.Create(questions[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
	return questions
}

type testEngine struct {
	repo      repositories.Repository
	clock     *fakeClock
	publisher *events.MockEventPublisher
	emitter   AnalyticsEmitter
	configs   ConfigurationService
	ledger    AttemptLedger
	certs     CertificateService
	sessions  SessionService
}

// newTestEngine wires the session service over sqlite with a fake clock.
// Seeds count up from 1 so every session gets a distinct shuffle.
func newTestEngine(t *testing.T, opts ...SessionOption) *testEngine {
	t.Helper()
	return newTestEngineOver(t, newTestRepo(t), opts...)
}

func newTestEngineOver(t *testing.T, repo repositories.Repository, opts ...SessionOption) *testEngine {
	t.Helper()

	e := &testEngine{
		repo:      repo,
		clock:     newFakeClock(),
		publisher: events.NewMockEventPublisher(testLogger()),
	}
	v := validator.New()
	e.emitter = NewAnalyticsEmitter(e.publisher, e.clock, testLogger(), EmitterConfig{BufferSize: 1024})
	e.configs = NewConfigurationService(e.repo, testLogger(), v)
	e.ledger = NewAttemptLedger(e.repo, testLogger())
	e.certs = NewCertificateService(e.repo, e.emitter, e.clock, testLogger())

	var seed int64
	var seedMu sync.Mutex
	opts = append([]SessionOption{WithSeedSource(func() int64 {
		seedMu.Lock()
		defer seedMu.Unlock()
		seed++
		return seed
	})}, opts...)
	e.sessions = NewSessionService(e.repo, e.configs, e.ledger, e.certs, e.emitter, e.clock, testLogger(), v, opts...)

	t.Cleanup(func() {
		e.sessions.Close()
		_ = e.emitter.Close(context.Background())
	})
	return e
}

// configure stores a quiz configuration built from preset and patch.
func (e *testEngine) configure(t *testing.T, courseID, quizID, preset string, patch RulesPatch) *models.QuizConfiguration {
	t.Helper()
	cfg, err := e.configs.Create(context.Background(), &CreateConfigurationRequest{
		CourseID:   courseID,
		QuizID:     &quizID,
		Preset:     preset,
		RulesPatch: patch,
	})
	require.NoError(t, err)
	return cfg
}

// drainEvents closes the emitter and returns every published event type.
func (e *testEngine) drainEvents(t *testing.T) []events.EventType {
	t.Helper()
	require.NoError(t, e.emitter.Close(context.Background()))
	return e.publisher.EventTypes()
}

func newLearner(id string) models.LearnerContext {
	return models.LearnerContext{
		LearnerID:     id,
		RecipientName: "Learner " + id,
		CourseID:      "course-1",
		CourseTitle:   "Go Fundamentals",
		EnrollmentID:  "enr-" + id,
	}
}
