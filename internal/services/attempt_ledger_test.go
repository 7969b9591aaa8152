package services

import (
	"context"
	"testing"

	"github.com/SAP-F-2025/quiz-service/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func completedAttempt(id, learnerID, quizID string) *models.QuizAttempt {
	return &models.QuizAttempt{
		ID:          id,
		QuizID:      quizID,
		CourseID:    "course-1",
		LearnerID:   learnerID,
		Score:       50,
		TotalPoints: 10,
		Status:      models.AttemptCompleted,
	}
}

func TestAttemptLedger_SingleAttemptWithoutRetake(t *testing.T) {
	ledger := NewAttemptLedger(newTestRepo(t), testLogger())
	ctx := context.Background()
	rules := models.QuizRules{AllowRetake: false, MaxAttempts: 3}

	ok, err := ledger.CanAttempt(ctx, "learner-1", "quiz-1", rules)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, ledger.Record(ctx, completedAttempt("a1", "learner-1", "quiz-1"), rules))

	ok, err = ledger.CanAttempt(ctx, "learner-1", "quiz-1", rules)
	require.NoError(t, err)
	assert.False(t, ok, "max_attempts is ignored without retakes")

	err = ledger.CheckAvailability(ctx, "learner-1", "quiz-1", rules)
	require.ErrorIs(t, err, ErrAttemptLimitExceeded)
	var limitErr *AttemptLimitError
	require.ErrorAs(t, err, &limitErr)
	assert.Equal(t, 1, limitErr.Count)
	assert.Equal(t, 1, limitErr.Max)
	assert.True(t, IsPolicy(err))
}

func TestAttemptLedger_RecordStopsAtLimit(t *testing.T) {
	ledger := NewAttemptLedger(newTestRepo(t), testLogger())
	ctx := context.Background()
	rules := models.QuizRules{AllowRetake: true, MaxAttempts: 2}

	first := completedAttempt("a1", "learner-1", "quiz-1")
	second := completedAttempt("a2", "learner-1", "quiz-1")
	require.NoError(t, ledger.Record(ctx, first, rules))
	require.NoError(t, ledger.Record(ctx, second, rules))
	assert.Equal(t, 1, first.AttemptNumber)
	assert.Equal(t, 2, second.AttemptNumber)

	err := ledger.Record(ctx, completedAttempt("a3", "learner-1", "quiz-1"), rules)
	var limitErr *AttemptLimitError
	require.ErrorAs(t, err, &limitErr)
	assert.Equal(t, 2, limitErr.Count)
	assert.Equal(t, 2, limitErr.Max)

	count, err := ledger.CountAttempts(ctx, "learner-1", "quiz-1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	// Other learners and quizzes keep their own counts.
	ok, err := ledger.CanAttempt(ctx, "learner-2", "quiz-1", rules)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = ledger.CanAttempt(ctx, "learner-1", "quiz-2", rules)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAttemptLedger_RecordIsIdempotentPerAttemptID(t *testing.T) {
	ledger := NewAttemptLedger(newTestRepo(t), testLogger())
	ctx := context.Background()
	rules := models.QuizRules{AllowRetake: true, MaxAttempts: 3}

	require.NoError(t, ledger.Record(ctx, completedAttempt("a1", "learner-1", "quiz-1"), rules))
	again := completedAttempt("a1", "learner-1", "quiz-1")
	require.NoError(t, ledger.Record(ctx, again, rules))
	assert.Equal(t, 1, again.AttemptNumber)

	history, err := ledger.History(ctx, "learner-1", "quiz-1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "a1", history[0].ID)
}

func TestAttemptLedger_HistoryIncludesAbandoned(t *testing.T) {
	ledger := NewAttemptLedger(newTestRepo(t), testLogger())
	ctx := context.Background()
	rules := models.QuizRules{AllowRetake: true, MaxAttempts: 3}

	abandoned := completedAttempt("a1", "learner-1", "quiz-1")
	abandoned.Status = models.AttemptAbandoned
	require.NoError(t, ledger.Record(ctx, abandoned, rules))
	require.NoError(t, ledger.Record(ctx, completedAttempt("a2", "learner-1", "quiz-1"), rules))

	history, err := ledger.History(ctx, "learner-1", "quiz-1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, models.AttemptAbandoned, history[0].Status)
	assert.Equal(t, models.AttemptCompleted, history[1].Status)
}
