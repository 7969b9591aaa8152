package services

import (
	"context"
	"errors"
	"log/slog"

	"github.com/SAP-F-2025/quiz-service/internal/models"
	"github.com/SAP-F-2025/quiz-service/internal/repositories"
)

type attemptLedger struct {
	repo   repositories.Repository
	logger *slog.Logger
}

func NewAttemptLedger(repo repositories.Repository, logger *slog.Logger) AttemptLedger {
	return &attemptLedger{
		repo:   repo,
		logger: logger,
	}
}

func (l *attemptLedger) CountAttempts(ctx context.Context, learnerID, quizID string) (int, error) {
	count, err := l.repo.Attempt().CountByLearnerAndQuiz(ctx, nil, learnerID, quizID)
	if err != nil {
		return 0, storeError("count attempts", err)
	}
	return int(count), nil
}

func (l *attemptLedger) CanAttempt(ctx context.Context, learnerID, quizID string, rules models.QuizRules) (bool, error) {
	err := l.CheckAvailability(ctx, learnerID, quizID, rules)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, ErrAttemptLimitExceeded) {
		return false, nil
	}
	return false, err
}

func (l *attemptLedger) CheckAvailability(ctx context.Context, learnerID, quizID string, rules models.QuizRules) error {
	count, err := l.CountAttempts(ctx, learnerID, quizID)
	if err != nil {
		return err
	}
	if limit := rules.AttemptLimit(); count >= limit {
		return &AttemptLimitError{Count: count, Max: limit}
	}
	return nil
}

// Record is a conditional append: the count and the insert happen in one
// transaction guarded by the unique attempt number.
func (l *attemptLedger) Record(ctx context.Context, attempt *models.QuizAttempt, rules models.QuizRules) error {
	limit := rules.AttemptLimit()
	count, err := l.repo.Attempt().AppendIfBelow(ctx, nil, attempt, limit)
	if err != nil {
		if errors.Is(err, repositories.ErrAttemptLimitReached) {
			return &AttemptLimitError{Count: int(count), Max: limit}
		}
		return storeError("record attempt", err)
	}

	l.logger.Info("Attempt recorded",
		"attempt_id", attempt.ID,
		"learner_id", attempt.LearnerID,
		"quiz_id", attempt.QuizID,
		"attempt_number", attempt.AttemptNumber,
		"status", attempt.Status)
	return nil
}

func (l *attemptLedger) History(ctx context.Context, learnerID, quizID string) ([]*models.QuizAttempt, error) {
	attempts, err := l.repo.Attempt().ListByLearnerAndQuiz(ctx, nil, learnerID, quizID)
	if err != nil {
		return nil, storeError("list attempts", err)
	}
	return attempts, nil
}
