package postgres

import (
	"context"
	"errors"

	"github.com/SAP-F-2025/quiz-service/internal/models"
	"github.com/SAP-F-2025/quiz-service/internal/repositories"
	"gorm.io/gorm"
)

// appendRetries bounds how often a lost attempt-number race is retried.
const appendRetries = 3

type AttemptPostgreSQL struct {
	db *gorm.DB
}

func NewAttemptPostgreSQL(db *gorm.DB) repositories.AttemptRepository {
	return &AttemptPostgreSQL{db: db}
}

func (a *AttemptPostgreSQL) CountByLearnerAndQuiz(ctx context.Context, tx *gorm.DB, learnerID, quizID string) (int64, error) {
	db := getDB(a.db, tx)
	var count int64
	if err := db.WithContext(ctx).
		Model(&models.QuizAttempt{}).
		Where("learner_id = ? AND quiz_id = ?", learnerID, quizID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (a *AttemptPostgreSQL) AppendIfBelow(ctx context.Context, tx *gorm.DB, attempt *models.QuizAttempt, limit int) (int64, error) {
	if tx != nil {
		return a.appendIfBelow(ctx, tx, attempt, limit)
	}

	var (
		count int64
		err   error
	)
	for i := 0; i < appendRetries; i++ {
		err = a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var txErr error
			count, txErr = a.appendIfBelow(ctx, tx, attempt, limit)
			return txErr
		})
		// A duplicate attempt number means a concurrent append won the slot;
		// recount in a fresh transaction.
		if !repositories.IsDuplicateError(err) {
			return count, err
		}
	}
	return count, err
}

func (a *AttemptPostgreSQL) appendIfBelow(ctx context.Context, tx *gorm.DB, attempt *models.QuizAttempt, limit int) (int64, error) {
	db := tx.WithContext(ctx)

	if attempt.ID != "" {
		var existing models.QuizAttempt
		err := db.Where("id = ?", attempt.ID).First(&existing).Error
		if err == nil {
			*attempt = existing
			return int64(existing.AttemptNumber - 1), nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, err
		}
	}

	count, err := a.CountByLearnerAndQuiz(ctx, tx, attempt.LearnerID, attempt.QuizID)
	if err != nil {
		return 0, err
	}
	if count >= int64(limit) {
		return count, repositories.ErrAttemptLimitReached
	}

	attempt.AttemptNumber = int(count) + 1
	if err := db.Create(attempt).Error; err != nil {
		return count, err
	}
	return count, nil
}

func (a *AttemptPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id string) (*models.QuizAttempt, error) {
	db := getDB(a.db, tx)
	var attempt models.QuizAttempt
	if err := db.WithContext(ctx).Where("id = ?", id).First(&attempt).Error; err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (a *AttemptPostgreSQL) ListByLearnerAndQuiz(ctx context.Context, tx *gorm.DB, learnerID, quizID string) ([]*models.QuizAttempt, error) {
	db := getDB(a.db, tx)
	var attempts []*models.QuizAttempt
	if err := db.WithContext(ctx).
		Where("learner_id = ? AND quiz_id = ?", learnerID, quizID).
		Order("attempt_number ASC").
		Find(&attempts).Error; err != nil {
		return nil, err
	}
	return attempts, nil
}
