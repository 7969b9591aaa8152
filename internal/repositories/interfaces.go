package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/SAP-F-2025/quiz-service/internal/models"
	"gorm.io/gorm"
)

// ErrAttemptLimitReached is returned by a conditional append that found the
// learner already at the limit.
var ErrAttemptLimitReached = errors.New("attempt limit reached")

// Repository aggregates every store the engine talks to.
type Repository interface {
	Question() QuestionRepository
	Configuration() ConfigurationRepository
	Attempt() AttemptRepository
	Certificate() CertificateRepository

	// WithTransaction runs fn in one database transaction.
	WithTransaction(ctx context.Context, fn func(tx *gorm.DB) error) error
	Ping(ctx context.Context) error
}

// QuestionRepository is read-only; questions are authored elsewhere.
type QuestionRepository interface {
	// ListByQuiz returns the quiz's questions ordered by order_index.
	ListByQuiz(ctx context.Context, tx *gorm.DB, quizID string) ([]*models.Question, error)
}

type ConfigurationRepository interface {
	Create(ctx context.Context, tx *gorm.DB, cfg *models.QuizConfiguration) error
	Update(ctx context.Context, tx *gorm.DB, cfg *models.QuizConfiguration) error
	GetByID(ctx context.Context, tx *gorm.DB, id string) (*models.QuizConfiguration, error)
	GetByQuiz(ctx context.Context, tx *gorm.DB, quizID string) (*models.QuizConfiguration, error)
	// GetLatestCourseDefault returns the newest course-wide configuration.
	GetLatestCourseDefault(ctx context.Context, tx *gorm.DB, courseID string) (*models.QuizConfiguration, error)
	// LockCourseDefaults serializes course default creation for courseID
	// until tx ends.
	LockCourseDefaults(ctx context.Context, tx *gorm.DB, courseID string) error
}

type AttemptRepository interface {
	CountByLearnerAndQuiz(ctx context.Context, tx *gorm.DB, learnerID, quizID string) (int64, error)
	// AppendIfBelow inserts attempt as the learner's next attempt unless
	// limit attempts already exist, returning the count seen before the
	// insert. Appending an attempt whose ID is already stored succeeds
	// without writing and loads the stored row into attempt.
	AppendIfBelow(ctx context.Context, tx *gorm.DB, attempt *models.QuizAttempt, limit int) (int64, error)
	GetByID(ctx context.Context, tx *gorm.DB, id string) (*models.QuizAttempt, error)
	ListByLearnerAndQuiz(ctx context.Context, tx *gorm.DB, learnerID, quizID string) ([]*models.QuizAttempt, error)
}

type CertificateRepository interface {
	Create(ctx context.Context, tx *gorm.DB, cert *models.Certificate) error
	GetByID(ctx context.Context, tx *gorm.DB, id string) (*models.Certificate, error)
	GetByVerificationCode(ctx context.Context, tx *gorm.DB, code string) (*models.Certificate, error)
	GetActiveByEnrollment(ctx context.Context, tx *gorm.DB, learnerID, courseID, enrollmentID string) (*models.Certificate, error)
	ExistsByVerificationCode(ctx context.Context, tx *gorm.DB, code string) (bool, error)
	UpdateStatus(ctx context.Context, tx *gorm.DB, id string, status models.CertificateStatus, at time.Time, reason *string) error
	// ExpireDue moves active certificates whose expiry has passed to expired.
	ExpireDue(ctx context.Context, tx *gorm.DB, now time.Time) (int64, error)
}

// IsNotFoundError reports whether err means the record does not exist.
func IsNotFoundError(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

// IsDuplicateError reports whether err is a unique constraint violation.
func IsDuplicateError(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}
