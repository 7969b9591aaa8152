package postgres

import (
	"context"

	"github.com/SAP-F-2025/quiz-service/internal/models"
	"github.com/SAP-F-2025/quiz-service/internal/repositories"
	"gorm.io/gorm"
)

type Repository struct {
	db            *gorm.DB
	question      repositories.QuestionRepository
	configuration repositories.ConfigurationRepository
	attempt       repositories.AttemptRepository
	certificate   repositories.CertificateRepository
}

type Option func(*Repository)

// WithQuestionRepository replaces the question store, e.g. with a cached one.
func WithQuestionRepository(q repositories.QuestionRepository) Option {
	return func(r *Repository) {
		r.question = q
	}
}

func NewRepository(db *gorm.DB, opts ...Option) repositories.Repository {
	r := &Repository{
		db:            db,
		question:      NewQuestionPostgreSQL(db),
		configuration: NewConfigurationPostgreSQL(db),
		attempt:       NewAttemptPostgreSQL(db),
		certificate:   NewCertificatePostgreSQL(db),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Repository) Question() repositories.QuestionRepository           { return r.question }
func (r *Repository) Configuration() repositories.ConfigurationRepository { return r.configuration }
func (r *Repository) Attempt() repositories.AttemptRepository             { return r.attempt }
func (r *Repository) Certificate() repositories.CertificateRepository     { return r.certificate }

func (r *Repository) WithTransaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

func (r *Repository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Migrate creates or updates the tables the engine uses.
func Migrate(ctx context.Context, db *gorm.DB) error {
	return db.WithContext(ctx).AutoMigrate(
		&models.Question{},
		&models.QuizConfiguration{},
		&models.QuizAttempt{},
		&models.Certificate{},
	)
}

func getDB(db, tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return db
}
