package postgres

import (
	"context"

	"github.com/SAP-F-2025/quiz-service/internal/models"
	"github.com/SAP-F-2025/quiz-service/internal/repositories"
	"gorm.io/gorm"
)

type ConfigurationPostgreSQL struct {
	db *gorm.DB
}

func NewConfigurationPostgreSQL(db *gorm.DB) repositories.ConfigurationRepository {
	return &ConfigurationPostgreSQL{db: db}
}

func (c *ConfigurationPostgreSQL) Create(ctx context.Context, tx *gorm.DB, cfg *models.QuizConfiguration) error {
	db := getDB(c.db, tx)
	return db.WithContext(ctx).Create(cfg).Error
}

// Update saves every column, including zero-valued booleans.
func (c *ConfigurationPostgreSQL) Update(ctx context.Context, tx *gorm.DB, cfg *models.QuizConfiguration) error {
	db := getDB(c.db, tx)
	return db.WithContext(ctx).Save(cfg).Error
}

func (c *ConfigurationPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id string) (*models.QuizConfiguration, error) {
	db := getDB(c.db, tx)
	var cfg models.QuizConfiguration
	if err := db.WithContext(ctx).Where("id = ?", id).First(&cfg).Error; err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *ConfigurationPostgreSQL) GetByQuiz(ctx context.Context, tx *gorm.DB, quizID string) (*models.QuizConfiguration, error) {
	db := getDB(c.db, tx)
	var cfg models.QuizConfiguration
	if err := db.WithContext(ctx).Where("quiz_id = ?", quizID).First(&cfg).Error; err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *ConfigurationPostgreSQL) GetLatestCourseDefault(ctx context.Context, tx *gorm.DB, courseID string) (*models.QuizConfiguration, error) {
	db := getDB(c.db, tx)
	var cfg models.QuizConfiguration
	if err := db.WithContext(ctx).
		Where("course_id = ? AND quiz_id IS NULL", courseID).
		Order("created_at DESC").
		Order("id DESC").
		First(&cfg).Error; err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LockCourseDefaults takes a transaction scoped advisory lock on PostgreSQL.
// SQLite admits one writer at a time, so nothing is needed there.
func (c *ConfigurationPostgreSQL) LockCourseDefaults(ctx context.Context, tx *gorm.DB, courseID string) error {
	db := getDB(c.db, tx)
	if db.Dialector.Name() != "postgres" {
		return nil
	}
	return db.WithContext(ctx).
		Exec("SELECT pg_advisory_xact_lock(hashtext(?))", "quiz_configurations:"+courseID).Error
}
