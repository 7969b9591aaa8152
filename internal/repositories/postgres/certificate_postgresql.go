package postgres

import (
	"context"
	"time"

	"github.com/SAP-F-2025/quiz-service/internal/models"
	"github.com/SAP-F-2025/quiz-service/internal/repositories"
	"gorm.io/gorm"
)

type CertificatePostgreSQL struct {
	db *gorm.DB
}

func NewCertificatePostgreSQL(db *gorm.DB) repositories.CertificateRepository {
	return &CertificatePostgreSQL{db: db}
}

func (c *CertificatePostgreSQL) Create(ctx context.Context, tx *gorm.DB, cert *models.Certificate) error {
	db := getDB(c.db, tx)
	return db.WithContext(ctx).Create(cert).Error
}

func (c *CertificatePostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id string) (*models.Certificate, error) {
	db := getDB(c.db, tx)
	var cert models.Certificate
	if err := db.WithContext(ctx).Where("id = ?", id).First(&cert).Error; err != nil {
		return nil, err
	}
	return &cert, nil
}

func (c *CertificatePostgreSQL) GetByVerificationCode(ctx context.Context, tx *gorm.DB, code string) (*models.Certificate, error) {
	db := getDB(c.db, tx)
	var cert models.Certificate
	if err := db.WithContext(ctx).Where("verification_code = ?", code).First(&cert).Error; err != nil {
		return nil, err
	}
	return &cert, nil
}

func (c *CertificatePostgreSQL) GetActiveByEnrollment(ctx context.Context, tx *gorm.DB, learnerID, courseID, enrollmentID string) (*models.Certificate, error) {
	db := getDB(c.db, tx)
	var cert models.Certificate
	if err := db.WithContext(ctx).
		Where("learner_id = ? AND course_id = ? AND enrollment_id = ? AND status = ?",
			learnerID, courseID, enrollmentID, models.CertificateActive).
		First(&cert).Error; err != nil {
		return nil, err
	}
	return &cert, nil
}

func (c *CertificatePostgreSQL) ExistsByVerificationCode(ctx context.Context, tx *gorm.DB, code string) (bool, error) {
	db := getDB(c.db, tx)
	var count int64
	if err := db.WithContext(ctx).
		Model(&models.Certificate{}).
		Where("verification_code = ?", code).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (c *CertificatePostgreSQL) UpdateStatus(ctx context.Context, tx *gorm.DB, id string, status models.CertificateStatus, at time.Time, reason *string) error {
	db := getDB(c.db, tx)
	updates := map[string]interface{}{
		"status":     status,
		"updated_at": at,
	}
	if status == models.CertificateRevoked {
		updates["revoked_at"] = at
		updates["revocation_reason"] = reason
	}

	result := db.WithContext(ctx).Model(&models.Certificate{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (c *CertificatePostgreSQL) ExpireDue(ctx context.Context, tx *gorm.DB, now time.Time) (int64, error) {
	db := getDB(c.db, tx)
	result := db.WithContext(ctx).
		Model(&models.Certificate{}).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at <= ?", models.CertificateActive, now).
		Updates(map[string]interface{}{
			"status":     models.CertificateExpired,
			"updated_at": now,
		})
	return result.RowsAffected, result.Error
}
