package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type CertificateStatus string

const (
	CertificateActive  CertificateStatus = "active"
	CertificateRevoked CertificateStatus = "revoked"
	CertificateExpired CertificateStatus = "expired"
)

// Certificate rows only change through status transitions. At most one
// active certificate exists per learner, course and enrollment.
type Certificate struct {
	ID                string            `json:"id" gorm:"primaryKey;size:36"`
	LearnerID         string            `json:"learner_id" gorm:"size:64;not null;uniqueIndex:idx_certificates_active_enrollment,priority:1,where:status = 'active'"`
	CourseID          string            `json:"course_id" gorm:"size:36;not null;uniqueIndex:idx_certificates_active_enrollment,priority:2,where:status = 'active'"`
	EnrollmentID      string            `json:"enrollment_id" gorm:"size:64;not null;uniqueIndex:idx_certificates_active_enrollment,priority:3,where:status = 'active'"`
	QuizID            string            `json:"quiz_id" gorm:"size:36;not null"`
	AttemptID         string            `json:"attempt_id" gorm:"size:36;not null"`
	CertificateNumber string            `json:"certificate_number" gorm:"size:32;not null;uniqueIndex"`
	RecipientName     string            `json:"recipient_name" gorm:"size:200;not null"`
	CourseTitle       string            `json:"course_title" gorm:"size:200;not null"`
	CompletionDate    time.Time         `json:"completion_date"`
	Score             int               `json:"score"`
	Template          string            `json:"template" gorm:"size:64"`
	VerificationCode  string            `json:"verification_code" gorm:"size:8;not null;uniqueIndex"`
	Status            CertificateStatus `json:"status" gorm:"size:16;not null;index"`
	ExpiresAt         *time.Time        `json:"expires_at,omitempty" gorm:"index"`
	IssuedAt          time.Time         `json:"issued_at"`
	RevokedAt         *time.Time        `json:"revoked_at,omitempty"`
	RevocationReason  *string           `json:"revocation_reason,omitempty" gorm:"type:text"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (c *Certificate) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

// IsExpiredAt reports whether the certificate is past its expiry at t.
func (c *Certificate) IsExpiredAt(t time.Time) bool {
	return c.ExpiresAt != nil && !t.Before(*c.ExpiresAt)
}

// CertificateVerification is the public answer to a verification lookup.
type CertificateVerification struct {
	Certificate *Certificate `json:"certificate,omitempty"`
	IsValid     bool         `json:"is_valid"`
	Message     string       `json:"message"`
}
