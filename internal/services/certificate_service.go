package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/SAP-F-2025/quiz-service/internal/events"
	"github.com/SAP-F-2025/quiz-service/internal/models"
	"github.com/SAP-F-2025/quiz-service/internal/repositories"
	"gorm.io/gorm"
)

// issueRetries bounds how often a lost insert race is retried.
const issueRetries = 3

type certificateService struct {
	repo    repositories.Repository
	emitter AnalyticsEmitter
	clock   Clock
	logger  *slog.Logger
	opLog   *ServiceLogger
	newCode func() (string, error)
}

func NewCertificateService(repo repositories.Repository, emitter AnalyticsEmitter, clock Clock, logger *slog.Logger) CertificateService {
	return &certificateService{
		repo:    repo,
		emitter: emitter,
		clock:   clock,
		logger:  logger,
		opLog:   NewServiceLogger(logger, LogConfig{Service: "quiz-service", Component: "certificate"}),
		newCode: randomVerificationCode,
	}
}

func (s *certificateService) IssueIfEligible(ctx context.Context, result *models.QuizResult, quizID string, learner models.LearnerContext) (cert *models.Certificate, err error) {
	if result == nil || !result.Passed || !learner.CertificatesEnabled {
		return nil, nil
	}

	ol := s.opLog.WithOperation(ctx, "issue_certificate", learner.LearnerID)
	defer func() { ol.LogResult(certificateID(cert), "certificate", err) }()

	for i := 0; i < issueRetries; i++ {
		var minted bool
		cert, minted, err = s.issue(ctx, result, quizID, learner)
		if err == nil {
			if minted {
				s.emitIssued(cert)
			}
			return cert, nil
		}
		if !repositories.IsDuplicateError(err) {
			break
		}

		// Another completion of the same enrollment may have won the
		// partial unique index; hand back its certificate.
		existing, getErr := s.repo.Certificate().GetActiveByEnrollment(ctx, nil, learner.LearnerID, learner.CourseID, learner.EnrollmentID)
		if getErr == nil {
			return existing, nil
		}
		if !repositories.IsNotFoundError(getErr) {
			err = getErr
			break
		}
	}

	if errors.Is(err, ErrCodeGenerationExhausted) {
		return nil, err
	}
	return nil, storeError("issue certificate", err)
}

// issue checks for an active certificate and inserts a new one in the same
// transaction.
func (s *certificateService) issue(ctx context.Context, result *models.QuizResult, quizID string, learner models.LearnerContext) (*models.Certificate, bool, error) {
	var (
		cert   *models.Certificate
		minted bool
	)
	now := s.clock.Now()

	err := s.repo.WithTransaction(ctx, func(tx *gorm.DB) error {
		certs := s.repo.Certificate()

		existing, err := certs.GetActiveByEnrollment(ctx, tx, learner.LearnerID, learner.CourseID, learner.EnrollmentID)
		switch {
		case err == nil && !existing.IsExpiredAt(now):
			cert = existing
			return nil
		case err == nil:
			// Expired but not swept yet; it no longer blocks a new one.
			if err := certs.UpdateStatus(ctx, tx, existing.ID, models.CertificateExpired, now, nil); err != nil {
				return err
			}
		case !repositories.IsNotFoundError(err):
			return err
		}

		code, err := s.uniqueCode(ctx, tx)
		if err != nil {
			return err
		}
		number, err := newCertificateNumber(now)
		if err != nil {
			return err
		}

		recipient := learner.RecipientName
		if recipient == "" {
			recipient = learner.LearnerID
		}

		cert = &models.Certificate{
			LearnerID:         learner.LearnerID,
			CourseID:          learner.CourseID,
			EnrollmentID:      learner.EnrollmentID,
			QuizID:            quizID,
			AttemptID:         result.AttemptID,
			CertificateNumber: number,
			RecipientName:     recipient,
			CourseTitle:       learner.CourseTitle,
			CompletionDate:    now,
			Score:             result.Score,
			Template:          learner.CertificateTemplate,
			VerificationCode:  code,
			Status:            models.CertificateActive,
			IssuedAt:          now,
		}
		if learner.CertificateValidityDays != nil {
			expires := now.AddDate(0, 0, *learner.CertificateValidityDays)
			cert.ExpiresAt = &expires
		}

		if err := certs.Create(ctx, tx, cert); err != nil {
			return err
		}
		minted = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return cert, minted, nil
}

// uniqueCode draws codes until one is unused, giving up after
// maxCodeAttempts collisions.
func (s *certificateService) uniqueCode(ctx context.Context, tx *gorm.DB) (string, error) {
	for i := 0; i < maxCodeAttempts; i++ {
		code, err := s.newCode()
		if err != nil {
			return "", fmt.Errorf("generate verification code: %w", err)
		}
		exists, err := s.repo.Certificate().ExistsByVerificationCode(ctx, tx, code)
		if err != nil {
			return "", err
		}
		if !exists {
			return code, nil
		}
		s.logger.Warn("Verification code collision, regenerating", "attempt", i+1)
	}
	return "", ErrCodeGenerationExhausted
}

func (s *certificateService) Verify(ctx context.Context, code string) (*models.CertificateVerification, error) {
	code = normalizeVerificationCode(code)
	if !isWellFormedCode(code) {
		return &models.CertificateVerification{IsValid: false, Message: "Certificate not found"}, nil
	}

	cert, err := s.repo.Certificate().GetByVerificationCode(ctx, nil, code)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return &models.CertificateVerification{IsValid: false, Message: "Certificate not found"}, nil
		}
		return nil, storeError("verify certificate", err)
	}

	verification := &models.CertificateVerification{Certificate: cert}
	switch {
	case cert.Status == models.CertificateRevoked:
		verification.Message = "Certificate has been revoked"
	case cert.Status == models.CertificateExpired || cert.IsExpiredAt(s.clock.Now()):
		verification.Message = "Certificate has expired"
	case cert.Status == models.CertificateActive:
		verification.IsValid = true
		verification.Message = "Certificate is valid"
	default:
		verification.Message = "Certificate is not active"
	}
	return verification, nil
}

func (s *certificateService) Revoke(ctx context.Context, id string, reason string) (cert *models.Certificate, err error) {
	ol := s.opLog.WithOperation(ctx, "revoke_certificate", "")
	defer func() { ol.LogResult(id, "certificate", err) }()

	err = s.repo.WithTransaction(ctx, func(tx *gorm.DB) error {
		certs := s.repo.Certificate()

		current, err := certs.GetByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if current.Status != models.CertificateActive {
			return ErrCertificateNotActive
		}

		if err := certs.UpdateStatus(ctx, tx, id, models.CertificateRevoked, s.clock.Now(), &reason); err != nil {
			return err
		}
		cert, err = certs.GetByID(ctx, tx, id)
		return err
	})
	switch {
	case err == nil:
		return cert, nil
	case errors.Is(err, ErrCertificateNotActive):
		return nil, err
	case repositories.IsNotFoundError(err):
		return nil, ErrCertificateNotFound
	default:
		return nil, storeError("revoke certificate", err)
	}
}

func (s *certificateService) ExpireDue(ctx context.Context) (int64, error) {
	n, err := s.repo.Certificate().ExpireDue(ctx, nil, s.clock.Now())
	if err != nil {
		return 0, storeError("expire certificates", err)
	}
	if n > 0 {
		s.logger.Info("Expired certificates", "count", n)
	}
	return n, nil
}

func (s *certificateService) emitIssued(cert *models.Certificate) {
	if s.emitter == nil {
		return
	}
	s.emitter.Emit(events.EventCertificateIssued, events.CertificateIssuedEvent{
		CertificateID:     cert.ID,
		CertificateNumber: cert.CertificateNumber,
		LearnerID:         cert.LearnerID,
		CourseID:          cert.CourseID,
		EnrollmentID:      cert.EnrollmentID,
		QuizID:            cert.QuizID,
		Score:             cert.Score,
		IssuedAt:          cert.IssuedAt,
	})
}

func certificateID(cert *models.Certificate) string {
	if cert == nil {
		return ""
	}
	return cert.ID
}
