package services

import (
	"context"
	"log/slog"

	"github.com/SAP-F-2025/quiz-service/internal/events"
	"github.com/SAP-F-2025/quiz-service/internal/repositories"
	"github.com/SAP-F-2025/quiz-service/internal/validator"
)

type serviceManager struct {
	configuration ConfigurationService
	session       SessionService
	ledger        AttemptLedger
	certificate   CertificateService
	analytics     AnalyticsEmitter
	clock         Clock
}

// ManagerConfig carries the optional collaborators of the engine.
type ManagerConfig struct {
	Clock        Clock
	SessionStore SessionStore
	Emitter      EmitterConfig
}

// NewServiceManager wires every engine service over one repository and
// publisher.
func NewServiceManager(repo repositories.Repository, publisher events.EventPublisher, logger *slog.Logger, validator *validator.Validator, cfg ManagerConfig) ServiceManager {
	clock := cfg.Clock
	if clock == nil {
		clock = RealClock()
	}

	analytics := NewAnalyticsEmitter(publisher, clock, logger.With("component", "analytics"), cfg.Emitter)
	configuration := NewConfigurationService(repo, logger, validator)
	ledger := NewAttemptLedger(repo, logger)
	certificate := NewCertificateService(repo, analytics, clock, logger)

	var opts []SessionOption
	if cfg.SessionStore != nil {
		opts = append(opts, WithSessionStore(cfg.SessionStore))
	}
	session := NewSessionService(repo, configuration, ledger, certificate, analytics, clock, logger, validator, opts...)

	return &serviceManager{
		configuration: configuration,
		session:       session,
		ledger:        ledger,
		certificate:   certificate,
		analytics:     analytics,
		clock:         clock,
	}
}

func (m *serviceManager) Configuration() ConfigurationService { return m.configuration }
func (m *serviceManager) Session() SessionService             { return m.session }
func (m *serviceManager) Ledger() AttemptLedger               { return m.ledger }
func (m *serviceManager) Certificate() CertificateService     { return m.certificate }
func (m *serviceManager) Analytics() AnalyticsEmitter         { return m.analytics }
func (m *serviceManager) Clock() Clock                        { return m.clock }

// Shutdown stops session timers and drains pending analytics events.
func Shutdown(ctx context.Context, m ServiceManager) error {
	m.Session().Close()
	return m.Analytics().Close(ctx)
}
