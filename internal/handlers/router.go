package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/SAP-F-2025/quiz-service/internal/services"
	"github.com/SAP-F-2025/quiz-service/internal/utils"
	"github.com/SAP-F-2025/quiz-service/internal/validator"
	"github.com/gin-gonic/gin"
)

const healthTimeout = 2 * time.Second

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HandlerManager struct {
	sessionHandler       *SessionHandler
	configurationHandler *ConfigurationHandler
	attemptHandler       *AttemptHandler
	certificateHandler   *CertificateHandler
	store                Pinger
	logger               utils.Logger
}

func NewHandlerManager(
	serviceManager services.ServiceManager,
	validator *validator.Validator,
	logger utils.Logger,
	store Pinger,
) *HandlerManager {
	return &HandlerManager{
		sessionHandler:       NewSessionHandler(serviceManager.Session(), serviceManager.Clock(), validator, logger),
		configurationHandler: NewConfigurationHandler(serviceManager.Configuration(), validator, logger),
		attemptHandler:       NewAttemptHandler(serviceManager.Ledger(), logger),
		certificateHandler:   NewCertificateHandler(serviceManager.Certificate(), logger),
		store:                store,
		logger:               logger,
	}
}

// NewRouter builds a gin engine with the request id, access log and
// recovery middleware and every route registered.
func (hm *HandlerManager) NewRouter() *gin.Engine {
	router := gin.New()
	router.Use(
		utils.RequestIDMiddleware(),
		utils.LoggerMiddleware(hm.logger),
		utils.ContextLogger(hm.logger),
		gin.Recovery(),
	)
	hm.SetupRoutes(router)
	return router
}

// SetupRoutes sets up all API routes
func (hm *HandlerManager) SetupRoutes(router *gin.Engine) {
	router.GET("/health", hm.HealthCheck)

	v1 := router.Group("/api/v1")
	{
		sessions := v1.Group("/sessions")
		{
			sessions.POST("", hm.sessionHandler.StartSession)
			sessions.GET("/:id", hm.sessionHandler.GetSession)
			sessions.POST("/:id/answers", hm.sessionHandler.SubmitAnswer)
			sessions.POST("/:id/navigate", hm.sessionHandler.Navigate)
			sessions.POST("/:id/submit", hm.sessionHandler.SubmitQuiz)
			sessions.POST("/:id/retake", hm.sessionHandler.RetakeQuiz)
			sessions.POST("/:id/exit", hm.sessionHandler.ExitQuiz)
		}

		configurations := v1.Group("/configurations")
		{
			configurations.GET("/resolve", hm.configurationHandler.ResolveConfiguration)
			configurations.GET("/presets", hm.configurationHandler.ListPresets)
			configurations.POST("/validate", hm.configurationHandler.ValidateConfiguration)
			configurations.POST("", hm.configurationHandler.CreateConfiguration)
			configurations.PUT("/:id", hm.configurationHandler.UpdateConfiguration)
			configurations.POST("/:id/preset/:preset", hm.configurationHandler.ApplyPreset)
			configurations.POST("/:id/duplicate", hm.configurationHandler.DuplicateConfiguration)
		}

		v1.GET("/attempts", hm.attemptHandler.ListAttempts)

		// Public
		v1.GET("/certificates/verify/:code", hm.certificateHandler.VerifyCertificate)
	}
}

// HealthCheck reports the service healthy when the store answers a ping
func (hm *HandlerManager) HealthCheck(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{
		"status":  "healthy",
		"service": "quiz-service",
	}

	if hm.store != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
		defer cancel()
		if err := hm.store.Ping(ctx); err != nil {
			hm.logger.LogError(err, "Health check failed")
			status = http.StatusServiceUnavailable
			body["status"] = "unhealthy"
		}
	}

	c.JSON(status, body)
}
