package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/SAP-F-2025/quiz-service/internal/services"
	"github.com/SAP-F-2025/quiz-service/internal/utils"
	"github.com/gin-gonic/gin"
)

const (
	LearnerIDHeader   = "X-Learner-ID"
	LearnerNameHeader = "X-Learner-Name"
)

// ===== COMMON RESPONSE STRUCTURES =====

// ErrorResponse represents an error response
type ErrorResponse struct {
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
	Code    string      `json:"code,omitempty"`
}

// SuccessResponse represents a success response
type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ===== BASE HANDLER STRUCT =====

// BaseHandler provides common logging functionality for all handlers
type BaseHandler struct {
	logger utils.Logger
}

func NewBaseHandler(logger utils.Logger) BaseHandler {
	return BaseHandler{
		logger: logger,
	}
}

// requestLogger returns the request scoped logger, which already carries the
// request id, method and path, tagged with the calling learner.
func (h *BaseHandler) requestLogger(c *gin.Context) utils.Logger {
	return utils.GetLoggerFromContext(c, h.logger).With("learner_id", c.GetHeader(LearnerIDHeader))
}

// LogRequest logs incoming HTTP requests with context information
func (h *BaseHandler) LogRequest(c *gin.Context, message string, additionalFields ...interface{}) {
	h.requestLogger(c).Info(message, additionalFields...)
}

func (h *BaseHandler) LogError(c *gin.Context, err error, message string, additionalFields ...interface{}) {
	h.requestLogger(c).LogError(err, message, additionalFields...)
}

func (h *BaseHandler) LogWarn(c *gin.Context, message string, additionalFields ...interface{}) {
	h.requestLogger(c).Warn(message, additionalFields...)
}

// RespondWithError sends a consistent error response and logs it
func (h *BaseHandler) RespondWithError(c *gin.Context, statusCode int, code, message string, err error, details ...interface{}) {
	errorResp := ErrorResponse{
		Message: message,
		Code:    code,
	}

	if len(details) > 0 {
		errorResp.Details = details[0]
	}

	if statusCode >= http.StatusInternalServerError {
		h.LogError(c, err, message, "status_code", statusCode)
	} else {
		h.LogWarn(c, message, "status_code", statusCode, "error", err)
	}

	c.JSON(statusCode, errorResp)
}

// RespondWithSuccess sends a consistent success response
func (h *BaseHandler) RespondWithSuccess(c *gin.Context, statusCode int, message string, data interface{}) {
	c.JSON(statusCode, SuccessResponse{
		Message: message,
		Data:    data,
	})
}

// respondBadRequest reports a malformed payload or parameter.
func (h *BaseHandler) respondBadRequest(c *gin.Context, message string, err error) {
	h.RespondWithError(c, http.StatusBadRequest, "BAD_REQUEST", message, err, err.Error())
}

// requireLearner reads the caller's identity from the request headers. It
// writes a 401 and returns false when the header is missing.
func (h *BaseHandler) requireLearner(c *gin.Context) (string, bool) {
	learnerID := strings.TrimSpace(c.GetHeader(LearnerIDHeader))
	if learnerID == "" {
		h.RespondWithError(c, http.StatusUnauthorized, "UNAUTHENTICATED", "Learner not identified", nil,
			LearnerIDHeader+" header is required")
		return "", false
	}
	return learnerID, true
}

// handleServiceError maps an engine error onto an HTTP status
func (h *BaseHandler) handleServiceError(c *gin.Context, err error) {
	details := services.FormatError(err)

	switch {
	case services.IsValidation(err):
		h.RespondWithError(c, http.StatusUnprocessableEntity, "VALIDATION_FAILED", "Validation failed", err, details)

	case errors.Is(err, services.ErrNoQuestionsFound):
		h.RespondWithError(c, http.StatusNotFound, "NO_QUESTIONS", "Quiz has no questions", err, details)

	case errors.Is(err, services.ErrAttemptLimitExceeded):
		h.RespondWithError(c, http.StatusForbidden, "ATTEMPT_LIMIT_EXCEEDED", "Maximum attempts exceeded", err, details)

	case services.IsNotFound(err):
		h.RespondWithError(c, http.StatusNotFound, "NOT_FOUND", err.Error(), err, details)

	case services.IsState(err):
		h.RespondWithError(c, http.StatusConflict, "INVALID_STATE", err.Error(), err, details)

	case services.IsBusinessRule(err):
		h.RespondWithError(c, http.StatusUnprocessableEntity, "BUSINESS_RULE", err.Error(), err, details)

	case services.IsInfrastructure(err):
		h.RespondWithError(c, http.StatusServiceUnavailable, "UNAVAILABLE", "Service temporarily unavailable", err)

	default:
		h.RespondWithError(c, http.StatusInternalServerError, "INTERNAL", "Internal server error", err)
	}
}
