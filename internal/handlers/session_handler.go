package handlers

import (
	"net/http"

	"github.com/SAP-F-2025/quiz-service/internal/models"
	"github.com/SAP-F-2025/quiz-service/internal/services"
	"github.com/SAP-F-2025/quiz-service/internal/utils"
	"github.com/SAP-F-2025/quiz-service/internal/validator"
	"github.com/gin-gonic/gin"
)

// StartSessionRequest carries the quiz and the course scope of the learner.
// The learner identity itself comes from the request headers.
type StartSessionRequest struct {
	QuizID                  string  `json:"quiz_id" validate:"required,max=36"`
	CourseID                string  `json:"course_id"`
	CourseTitle             string  `json:"course_title"`
	EnrollmentID            string  `json:"enrollment_id"`
	ModuleID                *string `json:"module_id,omitempty"`
	CertificatesEnabled     bool    `json:"certificates_enabled"`
	CertificateTemplate     string  `json:"certificate_template,omitempty"`
	CertificateValidityDays *int    `json:"certificate_validity_days,omitempty"`
}

const (
	NavigateNext     = "next"
	NavigatePrevious = "previous"
	NavigateGoTo     = "goto"
)

type NavigateRequest struct {
	Direction string `json:"direction" validate:"required,oneof=next previous goto"`
	Index     *int   `json:"index,omitempty" validate:"omitempty,min=0"`
}

type SessionHandler struct {
	BaseHandler
	sessionService services.SessionService
	clock          services.Clock
	validator      *validator.Validator
}

func NewSessionHandler(
	sessionService services.SessionService,
	clock services.Clock,
	validator *validator.Validator,
	logger utils.Logger,
) *SessionHandler {
	return &SessionHandler{
		BaseHandler:    NewBaseHandler(logger),
		sessionService: sessionService,
		clock:          clock,
		validator:      validator,
	}
}

// StartSession starts a quiz session or resumes the one in progress
// @Summary Start quiz session
// @Tags sessions
// @Accept json
// @Produce json
// @Param X-Learner-ID header string true "Learner ID"
// @Param request body StartSessionRequest true "Quiz and course scope"
// @Success 201 {object} services.SessionView
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse
// @Router /sessions [post]
func (h *SessionHandler) StartSession(c *gin.Context) {
	learnerID, ok := h.requireLearner(c)
	if !ok {
		return
	}

	var req StartSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondBadRequest(c, "Invalid request payload", err)
		return
	}
	if errs := h.validator.Validate(&req); errs != nil {
		h.handleServiceError(c, errs)
		return
	}

	h.LogRequest(c, "Starting quiz session", "quiz_id", req.QuizID)

	learner := models.LearnerContext{
		LearnerID:               learnerID,
		RecipientName:           c.GetHeader(LearnerNameHeader),
		CourseID:                req.CourseID,
		CourseTitle:             req.CourseTitle,
		EnrollmentID:            req.EnrollmentID,
		ModuleID:                req.ModuleID,
		CertificatesEnabled:     req.CertificatesEnabled,
		CertificateTemplate:     req.CertificateTemplate,
		CertificateValidityDays: req.CertificateValidityDays,
	}

	session, err := h.sessionService.Start(requestContext(c), learner, req.QuizID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, session.View(h.clock.Now()))
}

// GetSession returns the learner's view of a session
// @Summary Get quiz session
// @Tags sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} services.SessionView
// @Failure 404 {object} ErrorResponse
// @Router /sessions/{id} [get]
func (h *SessionHandler) GetSession(c *gin.Context) {
	session, ok := h.loadSession(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, session.View(h.clock.Now()))
}

// SubmitAnswer stores the answer to one question
// @Summary Submit answer
// @Tags sessions
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param answer body services.SubmitAnswerRequest true "Answer"
// @Success 200 {object} services.AnswerFeedback
// @Failure 409 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse
// @Router /sessions/{id}/answers [post]
func (h *SessionHandler) SubmitAnswer(c *gin.Context) {
	var req services.SubmitAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondBadRequest(c, "Invalid request payload", err)
		return
	}

	session, ok := h.loadSession(c)
	if !ok {
		return
	}

	feedback, err := h.sessionService.SubmitAnswer(requestContext(c), session, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, feedback)
}

// Navigate moves the current question pointer
// @Summary Navigate questions
// @Tags sessions
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param request body NavigateRequest true "Direction"
// @Success 200 {object} services.SessionView
// @Failure 409 {object} ErrorResponse
// @Router /sessions/{id}/navigate [post]
func (h *SessionHandler) Navigate(c *gin.Context) {
	var req NavigateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondBadRequest(c, "Invalid request payload", err)
		return
	}
	errs := h.validator.Validate(&req)
	if req.Direction == NavigateGoTo && req.Index == nil {
		errs = append(errs, *services.NewValidationError("index", "is required when direction is goto", nil))
	}
	if len(errs) > 0 {
		h.handleServiceError(c, errs)
		return
	}

	session, ok := h.loadSession(c)
	if !ok {
		return
	}

	ctx := requestContext(c)
	var err error
	switch req.Direction {
	case NavigateNext:
		_, err = h.sessionService.Advance(ctx, session)
	case NavigatePrevious:
		_, err = h.sessionService.Previous(ctx, session)
	case NavigateGoTo:
		_, err = h.sessionService.GoTo(ctx, session, *req.Index)
	}
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, session.View(h.clock.Now()))
}

// SubmitQuiz scores the session and records the attempt
// @Summary Submit quiz
// @Tags sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} models.QuizResult
// @Failure 409 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /sessions/{id}/submit [post]
func (h *SessionHandler) SubmitQuiz(c *gin.Context) {
	session, ok := h.loadSession(c)
	if !ok {
		return
	}

	h.LogRequest(c, "Submitting quiz", "session_id", session.ID())

	result, err := h.sessionService.Submit(requestContext(c), session)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// RetakeQuiz starts a fresh session from a finished one
// @Summary Retake quiz
// @Tags sessions
// @Produce json
// @Param id path string true "Finished session ID"
// @Success 201 {object} services.SessionView
// @Failure 403 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /sessions/{id}/retake [post]
func (h *SessionHandler) RetakeQuiz(c *gin.Context) {
	session, ok := h.loadSession(c)
	if !ok {
		return
	}

	h.LogRequest(c, "Retaking quiz", "session_id", session.ID())

	next, err := h.sessionService.Retake(requestContext(c), session)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, next.View(h.clock.Now()))
}

// ExitQuiz abandons the session
// @Summary Exit quiz
// @Tags sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} services.SessionView
// @Failure 409 {object} ErrorResponse
// @Router /sessions/{id}/exit [post]
func (h *SessionHandler) ExitQuiz(c *gin.Context) {
	session, ok := h.loadSession(c)
	if !ok {
		return
	}

	if err := h.sessionService.Exit(requestContext(c), session); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, session.View(h.clock.Now()))
}

// loadSession resolves the :id session for the calling learner. Sessions of
// other learners read as not found.
func (h *SessionHandler) loadSession(c *gin.Context) (*services.QuizSession, bool) {
	learnerID, ok := h.requireLearner(c)
	if !ok {
		return nil, false
	}
	id := ParseStringIDParam(c, "id")
	if id == "" {
		return nil, false
	}

	session, err := h.sessionService.Get(requestContext(c), id)
	if err == nil && session.LearnerID() != learnerID {
		err = services.ErrSessionNotFound
	}
	if err != nil {
		h.handleServiceError(c, err)
		return nil, false
	}
	return session, true
}
