package handlers

import (
	"net/http"

	"github.com/SAP-F-2025/quiz-service/internal/models"
	"github.com/SAP-F-2025/quiz-service/internal/services"
	"github.com/SAP-F-2025/quiz-service/internal/utils"
	"github.com/gin-gonic/gin"
)

// AttemptHistoryResponse is the learner's ledger for one quiz.
type AttemptHistoryResponse struct {
	QuizID   string                `json:"quiz_id"`
	Count    int                   `json:"count"`
	Attempts []*models.QuizAttempt `json:"attempts"`
}

type AttemptHandler struct {
	BaseHandler
	ledger services.AttemptLedger
}

func NewAttemptHandler(ledger services.AttemptLedger, logger utils.Logger) *AttemptHandler {
	return &AttemptHandler{
		BaseHandler: NewBaseHandler(logger),
		ledger:      ledger,
	}
}

// ListAttempts returns the calling learner's attempts at a quiz
// @Summary List attempts
// @Tags attempts
// @Produce json
// @Param X-Learner-ID header string true "Learner ID"
// @Param quiz_id query string true "Quiz ID"
// @Success 200 {object} AttemptHistoryResponse
// @Failure 400 {object} ErrorResponse
// @Router /attempts [get]
func (h *AttemptHandler) ListAttempts(c *gin.Context) {
	learnerID, ok := h.requireLearner(c)
	if !ok {
		return
	}
	quizID := optionalQuery(c, "quiz_id")
	if quizID == nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid query",
			Details: "quiz_id is required",
			Code:    "BAD_REQUEST",
		})
		return
	}

	attempts, err := h.ledger.History(requestContext(c), learnerID, *quizID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	if attempts == nil {
		attempts = []*models.QuizAttempt{}
	}

	c.JSON(http.StatusOK, AttemptHistoryResponse{
		QuizID:   *quizID,
		Count:    len(attempts),
		Attempts: attempts,
	})
}
