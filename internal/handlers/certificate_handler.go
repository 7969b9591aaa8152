package handlers

import (
	"net/http"

	"github.com/SAP-F-2025/quiz-service/internal/services"
	"github.com/SAP-F-2025/quiz-service/internal/utils"
	"github.com/gin-gonic/gin"
)

type CertificateHandler struct {
	BaseHandler
	certificateService services.CertificateService
}

func NewCertificateHandler(certificateService services.CertificateService, logger utils.Logger) *CertificateHandler {
	return &CertificateHandler{
		BaseHandler:        NewBaseHandler(logger),
		certificateService: certificateService,
	}
}

// VerifyCertificate looks up a certificate by its public verification code.
// Unknown codes answer 200 with is_valid false.
// @Summary Verify certificate
// @Tags certificates
// @Produce json
// @Param code path string true "Verification code"
// @Success 200 {object} models.CertificateVerification
// @Failure 503 {object} ErrorResponse
// @Router /certificates/verify/{code} [get]
func (h *CertificateHandler) VerifyCertificate(c *gin.Context) {
	code := ParseStringIDParam(c, "code")
	if code == "" {
		return
	}

	verification, err := h.certificateService.Verify(requestContext(c), code)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, verification)
}
