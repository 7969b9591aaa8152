package handlers

import (
	"net/http"

	"github.com/SAP-F-2025/quiz-service/internal/models"
	"github.com/SAP-F-2025/quiz-service/internal/services"
	"github.com/SAP-F-2025/quiz-service/internal/utils"
	"github.com/SAP-F-2025/quiz-service/internal/validator"
	"github.com/gin-gonic/gin"
)

// ValidateConfigurationResponse lists every violation of a candidate
// configuration.
type ValidateConfigurationResponse struct {
	Valid  bool                      `json:"valid"`
	Errors services.ValidationErrors `json:"errors,omitempty"`
}

type ConfigurationHandler struct {
	BaseHandler
	configurationService services.ConfigurationService
	validator            *validator.Validator
}

func NewConfigurationHandler(
	configurationService services.ConfigurationService,
	validator *validator.Validator,
	logger utils.Logger,
) *ConfigurationHandler {
	return &ConfigurationHandler{
		BaseHandler:          NewBaseHandler(logger),
		configurationService: configurationService,
		validator:            validator,
	}
}

// ResolveConfiguration returns the configuration that applies to a quiz
// @Summary Resolve configuration
// @Tags configurations
// @Produce json
// @Param course_id query string true "Course ID"
// @Param quiz_id query string false "Quiz ID"
// @Success 200 {object} models.QuizConfiguration
// @Failure 400 {object} ErrorResponse
// @Router /configurations/resolve [get]
func (h *ConfigurationHandler) ResolveConfiguration(c *gin.Context) {
	courseID := optionalQuery(c, "course_id")
	if courseID == nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid query",
			Details: "course_id is required",
			Code:    "BAD_REQUEST",
		})
		return
	}

	cfg, err := h.configurationService.Resolve(requestContext(c), *courseID, optionalQuery(c, "quiz_id"))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, cfg)
}

// CreateConfiguration creates a course default or quiz specific configuration
// @Summary Create configuration
// @Tags configurations
// @Accept json
// @Produce json
// @Param configuration body services.CreateConfigurationRequest true "Preset and overrides"
// @Success 201 {object} models.QuizConfiguration
// @Failure 409 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse
// @Router /configurations [post]
func (h *ConfigurationHandler) CreateConfiguration(c *gin.Context) {
	var req services.CreateConfigurationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondBadRequest(c, "Invalid request payload", err)
		return
	}

	h.LogRequest(c, "Creating configuration", "course_id", req.CourseID, "preset", req.Preset)

	cfg, err := h.configurationService.Create(requestContext(c), &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, cfg)
}

// UpdateConfiguration applies a partial update
// @Summary Update configuration
// @Tags configurations
// @Accept json
// @Produce json
// @Param id path string true "Configuration ID"
// @Param configuration body services.UpdateConfigurationRequest true "Overrides"
// @Success 200 {object} models.QuizConfiguration
// @Failure 404 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse
// @Router /configurations/{id} [put]
func (h *ConfigurationHandler) UpdateConfiguration(c *gin.Context) {
	id := ParseStringIDParam(c, "id")
	if id == "" {
		return
	}

	var req services.UpdateConfigurationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondBadRequest(c, "Invalid request payload", err)
		return
	}

	cfg, err := h.configurationService.Update(requestContext(c), id, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, cfg)
}

// ApplyPreset overwrites every rule with a named preset
// @Summary Apply preset
// @Tags configurations
// @Produce json
// @Param id path string true "Configuration ID"
// @Param preset path string true "Preset name"
// @Success 200 {object} models.QuizConfiguration
// @Failure 404 {object} ErrorResponse
// @Router /configurations/{id}/preset/{preset} [post]
func (h *ConfigurationHandler) ApplyPreset(c *gin.Context) {
	id := ParseStringIDParam(c, "id")
	if id == "" {
		return
	}
	preset := ParseStringIDParam(c, "preset")
	if preset == "" {
		return
	}

	h.LogRequest(c, "Applying preset", "configuration_id", id, "preset", preset)

	cfg, err := h.configurationService.ApplyPreset(requestContext(c), id, preset)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, cfg)
}

// DuplicateConfiguration copies a configuration to another course or quiz
// @Summary Duplicate configuration
// @Tags configurations
// @Accept json
// @Produce json
// @Param id path string true "Source configuration ID"
// @Param request body services.DuplicateConfigurationRequest true "Target"
// @Success 201 {object} models.QuizConfiguration
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /configurations/{id}/duplicate [post]
func (h *ConfigurationHandler) DuplicateConfiguration(c *gin.Context) {
	id := ParseStringIDParam(c, "id")
	if id == "" {
		return
	}

	var req services.DuplicateConfigurationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondBadRequest(c, "Invalid request payload", err)
		return
	}
	if errs := h.validator.Validate(&req); errs != nil {
		h.handleServiceError(c, errs)
		return
	}

	cfg, err := h.configurationService.Duplicate(requestContext(c), id, req.TargetCourseID, req.TargetQuizID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, cfg)
}

// ValidateConfiguration checks a candidate without storing it
// @Summary Validate configuration
// @Tags configurations
// @Accept json
// @Produce json
// @Param configuration body models.QuizConfiguration true "Candidate"
// @Success 200 {object} ValidateConfigurationResponse
// @Router /configurations/validate [post]
func (h *ConfigurationHandler) ValidateConfiguration(c *gin.Context) {
	var candidate models.QuizConfiguration
	if err := c.ShouldBindJSON(&candidate); err != nil {
		h.respondBadRequest(c, "Invalid request payload", err)
		return
	}

	errs := h.configurationService.Validate(&candidate)
	c.JSON(http.StatusOK, ValidateConfigurationResponse{
		Valid:  len(errs) == 0,
		Errors: errs,
	})
}

// ListPresets returns the preset catalog
// @Summary List presets
// @Tags configurations
// @Produce json
// @Success 200 {object} SuccessResponse{data=[]presets.Preset}
// @Router /configurations/presets [get]
func (h *ConfigurationHandler) ListPresets(c *gin.Context) {
	h.RespondWithSuccess(c, http.StatusOK, "Presets retrieved", h.configurationService.Presets())
}
