package services

import (
	"context"
	"log/slog"

	"github.com/SAP-F-2025/quiz-service/internal/models"
	"github.com/SAP-F-2025/quiz-service/internal/presets"
	"github.com/SAP-F-2025/quiz-service/internal/repositories"
	"github.com/SAP-F-2025/quiz-service/internal/validator"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
)

type configurationService struct {
	repo      repositories.Repository
	logger    *slog.Logger
	opLog     *ServiceLogger
	validator *validator.Validator
	// defaults collapses concurrent first resolves of one course.
	defaults singleflight.Group
}

func NewConfigurationService(repo repositories.Repository, logger *slog.Logger, validator *validator.Validator) ConfigurationService {
	return &configurationService{
		repo:      repo,
		logger:    logger,
		opLog:     NewServiceLogger(logger, LogConfig{Service: "quiz-service", Component: "configuration"}),
		validator: validator,
	}
}

func (s *configurationService) Resolve(ctx context.Context, courseID string, quizID *string) (cfg *models.QuizConfiguration, err error) {
	defer func() {
		if err == nil {
			s.logger.Debug("Resolved quiz configuration",
				"configuration_id", cfg.ID,
				"course_id", courseID,
				"course_default", cfg.IsCourseDefault())
		}
	}()

	configs := s.repo.Configuration()

	if quizID != nil && *quizID != "" {
		quizCfg, getErr := configs.GetByQuiz(ctx, nil, *quizID)
		if getErr == nil {
			return quizCfg, nil
		}
		if !repositories.IsNotFoundError(getErr) {
			return nil, storeError("get quiz configuration", getErr)
		}
	}

	cfg, err = configs.GetLatestCourseDefault(ctx, nil, courseID)
	if err == nil {
		return cfg, nil
	}
	if !repositories.IsNotFoundError(err) {
		return nil, storeError("get course configuration", err)
	}

	shared, err, _ := s.defaults.Do(courseID, func() (interface{}, error) {
		return s.ensureCourseDefault(ctx, courseID)
	})
	if err != nil {
		return nil, err
	}
	out := *shared.(*models.QuizConfiguration)
	return &out, nil
}

// ensureCourseDefault persists the default preset for a course that has no
// configuration yet. The lookup and insert share one locked transaction so
// concurrent first resolves store a single row.
func (s *configurationService) ensureCourseDefault(ctx context.Context, courseID string) (*models.QuizConfiguration, error) {
	preset, _ := presets.Get(presets.Default)
	name := preset.Name
	candidate := &models.QuizConfiguration{
		CourseID:  courseID,
		QuizRules: preset.Rules,
		Preset:    &name,
	}
	if errs := s.Validate(candidate); errs != nil {
		return nil, errs
	}

	var (
		cfg     *models.QuizConfiguration
		created bool
	)
	err := s.repo.WithTransaction(ctx, func(tx *gorm.DB) error {
		configs := s.repo.Configuration()
		if err := configs.LockCourseDefaults(ctx, tx, courseID); err != nil {
			return err
		}

		existing, err := configs.GetLatestCourseDefault(ctx, tx, courseID)
		if err == nil {
			cfg = existing
			return nil
		}
		if !repositories.IsNotFoundError(err) {
			return err
		}

		if err := configs.Create(ctx, tx, candidate); err != nil {
			return err
		}
		cfg, created = candidate, true
		return nil
	})
	if err != nil {
		return nil, storeError("create default configuration", err)
	}

	if created {
		s.logger.Info("Synthesized default quiz configuration",
			"configuration_id", cfg.ID,
			"course_id", courseID)
	}
	return cfg, nil
}

func (s *configurationService) Create(ctx context.Context, req *CreateConfigurationRequest) (cfg *models.QuizConfiguration, err error) {
	ol := s.opLog.WithOperation(ctx, "create_configuration", "")
	defer func() { ol.LogResult(configID(cfg), "quiz_configuration", err) }()

	if errs := s.validator.Validate(req); errs != nil {
		return nil, errs
	}

	presetName := req.Preset
	if presetName == "" {
		presetName = presets.Default
	}
	preset, ok := presets.Get(presetName)
	if !ok {
		return nil, ErrUnknownPreset
	}

	cfg = &models.QuizConfiguration{
		CourseID:       req.CourseID,
		QuizID:         emptyToNil(req.QuizID),
		QuizRules:      preset.Rules,
		CustomFeedback: req.CustomFeedback,
		Preset:         &presetName,
	}
	req.RulesPatch.Apply(&cfg.QuizRules)

	if errs := s.Validate(cfg); errs != nil {
		return nil, errs
	}

	if err := s.repo.Configuration().Create(ctx, nil, cfg); err != nil {
		if repositories.IsDuplicateError(err) {
			return nil, ErrConfigurationExists
		}
		return nil, storeError("create configuration", err)
	}
	return cfg, nil
}

func (s *configurationService) Update(ctx context.Context, id string, req *UpdateConfigurationRequest) (cfg *models.QuizConfiguration, err error) {
	ol := s.opLog.WithOperation(ctx, "update_configuration", "")
	defer func() { ol.LogResult(id, "quiz_configuration", err) }()

	cfg, err = s.get(ctx, id)
	if err != nil {
		return nil, err
	}

	req.RulesPatch.Apply(&cfg.QuizRules)
	switch {
	case req.ClearCustomFeedback:
		cfg.CustomFeedback = nil
	case req.CustomFeedback != nil:
		cfg.CustomFeedback = req.CustomFeedback
	}

	if errs := s.Validate(cfg); errs != nil {
		return nil, errs
	}
	if err := s.repo.Configuration().Update(ctx, nil, cfg); err != nil {
		return nil, storeError("update configuration", err)
	}
	return cfg, nil
}

// Duplicate copies the rules and feedback of source onto a new
// configuration; identity and timestamps are never copied.
func (s *configurationService) Duplicate(ctx context.Context, sourceID, targetCourseID string, targetQuizID *string) (cfg *models.QuizConfiguration, err error) {
	ol := s.opLog.WithOperation(ctx, "duplicate_configuration", "")
	defer func() { ol.LogResult(sourceID, "quiz_configuration", err) }()

	source, err := s.get(ctx, sourceID)
	if err != nil {
		return nil, err
	}

	cfg = &models.QuizConfiguration{
		CourseID:       targetCourseID,
		QuizID:         emptyToNil(targetQuizID),
		QuizRules:      source.QuizRules,
		CustomFeedback: cloneString(source.CustomFeedback),
		Preset:         cloneString(source.Preset),
	}
	cfg.TimeLimit = cloneInt(source.TimeLimit)

	if errs := s.Validate(cfg); errs != nil {
		return nil, errs
	}
	if err := s.repo.Configuration().Create(ctx, nil, cfg); err != nil {
		if repositories.IsDuplicateError(err) {
			return nil, ErrConfigurationExists
		}
		return nil, storeError("duplicate configuration", err)
	}
	return cfg, nil
}

// ApplyPreset replaces every rule field. Identity, linkage and custom
// feedback are kept.
func (s *configurationService) ApplyPreset(ctx context.Context, configID, presetName string) (cfg *models.QuizConfiguration, err error) {
	ol := s.opLog.WithOperation(ctx, "apply_preset", "")
	defer func() { ol.LogResult(configID, "quiz_configuration", err) }()

	preset, ok := presets.Get(presetName)
	if !ok {
		return nil, ErrUnknownPreset
	}

	cfg, err = s.get(ctx, configID)
	if err != nil {
		return nil, err
	}

	cfg.QuizRules = preset.Rules
	cfg.Preset = &preset.Name
	if err := s.repo.Configuration().Update(ctx, nil, cfg); err != nil {
		return nil, storeError("apply preset", err)
	}
	return cfg, nil
}

func (s *configurationService) Presets() []presets.Preset {
	return presets.All()
}

func (s *configurationService) Validate(candidate *models.QuizConfiguration) ValidationErrors {
	return s.validator.Validate(candidate)
}

func (s *configurationService) get(ctx context.Context, id string) (*models.QuizConfiguration, error) {
	cfg, err := s.repo.Configuration().GetByID(ctx, nil, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrConfigurationNotFound
		}
		return nil, storeError("get configuration", err)
	}
	return cfg, nil
}

// Apply writes the non-nil fields of p onto rules.
func (p *RulesPatch) Apply(rules *models.QuizRules) {
	setBool(&rules.AllowRetake, p.AllowRetake)
	setInt(&rules.MaxAttempts, p.MaxAttempts)
	setBool(&rules.ShowCorrectAnswers, p.ShowCorrectAnswers)
	setBool(&rules.ShowExplanations, p.ShowExplanations)
	setBool(&rules.ShowScoreBreakdown, p.ShowScoreBreakdown)
	setBool(&rules.ImmediateFeedback, p.ImmediateFeedback)
	setBool(&rules.RandomizeQuestions, p.RandomizeQuestions)
	setBool(&rules.RandomizeAnswers, p.RandomizeAnswers)
	setBool(&rules.RequireAllQuestions, p.RequireAllQuestions)
	setBool(&rules.AllowSkipQuestions, p.AllowSkipQuestions)
	setBool(&rules.ShowProgress, p.ShowProgress)
	setBool(&rules.ShowTimer, p.ShowTimer)
	setBool(&rules.AutoSubmit, p.AutoSubmit)
	setInt(&rules.PassThreshold, p.PassThreshold)

	switch {
	case p.ClearTimeLimit:
		rules.TimeLimit = nil
	case p.TimeLimit != nil:
		rules.TimeLimit = cloneInt(p.TimeLimit)
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func cloneInt(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneString(v *string) *string {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func emptyToNil(v *string) *string {
	if v == nil || *v == "" {
		return nil
	}
	return cloneString(v)
}

func configID(cfg *models.QuizConfiguration) string {
	if cfg == nil {
		return ""
	}
	return cfg.ID
}
