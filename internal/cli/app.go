package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/SAP-F-2025/quiz-service/internal/cache"
	"github.com/SAP-F-2025/quiz-service/internal/config"
	"github.com/SAP-F-2025/quiz-service/internal/events"
	"github.com/SAP-F-2025/quiz-service/internal/repositories"
	"github.com/SAP-F-2025/quiz-service/internal/repositories/postgres"
	"github.com/SAP-F-2025/quiz-service/internal/services"
	"github.com/SAP-F-2025/quiz-service/internal/utils"
	"github.com/SAP-F-2025/quiz-service/internal/validator"
	"github.com/SAP-F-2025/quiz-service/pkg"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const shutdownTimeout = 10 * time.Second

// app holds everything a command needs to run the engine.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	db        *gorm.DB
	redis     *redis.Client
	repo      repositories.Repository
	publisher events.EventPublisher
	validator *validator.Validator
	services  services.ServiceManager
}

func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, utils.NewLogger(cfg.IsProduction()), nil
}

// openDatabase connects and brings the schema up to date.
func openDatabase(ctx context.Context, cfg *config.Config) (*gorm.DB, error) {
	db, err := pkg.InitDatabase(cfg)
	if err != nil {
		return nil, err
	}
	if err := postgres.Migrate(ctx, db); err != nil {
		closeDatabase(db)
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

func closeDatabase(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}

	redisClient, err := pkg.NewRedisClient(ctx, cfg)
	if err != nil {
		closeDatabase(db)
		return nil, err
	}

	var (
		repoOpts     []postgres.Option
		sessionStore services.SessionStore
	)
	if redisClient != nil {
		redisCache := cache.NewRedisCache(redisClient, logger)
		questions := cache.NewQuestionCache(postgres.NewQuestionPostgreSQL(db), redisCache, cfg.QuestionCacheTTL, logger)
		repoOpts = append(repoOpts, postgres.WithQuestionRepository(questions))
		sessionStore = cache.NewRedisSessionStore(redisCache, cfg.SessionSnapshotTTL)
		logger.Info("Redis enabled for question cache and session snapshots")
	} else {
		logger.Warn("REDIS_URL not set, sessions live in process memory only")
	}

	publisher, err := cfg.Events.CreateEventPublisher(logger)
	if err != nil {
		if redisClient != nil {
			redisClient.Close()
		}
		closeDatabase(db)
		return nil, fmt.Errorf("create event publisher: %w", err)
	}

	repo := postgres.NewRepository(db, repoOpts...)
	v := validator.New()
	manager := services.NewServiceManager(repo, publisher, logger, v, services.ManagerConfig{
		SessionStore: sessionStore,
		Emitter:      services.EmitterConfig{BufferSize: cfg.AnalyticsBuffer},
	})

	return &app{
		cfg:       cfg,
		logger:    logger,
		db:        db,
		redis:     redisClient,
		repo:      repo,
		publisher: publisher,
		validator: v,
		services:  manager,
	}, nil
}

// Close drains the engine and releases every connection.
func (a *app) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if err := services.Shutdown(ctx, a.services); err != nil {
		errs = append(errs, fmt.Errorf("drain analytics: %w", err))
	}
	if err := a.publisher.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close publisher: %w", err))
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	closeDatabase(a.db)
	return errors.Join(errs...)
}
