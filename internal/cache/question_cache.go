package cache

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/SAP-F-2025/quiz-service/internal/models"
	"github.com/SAP-F-2025/quiz-service/internal/repositories"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
)

// QuestionCache is a read-through cache in front of the question store.
// Concurrent misses for the same quiz share one load.
type QuestionCache struct {
	next   repositories.QuestionRepository
	cache  CacheService
	ttl    time.Duration
	logger *slog.Logger
	sf     singleflight.Group

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewQuestionCache(next repositories.QuestionRepository, cache CacheService, ttl time.Duration, logger *slog.Logger) *QuestionCache {
	return &QuestionCache{
		next:   next,
		cache:  cache,
		ttl:    ttl,
		logger: logger,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *QuestionCache) ListByQuiz(ctx context.Context, tx *gorm.DB, quizID string) ([]*models.Question, error) {
	// Reads inside a transaction go straight to the database.
	if tx != nil {
		return c.next.ListByQuiz(ctx, tx, quizID)
	}

	key := questionsKey(quizID)
	if questions, ok := c.lookup(ctx, key); ok {
		return questions, nil
	}

	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		if questions, ok := c.lookup(ctx, key); ok {
			return questions, nil
		}

		questions, err := c.next.ListByQuiz(ctx, nil, quizID)
		if err != nil {
			return nil, err
		}
		// Empty quizzes are not cached; authoring may add questions later.
		if len(questions) > 0 {
			if err := c.cache.Set(ctx, key, questions, c.ttlWithJitter()); err != nil {
				c.logger.Warn("Failed to cache questions", "quiz_id", quizID, "error", err)
			}
		}
		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]*models.Question), nil
}

// Invalidate drops the cached question set of a quiz.
func (c *QuestionCache) Invalidate(ctx context.Context, quizID string) error {
	return c.cache.Delete(ctx, questionsKey(quizID))
}

func (c *QuestionCache) lookup(ctx context.Context, key string) ([]*models.Question, bool) {
	var questions []*models.Question
	err := c.cache.Get(ctx, key, &questions)
	if err == nil && len(questions) > 0 {
		return questions, true
	}
	if err != nil && !errors.Is(err, ErrCacheMiss) {
		c.logger.Warn("Question cache unavailable, reading from database", "key", key, "error", err)
	}
	return nil, false
}

func (c *QuestionCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}

func questionsKey(quizID string) string {
	return "quiz:" + quizID + ":questions"
}
