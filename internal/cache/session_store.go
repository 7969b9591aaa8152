package cache

import (
	"context"
	"time"

	"github.com/SAP-F-2025/quiz-service/internal/models"
)

// RedisSessionStore persists in-progress session snapshots so a session
// survives a process restart or a request landing on another instance.
type RedisSessionStore struct {
	cache CacheService
	ttl   time.Duration
}

func NewRedisSessionStore(cache CacheService, ttl time.Duration) *RedisSessionStore {
	return &RedisSessionStore{cache: cache, ttl: ttl}
}

func (s *RedisSessionStore) Save(ctx context.Context, snapshot *models.SessionSnapshot) error {
	return s.cache.Set(ctx, sessionKey(snapshot.ID), snapshot, s.ttl)
}

// Load returns ErrCacheMiss when no snapshot exists.
func (s *RedisSessionStore) Load(ctx context.Context, sessionID string) (*models.SessionSnapshot, error) {
	var snapshot models.SessionSnapshot
	if err := s.cache.Get(ctx, sessionKey(sessionID), &snapshot); err != nil {
		return nil, err
	}
	return &snapshot, nil
}

func (s *RedisSessionStore) Delete(ctx context.Context, sessionID string) error {
	return s.cache.Delete(ctx, sessionKey(sessionID))
}

func sessionKey(sessionID string) string {
	return "quiz:session:" + sessionID
}
