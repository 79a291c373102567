package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"curriculum-planner/internal/timeline"
)

// SessionStore keeps the latest edited plan of each subject and the last
// timeline computed from it. Both loaders return nil, nil on a miss.
type SessionStore interface {
	LoadPlan(ctx context.Context, subjectID uuid.UUID) (*timeline.Plan, error)
	SavePlan(ctx context.Context, subjectID uuid.UUID, plan timeline.Plan) error
	LoadTimeline(ctx context.Context, subjectID uuid.UUID) (*timeline.Timeline, error)
	SaveTimeline(ctx context.Context, subjectID uuid.UUID, tl timeline.Timeline) error
	DeleteTimeline(ctx context.Context, subjectID uuid.UUID) error
}

type RedisSessionStore struct {
	redis       *redis.Client
	sessionTTL  time.Duration
	timelineTTL time.Duration
}

func NewRedisSessionStore(client *redis.Client, sessionTTL, timelineTTL time.Duration) *RedisSessionStore {
	return &RedisSessionStore{redis: client, sessionTTL: sessionTTL, timelineTTL: timelineTTL}
}

func sessionKey(subjectID uuid.UUID) string  { return "planner_session:" + subjectID.String() }
func timelineKey(subjectID uuid.UUID) string { return "timeline:" + subjectID.String() }

func (s *RedisSessionStore) LoadPlan(ctx context.Context, subjectID uuid.UUID) (*timeline.Plan, error) {
	var plan timeline.Plan
	found, err := s.get(ctx, sessionKey(subjectID), &plan)
	if err != nil || !found {
		return nil, err
	}
	return &plan, nil
}

func (s *RedisSessionStore) SavePlan(ctx context.Context, subjectID uuid.UUID, plan timeline.Plan) error {
	return s.set(ctx, sessionKey(subjectID), plan, s.sessionTTL)
}

func (s *RedisSessionStore) LoadTimeline(ctx context.Context, subjectID uuid.UUID) (*timeline.Timeline, error) {
	var tl timeline.Timeline
	found, err := s.get(ctx, timelineKey(subjectID), &tl)
	if err != nil || !found {
		return nil, err
	}
	return &tl, nil
}

func (s *RedisSessionStore) SaveTimeline(ctx context.Context, subjectID uuid.UUID, tl timeline.Timeline) error {
	return s.set(ctx, timelineKey(subjectID), tl, s.timelineTTL)
}

// DeleteTimeline drops the cached timeline so the next read recomputes it.
func (s *RedisSessionStore) DeleteTimeline(ctx context.Context, subjectID uuid.UUID) error {
	return s.redis.Del(ctx, timelineKey(subjectID)).Err()
}

func (s *RedisSessionStore) get(ctx context.Context, key string, dst interface{}) (bool, error) {
	data, err := s.redis.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		// A stale or corrupt entry is treated as a miss and dropped.
		s.redis.Del(ctx, key)
		return false, nil
	}
	return true, nil
}

func (s *RedisSessionStore) set(ctx context.Context, key string, v interface{}, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	return s.redis.Set(ctx, key, data, ttl).Err()
}
