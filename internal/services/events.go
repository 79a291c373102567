package services

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"curriculum-planner/internal/models"
)

type EventPublisher interface {
	Publish(ctx context.Context, subjectID uuid.UUID, msg models.WSMessage) error
}

// SubjectChannel is the pub/sub channel carrying live updates for one subject.
func SubjectChannel(subjectID uuid.UUID) string {
	return "subject_updates:" + subjectID.String()
}

type RedisPublisher struct {
	redis *redis.Client
}

func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{redis: client}
}

// Publish sends a WebSocket update via Redis pub/sub
func (p *RedisPublisher) Publish(ctx context.Context, subjectID uuid.UUID, msg models.WSMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return p.redis.Publish(ctx, SubjectChannel(subjectID), data).Err()
}
