package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"curriculum-planner/internal/models"
)

const SaveQueueName = "queue:subject-save"

type SaveQueue interface {
	Enqueue(ctx context.Context, job *models.Job) error
}

type jobCreator interface {
	Create(ctx context.Context, j *models.Job) error
}

// RedisSaveQueue records each job in Postgres before pushing it, so a
// job that never reaches a worker can still be found and retried.
type RedisSaveQueue struct {
	redis *redis.Client
	jobs  jobCreator
}

func NewRedisSaveQueue(client *redis.Client, jobs jobCreator) *RedisSaveQueue {
	return &RedisSaveQueue{redis: client, jobs: jobs}
}

func (q *RedisSaveQueue) Enqueue(ctx context.Context, job *models.Job) error {
	job.Type = models.JobTypeSubjectSave
	if err := q.jobs.Create(ctx, job); err != nil {
		return fmt.Errorf("failed to record save job: %w", err)
	}

	jobBytes, err := json.Marshal(job)
	if err != nil {
		return err
	}
	// RPUSH with the workers' BLPOP keeps saves first in, first out.
	if err := q.redis.RPush(ctx, SaveQueueName, jobBytes).Err(); err != nil {
		return fmt.Errorf("failed to enqueue save job: %w", err)
	}
	return nil
}
