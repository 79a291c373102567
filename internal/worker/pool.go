package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"curriculum-planner/internal/models"
	"curriculum-planner/internal/repository"
	"curriculum-planner/internal/services"
)

// Retries after the first attempt, spaced 1s, 2s and 4s apart.
const maxRetries = 3

type fieldSaver interface {
	SaveField(ctx context.Context, subjectID uuid.UUID, field string, value json.RawMessage, version time.Time) (bool, error)
}

type jobTracker interface {
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
	UpdateError(ctx context.Context, id uuid.UUID, errMsg string, retryCount int) error
}

// Pool drains the subject save queue. Each job writes one field of one
// subject; failures are retried with exponential backoff and the outcome
// is announced on the subject's update channel.
type Pool struct {
	redis       *redis.Client
	subjects    fieldSaver
	jobs        jobTracker
	events      services.EventPublisher
	workerCount int
	stopChan    chan struct{}

	requeue func(payload []byte, after time.Duration)
}

func NewPool(
	redisClient *redis.Client,
	subjects fieldSaver,
	jobs jobTracker,
	events services.EventPublisher,
	workerCount int,
) *Pool {
	p := &Pool{
		redis:       redisClient,
		subjects:    subjects,
		jobs:        jobs,
		events:      events,
		workerCount: workerCount,
		stopChan:    make(chan struct{}),
	}
	// Retries go to the head of the queue.
	p.requeue = func(payload []byte, after time.Duration) {
		time.AfterFunc(after, func() {
			if err := p.redis.LPush(context.Background(), services.SaveQueueName, payload).Err(); err != nil {
				log.Error().Err(err).Msg("failed to requeue save job")
			}
		})
	}
	return p
}

func (p *Pool) Start() {
	for i := 0; i < p.workerCount; i++ {
		go p.worker(i)
	}

	log.Info().Int("workers", p.workerCount).Str("queue", services.SaveQueueName).Msg("worker pool started")
}

func (p *Pool) Stop() {
	close(p.stopChan)
}

func (p *Pool) worker(id int) {
	for {
		select {
		case <-p.stopChan:
			log.Debug().Int("worker", id).Msg("worker shutting down")
			return
		default:
		}

		ctx := context.Background()

		// BLPOP with 5s timeout so Stop is noticed promptly
		result, err := p.redis.BLPop(ctx, 5*time.Second, services.SaveQueueName).Result()
		if err != nil {
			if !errors.Is(err, redis.Nil) {
				log.Warn().Err(err).Int("worker", id).Msg("queue read failed")
				time.Sleep(time.Second)
			}
			continue
		}

		if len(result) < 2 {
			continue
		}

		var job models.Job
		if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
			log.Error().Err(err).Int("worker", id).Msg("failed to parse job")
			continue
		}

		lockKey := fmt.Sprintf("job_lock:%s", job.ID.String())
		locked, err := p.redis.SetNX(ctx, lockKey, "1", 10*time.Minute).Result()
		if err != nil || !locked {
			continue // Another worker has this job
		}

		p.Process(ctx, &job)

		p.redis.Del(ctx, lockKey)
	}
}

// Process runs one save job to completion, scheduling a retry on failure.
func (p *Pool) Process(ctx context.Context, job *models.Job) {
	logger := log.With().
		Str("job_id", job.ID.String()).
		Str("subject_id", job.SubjectID.String()).
		Str("field", job.Field).
		Int("attempt", job.RetryCount+1).
		Logger()

	logger.Debug().Msg("processing save job")
	p.jobs.UpdateStatus(ctx, job.ID, "processing")

	applied, err := p.subjects.SaveField(ctx, job.SubjectID, job.Field, job.Value, job.CreatedAt)
	if err != nil {
		p.handleFailure(ctx, job, err)
		return
	}
	if !applied {
		logger.Debug().Msg("newer save already stored, skipping")
		p.jobs.UpdateStatus(ctx, job.ID, "superseded")
		return
	}
	p.handleSuccess(ctx, job)
}

func (p *Pool) handleSuccess(ctx context.Context, job *models.Job) {
	p.jobs.UpdateStatus(ctx, job.ID, "completed")

	p.publish(ctx, job.SubjectID, models.WSMessage{
		Type: models.EventSaved,
		Payload: models.SavedEvent{
			JobID:     job.ID,
			SubjectID: job.SubjectID,
			Field:     job.Field,
		},
	})

	log.Info().Str("job_id", job.ID.String()).Str("field", job.Field).Msg("subject field saved")
}

func (p *Pool) handleFailure(ctx context.Context, job *models.Job, err error) {
	job.RetryCount++
	errMsg := err.Error()

	// A field outside the allow-list will never succeed.
	retryable := !errors.Is(err, repository.ErrUnknownField)

	limit := job.MaxRetries
	if limit <= 0 {
		limit = maxRetries
	}

	if retryable && job.RetryCount <= limit {
		backoff := time.Duration(1<<uint(job.RetryCount-1)) * time.Second
		log.Warn().Err(err).
			Str("job_id", job.ID.String()).
			Int("attempt", job.RetryCount).
			Dur("backoff", backoff).
			Msg("save job failed, retrying")

		p.jobs.UpdateStatus(ctx, job.ID, "pending")
		p.jobs.UpdateError(ctx, job.ID, errMsg, job.RetryCount)

		jobBytes, _ := json.Marshal(job)
		p.requeue(jobBytes, backoff)
		return
	}

	log.Error().Err(err).Str("job_id", job.ID.String()).Str("subject_id", job.SubjectID.String()).Msg("save job failed permanently")
	p.jobs.UpdateStatus(ctx, job.ID, "failed")
	p.jobs.UpdateError(ctx, job.ID, errMsg, job.RetryCount)

	code := "SAVE_FAILED"
	if !retryable {
		code = "UNKNOWN_FIELD"
	}
	p.publish(ctx, job.SubjectID, models.WSMessage{
		Type: models.EventSaveFailed,
		Payload: models.SaveFailedEvent{
			JobID:        job.ID,
			SubjectID:    job.SubjectID,
			Field:        job.Field,
			ErrorCode:    code,
			ErrorMessage: errMsg,
		},
	})
}

func (p *Pool) publish(ctx context.Context, subjectID uuid.UUID, msg models.WSMessage) {
	if err := p.events.Publish(ctx, subjectID, msg); err != nil {
		log.Warn().Err(err).Str("subject_id", subjectID.String()).Str("type", msg.Type).Msg("failed to publish event")
	}
}
