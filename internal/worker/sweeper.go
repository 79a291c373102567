package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"curriculum-planner/internal/models"
	"curriculum-planner/internal/services"
)

const (
	sweepInterval   = 1 * time.Minute
	staleAfter      = 2 * time.Minute
	abandonAfter    = 24 * time.Hour
	sweepBatchLimit = 100
)

type staleJobStore interface {
	ListStale(ctx context.Context, before time.Time, limit int) ([]models.Job, error)
	FailAbandoned(ctx context.Context, before time.Time) (int64, error)
	MarkRequeued(ctx context.Context, id uuid.UUID, at time.Time) error
}

// Sweeper puts save jobs back on the queue when they were recorded but
// never finished, e.g. after a restart dropped a pending retry. Versioned
// saves make a duplicate delivery harmless.
type Sweeper struct {
	jobs     staleJobStore
	push     func(ctx context.Context, payload []byte) error
	stopChan chan struct{}
}

func NewSweeper(jobs staleJobStore, redisClient *redis.Client) *Sweeper {
	return &Sweeper{
		jobs: jobs,
		push: func(ctx context.Context, payload []byte) error {
			return redisClient.RPush(ctx, services.SaveQueueName, payload).Err()
		},
		stopChan: make(chan struct{}),
	}
}

func (s *Sweeper) Start() {
	go s.loop()
	log.Info().Dur("interval", sweepInterval).Msg("save job sweeper started")
}

func (s *Sweeper) Stop() {
	select {
	case <-s.stopChan:
		return
	default:
		close(s.stopChan)
	}
}

func (s *Sweeper) loop() {
	// Run on startup as well as by interval.
	s.Sweep(context.Background(), time.Now().UTC())

	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.Sweep(context.Background(), time.Now().UTC())
		}
	}
}

// Sweep fails jobs too old to matter and requeues the rest of the stale ones.
// It returns how many jobs were requeued.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time) int {
	if n, err := s.jobs.FailAbandoned(ctx, now.Add(-abandonAfter)); err != nil {
		log.Error().Err(err).Msg("sweeper: failed to mark abandoned jobs")
	} else if n > 0 {
		log.Warn().Int64("jobs", n).Msg("sweeper: marked abandoned save jobs as failed")
	}

	stale, err := s.jobs.ListStale(ctx, now.Add(-staleAfter), sweepBatchLimit)
	if err != nil {
		log.Error().Err(err).Msg("sweeper: failed to list stale jobs")
		return 0
	}

	requeued := 0
	for i := range stale {
		payload, err := json.Marshal(&stale[i])
		if err != nil {
			continue
		}
		if err := s.push(ctx, payload); err != nil {
			log.Error().Err(err).Str("job_id", stale[i].ID.String()).Msg("sweeper: failed to requeue job")
			continue
		}
		if err := s.jobs.MarkRequeued(ctx, stale[i].ID, now); err != nil {
			log.Warn().Err(err).Str("job_id", stale[i].ID.String()).Msg("sweeper: failed to record requeue")
		}
		requeued++
	}

	if requeued > 0 {
		log.Info().Int("jobs", requeued).Msg("sweeper: requeued stale save jobs")
	}
	return requeued
}
