package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"curriculum-planner/internal/models"
)

type JobRepo struct {
	pool *pgxpool.Pool
}

func NewJobRepo(pool *pgxpool.Pool) *JobRepo {
	return &JobRepo{pool: pool}
}

func (r *JobRepo) Create(ctx context.Context, j *models.Job) error {
	j.ID = uuid.New()
	j.Status = "pending"
	j.RetryCount = 0
	j.MaxRetries = 3

	value := []byte(j.Value)
	if !json.Valid(value) {
		value = []byte("null")
	}

	query := `INSERT INTO jobs (id, user_id, subject_id, type, field, value, status, retry_count, max_retries)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING created_at`

	return r.pool.QueryRow(ctx, query,
		j.ID, j.UserID, j.SubjectID, j.Type, j.Field, value, j.Status, j.RetryCount, j.MaxRetries,
	).Scan(&j.CreatedAt)
}

func (r *JobRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	j := &models.Job{}
	var value []byte
	query := `SELECT id, user_id, subject_id, type, field, value, status, retry_count, max_retries, error_message, created_at, completed_at
		FROM jobs WHERE id = $1`

	err := r.pool.QueryRow(ctx, query, id).Scan(
		&j.ID, &j.UserID, &j.SubjectID, &j.Type, &j.Field, &value, &j.Status,
		&j.RetryCount, &j.MaxRetries, &j.ErrorMessage, &j.CreatedAt, &j.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	j.Value = json.RawMessage(value)
	return j, nil
}

func (r *JobRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	if status == "completed" || status == "failed" || status == "superseded" {
		_, err := r.pool.Exec(ctx,
			"UPDATE jobs SET status = $1, completed_at = $2 WHERE id = $3",
			status, time.Now(), id,
		)
		return err
	}
	_, err := r.pool.Exec(ctx, "UPDATE jobs SET status = $1, last_attempt_at = NOW() WHERE id = $2", status, id)
	return err
}

// MarkRequeued records that the job was pushed back on the queue, which
// keeps it out of ListStale until the cutoff passes again.
func (r *JobRepo) MarkRequeued(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.pool.Exec(ctx, "UPDATE jobs SET last_attempt_at = $1 WHERE id = $2", at, id)
	return err
}

func (r *JobRepo) UpdateError(ctx context.Context, id uuid.UUID, errMsg string, retryCount int) error {
	_, err := r.pool.Exec(ctx,
		"UPDATE jobs SET error_message = $1, retry_count = $2 WHERE id = $3",
		errMsg, retryCount, id,
	)
	return err
}

// ListStale returns unfinished jobs not touched since the cutoff, oldest
// first. Creating, claiming, retrying and requeueing a job all count as
// touching it.
func (r *JobRepo) ListStale(ctx context.Context, before time.Time, limit int) ([]models.Job, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, subject_id, type, field, value, status, retry_count, max_retries, error_message, created_at, completed_at
		FROM jobs
		WHERE status IN ('pending', 'processing') AND COALESCE(last_attempt_at, created_at) < $1
		ORDER BY COALESCE(last_attempt_at, created_at)
		LIMIT $2
	`, before, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobs := make([]models.Job, 0)
	for rows.Next() {
		var j models.Job
		var value []byte
		if err := rows.Scan(
			&j.ID, &j.UserID, &j.SubjectID, &j.Type, &j.Field, &value, &j.Status,
			&j.RetryCount, &j.MaxRetries, &j.ErrorMessage, &j.CreatedAt, &j.CompletedAt,
		); err != nil {
			return nil, err
		}
		j.Value = json.RawMessage(value)
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// FailAbandoned marks unfinished jobs created before the cutoff as failed.
func (r *JobRepo) FailAbandoned(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE jobs SET status = 'failed', completed_at = NOW(),
			error_message = COALESCE(error_message, 'abandoned')
		WHERE status IN ('pending', 'processing') AND created_at < $1
	`, before)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
