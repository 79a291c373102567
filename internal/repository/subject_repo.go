package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"curriculum-planner/internal/models"
)

// ErrUnknownField is returned by SaveField for columns outside the
// planner's allow-list.
var ErrUnknownField = errors.New("unknown subject field")

// saveFieldQueries is the allow-list of persisted planner fields. Column
// names never come from the caller. Each field carries the version of the
// last write so an older save can never replace a newer one.
var saveFieldQueries = map[string]string{
	models.FieldCalendarConfig: `UPDATE subjects SET calendar_config = $1, calendar_saved_at = $3, updated_at = NOW()
		WHERE id = $2 AND (calendar_saved_at IS NULL OR calendar_saved_at <= $3)`,
	models.FieldUnits: `UPDATE subjects SET units = $1, units_saved_at = $3, updated_at = NOW()
		WHERE id = $2 AND (units_saved_at IS NULL OR units_saved_at <= $3)`,
}

type SubjectRepo struct {
	pool *pgxpool.Pool
}

func NewSubjectRepo(pool *pgxpool.Pool) *SubjectRepo {
	return &SubjectRepo{pool: pool}
}

func (r *SubjectRepo) Create(ctx context.Context, s *models.Subject) error {
	s.ID = uuid.New()
	if len(s.CalendarConfig) == 0 {
		s.CalendarConfig = json.RawMessage("{}")
	}
	if len(s.Units) == 0 {
		s.Units = json.RawMessage("[]")
	}

	query := `INSERT INTO subjects (id, owner_id, code, name, calendar_config, units)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING created_at, updated_at`

	return r.pool.QueryRow(ctx, query,
		s.ID, s.OwnerID, s.Code, s.Name, []byte(s.CalendarConfig), []byte(s.Units),
	).Scan(&s.CreatedAt, &s.UpdatedAt)
}

// LoadSubject returns pgx.ErrNoRows when the subject does not exist.
func (r *SubjectRepo) LoadSubject(ctx context.Context, id uuid.UUID) (*models.Subject, error) {
	s := &models.Subject{}
	var calendar, units []byte
	query := `SELECT id, owner_id, code, name, calendar_config, units, created_at, updated_at
		FROM subjects WHERE id = $1`

	err := r.pool.QueryRow(ctx, query, id).Scan(
		&s.ID, &s.OwnerID, &s.Code, &s.Name, &calendar, &units, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	s.CalendarConfig = json.RawMessage(calendar)
	s.Units = json.RawMessage(units)
	return s, nil
}

// ListByUser returns subjects the user owns or has been given edit access to.
func (r *SubjectRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Subject, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT s.id, s.owner_id, s.code, s.name, s.calendar_config, s.units, s.created_at, s.updated_at
		FROM subjects s
		WHERE s.owner_id = $1
		   OR EXISTS (SELECT 1 FROM subject_editors e WHERE e.subject_id = s.id AND e.user_id = $1)
		ORDER BY s.updated_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	subjects := make([]models.Subject, 0)
	for rows.Next() {
		var s models.Subject
		var calendar, units []byte
		if err := rows.Scan(&s.ID, &s.OwnerID, &s.Code, &s.Name, &calendar, &units, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		s.CalendarConfig = json.RawMessage(calendar)
		s.Units = json.RawMessage(units)
		subjects = append(subjects, s)
	}
	return subjects, rows.Err()
}

// SaveField writes one JSON field of a subject as of version. It reports
// false without error when a newer version of the field is already stored.
func (r *SubjectRepo) SaveField(ctx context.Context, subjectID uuid.UUID, field string, value json.RawMessage, version time.Time) (bool, error) {
	query, ok := saveFieldQueries[field]
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
	if !json.Valid(value) {
		return false, fmt.Errorf("invalid JSON for field %q", field)
	}

	tag, err := r.pool.Exec(ctx, query, []byte(value), subjectID, version)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM subjects WHERE id = $1)", subjectID).Scan(&exists); err != nil {
		return false, err
	}
	if !exists {
		return false, fmt.Errorf("subject %s: %w", subjectID, pgx.ErrNoRows)
	}
	return false, nil
}

func (r *SubjectRepo) CanEdit(ctx context.Context, subjectID, userID uuid.UUID) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM subjects WHERE id = $1 AND owner_id = $2)
		    OR EXISTS(SELECT 1 FROM subject_editors WHERE subject_id = $1 AND user_id = $2)
	`, subjectID, userID).Scan(&ok)
	return ok, err
}

func (r *SubjectRepo) AddEditor(ctx context.Context, subjectID, userID uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		"INSERT INTO subject_editors (subject_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING",
		subjectID, userID,
	)
	return err
}
