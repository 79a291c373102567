package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"

	"curriculum-planner/internal/models"
	"curriculum-planner/internal/timeline"
)

type subjectStore interface {
	Create(ctx context.Context, s *models.Subject) error
	LoadSubject(ctx context.Context, id uuid.UUID) (*models.Subject, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Subject, error)
	CanEdit(ctx context.Context, subjectID, userID uuid.UUID) (bool, error)
	AddEditor(ctx context.Context, subjectID, userID uuid.UUID) error
}

type userLookup interface {
	GetByEmail(ctx context.Context, email string) (*models.User, error)
}

type SubjectService struct {
	subjects subjectStore
	users    userLookup
	sessions SessionStore
	now      func() time.Time
}

func NewSubjectService(subjects subjectStore, users userLookup, sessions SessionStore) *SubjectService {
	return &SubjectService{subjects: subjects, users: users, sessions: sessions, now: time.Now}
}

func (s *SubjectService) Create(ctx context.Context, ownerID uuid.UUID, req models.CreateSubjectRequest) (*models.Subject, error) {
	cal, err := timeline.DecodeCalendar(req.Calendar, s.now())
	if err != nil {
		return nil, planInputError("calendar", err)
	}
	calJSON, err := timeline.EncodeCalendar(cal)
	if err != nil {
		return nil, err
	}

	subj := &models.Subject{
		OwnerID:        ownerID,
		Code:           strings.TrimSpace(req.Code),
		Name:           strings.TrimSpace(req.Name),
		CalendarConfig: calJSON,
		Units:          []byte("[]"),
	}
	if err := s.subjects.Create(ctx, subj); err != nil {
		return nil, err
	}

	log.Info().Str("subject_id", subj.ID.String()).Str("owner_id", ownerID.String()).Msg("subject created")
	return subj, nil
}

func (s *SubjectService) List(ctx context.Context, userID uuid.UUID) ([]models.Subject, error) {
	return s.subjects.ListByUser(ctx, userID)
}

// Get returns the subject with any unsaved edits from the session store
// laid over the persisted fields.
func (s *SubjectService) Get(ctx context.Context, subjectID, userID uuid.UUID) (*models.Subject, error) {
	subj, err := s.subjects.LoadSubject(ctx, subjectID)
	if err != nil {
		return nil, notFoundOr(err, "Subject not found")
	}

	ok, err := s.subjects.CanEdit(ctx, subjectID, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &ForbiddenError{Message: "You do not have access to this subject"}
	}

	plan, err := s.sessions.LoadPlan(ctx, subjectID)
	if err != nil {
		log.Warn().Err(err).Str("subject_id", subjectID.String()).Msg("session store unavailable")
		return subj, nil
	}
	if plan != nil {
		if cal, err := timeline.EncodeCalendar(plan.Calendar); err == nil {
			subj.CalendarConfig = cal
		}
		if units, err := timeline.EncodeUnits(plan.Units); err == nil {
			subj.Units = units
		}
	}
	return subj, nil
}

// AddEditor shares a subject with another user. Only the owner may share.
func (s *SubjectService) AddEditor(ctx context.Context, subjectID, ownerID uuid.UUID, email string) (*models.User, error) {
	subj, err := s.subjects.LoadSubject(ctx, subjectID)
	if err != nil {
		return nil, notFoundOr(err, "Subject not found")
	}
	if subj.OwnerID != ownerID {
		return nil, &ForbiddenError{Message: "Only the owner can share this subject"}
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Message: "No user with that email"}
		}
		return nil, err
	}
	if user.ID == ownerID {
		return nil, &ConflictError{Message: "The owner already has access"}
	}

	if err := s.subjects.AddEditor(ctx, subjectID, user.ID); err != nil {
		return nil, err
	}
	return user, nil
}
