package services

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"curriculum-planner/internal/models"
	"curriculum-planner/internal/timeline"
)

type planSource interface {
	LoadSubject(ctx context.Context, id uuid.UUID) (*models.Subject, error)
	CanEdit(ctx context.Context, subjectID, userID uuid.UUID) (bool, error)
}

// PlannerService applies editor operations to a subject's plan. Every
// mutation recomputes the timeline, stores the edited plan in the session
// store, queues persistence and notifies connected editors.
type PlannerService struct {
	subjects planSource
	sessions SessionStore
	queue    SaveQueue
	events   EventPublisher
	now      func() time.Time

	// Striped by subject id so concurrent edits to one subject apply in order.
	locks [64]sync.Mutex
}

func NewPlannerService(subjects planSource, sessions SessionStore, queue SaveQueue, events EventPublisher) *PlannerService {
	return &PlannerService{
		subjects: subjects,
		sessions: sessions,
		queue:    queue,
		events:   events,
		now:      time.Now,
	}
}

// PlanFromSubject decodes the persisted fields of a subject. A stored
// calendar that no longer decodes is replaced by the default week so the
// editor can repair it.
func PlanFromSubject(subj *models.Subject, now time.Time) (timeline.Plan, error) {
	cal, err := timeline.DecodeCalendar(subj.CalendarConfig, now)
	if err != nil {
		log.Warn().Err(err).Str("subject_id", subj.ID.String()).Msg("stored calendar is invalid, using default")
		cal = timeline.DefaultCalendar(now)
	}

	units, err := timeline.DecodeUnits(subj.Units)
	if err != nil {
		return timeline.Plan{}, planInputError("units", err)
	}
	return timeline.Plan{Calendar: cal, Units: units}, nil
}

func (s *PlannerService) lockFor(subjectID uuid.UUID) *sync.Mutex {
	return &s.locks[int(subjectID[15])%len(s.locks)]
}

func (s *PlannerService) authorize(ctx context.Context, subjectID, userID uuid.UUID) error {
	ok, err := s.subjects.CanEdit(ctx, subjectID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return &ForbiddenError{Message: "You do not have access to this subject"}
	}
	return nil
}

func (s *PlannerService) loadPlan(ctx context.Context, subjectID uuid.UUID) (timeline.Plan, error) {
	plan, err := s.sessions.LoadPlan(ctx, subjectID)
	if err != nil {
		log.Warn().Err(err).Str("subject_id", subjectID.String()).Msg("session store unavailable, loading subject")
	} else if plan != nil {
		return *plan, nil
	}

	subj, err := s.subjects.LoadSubject(ctx, subjectID)
	if err != nil {
		return timeline.Plan{}, notFoundOr(err, "Subject not found")
	}
	return PlanFromSubject(subj, s.now())
}

// Timeline returns the subject's computed timeline, served from cache
// when available.
func (s *PlannerService) Timeline(ctx context.Context, subjectID, userID uuid.UUID) (*timeline.Timeline, error) {
	if err := s.authorize(ctx, subjectID, userID); err != nil {
		return nil, err
	}

	if cached, err := s.sessions.LoadTimeline(ctx, subjectID); err == nil && cached != nil {
		return cached, nil
	}

	plan, err := s.loadPlan(ctx, subjectID)
	if err != nil {
		return nil, err
	}

	tl, err := timeline.NewSession(plan).Compute()
	if err != nil {
		return nil, err
	}

	if err := s.sessions.SaveTimeline(ctx, subjectID, tl); err != nil {
		log.Warn().Err(err).Str("subject_id", subjectID.String()).Msg("failed to cache timeline")
	}
	return &tl, nil
}

func (s *PlannerService) Progress(ctx context.Context, subjectID, userID uuid.UUID) (*models.ProgressResponse, error) {
	tl, err := s.Timeline(ctx, subjectID, userID)
	if err != nil {
		return nil, err
	}
	return progressOf(subjectID, tl), nil
}

func progressOf(subjectID uuid.UUID, tl *timeline.Timeline) *models.ProgressResponse {
	util := 0.0
	if tl.CapacityHours > 0 {
		util = math.Round(tl.LoadHours/tl.CapacityHours*1000) / 10
	}
	return &models.ProgressResponse{
		SubjectID:          subjectID,
		CapacityHours:      tl.CapacityHours,
		LoadHours:          tl.LoadHours,
		UtilizationPercent: util,
		BeyondRange:        tl.BeyondRangeCount(),
		Issues:             len(tl.Issues),
	}
}

// Preview computes a timeline for a plan that is not stored anywhere.
func (s *PlannerService) Preview(ctx context.Context, calendarRaw, unitsRaw json.RawMessage) (*timeline.Timeline, error) {
	cal, err := timeline.DecodeCalendar(calendarRaw, s.now())
	if err != nil {
		return nil, planInputError("calendar", err)
	}
	units, err := timeline.DecodeUnits(unitsRaw)
	if err != nil {
		return nil, planInputError("units", err)
	}

	tl, err := timeline.Schedule(timeline.Plan{Calendar: cal, Units: units})
	if err != nil {
		return nil, planInputError("plan", err)
	}
	return &tl, nil
}

// mutate runs fn against a session holding the subject's current plan.
// When fn fails nothing is stored. A calendar that cannot be scheduled is
// still stored and persisted, and the *timeline.CalendarError is returned.
func (s *PlannerService) mutate(ctx context.Context, subjectID, userID uuid.UUID, fields []string, fn func(sess *timeline.Session) error) (*timeline.Timeline, error) {
	if err := s.authorize(ctx, subjectID, userID); err != nil {
		return nil, err
	}

	mu := s.lockFor(subjectID)
	mu.Lock()
	defer mu.Unlock()

	plan, err := s.loadPlan(ctx, subjectID)
	if err != nil {
		return nil, err
	}

	sess := timeline.NewSession(plan)
	if err := fn(sess); err != nil {
		return nil, err
	}

	updated := sess.Plan()
	if err := s.sessions.SavePlan(ctx, subjectID, updated); err != nil {
		return nil, err
	}

	tl, computeErr := sess.Compute()

	if err := s.enqueueSaves(ctx, subjectID, userID, updated, fields); err != nil {
		return nil, err
	}

	if computeErr != nil {
		// The cached dates belong to the previous plan.
		if err := s.sessions.DeleteTimeline(ctx, subjectID); err != nil {
			log.Error().Err(err).Str("subject_id", subjectID.String()).Msg("failed to drop cached timeline")
			return nil, err
		}
		return nil, computeErr
	}

	if err := s.sessions.SaveTimeline(ctx, subjectID, tl); err != nil {
		log.Warn().Err(err).Str("subject_id", subjectID.String()).Msg("failed to cache timeline")
	}

	if err := s.events.Publish(ctx, subjectID, models.WSMessage{
		Type: models.EventTimelineUpdated,
		Payload: models.TimelineUpdatedEvent{
			SubjectID: subjectID,
			UpdatedBy: userID,
			Timeline:  tl,
		},
	}); err != nil {
		log.Warn().Err(err).Str("subject_id", subjectID.String()).Msg("failed to publish timeline update")
	}

	return &tl, nil
}

func (s *PlannerService) enqueueSaves(ctx context.Context, subjectID, userID uuid.UUID, plan timeline.Plan, fields []string) error {
	for _, field := range fields {
		var value []byte
		var err error
		switch field {
		case models.FieldCalendarConfig:
			value, err = timeline.EncodeCalendar(plan.Calendar)
		case models.FieldUnits:
			value, err = timeline.EncodeUnits(plan.Units)
		default:
			err = errors.New("unknown subject field " + field)
		}
		if err != nil {
			return err
		}

		job := &models.Job{
			UserID:    userID,
			SubjectID: subjectID,
			Field:     field,
			Value:     value,
		}
		if err := s.queue.Enqueue(ctx, job); err != nil {
			return err
		}
		log.Debug().Str("subject_id", subjectID.String()).Str("field", field).Str("job_id", job.ID.String()).Msg("save queued")
	}
	return nil
}

var unitsOnly = []string{models.FieldUnits}

func (s *PlannerService) UpdateCalendar(ctx context.Context, subjectID, userID uuid.UUID, raw json.RawMessage) (*timeline.Timeline, error) {
	cal, err := timeline.DecodeCalendar(raw, s.now())
	if err != nil {
		return nil, planInputError("calendar", err)
	}
	return s.mutate(ctx, subjectID, userID, []string{models.FieldCalendarConfig}, func(sess *timeline.Session) error {
		return planInputError("calendar", sess.SetCalendar(cal))
	})
}

func (s *PlannerService) ReplaceUnits(ctx context.Context, subjectID, userID uuid.UUID, raw json.RawMessage) (*timeline.Timeline, error) {
	units, err := timeline.DecodeUnits(raw)
	if err != nil {
		return nil, planInputError("units", err)
	}
	return s.mutate(ctx, subjectID, userID, unitsOnly, func(sess *timeline.Session) error {
		return planInputError("units", sess.ReplaceUnits(units))
	})
}

func (s *PlannerService) AddUnit(ctx context.Context, subjectID, userID uuid.UUID, name string) (*timeline.Unit, *timeline.Timeline, error) {
	var unit timeline.Unit
	tl, err := s.mutate(ctx, subjectID, userID, unitsOnly, func(sess *timeline.Session) error {
		unit = sess.AddUnit(name)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return &unit, tl, nil
}

func (s *PlannerService) RenameUnit(ctx context.Context, subjectID, userID uuid.UUID, unit int, name string) (*timeline.Timeline, error) {
	return s.mutate(ctx, subjectID, userID, unitsOnly, func(sess *timeline.Session) error {
		return planInputError("unit", sess.RenameUnit(unit, name))
	})
}

func (s *PlannerService) RemoveUnit(ctx context.Context, subjectID, userID uuid.UUID, unit int) (*timeline.Timeline, error) {
	return s.mutate(ctx, subjectID, userID, unitsOnly, func(sess *timeline.Session) error {
		return planInputError("unit", sess.RemoveUnit(unit))
	})
}

func (s *PlannerService) AddActivity(ctx context.Context, subjectID, userID uuid.UUID, unit int, a timeline.Activity) (*timeline.Activity, *timeline.Timeline, error) {
	var added timeline.Activity
	tl, err := s.mutate(ctx, subjectID, userID, unitsOnly, func(sess *timeline.Session) error {
		var err error
		added, err = sess.AddActivity(unit, a)
		return planInputError("duration_hours", err)
	})
	if err != nil {
		return nil, nil, err
	}
	return &added, tl, nil
}

func (s *PlannerService) UpdateActivity(ctx context.Context, subjectID, userID uuid.UUID, unit, idx int, a timeline.Activity) (*timeline.Activity, *timeline.Timeline, error) {
	var updated timeline.Activity
	tl, err := s.mutate(ctx, subjectID, userID, unitsOnly, func(sess *timeline.Session) error {
		var err error
		updated, err = sess.UpdateActivity(unit, idx, a)
		return planInputError("duration_hours", err)
	})
	if err != nil {
		return nil, nil, err
	}
	return &updated, tl, nil
}

func (s *PlannerService) RemoveActivity(ctx context.Context, subjectID, userID uuid.UUID, unit, idx int) (*timeline.Timeline, error) {
	return s.mutate(ctx, subjectID, userID, unitsOnly, func(sess *timeline.Session) error {
		return planInputError("activity", sess.RemoveActivity(unit, idx))
	})
}

// MoveActivity moves an activity within or across units. Moving to another
// unit drops the activity's fixed date, so it needs confirm set.
func (s *PlannerService) MoveActivity(ctx context.Context, subjectID, userID uuid.UUID, fromUnit, fromIdx, toUnit, toIdx int, confirm bool) (*timeline.Timeline, error) {
	return s.mutate(ctx, subjectID, userID, unitsOnly, func(sess *timeline.Session) error {
		if err := sess.MoveActivity(fromUnit, fromIdx, toUnit, toIdx); err != nil {
			return planInputError("move", err)
		}
		if fromUnit != toUnit && !confirm {
			return &ConfirmationRequiredError{Message: "Moving an activity to another unit clears its fixed date. Repeat with confirm_cross_unit to proceed."}
		}
		return nil
	})
}

func (s *PlannerService) MoveUnit(ctx context.Context, subjectID, userID uuid.UUID, from, to int) (*timeline.Timeline, error) {
	return s.mutate(ctx, subjectID, userID, unitsOnly, func(sess *timeline.Session) error {
		return planInputError("move", sess.MoveUnit(from, to))
	})
}
