package timeline

import (
	"errors"
	"fmt"
	"math"
)

type Activity struct {
	ID                  string   `json:"id"`
	Name                string   `json:"name"`
	DurationHours       float64  `json:"duration_hours"`
	FixedDate           *Date    `json:"fixed_date,omitempty"`
	Description         string   `json:"description"`
	Resources           string   `json:"resources"`
	Evaluation          string   `json:"evaluation"`
	AssignedDescriptors []string `json:"assigned_descriptors"`
}

func (a Activity) clone() Activity {
	out := a
	if a.FixedDate != nil {
		out.FixedDate = datePtr(*a.FixedDate)
	}
	if a.AssignedDescriptors != nil {
		out.AssignedDescriptors = append([]string(nil), a.AssignedDescriptors...)
	}
	return out
}

type Unit struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Activities []Activity `json:"activities"`
}

func (u Unit) clone() Unit {
	out := u
	out.Activities = make([]Activity, len(u.Activities))
	for i, a := range u.Activities {
		out.Activities[i] = a.clone()
	}
	return out
}

func cloneUnits(units []Unit) []Unit {
	out := make([]Unit, len(units))
	for i, u := range units {
		out[i] = u.clone()
	}
	return out
}

// Plan is everything the scheduler needs for one subject.
type Plan struct {
	Calendar CalendarConfig `json:"calendar"`
	Units    []Unit         `json:"units"`
}

func (p Plan) Validate() error {
	if err := p.Calendar.Validate(); err != nil {
		return err
	}
	return ValidateUnits(p.Units)
}

func ValidateUnits(units []Unit) error {
	for ui, u := range units {
		for ai, a := range u.Activities {
			if err := validateDuration(a.DurationHours); err != nil {
				return &ActivityError{Unit: ui, Activity: ai, Name: a.Name, Err: err}
			}
		}
	}
	return nil
}

func validateDuration(h float64) error {
	if math.IsNaN(h) || math.IsInf(h, 0) || h < 0 {
		return fmt.Errorf("%w: %v", ErrInvalidDuration, h)
	}
	return nil
}

type ScheduledActivity struct {
	Activity
	ComputedStart *Date `json:"computed_start"`
	ComputedEnd   *Date `json:"computed_end"`
	BeyondRange   bool  `json:"beyond_range"`
}

type ScheduledUnit struct {
	ID         string              `json:"id"`
	Name       string              `json:"name"`
	Hours      float64             `json:"hours"`
	RealStart  *Date               `json:"real_start"`
	RealEnd    *Date               `json:"real_end"`
	Activities []ScheduledActivity `json:"activities"`
}

// Issue is an activity that could not be fully placed.
type Issue struct {
	UnitIndex     int    `json:"unit_index"`
	ActivityIndex int    `json:"activity_index"`
	ActivityID    string `json:"activity_id"`
	Message       string `json:"message"`

	err error
}

type Timeline struct {
	CapacityHours float64         `json:"capacity_hours"`
	LoadHours     float64         `json:"load_hours"`
	Units         []ScheduledUnit `json:"units"`
	Issues        []Issue         `json:"issues"`
}

// Err joins the per-activity failures, or returns nil when every
// schedulable activity was placed.
func (t *Timeline) Err() error {
	if len(t.Issues) == 0 {
		return nil
	}
	errs := make([]error, 0, len(t.Issues))
	for _, is := range t.Issues {
		errs = append(errs, is.Err())
	}
	return errors.Join(errs...)
}

// Err returns the failure behind the issue. An issue decoded from JSON
// only keeps its position, so the error is rebuilt from it and names the
// activity by ID.
func (is Issue) Err() error {
	if is.err != nil {
		return is.err
	}
	return &ActivityError{
		Unit:     is.UnitIndex,
		Activity: is.ActivityIndex,
		Name:     is.ActivityID,
		Err:      ErrDurationUnsatisfiable,
	}
}

// BeyondRangeCount counts activities that end after the calendar's end date.
func (t *Timeline) BeyondRangeCount() int {
	n := 0
	for _, u := range t.Units {
		for _, a := range u.Activities {
			if a.BeyondRange {
				n++
			}
		}
	}
	return n
}

// ComputeLoad sums every activity's duration, ignoring the calendar.
func ComputeLoad(units []Unit) float64 {
	total := 0.0
	for _, u := range units {
		total += unitHours(u)
	}
	return total
}

func unitHours(u Unit) float64 {
	total := 0.0
	for _, a := range u.Activities {
		if math.IsNaN(a.DurationHours) || math.IsInf(a.DurationHours, 0) {
			continue
		}
		total += a.DurationHours
	}
	return total
}

// Schedule validates p and computes its timeline.
func Schedule(p Plan) (Timeline, error) {
	if err := p.Validate(); err != nil {
		return Timeline{}, err
	}
	return ComputeTimeline(p.Units, p.Calendar)
}

// ComputeTimeline places every activity on the calendar by advancing a
// single cursor through units and activities in order. The inputs are
// not modified; the returned Timeline holds annotated copies.
//
// A calendar with no reachable teaching day aborts with a *CalendarError.
// An activity whose duration outlasts MaxConsumptionSteps is reported in
// Timeline.Issues and scheduling carries on after it.
func ComputeTimeline(units []Unit, c CalendarConfig) (Timeline, error) {
	tl := Timeline{
		CapacityHours: ComputeCapacity(c),
		LoadHours:     ComputeLoad(units),
		Units:         make([]ScheduledUnit, len(units)),
		Issues:        []Issue{},
	}

	cursor := c.StartDate
	for ui, u := range units {
		su := ScheduledUnit{
			ID:         u.ID,
			Name:       u.Name,
			Hours:      unitHours(u),
			Activities: make([]ScheduledActivity, len(u.Activities)),
		}

		for ai, a := range u.Activities {
			sa := ScheduledActivity{Activity: a.clone()}
			su.Activities[ai] = sa

			if !(a.DurationHours > 0) {
				continue
			}

			if a.FixedDate != nil && !a.FixedDate.IsZero() {
				cursor = *a.FixedDate
			}
			var err error
			cursor, err = FindNextTeachingMoment(cursor, c)
			if err != nil {
				return Timeline{}, err
			}
			start := cursor

			end, err := consume(cursor, a.DurationHours, c)
			sa.ComputedStart = datePtr(start)
			if err != nil {
				var calErr *CalendarError
				if errors.As(err, &calErr) {
					return Timeline{}, err
				}
				actErr := &ActivityError{Unit: ui, Activity: ai, Name: a.Name, Err: err}
				tl.Issues = append(tl.Issues, Issue{
					UnitIndex:     ui,
					ActivityIndex: ai,
					ActivityID:    a.ID,
					Message:       actErr.Error(),
					err:           actErr,
				})
				su.Activities[ai] = sa
				if su.RealStart == nil {
					su.RealStart = datePtr(start)
				}
				cursor = end.AddDays(1)
				continue
			}

			sa.ComputedEnd = datePtr(end)
			sa.BeyondRange = end.After(c.EndDate)
			su.Activities[ai] = sa

			if su.RealStart == nil {
				su.RealStart = datePtr(start)
			}
			su.RealEnd = datePtr(end)

			cursor = end.AddDays(1)
		}

		tl.Units[ui] = su
	}

	return tl, nil
}

// consume walks teaching days from cursor until duration is used up and
// returns the day it finished on. On ErrDurationUnsatisfiable the returned
// date is the last day consumed.
func consume(cursor Date, duration float64, c CalendarConfig) (Date, error) {
	remaining := duration
	for step := 1; ; step++ {
		remaining -= c.HoursOn(cursor)
		if remaining <= 0 {
			return cursor, nil
		}
		if step >= MaxConsumptionSteps {
			return cursor, fmt.Errorf("%w: %v hours left after %d days", ErrDurationUnsatisfiable, remaining, step)
		}
		next, err := FindNextTeachingMoment(cursor.AddDays(1), c)
		if err != nil {
			return cursor, err
		}
		cursor = next
	}
}
