package timeline

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidRange          = errors.New("start date is after end date")
	ErrInvalidWeeklyHours    = errors.New("invalid weekly hours")
	ErrInvalidDuration       = errors.New("invalid activity duration")
	ErrInvalidDate           = errors.New("invalid date")
	ErrNoTeachingDay         = errors.New("no teaching day found within search window")
	ErrDurationUnsatisfiable = errors.New("activity duration cannot be consumed by the calendar")
	ErrIndexOutOfRange       = errors.New("index out of range")
)

// CalendarError reports a calendar that cannot yield a teaching day. The
// cursor cannot advance past it, so the whole computation stops.
type CalendarError struct {
	From       Date
	Iterations int
}

func (e *CalendarError) Error() string {
	return fmt.Sprintf("no teaching day within %d days of %s", e.Iterations, e.From)
}

func (e *CalendarError) Unwrap() error { return ErrNoTeachingDay }

// ActivityError identifies a single activity the scheduler could not place.
type ActivityError struct {
	Unit     int
	Activity int
	Name     string
	Err      error
}

func (e *ActivityError) Error() string {
	return fmt.Sprintf("unit %d activity %d (%s): %v", e.Unit, e.Activity, e.Name, e.Err)
}

func (e *ActivityError) Unwrap() error { return e.Err }
