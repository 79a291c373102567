package timeline

import (
	"fmt"

	"github.com/google/uuid"
)

// Session is the editable plan of one subject. Every mutation leaves the
// previously computed Timeline stale; call Compute again before rendering.
type Session struct {
	plan Plan
}

// NewSession copies p so later mutations never reach the caller's slices.
func NewSession(p Plan) *Session {
	return &Session{plan: Plan{
		Calendar: cloneCalendar(p.Calendar),
		Units:    cloneUnits(p.Units),
	}}
}

func cloneCalendar(c CalendarConfig) CalendarConfig {
	out := c
	out.Holidays = c.Holidays.Clone()
	return out
}

// Plan returns a copy of the current plan.
func (s *Session) Plan() Plan {
	return Plan{Calendar: cloneCalendar(s.plan.Calendar), Units: cloneUnits(s.plan.Units)}
}

func (s *Session) Calendar() CalendarConfig { return cloneCalendar(s.plan.Calendar) }

func (s *Session) Units() []Unit { return cloneUnits(s.plan.Units) }

func (s *Session) Compute() (Timeline, error) {
	return Schedule(s.plan)
}

func (s *Session) SetCalendar(c CalendarConfig) error {
	if err := c.Validate(); err != nil {
		return err
	}
	s.plan.Calendar = cloneCalendar(c)
	return nil
}

// ReplaceUnits swaps the whole unit list, as the bulk editor save does.
func (s *Session) ReplaceUnits(units []Unit) error {
	if err := ValidateUnits(units); err != nil {
		return err
	}
	units = cloneUnits(units)
	for i := range units {
		ensureIDs(&units[i])
	}
	s.plan.Units = units
	return nil
}

func (s *Session) AddUnit(name string) Unit {
	u := Unit{ID: uuid.NewString(), Name: name, Activities: []Activity{}}
	s.plan.Units = append(s.plan.Units, u)
	return u.clone()
}

func (s *Session) RenameUnit(i int, name string) error {
	if err := s.checkUnit(i); err != nil {
		return err
	}
	s.plan.Units[i].Name = name
	return nil
}

func (s *Session) RemoveUnit(i int) error {
	if err := s.checkUnit(i); err != nil {
		return err
	}
	s.plan.Units = append(s.plan.Units[:i], s.plan.Units[i+1:]...)
	return nil
}

func (s *Session) AddActivity(unit int, a Activity) (Activity, error) {
	if err := s.checkUnit(unit); err != nil {
		return Activity{}, err
	}
	if err := validateDuration(a.DurationHours); err != nil {
		return Activity{}, err
	}
	a = a.clone()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	s.plan.Units[unit].Activities = append(s.plan.Units[unit].Activities, a)
	return a.clone(), nil
}

// UpdateActivity replaces the activity at (unit, idx), keeping its ID.
func (s *Session) UpdateActivity(unit, idx int, a Activity) (Activity, error) {
	if err := s.checkActivity(unit, idx); err != nil {
		return Activity{}, err
	}
	if err := validateDuration(a.DurationHours); err != nil {
		return Activity{}, err
	}
	a = a.clone()
	a.ID = s.plan.Units[unit].Activities[idx].ID
	s.plan.Units[unit].Activities[idx] = a
	return a.clone(), nil
}

func (s *Session) RemoveActivity(unit, idx int) error {
	if err := s.checkActivity(unit, idx); err != nil {
		return err
	}
	acts := s.plan.Units[unit].Activities
	s.plan.Units[unit].Activities = append(acts[:idx], acts[idx+1:]...)
	return nil
}

// MoveActivity removes the activity at (fromUnit, fromIdx) and inserts it
// at toIdx of toUnit, where toIdx is a position in the destination list
// after removal. A move into another unit drops the fixed date.
func (s *Session) MoveActivity(fromUnit, fromIdx, toUnit, toIdx int) error {
	if err := s.checkActivity(fromUnit, fromIdx); err != nil {
		return err
	}
	if err := s.checkUnit(toUnit); err != nil {
		return err
	}

	src := s.plan.Units[fromUnit].Activities
	moved := src[fromIdx]

	destLen := len(s.plan.Units[toUnit].Activities)
	if fromUnit == toUnit {
		destLen--
	}
	if toIdx < 0 || toIdx > destLen {
		return fmt.Errorf("%w: activity position %d", ErrIndexOutOfRange, toIdx)
	}

	s.plan.Units[fromUnit].Activities = append(src[:fromIdx:fromIdx], src[fromIdx+1:]...)

	if fromUnit != toUnit {
		moved.FixedDate = nil
	}

	dst := s.plan.Units[toUnit].Activities
	dst = append(dst, Activity{})
	copy(dst[toIdx+1:], dst[toIdx:])
	dst[toIdx] = moved
	s.plan.Units[toUnit].Activities = dst
	return nil
}

func (s *Session) MoveUnit(from, to int) error {
	if err := s.checkUnit(from); err != nil {
		return err
	}
	if err := s.checkUnit(to); err != nil {
		return err
	}
	u := s.plan.Units[from]
	units := append(s.plan.Units[:from:from], s.plan.Units[from+1:]...)
	units = append(units, Unit{})
	copy(units[to+1:], units[to:])
	units[to] = u
	s.plan.Units = units
	return nil
}

func (s *Session) checkUnit(i int) error {
	if i < 0 || i >= len(s.plan.Units) {
		return fmt.Errorf("%w: unit %d", ErrIndexOutOfRange, i)
	}
	return nil
}

func (s *Session) checkActivity(unit, idx int) error {
	if err := s.checkUnit(unit); err != nil {
		return err
	}
	if idx < 0 || idx >= len(s.plan.Units[unit].Activities) {
		return fmt.Errorf("%w: activity %d of unit %d", ErrIndexOutOfRange, idx, unit)
	}
	return nil
}

func ensureIDs(u *Unit) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.Activities == nil {
		u.Activities = []Activity{}
	}
	for i := range u.Activities {
		if u.Activities[i].ID == "" {
			u.Activities[i].ID = uuid.NewString()
		}
	}
}
