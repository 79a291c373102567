package timeline

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"
)

const (
	// MaxTeachingMomentSearch bounds FindNextTeachingMoment.
	MaxTeachingMomentSearch = 365
	// MaxConsumptionSteps bounds the per-activity duration loop.
	MaxConsumptionSteps = 500
)

// weekdaySlot maps a weekday to its index in CalendarConfig.WeeklyHours.
// Saturday and Sunday have no slot.
var weekdaySlot = map[time.Weekday]int{
	time.Monday:    0,
	time.Tuesday:   1,
	time.Wednesday: 2,
	time.Thursday:  3,
	time.Friday:    4,
}

// WeekdaySlot returns the weekly-hours index for wd and whether wd is a
// weekday at all.
func WeekdaySlot(wd time.Weekday) (int, bool) {
	slot, ok := weekdaySlot[wd]
	return slot, ok
}

type CalendarConfig struct {
	StartDate   Date       `json:"start_date"`
	EndDate     Date       `json:"end_date"`
	WeeklyHours [5]float64 `json:"weekly_hours"`
	Holidays    HolidaySet `json:"holidays"`
}

// DefaultCalendar covers the working week containing today with no hours
// configured; the editor is expected to fill it in.
func DefaultCalendar(today time.Time) CalendarConfig {
	d := DateOf(today)
	offset := (int(d.Weekday()) + 6) % 7
	monday := d.AddDays(-offset)
	return CalendarConfig{
		StartDate: monday,
		EndDate:   monday.AddDays(4),
		Holidays:  NewHolidaySet(),
	}
}

func (c CalendarConfig) Validate() error {
	if c.StartDate.IsZero() || c.EndDate.IsZero() {
		return fmt.Errorf("%w: start and end dates are required", ErrInvalidDate)
	}
	if c.StartDate.After(c.EndDate) {
		return fmt.Errorf("%w: %s > %s", ErrInvalidRange, c.StartDate, c.EndDate)
	}
	for i, h := range c.WeeklyHours {
		if math.IsNaN(h) || math.IsInf(h, 0) || h < 0 {
			return fmt.Errorf("%w: entry %d is %v", ErrInvalidWeeklyHours, i, h)
		}
	}
	return nil
}

// HoursOn is the configured teaching hours for d, zero on weekends and
// holidays.
func (c CalendarConfig) HoursOn(d Date) float64 {
	slot, ok := weekdaySlot[d.Weekday()]
	if !ok || c.Holidays.Contains(d) {
		return 0
	}
	return c.WeeklyHours[slot]
}

func (c CalendarConfig) IsTeachingDay(d Date) bool {
	return c.HoursOn(d) > 0
}

// ComputeCapacity sums configured hours over every non-holiday weekday in
// [StartDate, EndDate]. An inverted range has zero capacity.
func ComputeCapacity(c CalendarConfig) float64 {
	if c.StartDate.IsZero() || c.EndDate.IsZero() || c.StartDate.After(c.EndDate) {
		return 0
	}
	total := 0.0
	for d := c.StartDate; !d.After(c.EndDate); d = d.AddDays(1) {
		total += c.HoursOn(d)
	}
	return total
}

// FindNextTeachingMoment returns the first teaching day at or after d.
func FindNextTeachingMoment(d Date, c CalendarConfig) (Date, error) {
	cur := d
	for i := 0; i < MaxTeachingMomentSearch; i++ {
		if c.IsTeachingDay(cur) {
			return cur, nil
		}
		cur = cur.AddDays(1)
	}
	return Date{}, &CalendarError{From: d, Iterations: MaxTeachingMomentSearch}
}

// HolidaySet is a set of dates. It serializes as a sorted array.
type HolidaySet map[int64]Date

func NewHolidaySet(dates ...Date) HolidaySet {
	s := make(HolidaySet, len(dates))
	for _, d := range dates {
		s.Add(d)
	}
	return s
}

func (s HolidaySet) Add(d Date) {
	if d.IsZero() {
		return
	}
	s[d.key()] = d
}

func (s HolidaySet) Contains(d Date) bool {
	_, ok := s[d.key()]
	return ok
}

func (s HolidaySet) Dates() []Date {
	out := make([]Date, 0, len(s))
	for _, d := range s {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

func (s HolidaySet) Clone() HolidaySet {
	out := make(HolidaySet, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

func (s HolidaySet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Dates())
}

func (s *HolidaySet) UnmarshalJSON(data []byte) error {
	var dates []Date
	if err := json.Unmarshal(data, &dates); err != nil {
		return err
	}
	*s = NewHolidaySet(dates...)
	return nil
}
