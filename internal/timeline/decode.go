package timeline

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Stored subject fields come from a JSON store that historically accepted
// strings, numbers and nulls interchangeably. These wire shapes accept
// that looseness; the Decode functions turn them into strict values or
// fail with a sentinel error.

type wireCalendar struct {
	StartDate   json.RawMessage   `json:"start_date"`
	EndDate     json.RawMessage   `json:"end_date"`
	WeeklyHours []json.RawMessage `json:"weekly_hours"`
	Holidays    []json.RawMessage `json:"holidays"`
}

type wireActivity struct {
	ID                  string          `json:"id"`
	Name                string          `json:"name"`
	DurationHours       json.RawMessage `json:"duration_hours"`
	FixedDate           json.RawMessage `json:"fixed_date"`
	Description         string          `json:"description"`
	Resources           string          `json:"resources"`
	Evaluation          string          `json:"evaluation"`
	AssignedDescriptors []string        `json:"assigned_descriptors"`
}

type wireUnit struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Activities []wireActivity `json:"activities"`
}

func isEmptyJSON(raw []byte) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}

// DecodeCalendar parses a stored calendar document. An empty document
// yields DefaultCalendar(now).
func DecodeCalendar(raw []byte, now time.Time) (CalendarConfig, error) {
	if isEmptyJSON(raw) || bytes.Equal(bytes.TrimSpace(raw), []byte("{}")) {
		return DefaultCalendar(now), nil
	}

	var w wireCalendar
	if err := json.Unmarshal(raw, &w); err != nil {
		return CalendarConfig{}, fmt.Errorf("decode calendar: %w", err)
	}

	var c CalendarConfig
	var err error
	if c.StartDate, err = looseDate(w.StartDate); err != nil {
		return CalendarConfig{}, fmt.Errorf("start_date: %w", err)
	}
	if c.EndDate, err = looseDate(w.EndDate); err != nil {
		return CalendarConfig{}, fmt.Errorf("end_date: %w", err)
	}

	if len(w.WeeklyHours) != len(c.WeeklyHours) {
		return CalendarConfig{}, fmt.Errorf("%w: expected %d entries, got %d", ErrInvalidWeeklyHours, len(c.WeeklyHours), len(w.WeeklyHours))
	}
	for i, rawHours := range w.WeeklyHours {
		h, err := looseNumber(rawHours)
		if err != nil || h < 0 {
			return CalendarConfig{}, fmt.Errorf("%w: entry %d is %s", ErrInvalidWeeklyHours, i, string(rawHours))
		}
		c.WeeklyHours[i] = h
	}

	c.Holidays = NewHolidaySet()
	for _, rawDay := range w.Holidays {
		d, err := looseDate(rawDay)
		if err != nil {
			return CalendarConfig{}, fmt.Errorf("holidays: %w", err)
		}
		c.Holidays.Add(d)
	}

	if err := c.Validate(); err != nil {
		return CalendarConfig{}, err
	}
	return c, nil
}

// DecodeUnits parses a stored unit list and assigns IDs where missing.
func DecodeUnits(raw []byte) ([]Unit, error) {
	if isEmptyJSON(raw) {
		return []Unit{}, nil
	}

	var wire []wireUnit
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("decode units: %w", err)
	}

	units := make([]Unit, len(wire))
	for ui, wu := range wire {
		u := Unit{ID: wu.ID, Name: wu.Name, Activities: make([]Activity, len(wu.Activities))}
		for ai, wa := range wu.Activities {
			dur, err := looseNumber(wa.DurationHours)
			if err != nil {
				return nil, &ActivityError{Unit: ui, Activity: ai, Name: wa.Name, Err: fmt.Errorf("%w: %s", ErrInvalidDuration, string(wa.DurationHours))}
			}
			if err := validateDuration(dur); err != nil {
				return nil, &ActivityError{Unit: ui, Activity: ai, Name: wa.Name, Err: err}
			}
			a := Activity{
				ID:                  wa.ID,
				Name:                wa.Name,
				DurationHours:       dur,
				Description:         wa.Description,
				Resources:           wa.Resources,
				Evaluation:          wa.Evaluation,
				AssignedDescriptors: wa.AssignedDescriptors,
			}
			if a.AssignedDescriptors == nil {
				a.AssignedDescriptors = []string{}
			}
			fixed, err := looseDate(wa.FixedDate)
			if err != nil {
				return nil, &ActivityError{Unit: ui, Activity: ai, Name: wa.Name, Err: err}
			}
			if !fixed.IsZero() {
				a.FixedDate = datePtr(fixed)
			}
			u.Activities[ai] = a
		}
		ensureIDs(&u)
		units[ui] = u
	}
	return units, nil
}

func EncodeCalendar(c CalendarConfig) ([]byte, error) {
	if c.Holidays == nil {
		c.Holidays = NewHolidaySet()
	}
	return json.Marshal(c)
}

func EncodeUnits(units []Unit) ([]byte, error) {
	if units == nil {
		units = []Unit{}
	}
	return json.Marshal(units)
}

// looseNumber accepts a JSON number, a numeric string (comma or dot as
// decimal separator), an empty string, or null. Empty values are zero.
func looseNumber(raw json.RawMessage) (float64, error) {
	if isEmptyJSON(raw) {
		return 0, nil
	}

	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("not a number: %s", string(raw))
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.ParseFloat(strings.Replace(s, ",", ".", 1), 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, fmt.Errorf("not a number: %q", s)
	}
	return n, nil
}

// looseDate accepts an ISO date string, an empty string or null. Empty
// values yield the zero Date.
func looseDate(raw json.RawMessage) (Date, error) {
	if isEmptyJSON(raw) {
		return Date{}, nil
	}
	var d Date
	if err := d.UnmarshalJSON(raw); err != nil {
		return Date{}, err
	}
	return d, nil
}
