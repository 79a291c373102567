package models

import (
	"encoding/json"

	"github.com/google/uuid"

	"curriculum-planner/internal/timeline"
)

type ActivityRequest struct {
	Name                string         `json:"name" validate:"max=200"`
	DurationHours       float64        `json:"duration_hours" validate:"gte=0,lte=10000"`
	FixedDate           *timeline.Date `json:"fixed_date"`
	Description         string         `json:"description"`
	Resources           string         `json:"resources"`
	Evaluation          string         `json:"evaluation"`
	AssignedDescriptors []string       `json:"assigned_descriptors" validate:"dive,max=64"`
}

func (r ActivityRequest) Activity() timeline.Activity {
	a := timeline.Activity{
		Name:                r.Name,
		DurationHours:       r.DurationHours,
		Description:         r.Description,
		Resources:           r.Resources,
		Evaluation:          r.Evaluation,
		AssignedDescriptors: r.AssignedDescriptors,
	}
	if r.FixedDate != nil && !r.FixedDate.IsZero() {
		d := *r.FixedDate
		a.FixedDate = &d
	}
	if a.AssignedDescriptors == nil {
		a.AssignedDescriptors = []string{}
	}
	return a
}

type UnitRequest struct {
	Name string `json:"name" validate:"required,max=200"`
}

type MoveActivityRequest struct {
	FromUnit         *int `json:"from_unit" validate:"required,gte=0"`
	FromIndex        *int `json:"from_index" validate:"required,gte=0"`
	ToUnit           *int `json:"to_unit" validate:"required,gte=0"`
	ToIndex          *int `json:"to_index" validate:"required,gte=0"`
	ConfirmCrossUnit bool `json:"confirm_cross_unit"`
}

type MoveUnitRequest struct {
	From *int `json:"from" validate:"required,gte=0"`
	To   *int `json:"to" validate:"required,gte=0"`
}

// PreviewRequest carries a plan in its stored, loosely typed shape.
type PreviewRequest struct {
	Calendar json.RawMessage `json:"calendar" validate:"required"`
	Units    json.RawMessage `json:"units"`
}

type TimelineResponse struct {
	SubjectID uuid.UUID         `json:"subject_id"`
	Timeline  timeline.Timeline `json:"timeline"`
}

type ProgressResponse struct {
	SubjectID          uuid.UUID `json:"subject_id"`
	CapacityHours      float64   `json:"capacity_hours"`
	LoadHours          float64   `json:"load_hours"`
	UtilizationPercent float64   `json:"utilization_percent"`
	BeyondRange        int       `json:"beyond_range"`
	Issues             int       `json:"issues"`
}
