package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Persisted subject fields that the planner reads and writes.
const (
	FieldCalendarConfig = "calendar_config"
	FieldUnits          = "units"
)

type Subject struct {
	ID             uuid.UUID       `json:"id"`
	OwnerID        uuid.UUID       `json:"owner_id"`
	Code           string          `json:"code"`
	Name           string          `json:"name"`
	CalendarConfig json.RawMessage `json:"calendar_config"`
	Units          json.RawMessage `json:"units"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

type CreateSubjectRequest struct {
	Code     string          `json:"code" validate:"required,max=32"`
	Name     string          `json:"name" validate:"required,max=200"`
	Calendar json.RawMessage `json:"calendar,omitempty"`
}

type AddEditorRequest struct {
	Email string `json:"email" validate:"required,email"`
}
