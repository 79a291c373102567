package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"curriculum-planner/internal/timeline"
)

const JobTypeSubjectSave = "subject-save"

type Job struct {
	ID           uuid.UUID       `json:"id"`
	UserID       uuid.UUID       `json:"user_id"`
	SubjectID    uuid.UUID       `json:"subject_id"`
	Type         string          `json:"type"`
	Field        string          `json:"field"`
	Value        json.RawMessage `json:"value"`
	Status       string          `json:"status"` // "pending" | "processing" | "completed" | "failed" | "superseded"
	RetryCount   int             `json:"retry_count"`
	MaxRetries   int             `json:"max_retries"`
	ErrorMessage *string         `json:"error_message"`
	CreatedAt    time.Time       `json:"created_at"`
	CompletedAt  *time.Time      `json:"completed_at"`
}

// WebSocket message types
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

const (
	EventTimelineUpdated = "timeline_updated"
	EventSaved           = "saved"
	EventSaveFailed      = "save_failed"
)

type TimelineUpdatedEvent struct {
	SubjectID uuid.UUID         `json:"subject_id"`
	UpdatedBy uuid.UUID         `json:"updated_by"`
	Timeline  timeline.Timeline `json:"timeline"`
}

type SavedEvent struct {
	JobID     uuid.UUID `json:"job_id"`
	SubjectID uuid.UUID `json:"subject_id"`
	Field     string    `json:"field"`
}

type SaveFailedEvent struct {
	JobID        uuid.UUID `json:"job_id"`
	SubjectID    uuid.UUID `json:"subject_id"`
	Field        string    `json:"field"`
	ErrorCode    string    `json:"error_code"`
	ErrorMessage string    `json:"error_message"`
}

// API Error response
type APIError struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id"`
}

type ErrorResponse struct {
	Error APIError `json:"error"`
}
