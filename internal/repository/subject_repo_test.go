package repository

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"curriculum-planner/internal/models"
)

func TestSaveFieldQueries_AllowList(t *testing.T) {
	for _, field := range []string{models.FieldCalendarConfig, models.FieldUnits} {
		if _, ok := saveFieldQueries[field]; !ok {
			t.Errorf("expected %q in allow-list", field)
		}
	}
	if len(saveFieldQueries) != 2 {
		t.Errorf("expected exactly 2 allowed fields, got %d", len(saveFieldQueries))
	}
}

func TestSaveField_RejectsUnknownFieldWithoutTouchingDB(t *testing.T) {
	// A nil pool is never reached for rejected fields.
	repo := NewSubjectRepo(nil)

	for _, field := range []string{"name", "owner_id", "units; DROP TABLE subjects", ""} {
		_, err := repo.SaveField(context.Background(), uuid.New(), field, json.RawMessage(`[]`), time.Now())
		if !errors.Is(err, ErrUnknownField) {
			t.Errorf("field %q: expected ErrUnknownField, got %v", field, err)
		}
	}
}

func TestSaveField_RejectsInvalidJSON(t *testing.T) {
	repo := NewSubjectRepo(nil)

	_, err := repo.SaveField(context.Background(), uuid.New(), models.FieldUnits, json.RawMessage(`[{`), time.Now())
	if err == nil {
		t.Fatal("expected error for invalid JSON")
	}
	if errors.Is(err, ErrUnknownField) {
		t.Fatalf("expected JSON error, got %v", err)
	}
}
