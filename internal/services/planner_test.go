package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"curriculum-planner/internal/models"
	"curriculum-planner/internal/timeline"
)

// 2025-09-08 is a Monday.
const twoWeekCalendar = `{"start_date":"2025-09-08","end_date":"2025-09-19","weekly_hours":[2,2,2,2,2],"holidays":["2025-09-10"]}`

const twoUnits = `[
	{"id":"u1","name":"Numbers","activities":[
		{"id":"a1","name":"Intro","duration_hours":"3"},
		{"id":"a2","name":"Practice","duration_hours":2,"fixed_date":"2025-09-15"}
	]},
	{"id":"u2","name":"Geometry","activities":[
		{"id":"b1","name":"Shapes","duration_hours":"1,5"}
	]}
]`

type plannerFixture struct {
	svc       *PlannerService
	subjects  *stubSubjectStore
	sessions  *memSessionStore
	queue     *recordingQueue
	publisher *recordingPublisher
	owner     uuid.UUID
	subjectID uuid.UUID
}

func newPlannerFixture(t *testing.T) *plannerFixture {
	t.Helper()
	f := &plannerFixture{
		subjects:  newStubSubjectStore(),
		sessions:  newMemSessionStore(),
		queue:     &recordingQueue{},
		publisher: &recordingPublisher{},
		owner:     uuid.New(),
	}
	f.subjectID = f.subjects.put(f.owner, twoWeekCalendar, twoUnits)
	f.svc = NewPlannerService(f.subjects, f.sessions, f.queue, f.publisher)
	f.svc.now = func() time.Time { return time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC) }
	return f
}

func startOf(tl *timeline.Timeline, unit, idx int) string {
	d := tl.Units[unit].Activities[idx].ComputedStart
	if d == nil {
		return "<nil>"
	}
	return d.String()
}

func TestPlannerService_Timeline(t *testing.T) {
	f := newPlannerFixture(t)

	tl, err := f.svc.Timeline(context.Background(), f.subjectID, f.owner)
	if err != nil {
		t.Fatalf("Timeline: %v", err)
	}

	// 10 weekdays minus one holiday at 2h each.
	if tl.CapacityHours != 18 {
		t.Errorf("expected capacity 18, got %v", tl.CapacityHours)
	}
	if tl.LoadHours != 6.5 {
		t.Errorf("expected load 6.5, got %v", tl.LoadHours)
	}
	if got := startOf(tl, 0, 0); got != "2025-09-08" {
		t.Errorf("expected first activity on 2025-09-08, got %s", got)
	}
	if got := startOf(tl, 0, 1); got != "2025-09-15" {
		t.Errorf("expected fixed activity on 2025-09-15, got %s", got)
	}

	if _, ok := f.sessions.timelines[f.subjectID]; !ok {
		t.Fatal("expected the computed timeline to be cached")
	}
}

func TestPlannerService_TimelineServedFromCache(t *testing.T) {
	f := newPlannerFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Timeline(ctx, f.subjectID, f.owner); err != nil {
		t.Fatalf("Timeline: %v", err)
	}
	loads := f.subjects.loads
	if _, err := f.svc.Timeline(ctx, f.subjectID, f.owner); err != nil {
		t.Fatalf("Timeline: %v", err)
	}
	if f.subjects.loads != loads {
		t.Fatalf("expected cached timeline, subject loaded again")
	}
}

func TestPlannerService_Forbidden(t *testing.T) {
	f := newPlannerFixture(t)
	stranger := uuid.New()

	_, err := f.svc.Timeline(context.Background(), f.subjectID, stranger)
	var forbidden *ForbiddenError
	if !errors.As(err, &forbidden) {
		t.Fatalf("expected ForbiddenError, got %v", err)
	}

	_, err = f.svc.RenameUnit(context.Background(), f.subjectID, stranger, 0, "x")
	if !errors.As(err, &forbidden) {
		t.Fatalf("expected ForbiddenError on mutation, got %v", err)
	}
	if len(f.queue.jobs) != 0 {
		t.Fatal("forbidden mutation must not enqueue saves")
	}
}

func TestPlannerService_SharedEditorCanMutate(t *testing.T) {
	f := newPlannerFixture(t)
	editor := uuid.New()
	f.subjects.AddEditor(context.Background(), f.subjectID, editor)

	if _, err := f.svc.RenameUnit(context.Background(), f.subjectID, editor, 0, "Arithmetic"); err != nil {
		t.Fatalf("editor rename failed: %v", err)
	}
}

func TestPlannerService_MutationPipeline(t *testing.T) {
	f := newPlannerFixture(t)
	ctx := context.Background()

	unit, tl, err := f.svc.AddUnit(ctx, f.subjectID, f.owner, "Algebra")
	if err != nil {
		t.Fatalf("AddUnit: %v", err)
	}
	if unit.ID == "" || unit.Name != "Algebra" {
		t.Fatalf("unexpected unit %+v", unit)
	}
	if len(tl.Units) != 3 {
		t.Fatalf("expected 3 units in recomputed timeline, got %d", len(tl.Units))
	}

	if got := f.queue.fields(); len(got) != 1 || got[0] != models.FieldUnits {
		t.Fatalf("expected one units save job, got %v", got)
	}
	var saved []timeline.Unit
	if err := json.Unmarshal(f.queue.jobs[0].Value, &saved); err != nil {
		t.Fatalf("job value is not a unit list: %v", err)
	}
	if len(saved) != 3 {
		t.Fatalf("expected 3 units in job value, got %d", len(saved))
	}

	if len(f.publisher.messages) != 1 || f.publisher.messages[0].Type != models.EventTimelineUpdated {
		t.Fatalf("expected one timeline_updated event, got %+v", f.publisher.messages)
	}
	if _, ok := f.sessions.plans[f.subjectID]; !ok {
		t.Fatal("expected edited plan in session store")
	}
}

func TestPlannerService_ConsecutiveEditsUseSession(t *testing.T) {
	f := newPlannerFixture(t)
	ctx := context.Background()

	if _, _, err := f.svc.AddUnit(ctx, f.subjectID, f.owner, "Algebra"); err != nil {
		t.Fatalf("AddUnit: %v", err)
	}
	loads := f.subjects.loads

	// The persisted subject still has two units; the session has three.
	tl, err := f.svc.RenameUnit(ctx, f.subjectID, f.owner, 2, "Linear algebra")
	if err != nil {
		t.Fatalf("RenameUnit on the new unit: %v", err)
	}
	if tl.Units[2].Name != "Linear algebra" {
		t.Fatalf("expected renamed unit, got %q", tl.Units[2].Name)
	}
	if f.subjects.loads != loads {
		t.Fatal("second edit should not reload the subject")
	}
}

func TestPlannerService_UpdateCalendar(t *testing.T) {
	f := newPlannerFixture(t)

	raw := json.RawMessage(`{"start_date":"2025-09-08","end_date":"2025-09-12","weekly_hours":["4","4","4","4","4"],"holidays":[]}`)
	tl, err := f.svc.UpdateCalendar(context.Background(), f.subjectID, f.owner, raw)
	if err != nil {
		t.Fatalf("UpdateCalendar: %v", err)
	}
	if tl.CapacityHours != 20 {
		t.Fatalf("expected capacity 20, got %v", tl.CapacityHours)
	}
	if got := f.queue.fields(); len(got) != 1 || got[0] != models.FieldCalendarConfig {
		t.Fatalf("expected one calendar save job, got %v", got)
	}
}

func TestPlannerService_UpdateCalendarRejectsInvalid(t *testing.T) {
	f := newPlannerFixture(t)

	tests := []struct {
		name string
		raw  string
	}{
		{"inverted range", `{"start_date":"2025-09-12","end_date":"2025-09-08","weekly_hours":[1,1,1,1,1]}`},
		{"four hour entries", `{"start_date":"2025-09-08","end_date":"2025-09-12","weekly_hours":[1,1,1,1]}`},
		{"negative hours", `{"start_date":"2025-09-08","end_date":"2025-09-12","weekly_hours":[1,-1,1,1,1]}`},
		{"bad date", `{"start_date":"next monday","end_date":"2025-09-12","weekly_hours":[1,1,1,1,1]}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.UpdateCalendar(context.Background(), f.subjectID, f.owner, json.RawMessage(tc.raw))
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if _, ok := verr.Fields["calendar"]; !ok {
				t.Fatalf("expected calendar field error, got %v", verr.Fields)
			}
		})
	}
	if len(f.queue.jobs) != 0 {
		t.Fatal("rejected calendars must not be queued")
	}
}

func TestPlannerService_ZeroHoursCalendarIsStoredButReported(t *testing.T) {
	f := newPlannerFixture(t)

	raw := json.RawMessage(`{"start_date":"2025-09-08","end_date":"2025-09-12","weekly_hours":[0,0,0,0,0]}`)
	_, err := f.svc.UpdateCalendar(context.Background(), f.subjectID, f.owner, raw)

	var calErr *timeline.CalendarError
	if !errors.As(err, &calErr) {
		t.Fatalf("expected CalendarError, got %v", err)
	}
	if got := f.queue.fields(); len(got) != 1 {
		t.Fatalf("expected the calendar to still be persisted, got %v", got)
	}
	if len(f.publisher.messages) != 0 {
		t.Fatal("no timeline update should be published without a timeline")
	}
}

func TestPlannerService_CalendarErrorDropsCachedTimeline(t *testing.T) {
	f := newPlannerFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Timeline(ctx, f.subjectID, f.owner); err != nil {
		t.Fatalf("Timeline: %v", err)
	}
	if cached, _ := f.sessions.LoadTimeline(ctx, f.subjectID); cached == nil {
		t.Fatal("expected the first read to cache the timeline")
	}

	raw := json.RawMessage(`{"start_date":"2025-09-08","end_date":"2025-09-12","weekly_hours":[0,0,0,0,0]}`)
	if _, err := f.svc.UpdateCalendar(ctx, f.subjectID, f.owner, raw); err == nil {
		t.Fatal("expected a calendar error")
	}
	if cached, _ := f.sessions.LoadTimeline(ctx, f.subjectID); cached != nil {
		t.Fatal("cached timeline should be dropped after a calendar error")
	}

	var calErr *timeline.CalendarError
	if _, err := f.svc.Timeline(ctx, f.subjectID, f.owner); !errors.As(err, &calErr) {
		t.Fatalf("expected the next read to recompute and fail, got %v", err)
	}
	if _, err := f.svc.Progress(ctx, f.subjectID, f.owner); !errors.As(err, &calErr) {
		t.Fatalf("expected progress to fail the same way, got %v", err)
	}
}

func TestPlannerService_ActivityEdits(t *testing.T) {
	f := newPlannerFixture(t)
	ctx := context.Background()

	added, tl, err := f.svc.AddActivity(ctx, f.subjectID, f.owner, 1, timeline.Activity{Name: "Angles", DurationHours: 2})
	if err != nil {
		t.Fatalf("AddActivity: %v", err)
	}
	if added.ID == "" {
		t.Fatal("expected an id for the new activity")
	}
	if len(tl.Units[1].Activities) != 2 {
		t.Fatalf("expected 2 activities in unit 1, got %d", len(tl.Units[1].Activities))
	}

	updated, _, err := f.svc.UpdateActivity(ctx, f.subjectID, f.owner, 1, 1, timeline.Activity{Name: "Angles and lines", DurationHours: 4})
	if err != nil {
		t.Fatalf("UpdateActivity: %v", err)
	}
	if updated.ID != added.ID {
		t.Fatalf("update must keep the id: %s != %s", updated.ID, added.ID)
	}

	tl, err = f.svc.RemoveActivity(ctx, f.subjectID, f.owner, 1, 0)
	if err != nil {
		t.Fatalf("RemoveActivity: %v", err)
	}
	if len(tl.Units[1].Activities) != 1 || tl.Units[1].Activities[0].ID != added.ID {
		t.Fatalf("unexpected activities after removal: %+v", tl.Units[1].Activities)
	}
}

func TestPlannerService_IndexErrorsAreNotFound(t *testing.T) {
	f := newPlannerFixture(t)
	ctx := context.Background()

	calls := map[string]func() error{
		"rename":          func() error { _, err := f.svc.RenameUnit(ctx, f.subjectID, f.owner, 5, "x"); return err },
		"remove unit":     func() error { _, err := f.svc.RemoveUnit(ctx, f.subjectID, f.owner, -1); return err },
		"remove activity": func() error { _, err := f.svc.RemoveActivity(ctx, f.subjectID, f.owner, 0, 9); return err },
		"move unit":       func() error { _, err := f.svc.MoveUnit(ctx, f.subjectID, f.owner, 0, 2); return err },
	}

	for name, call := range calls {
		var nf *NotFoundError
		if err := call(); !errors.As(err, &nf) {
			t.Errorf("%s: expected NotFoundError, got %v", name, err)
		}
	}
	if len(f.queue.jobs) != 0 {
		t.Fatal("failed edits must not be queued")
	}
}

func TestPlannerService_NegativeDurationRejected(t *testing.T) {
	f := newPlannerFixture(t)

	_, _, err := f.svc.AddActivity(context.Background(), f.subjectID, f.owner, 0, timeline.Activity{Name: "x", DurationHours: -1})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestPlannerService_MoveActivityWithinUnit(t *testing.T) {
	f := newPlannerFixture(t)

	tl, err := f.svc.MoveActivity(context.Background(), f.subjectID, f.owner, 0, 0, 0, 1, false)
	if err != nil {
		t.Fatalf("MoveActivity: %v", err)
	}
	acts := tl.Units[0].Activities
	if acts[0].ID != "a2" || acts[1].ID != "a1" {
		t.Fatalf("expected order a2,a1, got %s,%s", acts[0].ID, acts[1].ID)
	}
	// a2 keeps its fixed date inside its own unit.
	if acts[0].FixedDate == nil {
		t.Fatal("same-unit move must keep the fixed date")
	}
}

func TestPlannerService_CrossUnitMoveNeedsConfirmation(t *testing.T) {
	f := newPlannerFixture(t)
	ctx := context.Background()

	_, err := f.svc.MoveActivity(ctx, f.subjectID, f.owner, 0, 1, 1, 0, false)
	var confirm *ConfirmationRequiredError
	if !errors.As(err, &confirm) {
		t.Fatalf("expected ConfirmationRequiredError, got %v", err)
	}
	if len(f.queue.jobs) != 0 || len(f.sessions.plans) != 0 {
		t.Fatal("unconfirmed move must not change anything")
	}

	tl, err := f.svc.MoveActivity(ctx, f.subjectID, f.owner, 0, 1, 1, 0, true)
	if err != nil {
		t.Fatalf("confirmed move: %v", err)
	}
	moved := tl.Units[1].Activities[0]
	if moved.ID != "a2" {
		t.Fatalf("expected a2 at the head of unit 1, got %s", moved.ID)
	}
	if moved.FixedDate != nil {
		t.Fatal("cross-unit move must clear the fixed date")
	}
}

func TestPlannerService_InvalidMoveReportedBeforeConfirmation(t *testing.T) {
	f := newPlannerFixture(t)

	_, err := f.svc.MoveActivity(context.Background(), f.subjectID, f.owner, 0, 7, 1, 0, false)
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError for a missing source, got %v", err)
	}
}

func TestPlannerService_MoveUnit(t *testing.T) {
	f := newPlannerFixture(t)

	tl, err := f.svc.MoveUnit(context.Background(), f.subjectID, f.owner, 1, 0)
	if err != nil {
		t.Fatalf("MoveUnit: %v", err)
	}
	if tl.Units[0].ID != "u2" || tl.Units[1].ID != "u1" {
		t.Fatalf("expected u2,u1, got %s,%s", tl.Units[0].ID, tl.Units[1].ID)
	}
	if got := startOf(tl, 0, 0); got != "2025-09-08" {
		t.Fatalf("moved unit should start first, got %s", got)
	}
}

func TestPlannerService_ReplaceUnitsRejectsBadDuration(t *testing.T) {
	f := newPlannerFixture(t)

	raw := json.RawMessage(`[{"name":"U","activities":[{"name":"A","duration_hours":"soon"}]}]`)
	_, err := f.svc.ReplaceUnits(context.Background(), f.subjectID, f.owner, raw)

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if _, ok := verr.Fields["units[0].activities[0].duration_hours"]; !ok {
		t.Fatalf("expected a per-activity field error, got %v", verr.Fields)
	}
}

func TestPlannerService_Progress(t *testing.T) {
	f := newPlannerFixture(t)

	p, err := f.svc.Progress(context.Background(), f.subjectID, f.owner)
	if err != nil {
		t.Fatalf("Progress: %v", err)
	}
	if p.CapacityHours != 18 || p.LoadHours != 6.5 {
		t.Fatalf("unexpected progress %+v", p)
	}
	if p.UtilizationPercent != 36.1 {
		t.Fatalf("expected 36.1%%, got %v", p.UtilizationPercent)
	}
	if p.BeyondRange != 0 || p.Issues != 0 {
		t.Fatalf("expected no overflow, got %+v", p)
	}
}

func TestProgressOf_ZeroCapacity(t *testing.T) {
	p := progressOf(uuid.New(), &timeline.Timeline{LoadHours: 4})
	if p.UtilizationPercent != 0 {
		t.Fatalf("expected 0%% with no capacity, got %v", p.UtilizationPercent)
	}
}

func TestPlannerService_Preview(t *testing.T) {
	svc := NewPlannerService(newStubSubjectStore(), newMemSessionStore(), &recordingQueue{}, &recordingPublisher{})

	tl, err := svc.Preview(context.Background(), json.RawMessage(twoWeekCalendar), json.RawMessage(twoUnits))
	if err != nil {
		t.Fatalf("Preview: %v", err)
	}
	if tl.CapacityHours != 18 {
		t.Fatalf("expected capacity 18, got %v", tl.CapacityHours)
	}

	_, err = svc.Preview(context.Background(), json.RawMessage(`{"start_date":"2025-09-08","end_date":"2025-09-12","weekly_hours":[0,0,0,0,0]}`), json.RawMessage(twoUnits))
	var calErr *timeline.CalendarError
	if !errors.As(err, &calErr) {
		t.Fatalf("expected CalendarError, got %v", err)
	}
}
