package handlers

import (
	"encoding/json"
	"net/http"

	"curriculum-planner/internal/middleware"
	"curriculum-planner/internal/models"
	"curriculum-planner/internal/services"
	"curriculum-planner/internal/timeline"
)

// PlannerHandler exposes the timeline editor. Every mutation responds with
// the recomputed timeline.
type PlannerHandler struct {
	planner *services.PlannerService
}

func NewPlannerHandler(planner *services.PlannerService) *PlannerHandler {
	return &PlannerHandler{planner: planner}
}

func (h *PlannerHandler) Timeline(w http.ResponseWriter, r *http.Request) {
	subjectID, ok := subjectIDParam(w, r)
	if !ok {
		return
	}

	tl, err := h.planner.Timeline(r.Context(), subjectID, middleware.GetUserID(r.Context()))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, models.TimelineResponse{SubjectID: subjectID, Timeline: *tl})
}

func (h *PlannerHandler) Progress(w http.ResponseWriter, r *http.Request) {
	subjectID, ok := subjectIDParam(w, r)
	if !ok {
		return
	}

	progress, err := h.planner.Progress(r.Context(), subjectID, middleware.GetUserID(r.Context()))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, progress)
}

// UpdateCalendar takes the calendar in its stored shape; loose values are
// normalized by the decoder.
func (h *PlannerHandler) UpdateCalendar(w http.ResponseWriter, r *http.Request) {
	subjectID, ok := subjectIDParam(w, r)
	if !ok {
		return
	}

	raw, ok := readRaw(w, r)
	if !ok {
		return
	}

	tl, err := h.planner.UpdateCalendar(r.Context(), subjectID, middleware.GetUserID(r.Context()), raw)
	h.respondTimeline(w, r, subjectID.String(), tl, err)
}

func (h *PlannerHandler) ReplaceUnits(w http.ResponseWriter, r *http.Request) {
	subjectID, ok := subjectIDParam(w, r)
	if !ok {
		return
	}

	raw, ok := readRaw(w, r)
	if !ok {
		return
	}

	tl, err := h.planner.ReplaceUnits(r.Context(), subjectID, middleware.GetUserID(r.Context()), raw)
	h.respondTimeline(w, r, subjectID.String(), tl, err)
}

func (h *PlannerHandler) AddUnit(w http.ResponseWriter, r *http.Request) {
	subjectID, ok := subjectIDParam(w, r)
	if !ok {
		return
	}

	var req models.UnitRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	unit, tl, err := h.planner.AddUnit(r.Context(), subjectID, middleware.GetUserID(r.Context()), req.Name)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"unit":     unit,
		"timeline": tl,
	})
}

func (h *PlannerHandler) RenameUnit(w http.ResponseWriter, r *http.Request) {
	subjectID, ok := subjectIDParam(w, r)
	if !ok {
		return
	}
	unit, ok := indexParam(w, r, "unit")
	if !ok {
		return
	}

	var req models.UnitRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	tl, err := h.planner.RenameUnit(r.Context(), subjectID, middleware.GetUserID(r.Context()), unit, req.Name)
	h.respondTimeline(w, r, subjectID.String(), tl, err)
}

func (h *PlannerHandler) RemoveUnit(w http.ResponseWriter, r *http.Request) {
	subjectID, ok := subjectIDParam(w, r)
	if !ok {
		return
	}
	unit, ok := indexParam(w, r, "unit")
	if !ok {
		return
	}

	tl, err := h.planner.RemoveUnit(r.Context(), subjectID, middleware.GetUserID(r.Context()), unit)
	h.respondTimeline(w, r, subjectID.String(), tl, err)
}

func (h *PlannerHandler) AddActivity(w http.ResponseWriter, r *http.Request) {
	subjectID, ok := subjectIDParam(w, r)
	if !ok {
		return
	}
	unit, ok := indexParam(w, r, "unit")
	if !ok {
		return
	}

	var req models.ActivityRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	act, tl, err := h.planner.AddActivity(r.Context(), subjectID, middleware.GetUserID(r.Context()), unit, req.Activity())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"activity": act,
		"timeline": tl,
	})
}

func (h *PlannerHandler) UpdateActivity(w http.ResponseWriter, r *http.Request) {
	subjectID, ok := subjectIDParam(w, r)
	if !ok {
		return
	}
	unit, ok := indexParam(w, r, "unit")
	if !ok {
		return
	}
	idx, ok := indexParam(w, r, "idx")
	if !ok {
		return
	}

	var req models.ActivityRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	act, tl, err := h.planner.UpdateActivity(r.Context(), subjectID, middleware.GetUserID(r.Context()), unit, idx, req.Activity())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"activity": act,
		"timeline": tl,
	})
}

func (h *PlannerHandler) RemoveActivity(w http.ResponseWriter, r *http.Request) {
	subjectID, ok := subjectIDParam(w, r)
	if !ok {
		return
	}
	unit, ok := indexParam(w, r, "unit")
	if !ok {
		return
	}
	idx, ok := indexParam(w, r, "idx")
	if !ok {
		return
	}

	tl, err := h.planner.RemoveActivity(r.Context(), subjectID, middleware.GetUserID(r.Context()), unit, idx)
	h.respondTimeline(w, r, subjectID.String(), tl, err)
}

func (h *PlannerHandler) MoveActivity(w http.ResponseWriter, r *http.Request) {
	subjectID, ok := subjectIDParam(w, r)
	if !ok {
		return
	}

	var req models.MoveActivityRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	tl, err := h.planner.MoveActivity(r.Context(), subjectID, middleware.GetUserID(r.Context()),
		*req.FromUnit, *req.FromIndex, *req.ToUnit, *req.ToIndex, req.ConfirmCrossUnit)
	h.respondTimeline(w, r, subjectID.String(), tl, err)
}

func (h *PlannerHandler) MoveUnit(w http.ResponseWriter, r *http.Request) {
	subjectID, ok := subjectIDParam(w, r)
	if !ok {
		return
	}

	var req models.MoveUnitRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	tl, err := h.planner.MoveUnit(r.Context(), subjectID, middleware.GetUserID(r.Context()), *req.From, *req.To)
	h.respondTimeline(w, r, subjectID.String(), tl, err)
}

// Preview computes a timeline without touching any subject.
func (h *PlannerHandler) Preview(w http.ResponseWriter, r *http.Request) {
	var req models.PreviewRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	tl, err := h.planner.Preview(r.Context(), req.Calendar, req.Units)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"timeline": tl})
}

func (h *PlannerHandler) respondTimeline(w http.ResponseWriter, r *http.Request, subjectID string, tl *timeline.Timeline, err error) {
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"subject_id": subjectID,
		"timeline":   tl,
	})
}

func readRaw(w http.ResponseWriter, r *http.Request) (json.RawMessage, bool) {
	var raw json.RawMessage
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&raw); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return nil, false
	}
	return raw, true
}
