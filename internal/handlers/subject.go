package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"curriculum-planner/internal/middleware"
	"curriculum-planner/internal/models"
	"curriculum-planner/internal/services"
)

type SubjectHandler struct {
	subjects *services.SubjectService
}

func NewSubjectHandler(subjects *services.SubjectService) *SubjectHandler {
	return &SubjectHandler{subjects: subjects}
}

func (h *SubjectHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req models.CreateSubjectRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	userID := middleware.GetUserID(r.Context())
	subj, err := h.subjects.Create(r.Context(), userID, req)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, subj)
}

func (h *SubjectHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	subjects, err := h.subjects.List(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if subjects == nil {
		subjects = []models.Subject{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"subjects": subjects,
	})
}

func (h *SubjectHandler) Get(w http.ResponseWriter, r *http.Request) {
	subjectID, ok := subjectIDParam(w, r)
	if !ok {
		return
	}

	subj, err := h.subjects.Get(r.Context(), subjectID, middleware.GetUserID(r.Context()))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, subj)
}

func (h *SubjectHandler) AddEditor(w http.ResponseWriter, r *http.Request) {
	subjectID, ok := subjectIDParam(w, r)
	if !ok {
		return
	}

	var req models.AddEditorRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	user, err := h.subjects.AddEditor(r.Context(), subjectID, middleware.GetUserID(r.Context()), req.Email)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"subject_id": subjectID,
		"user_id":    user.ID,
		"email":      user.Email,
	})
}

func subjectIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid subject ID", r))
		return uuid.Nil, false
	}
	return id, true
}

// indexParam reads a non-negative position such as {unit} or {idx}.
func indexParam(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	n, err := strconv.Atoi(chi.URLParam(r, name))
	if err != nil || n < 0 {
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed",
			map[string]string{name: "must be a non-negative integer"}, r))
		return 0, false
	}
	return n, true
}
