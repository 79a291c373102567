package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"curriculum-planner/internal/middleware"
	"curriculum-planner/internal/models"
	"curriculum-planner/internal/timeline"
)

// withRoute attaches chi URL params and an authenticated user to r.
func withRoute(r *http.Request, userID uuid.UUID, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	ctx := context.WithValue(r.Context(), chi.RouteCtxKey, rctx)
	ctx = context.WithValue(ctx, middleware.UserIDKey, userID)
	return r.WithContext(ctx)
}

type stubSubjects struct {
	mu       sync.Mutex
	subjects map[uuid.UUID]*models.Subject
	editors  map[uuid.UUID][]uuid.UUID
}

func newStubSubjects() *stubSubjects {
	return &stubSubjects{
		subjects: make(map[uuid.UUID]*models.Subject),
		editors:  make(map[uuid.UUID][]uuid.UUID),
	}
}

func (s *stubSubjects) put(owner uuid.UUID, calendar, units string) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.New()
	s.subjects[id] = &models.Subject{
		ID:             id,
		OwnerID:        owner,
		Code:           "HIS-2",
		Name:           "History",
		CalendarConfig: []byte(calendar),
		Units:          []byte(units),
	}
	return id
}

func (s *stubSubjects) Create(ctx context.Context, subj *models.Subject) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	subj.ID = uuid.New()
	subj.CreatedAt = time.Now()
	subj.UpdatedAt = subj.CreatedAt
	cp := *subj
	s.subjects[subj.ID] = &cp
	return nil
}

func (s *stubSubjects) LoadSubject(ctx context.Context, id uuid.UUID) (*models.Subject, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	subj, ok := s.subjects[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *subj
	return &cp, nil
}

func (s *stubSubjects) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Subject, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Subject
	for id, subj := range s.subjects {
		if subj.OwnerID == userID || s.isEditor(id, userID) {
			out = append(out, *subj)
		}
	}
	return out, nil
}

func (s *stubSubjects) isEditor(subjectID, userID uuid.UUID) bool {
	for _, e := range s.editors[subjectID] {
		if e == userID {
			return true
		}
	}
	return false
}

func (s *stubSubjects) CanEdit(ctx context.Context, subjectID, userID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	subj, ok := s.subjects[subjectID]
	if !ok {
		return false, nil
	}
	return subj.OwnerID == userID || s.isEditor(subjectID, userID), nil
}

func (s *stubSubjects) AddEditor(ctx context.Context, subjectID, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.editors[subjectID] = append(s.editors[subjectID], userID)
	return nil
}

type memSessions struct {
	mu        sync.Mutex
	plans     map[uuid.UUID]timeline.Plan
	timelines map[uuid.UUID]timeline.Timeline
}

func newMemSessions() *memSessions {
	return &memSessions{
		plans:     make(map[uuid.UUID]timeline.Plan),
		timelines: make(map[uuid.UUID]timeline.Timeline),
	}
}

func (m *memSessions) LoadPlan(ctx context.Context, id uuid.UUID) (*timeline.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.plans[id]
	if !ok {
		return nil, nil
	}
	cp := timeline.NewSession(p).Plan()
	return &cp, nil
}

func (m *memSessions) SavePlan(ctx context.Context, id uuid.UUID, p timeline.Plan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.plans[id] = timeline.NewSession(p).Plan()
	return nil
}

func (m *memSessions) LoadTimeline(ctx context.Context, id uuid.UUID) (*timeline.Timeline, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tl, ok := m.timelines[id]
	if !ok {
		return nil, nil
	}
	return &tl, nil
}

func (m *memSessions) SaveTimeline(ctx context.Context, id uuid.UUID, tl timeline.Timeline) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timelines[id] = tl
	return nil
}

func (m *memSessions) DeleteTimeline(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.timelines, id)
	return nil
}

type nopQueue struct {
	mu   sync.Mutex
	jobs []models.Job
}

func (q *nopQueue) Enqueue(ctx context.Context, job *models.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	job.ID = uuid.New()
	q.jobs = append(q.jobs, *job)
	return nil
}

type nopPublisher struct{}

func (nopPublisher) Publish(ctx context.Context, subjectID uuid.UUID, msg models.WSMessage) error {
	return nil
}

type stubUsers struct {
	mu      sync.Mutex
	byEmail map[string]*models.User
	byID    map[uuid.UUID]*models.User
}

func newStubUsers() *stubUsers {
	return &stubUsers{byEmail: map[string]*models.User{}, byID: map[uuid.UUID]*models.User{}}
}

func (s *stubUsers) Create(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user.ID = uuid.New()
	user.IsActive = true
	s.byEmail[user.Email] = user
	s.byID[user.ID] = user
	return nil
}

func (s *stubUsers) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byEmail[email]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return u, nil
}

func (s *stubUsers) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return u, nil
}

func (s *stubUsers) UpdateLastLogin(ctx context.Context, userID uuid.UUID) error {
	return nil
}
