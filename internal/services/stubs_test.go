package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"curriculum-planner/internal/models"
	"curriculum-planner/internal/timeline"
)

type stubSubjectStore struct {
	mu       sync.Mutex
	subjects map[uuid.UUID]*models.Subject
	editors  map[uuid.UUID][]uuid.UUID
	loads    int
	canEdit  error
}

func newStubSubjectStore() *stubSubjectStore {
	return &stubSubjectStore{
		subjects: make(map[uuid.UUID]*models.Subject),
		editors:  make(map[uuid.UUID][]uuid.UUID),
	}
}

func (s *stubSubjectStore) Create(ctx context.Context, subj *models.Subject) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	subj.ID = uuid.New()
	subj.CreatedAt = time.Now()
	cp := *subj
	s.subjects[subj.ID] = &cp
	return nil
}

func (s *stubSubjectStore) LoadSubject(ctx context.Context, id uuid.UUID) (*models.Subject, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads++
	subj, ok := s.subjects[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *subj
	return &cp, nil
}

func (s *stubSubjectStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Subject, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Subject, 0)
	for id, subj := range s.subjects {
		if subj.OwnerID == userID || s.isEditor(id, userID) {
			out = append(out, *subj)
		}
	}
	return out, nil
}

func (s *stubSubjectStore) isEditor(subjectID, userID uuid.UUID) bool {
	for _, e := range s.editors[subjectID] {
		if e == userID {
			return true
		}
	}
	return false
}

func (s *stubSubjectStore) CanEdit(ctx context.Context, subjectID, userID uuid.UUID) (bool, error) {
	if s.canEdit != nil {
		return false, s.canEdit
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	subj, ok := s.subjects[subjectID]
	if !ok {
		return false, nil
	}
	return subj.OwnerID == userID || s.isEditor(subjectID, userID), nil
}

func (s *stubSubjectStore) AddEditor(ctx context.Context, subjectID, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isEditor(subjectID, userID) {
		s.editors[subjectID] = append(s.editors[subjectID], userID)
	}
	return nil
}

func (s *stubSubjectStore) put(owner uuid.UUID, calendar, units string) uuid.UUID {
	id := uuid.New()
	s.subjects[id] = &models.Subject{
		ID:             id,
		OwnerID:        owner,
		Code:           "MAT-101",
		Name:           "Mathematics",
		CalendarConfig: []byte(calendar),
		Units:          []byte(units),
	}
	return id
}

type memSessionStore struct {
	mu        sync.Mutex
	plans     map[uuid.UUID]timeline.Plan
	timelines map[uuid.UUID]timeline.Timeline
}

func newMemSessionStore() *memSessionStore {
	return &memSessionStore{
		plans:     make(map[uuid.UUID]timeline.Plan),
		timelines: make(map[uuid.UUID]timeline.Timeline),
	}
}

func (m *memSessionStore) LoadPlan(ctx context.Context, id uuid.UUID) (*timeline.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.plans[id]
	if !ok {
		return nil, nil
	}
	cp := timeline.NewSession(p).Plan()
	return &cp, nil
}

func (m *memSessionStore) SavePlan(ctx context.Context, id uuid.UUID, p timeline.Plan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.plans[id] = timeline.NewSession(p).Plan()
	return nil
}

func (m *memSessionStore) LoadTimeline(ctx context.Context, id uuid.UUID) (*timeline.Timeline, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tl, ok := m.timelines[id]
	if !ok {
		return nil, nil
	}
	return &tl, nil
}

func (m *memSessionStore) SaveTimeline(ctx context.Context, id uuid.UUID, tl timeline.Timeline) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timelines[id] = tl
	return nil
}

func (m *memSessionStore) DeleteTimeline(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.timelines, id)
	return nil
}

type recordingQueue struct {
	mu   sync.Mutex
	jobs []models.Job
	err  error
}

func (q *recordingQueue) Enqueue(ctx context.Context, job *models.Job) error {
	if q.err != nil {
		return q.err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	job.ID = uuid.New()
	job.Type = models.JobTypeSubjectSave
	q.jobs = append(q.jobs, *job)
	return nil
}

func (q *recordingQueue) fields() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]string, len(q.jobs))
	for i, j := range q.jobs {
		out[i] = j.Field
	}
	return out
}

type recordingPublisher struct {
	mu       sync.Mutex
	messages []models.WSMessage
}

func (p *recordingPublisher) Publish(ctx context.Context, subjectID uuid.UUID, msg models.WSMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, msg)
	return nil
}

type stubUserStore struct {
	byEmail   map[string]*models.User
	byID      map[uuid.UUID]*models.User
	createErr error
}

func newStubUserStore() *stubUserStore {
	return &stubUserStore{byEmail: map[string]*models.User{}, byID: map[uuid.UUID]*models.User{}}
}

func (s *stubUserStore) Create(ctx context.Context, user *models.User) error {
	if s.createErr != nil {
		return s.createErr
	}
	user.ID = uuid.New()
	user.IsActive = true
	s.byEmail[user.Email] = user
	s.byID[user.ID] = user
	return nil
}

func (s *stubUserStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	u, ok := s.byEmail[email]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return u, nil
}

func (s *stubUserStore) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	u, ok := s.byID[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return u, nil
}

func (s *stubUserStore) UpdateLastLogin(ctx context.Context, userID uuid.UUID) error {
	if u, ok := s.byID[userID]; ok {
		now := time.Now()
		u.LastLoginAt = &now
	}
	return nil
}

type memRefreshStore struct {
	tokens map[string]uuid.UUID
}

func (m *memRefreshStore) Put(ctx context.Context, token string, userID uuid.UUID, ttl time.Duration) error {
	m.tokens[token] = userID
	return nil
}

func (m *memRefreshStore) Take(ctx context.Context, token string) (uuid.UUID, error) {
	id, ok := m.tokens[token]
	if !ok {
		return uuid.Nil, ErrRefreshTokenNotFound
	}
	delete(m.tokens, token)
	return id, nil
}

func (m *memRefreshStore) Delete(ctx context.Context, token string) error {
	delete(m.tokens, token)
	return nil
}
