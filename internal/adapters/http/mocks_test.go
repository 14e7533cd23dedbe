package web

import (
	"context"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"portal/internal/adapters/api"
	"portal/internal/adapters/http/middleware"
	auditStore "portal/internal/adapters/storage/audit"
	outboxStore "portal/internal/adapters/storage/outbox"
	"portal/internal/adapters/storage/wizard"
	"portal/internal/application/forms"
	"portal/internal/application/orchestrators"
	"portal/internal/domain/admin"
	"portal/internal/domain/audit"
	"portal/internal/domain/country"
	"portal/internal/domain/currency"
	"portal/internal/domain/language"
	"portal/internal/domain/outbox"
	"portal/internal/domain/portalsession"
	"portal/internal/domain/questionnaire"
	"portal/internal/domain/specialization"
	"portal/internal/domain/therapist"
	"portal/internal/domain/therapysession"
)

var testNow = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

// memCollection is an in-memory Collection keyed by id.
type memCollection[T any] struct {
	mu      sync.Mutex
	items   []T
	id      func(T) string
	setID   func(*T, string)
	err     error // returned by every call when set
	created []any
	patches []map[string]any
}

func (m *memCollection[T]) List(_ context.Context, _ *api.Session, q api.ListQuery) (api.Page[T], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return api.Page[T]{}, m.err
	}
	data := slices.Clone(m.items)
	return api.Page[T]{Data: data, Meta: api.Meta{Total: len(data), Page: max(q.Page, 1), Limit: q.Limit}}, nil
}

func (m *memCollection[T]) Get(_ context.Context, _ *api.Session, id string) (T, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var zero T
	if m.err != nil {
		return zero, m.err
	}
	for _, it := range m.items {
		if m.id(it) == id {
			return it, nil
		}
	}
	return zero, api.ErrNotFound
}

func (m *memCollection[T]) Create(_ context.Context, _ *api.Session, body any) (T, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var zero T
	if m.err != nil {
		return zero, m.err
	}
	m.created = append(m.created, body)
	item, ok := body.(T)
	if !ok {
		return zero, nil
	}
	if m.setID != nil {
		m.setID(&item, "new-1")
	}
	m.items = append(m.items, item)
	return item, nil
}

func (m *memCollection[T]) Update(_ context.Context, _ *api.Session, id string, body any) (T, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var zero T
	if m.err != nil {
		return zero, m.err
	}
	item := body.(T)
	for i, it := range m.items {
		if m.id(it) == id {
			m.items[i] = item
			return item, nil
		}
	}
	return zero, api.ErrNotFound
}

func (m *memCollection[T]) Patch(_ context.Context, _ *api.Session, id string, fields map[string]any) (T, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var zero T
	if m.err != nil {
		return zero, m.err
	}
	m.patches = append(m.patches, fields)
	for _, it := range m.items {
		if m.id(it) == id {
			return it, nil
		}
	}
	return zero, api.ErrNotFound
}

func (m *memCollection[T]) Delete(_ context.Context, _ *api.Session, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	for i, it := range m.items {
		if m.id(it) == id {
			m.items = slices.Delete(m.items, i, i+1)
			return nil
		}
	}
	return api.ErrNotFound
}

// questionsAPI serves both the question collection and QuestionsOf.
type questionsAPI struct {
	memCollection[questionnaire.Question]
	patchErr error
}

func (q *questionsAPI) QuestionsOf(_ context.Context, _ *api.Session, questionnaireID string) ([]questionnaire.Question, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return nil, q.err
	}
	var out []questionnaire.Question
	for _, it := range q.items {
		if it.QuestionnaireID == questionnaireID {
			out = append(out, it)
		}
	}
	return out, nil
}

func (q *questionsAPI) Patch(ctx context.Context, sess *api.Session, id string, fields map[string]any) (questionnaire.Question, error) {
	if q.patchErr != nil {
		return questionnaire.Question{}, q.patchErr
	}
	q.mu.Lock()
	q.patches = append(q.patches, fields)
	defer q.mu.Unlock()
	for i, it := range q.items {
		if it.ID == id {
			if o, ok := fields["order"].(float64); ok {
				it.Order = o
			}
			it.Version++
			q.items[i] = it
			return it, nil
		}
	}
	return questionnaire.Question{}, api.ErrNotFound
}

type mockAuth struct {
	result  api.LoginResult
	err     error
	logouts int
}

func (m *mockAuth) Login(_ context.Context, email, password string) (api.LoginResult, error) {
	return m.result, m.err
}

func (m *mockAuth) Logout(context.Context, *api.Session) error {
	m.logouts++
	return nil
}

type mockApplications struct {
	bodies []any
	err    error
}

func (m *mockApplications) Create(_ context.Context, _ *api.Session, body any) (therapist.Submitted, error) {
	if m.err != nil {
		return therapist.Submitted{}, m.err
	}
	m.bodies = append(m.bodies, body)
	return therapist.Submitted{ID: "app-1", Status: therapist.StatusSubmitted, CreatedAt: testNow}, nil
}

type mockSessions struct {
	mu       sync.Mutex
	sessions map[string]portalsession.Session
}

func (m *mockSessions) Create(_ context.Context, s portalsession.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
	return nil
}

func (m *mockSessions) Get(_ context.Context, id string) (portalsession.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return portalsession.Session{}, portalsession.ErrNotFound
	}
	return s, nil
}

func (m *mockSessions) SaveTokens(_ context.Context, id string, t api.Tokens) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.sessions[id]
	s.AccessToken, s.RefreshToken = t.AccessToken, t.RefreshToken
	m.sessions[id] = s
	return nil
}

func (m *mockSessions) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

func (m *mockSessions) DeleteExpired(context.Context) (int64, error) { return 0, nil }

type mockDrafts struct {
	drafts map[string]therapist.Draft
}

func (m *mockDrafts) Get(_ context.Context, ownerID string) (therapist.Draft, error) {
	d, ok := m.drafts[ownerID]
	if !ok {
		return therapist.Draft{}, wizard.ErrNotFound
	}
	return d, nil
}

func (m *mockDrafts) Save(_ context.Context, d therapist.Draft) error {
	m.drafts[d.OwnerID] = d
	return nil
}

func (m *mockDrafts) Delete(_ context.Context, ownerID string) error {
	delete(m.drafts, ownerID)
	return nil
}

type mockOutbox struct {
	mu      sync.Mutex
	entries map[string]outbox.Entry
}

func (m *mockOutbox) Enqueue(_ context.Context, e outbox.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[e.ID] = e
	return nil
}

func (m *mockOutbox) Get(_ context.Context, id string) (outbox.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return outbox.Entry{}, outboxStore.ErrNotFound
	}
	return e, nil
}

func (m *mockOutbox) Update(ctx context.Context, e outbox.Entry) error {
	if _, err := m.Get(ctx, e.ID); err != nil {
		return err
	}
	return m.Enqueue(ctx, e)
}

func (m *mockOutbox) Claim(context.Context, time.Time, time.Duration, int) ([]outbox.Entry, error) {
	return nil, nil
}

func (m *mockOutbox) List(_ context.Context, status string, limit int) ([]outbox.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []outbox.Entry
	for _, e := range m.entries {
		if e.Status == status && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *mockOutbox) Counts(context.Context) (map[string]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := map[string]int{}
	for _, e := range m.entries {
		counts[e.Status]++
	}
	return counts, nil
}

func (m *mockOutbox) PurgeFinished(context.Context, time.Time) (int64, error) { return 0, nil }

type mockAudit struct {
	mu     sync.Mutex
	events []audit.Event
}

func (m *mockAudit) Save(_ context.Context, e audit.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}

// List filters by category and honours the cursor over insertion order,
// newest first.
func (m *mockAudit) List(_ context.Context, f auditStore.Filter, limit int) ([]audit.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []audit.Event
	skipping := !f.Before.IsZero()
	for _, e := range slices.Backward(m.events) {
		if skipping {
			skipping = e.ID != f.Before.ID
			continue
		}
		if f.Category != "" && e.Category != f.Category {
			continue
		}
		if out = append(out, e); len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *mockAudit) Prune(context.Context, time.Time) (int64, error) { return 0, nil }

func (m *mockAudit) actions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, e := range m.events {
		out = append(out, string(e.Category)+"/"+string(e.Action))
	}
	return out
}

// fixture bundles a Server with the mocks behind it.
type fixture struct {
	srv            *Server
	auth           *mockAuth
	admins         *memCollection[admin.Admin]
	countries      *memCollection[country.Country]
	questionnaires *memCollection[questionnaire.Questionnaire]
	questions      *questionsAPI
	therapy        *memCollection[therapysession.Session]
	therapists     *memCollection[therapist.Summary]
	applications   *mockApplications
	sessions       *mockSessions
	drafts         *mockDrafts
	outbox         *mockOutbox
	audit          *mockAudit
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		auth: &mockAuth{},
		admins: &memCollection[admin.Admin]{
			id:    func(a admin.Admin) string { return a.ID },
			setID: func(a *admin.Admin, id string) { a.ID = id },
			items: []admin.Admin{
				{ID: "a1", Name: "Root", Email: "root@example.com", Role: admin.RoleSuperAdmin, Active: true, Version: 1},
				{ID: "a2", Name: "Ops", Email: "ops@example.com", Role: admin.RoleAdmin, Active: true, Version: 1},
			},
		},
		countries: &memCollection[country.Country]{
			id:    func(c country.Country) string { return c.ID },
			setID: func(c *country.Country, id string) { c.ID = id },
			items: []country.Country{{ID: "c1", Name: "New Zealand", ISOCode: "NZ", DialCode: "+64", CurrencyCode: "NZD", Active: true, Version: 1}},
		},
		questionnaires: &memCollection[questionnaire.Questionnaire]{
			id: func(q questionnaire.Questionnaire) string { return q.ID },
			items: []questionnaire.Questionnaire{
				{ID: "qn1", Title: "Intake", Status: questionnaire.StatusDraft, Version: 3},
			},
		},
		questions: &questionsAPI{memCollection: memCollection[questionnaire.Question]{
			id: func(q questionnaire.Question) string { return q.ID },
			items: []questionnaire.Question{
				{ID: "q1", QuestionnaireID: "qn1", Text: "How are you?", Type: questionnaire.TypeText, Order: 1, Version: 1},
				{ID: "q2", QuestionnaireID: "qn1", Text: "Sleep quality", Type: questionnaire.TypeScale, Order: 2, Version: 1},
				{ID: "q3", QuestionnaireID: "qn1", Text: "Goals", Type: questionnaire.TypeText, Order: 3, Version: 1},
			},
		}},
		therapy: &memCollection[therapysession.Session]{
			id: func(s therapysession.Session) string { return s.ID },
			items: []therapysession.Session{
				{ID: "s1", TherapistName: "Dr A", ClientName: "B", ScheduledAt: testNow.Add(48 * time.Hour), DurationMins: 50, Status: therapysession.StatusScheduled, Version: 2},
			},
		},
		therapists:   &memCollection[therapist.Summary]{id: func(s therapist.Summary) string { return s.ID }},
		applications: &mockApplications{},
		sessions:     &mockSessions{sessions: map[string]portalsession.Session{}},
		drafts:       &mockDrafts{drafts: map[string]therapist.Draft{}},
		outbox:       &mockOutbox{entries: map[string]outbox.Entry{}},
		audit:        &mockAudit{},
	}

	srv, err := NewServer(Deps{
		API: APIs{
			Auth:            f.auth,
			Admins:          f.admins,
			Countries:       f.countries,
			Currencies:      &memCollection[currency.Currency]{id: func(c currency.Currency) string { return c.ID }},
			Languages:       &memCollection[language.Language]{id: func(l language.Language) string { return l.ID }},
			Specializations: &memCollection[specialization.Specialization]{id: func(s specialization.Specialization) string { return s.ID }},
			Questionnaires:  f.questionnaires,
			Questions:       f.questions,
			QuestionLister:  f.questions,
			Sessions:        f.therapy,
			Therapists:      f.therapists,
			Applications:    f.applications,
		},
		Sessions:   f.sessions,
		Drafts:     f.drafts,
		Outbox:     f.outbox,
		Audit:      f.audit,
		Worker:     orchestrators.NewOutboxWorker(f.outbox, nil),
		Validator:  forms.New(),
		Now:        func() time.Time { return testNow },
		GenerateID: func() string { return "sess-1" },
	}, Options{
		CSRFKey:    []byte(strings.Repeat("k", 32)),
		SessionTTL: time.Hour,
		ContactTo:  "team@example.com",
	})
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	f.srv = srv
	return f
}

// serve runs req through the routes with sess signed in (nil for anonymous).
func (f *fixture) serve(req *http.Request, sess *portalsession.Session) *httptest.ResponseRecorder {
	if sess != nil {
		req = req.WithContext(middleware.ContextWithSession(req.Context(), *sess))
	}
	rr := httptest.NewRecorder()
	f.srv.Routes().ServeHTTP(rr, req)
	return rr
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return req
}

var (
	superAdmin = &portalsession.Session{ID: "s-super", UserID: "a1", Email: "root@example.com", Name: "Root", Role: admin.RoleSuperAdmin, ExpiresAt: testNow.Add(time.Hour)}
	staffAdmin = &portalsession.Session{ID: "s-admin", UserID: "a2", Email: "ops@example.com", Name: "Ops", Role: admin.RoleAdmin, ExpiresAt: testNow.Add(time.Hour)}
	therapistU = &portalsession.Session{ID: "s-ther", UserID: "t1", Email: "t@example.com", Name: "Tess", Role: admin.RoleTherapist, ExpiresAt: testNow.Add(time.Hour)}
)
