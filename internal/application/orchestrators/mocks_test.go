package orchestrators

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"portal/internal/adapters/api"
	"portal/internal/adapters/email"
	outboxStore "portal/internal/adapters/storage/outbox"
	"portal/internal/adapters/storage/wizard"
	"portal/internal/domain/audit"
	"portal/internal/domain/outbox"
	"portal/internal/domain/portalsession"
	"portal/internal/domain/questionnaire"
	"portal/internal/domain/therapist"
)

var testTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testNow() time.Time { return testTime }

var testSess = api.NewSession("sess-1", api.Tokens{AccessToken: "a", RefreshToken: "r"}, nil)

var testActor = Actor{ID: "u-1", Email: "ana@example.com", Role: "admin"}

// mockAudit records audit events.
type mockAudit struct {
	events []audit.Event
	err    error
}

func (m *mockAudit) Save(_ context.Context, e audit.Event) error {
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, e)
	return nil
}

func (m *mockAudit) actions() []audit.Action {
	out := make([]audit.Action, len(m.events))
	for i, e := range m.events {
		out[i] = e.Action
	}
	return out
}

// mockQuestionAPI emulates the questions collection with per-item versions.
type mockQuestionAPI struct {
	mu        sync.Mutex
	questions map[string]questionnaire.Question
	listErr   error
	failPatch map[string]error
	patches   []string
	created   []questionnaire.Question
	deleted   []string
}

func newMockQuestionAPI(qs ...questionnaire.Question) *mockQuestionAPI {
	m := &mockQuestionAPI{questions: map[string]questionnaire.Question{}, failPatch: map[string]error{}}
	for _, q := range qs {
		m.questions[q.ID] = q
	}
	return m
}

func (m *mockQuestionAPI) QuestionsOf(_ context.Context, _ *api.Session, qnID string) ([]questionnaire.Question, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []questionnaire.Question
	for _, q := range m.questions {
		if q.QuestionnaireID == qnID {
			out = append(out, q)
		}
	}
	slices.SortFunc(out, func(a, b questionnaire.Question) int {
		return cmp.Or(cmp.Compare(a.Order, b.Order), cmp.Compare(a.ID, b.ID))
	})
	return out, nil
}

func (m *mockQuestionAPI) Get(_ context.Context, _ *api.Session, id string) (questionnaire.Question, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.questions[id]
	if !ok {
		return questionnaire.Question{}, api.ErrNotFound
	}
	return q, nil
}

func (m *mockQuestionAPI) Create(_ context.Context, _ *api.Session, body any) (questionnaire.Question, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q := body.(questionnaire.Question)
	q.ID = fmt.Sprintf("q-new-%d", len(m.created)+1)
	q.Version = 1
	m.questions[q.ID] = q
	m.created = append(m.created, q)
	return q, nil
}

func (m *mockQuestionAPI) Patch(_ context.Context, _ *api.Session, id string, fields map[string]any) (questionnaire.Question, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.patches = append(m.patches, id)
	if err := m.failPatch[id]; err != nil {
		return questionnaire.Question{}, err
	}
	q, ok := m.questions[id]
	if !ok {
		return questionnaire.Question{}, api.ErrNotFound
	}
	if v, ok := fields["version"].(int); ok && v != q.Version {
		return questionnaire.Question{}, &api.APIError{Status: 409, Message: "stale"}
	}
	if o, ok := fields["order"].(float64); ok {
		q.Order = o
	}
	if t, ok := fields["text"].(string); ok {
		q.Text = t
	}
	if opts, ok := fields["options"].([]string); ok {
		q.Options = opts
	}
	q.Version++
	m.questions[id] = q
	return q, nil
}

func (m *mockQuestionAPI) Delete(_ context.Context, _ *api.Session, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.questions[id]; !ok {
		return api.ErrNotFound
	}
	delete(m.questions, id)
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *mockQuestionAPI) order(qnID string) []string {
	qs, _ := m.QuestionsOf(context.Background(), nil, qnID)
	ids := make([]string, len(qs))
	for i, q := range qs {
		ids[i] = q.ID
	}
	return ids
}

// mockAuth stands in for the API's auth endpoints.
type mockAuth struct {
	password  string
	forbidden bool
	loginErr  error
	logoutErr error
	logouts   int
}

func (m *mockAuth) Login(_ context.Context, email, password string) (api.LoginResult, error) {
	if m.loginErr != nil {
		return api.LoginResult{}, m.loginErr
	}
	if m.forbidden {
		return api.LoginResult{}, &api.APIError{Status: 403}
	}
	if password != m.password {
		return api.LoginResult{}, fmt.Errorf("login: %w", &api.APIError{Status: 401, Message: "bad credentials"})
	}
	return api.LoginResult{
		Tokens: api.Tokens{AccessToken: "acc", RefreshToken: "ref"},
		User:   api.Principal{ID: "u-1", Email: email, Name: "Ana", Role: "admin"},
	}, nil
}

func (m *mockAuth) Logout(_ context.Context, _ *api.Session) error {
	m.logouts++
	return m.logoutErr
}

// mockSessionStore keeps portal sessions in memory.
type mockSessionStore struct {
	sessions map[string]portalsession.Session
}

func newMockSessionStore() *mockSessionStore {
	return &mockSessionStore{sessions: map[string]portalsession.Session{}}
}

func (m *mockSessionStore) Create(_ context.Context, s portalsession.Session) error {
	if err := s.Validate(); err != nil {
		return err
	}
	m.sessions[s.ID] = s
	return nil
}

func (m *mockSessionStore) Delete(_ context.Context, id string) error {
	delete(m.sessions, id)
	return nil
}

// mockDrafts implements wizard.Store in memory.
type mockDrafts struct {
	drafts  map[string]therapist.Draft
	deleted []string
}

var _ wizard.Store = (*mockDrafts)(nil)

func newMockDrafts() *mockDrafts {
	return &mockDrafts{drafts: map[string]therapist.Draft{}}
}

func (m *mockDrafts) Get(_ context.Context, owner string) (therapist.Draft, error) {
	d, ok := m.drafts[owner]
	if !ok {
		return therapist.Draft{}, wizard.ErrNotFound
	}
	return d, nil
}

func (m *mockDrafts) Save(_ context.Context, d therapist.Draft) error {
	m.drafts[d.OwnerID] = d
	return nil
}

func (m *mockDrafts) Delete(_ context.Context, owner string) error {
	delete(m.drafts, owner)
	m.deleted = append(m.deleted, owner)
	return nil
}

// mockOutbox implements the outbox store in memory, with the same claim
// rules as the sqlite store.
type mockOutbox struct {
	mu        sync.Mutex
	entries   map[string]outbox.Entry
	order     []string
	claimErr  error
	updateErr error
	purged    []time.Time
}

func newMockOutbox() *mockOutbox {
	return &mockOutbox{entries: map[string]outbox.Entry{}}
}

func (m *mockOutbox) Enqueue(_ context.Context, e outbox.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.order = append(m.order, e.ID)
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

func (m *mockOutbox) Update(_ context.Context, e outbox.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	if _, ok := m.entries[e.ID]; !ok {
		return outboxStore.ErrNotFound
	}
	m.entries[e.ID] = e
	return nil
}

func (m *mockOutbox) Claim(_ context.Context, now time.Time, lease time.Duration, limit int) ([]outbox.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.claimErr != nil {
		return nil, m.claimErr
	}
	var out []outbox.Entry
	for _, id := range m.order {
		e := m.entries[id]
		if len(out) == limit || !e.Claimable(now) {
			continue
		}
		e.Claim(now, lease)
		m.entries[id] = e
		out = append(out, e)
	}
	return out, nil
}

func (m *mockOutbox) List(_ context.Context, status string, limit int) ([]outbox.Entry, error) {
	var out []outbox.Entry
	for _, e := range m.all() {
		if e.Status == status && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *mockOutbox) Counts(context.Context) (map[string]int, error) { return nil, nil }

func (m *mockOutbox) PurgeFinished(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purged = append(m.purged, cutoff)
	return 0, nil
}

func (m *mockOutbox) get(id string) outbox.Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries[id]
}

func (m *mockOutbox) all() []outbox.Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]outbox.Entry, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.entries[id])
	}
	return out
}

// mockSender records sent mail and fails while failures > 0.
type mockSender struct {
	mu       sync.Mutex
	sent     []email.SendRequest
	failures int
	err      error // returned instead of the generic failure
}

func (m *mockSender) Send(_ context.Context, req email.SendRequest) (email.SendResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return email.SendResult{}, m.err
	}
	if m.failures > 0 {
		m.failures--
		return email.SendResult{}, errors.New("provider down")
	}
	m.sent = append(m.sent, req)
	return email.SendResult{MessageID: fmt.Sprintf("msg-%d", len(m.sent)), SentAt: testTime}, nil
}
