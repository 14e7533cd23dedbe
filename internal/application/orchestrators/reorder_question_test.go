package orchestrators

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"portal/internal/adapters/api"
	"portal/internal/domain/audit"
	"portal/internal/domain/questionnaire"
)

func question(id string, order float64) questionnaire.Question {
	return questionnaire.Question{
		ID:              id,
		QuestionnaireID: "qn-1",
		Text:            "Question " + id,
		Type:            questionnaire.TypeText,
		Order:           order,
		Version:         1,
	}
}

func reorderDeps(m *mockQuestionAPI, a *mockAudit) ReorderQuestionDeps {
	return ReorderQuestionDeps{Lister: m, Questions: m, Audit: a, Now: testNow}
}

func reorder(m *mockQuestionAPI, a *mockAudit, id string, to int) (ReorderQuestionResult, error) {
	return ExecuteReorderQuestion(context.Background(), ReorderQuestionInput{
		Session:         testSess,
		Actor:           testActor,
		QuestionnaireID: "qn-1",
		QuestionID:      id,
		NewIndex:        to,
	}, reorderDeps(m, a))
}

func resultIDs(qs []questionnaire.Question) []string {
	out := make([]string, len(qs))
	for i, q := range qs {
		out[i] = q.ID
	}
	return out
}

// TestReorder_MiddleWritesOnlyMovedItem moves the last question between the
// first two and expects one write with the midpoint key.
func TestReorder_MiddleWritesOnlyMovedItem(t *testing.T) {
	m := newMockQuestionAPI(question("q1", 1), question("q2", 2), question("q3", 3), question("q4", 4))
	a := &mockAudit{}

	res, err := reorder(m, a, "q4", 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff([]string{"q4"}, m.patches); diff != "" {
		t.Errorf("patches (-want +got):\n%s", diff)
	}
	if got := m.questions["q4"].Order; got != 1.5 {
		t.Errorf("q4 order = %v, want 1.5", got)
	}
	want := []string{"q1", "q4", "q2", "q3"}
	if diff := cmp.Diff(want, resultIDs(res.Questions)); diff != "" {
		t.Errorf("result order (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want, m.order("qn-1")); diff != "" {
		t.Errorf("server order (-want +got):\n%s", diff)
	}
	if res.Renumbered {
		t.Error("expected no renumbering")
	}
	if res.Questions[1].Version != 2 {
		t.Errorf("moved question version = %d, want 2", res.Questions[1].Version)
	}
	if diff := cmp.Diff([]audit.Action{audit.ActionReorder}, a.actions()); diff != "" {
		t.Errorf("audit (-want +got):\n%s", diff)
	}
}

// TestReorder_ToFront halves the first key.
func TestReorder_ToFront(t *testing.T) {
	m := newMockQuestionAPI(question("q1", 1), question("q2", 2), question("q3", 3))

	res, err := reorder(m, &mockAudit{}, "q3", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := m.questions["q3"].Order; got != 0.5 {
		t.Errorf("q3 order = %v, want 0.5", got)
	}
	if diff := cmp.Diff([]string{"q3", "q1", "q2"}, resultIDs(res.Questions)); diff != "" {
		t.Errorf("order (-want +got):\n%s", diff)
	}
}

// TestReorder_ToEnd uses last key plus one.
func TestReorder_ToEnd(t *testing.T) {
	m := newMockQuestionAPI(question("q1", 1), question("q2", 2), question("q3", 3))

	if _, err := reorder(m, &mockAudit{}, "q1", 2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := m.questions["q1"].Order; got != 4 {
		t.Errorf("q1 order = %v, want 4", got)
	}
	if len(m.patches) != 1 {
		t.Errorf("patches = %v, want one", m.patches)
	}
}

// TestReorder_TiedKeysRenumber falls back to 1..n when neighbours share a key.
func TestReorder_TiedKeysRenumber(t *testing.T) {
	m := newMockQuestionAPI(question("q1", 1), question("q2", 1), question("q3", 1))

	a := &mockAudit{}
	res, err := reorder(m, a, "q3", 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Renumbered {
		t.Error("expected renumbering")
	}
	if len(a.events) != 1 {
		t.Fatalf("audited %d events, want 1", len(a.events))
	}
	if diff := cmp.Diff(map[string]string{"renumbered": "true", "writes": "2"}, a.events[0].Details); diff != "" {
		t.Errorf("audit details (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"q3", "q2"}, m.patches); diff != "" {
		t.Errorf("patches (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"q1", "q3", "q2"}, m.order("qn-1")); diff != "" {
		t.Errorf("server order (-want +got):\n%s", diff)
	}
}

// TestReorder_VersionConflictNotRetried surfaces the conflict with the
// pre-move order and makes no second attempt.
func TestReorder_VersionConflictNotRetried(t *testing.T) {
	m := newMockQuestionAPI(question("q1", 1), question("q2", 2), question("q3", 3))
	m.failPatch["q3"] = &api.APIError{Status: 409, Message: "changed"}
	a := &mockAudit{}

	_, err := reorder(m, a, "q3", 0)
	if !errors.Is(err, api.ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}
	var rerr *ReorderError
	if !errors.As(err, &rerr) {
		t.Fatalf("expected *ReorderError, got %T", err)
	}
	if diff := cmp.Diff([]string{"q1", "q2", "q3"}, resultIDs(rerr.Questions)); diff != "" {
		t.Errorf("known-good order (-want +got):\n%s", diff)
	}
	if len(m.patches) != 1 {
		t.Errorf("patches = %v, want exactly one attempt", m.patches)
	}
	if len(a.events) != 0 {
		t.Errorf("failed reorder should not be audited, got %d events", len(a.events))
	}
}

// TestReorder_PartialRenumberReportsServerState keeps writes that landed
// before the failure in the known-good order.
func TestReorder_PartialRenumberReportsServerState(t *testing.T) {
	m := newMockQuestionAPI(question("q1", 1), question("q2", 1), question("q3", 1))
	m.failPatch["q2"] = errors.New("connection reset")

	_, err := reorder(m, &mockAudit{}, "q3", 1)
	var rerr *ReorderError
	if !errors.As(err, &rerr) {
		t.Fatalf("expected *ReorderError, got %v", err)
	}
	got := rerr.Questions
	if diff := cmp.Diff([]string{"q1", "q2", "q3"}, resultIDs(got)); diff != "" {
		t.Errorf("known-good order (-want +got):\n%s", diff)
	}
	if got[2].Order != 2 {
		t.Errorf("q3 order = %v, want 2 (write that succeeded)", got[2].Order)
	}
}

// TestReorder_InputErrors covers unknown ids, bad indexes and no-op moves.
func TestReorder_InputErrors(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		to      int
		wantErr error
	}{
		{"unknown question", "q9", 0, ErrQuestionNotFound},
		{"negative index", "q1", -1, ErrIndexOutOfRange},
		{"index past end", "q1", 3, ErrIndexOutOfRange},
		{"same position", "q2", 1, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newMockQuestionAPI(question("q1", 1), question("q2", 2), question("q3", 3))
			res, err := reorder(m, &mockAudit{}, tt.id, tt.to)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if len(m.patches) != 0 {
				t.Errorf("expected no writes, got %v", m.patches)
			}
			if tt.wantErr == nil && len(res.Questions) != 3 {
				t.Errorf("expected current order returned, got %d questions", len(res.Questions))
			}
		})
	}
}

// TestReorder_LoadFailure wraps the listing error.
func TestReorder_LoadFailure(t *testing.T) {
	m := newMockQuestionAPI()
	m.listErr = api.ErrUnauthorized

	_, err := reorder(m, &mockAudit{}, "q1", 0)
	if !errors.Is(err, api.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

// TestReorder_RepeatedBisectionStaysOrdered drags an item into the same gap
// until precision runs out and checks the list never loses its order.
func TestReorder_RepeatedBisectionStaysOrdered(t *testing.T) {
	m := newMockQuestionAPI(question("a", 1), question("b", 2), question("c", 3))
	renumbered := false
	for i := 0; i < 80; i++ {
		// alternately move the last item into position 1
		ids := m.order("qn-1")
		res, err := reorder(m, &mockAudit{}, ids[2], 1)
		if err != nil {
			t.Fatalf("move %d: %v", i, err)
		}
		renumbered = renumbered || res.Renumbered
		want := []string{ids[0], ids[2], ids[1]}
		if diff := cmp.Diff(want, m.order("qn-1")); diff != "" {
			t.Fatalf("move %d order (-want +got):\n%s", i, diff)
		}
	}
	if !renumbered {
		t.Error("expected precision exhaustion to trigger a renumber")
	}
}
