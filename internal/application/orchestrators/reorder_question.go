package orchestrators

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"portal/internal/adapters/api"
	"portal/internal/domain/audit"
	"portal/internal/domain/ordering"
	"portal/internal/domain/questionnaire"
)

// QuestionLister returns every question of a questionnaire in display order.
type QuestionLister interface {
	QuestionsOf(ctx context.Context, sess *api.Session, questionnaireID string) ([]questionnaire.Question, error)
}

// QuestionResource is the question collection of the API.
// *api.Resource[questionnaire.Question] satisfies it.
type QuestionResource interface {
	Get(ctx context.Context, sess *api.Session, id string) (questionnaire.Question, error)
	Create(ctx context.Context, sess *api.Session, body any) (questionnaire.Question, error)
	Patch(ctx context.Context, sess *api.Session, id string, fields map[string]any) (questionnaire.Question, error)
	Delete(ctx context.Context, sess *api.Session, id string) error
}

var (
	ErrQuestionNotFound = errors.New("question is not part of this questionnaire")
	ErrIndexOutOfRange  = errors.New("target position is outside the list")
)

// ReorderError reports a failed reorder together with the ordering the server
// is known to hold, so the caller can revert its optimistic view.
type ReorderError struct {
	Err       error
	Questions []questionnaire.Question
}

// Error implements error.
func (e *ReorderError) Error() string { return "reorder question: " + e.Err.Error() }

// Unwrap exposes the cause (api.ErrVersionConflict, api.ErrUnauthorized, ...).
func (e *ReorderError) Unwrap() error { return e.Err }

// ReorderQuestionInput carries input for ExecuteReorderQuestion.
type ReorderQuestionInput struct {
	Session         *api.Session
	Actor           Actor
	QuestionnaireID string
	QuestionID      string
	NewIndex        int
}

// ReorderQuestionResult is the confirmed order after a move.
type ReorderQuestionResult struct {
	Questions  []questionnaire.Question
	Updates    []ordering.Update
	Renumbered bool
}

// ReorderQuestionDeps holds dependencies for ExecuteReorderQuestion.
type ReorderQuestionDeps struct {
	Lister    QuestionLister
	Questions QuestionResource
	Audit     AuditRecorder
	Now       func() time.Time
}

// ExecuteReorderQuestion moves one question to NewIndex among its siblings.
// The siblings are re-read from the API first, so the new key is computed
// from confirmed server state rather than from what the browser last saw.
// Each write carries the item's version; a concurrent edit surfaces as
// api.ErrVersionConflict and is not retried.
// PRE: QuestionnaireID and QuestionID are non-empty
// POST: on success, Questions is the server order after the move; on failure
// the error is a *ReorderError holding the last known server order
// INVARIANT: only the moved question is written unless its key cannot fit
// between its neighbours, in which case the list is renumbered 1..n
func ExecuteReorderQuestion(ctx context.Context, input ReorderQuestionInput, deps ReorderQuestionDeps) (ReorderQuestionResult, error) {
	current, err := deps.Lister.QuestionsOf(ctx, input.Session, input.QuestionnaireID)
	if err != nil {
		return ReorderQuestionResult{}, &ReorderError{Err: fmt.Errorf("load questions: %w", err)}
	}
	questionnaire.SortQuestions(current)

	items := questionnaire.OrderItems(current)
	from := ordering.IndexOf(items, input.QuestionID)
	if from < 0 {
		return ReorderQuestionResult{}, &ReorderError{Err: ErrQuestionNotFound, Questions: current}
	}
	if input.NewIndex < 0 || input.NewIndex >= len(items) {
		return ReorderQuestionResult{}, &ReorderError{Err: ErrIndexOutOfRange, Questions: current}
	}
	if from == input.NewIndex {
		return ReorderQuestionResult{Questions: current}, nil
	}

	moved := ordering.Move(items, from, input.NewIndex)
	updates, renumbered := ordering.Plan(moved, input.NewIndex)

	byID := make(map[string]int, len(current))
	for i, q := range current {
		byID[q.ID] = i
	}
	for _, u := range updates {
		i := byID[u.ID]
		saved, err := deps.Questions.Patch(ctx, input.Session, u.ID, map[string]any{
			"order":   u.Order,
			"version": current[i].Version,
		})
		if err != nil {
			slog.Warn("reorder_failed",
				"questionnaire_id", input.QuestionnaireID,
				"question_id", u.ID,
				"error", err)
			known := append([]questionnaire.Question(nil), current...)
			questionnaire.SortQuestions(known)
			return ReorderQuestionResult{}, &ReorderError{
				Err:       fmt.Errorf("save order of %s: %w", u.ID, err),
				Questions: known,
			}
		}
		if saved.ID == "" {
			saved = current[i]
			saved.Order = u.Order
			saved.Version++
		}
		current[i] = saved
	}
	questionnaire.SortQuestions(current)

	slog.Info("question_reordered",
		"questionnaire_id", input.QuestionnaireID,
		"question_id", input.QuestionID,
		"new_index", input.NewIndex,
		"writes", len(updates),
		"renumbered", renumbered)
	ev := input.Actor.event(nowFunc(deps.Now)(), audit.CategoryQuestionnaire, audit.ActionReorder).
		WithResource("question", input.QuestionID).
		WithDescription(fmt.Sprintf("moved to position %d in %s", input.NewIndex+1, input.QuestionnaireID))
	if renumbered {
		ev = ev.WithDetail("renumbered", "true").WithDetail("writes", strconv.Itoa(len(updates)))
	}
	recordAudit(ctx, deps.Audit, ev)

	return ReorderQuestionResult{Questions: current, Updates: updates, Renumbered: renumbered}, nil
}
