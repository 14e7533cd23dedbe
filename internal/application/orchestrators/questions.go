package orchestrators

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"portal/internal/adapters/api"
	"portal/internal/domain/audit"
	"portal/internal/domain/ordering"
	"portal/internal/domain/questionnaire"
)

// QuestionInput is the editable part of a question.
type QuestionInput struct {
	Text     string
	Type     string
	Options  []string
	Required bool
}

func (in QuestionInput) normalized() QuestionInput {
	in.Text = strings.TrimSpace(in.Text)
	opts := make([]string, 0, len(in.Options))
	for _, o := range in.Options {
		if o = strings.TrimSpace(o); o != "" {
			opts = append(opts, o)
		}
	}
	in.Options = opts
	return in
}

// CreateQuestionInput carries input for ExecuteCreateQuestion.
type CreateQuestionInput struct {
	Session         *api.Session
	Actor           Actor
	QuestionnaireID string
	Question        QuestionInput
}

// QuestionDeps holds dependencies for the question orchestrators.
type QuestionDeps struct {
	Lister    QuestionLister
	Questions QuestionResource
	Audit     AuditRecorder
	Now       func() time.Time
}

// ExecuteCreateQuestion appends a question to the end of its questionnaire.
// PRE: QuestionnaireID is non-empty
// POST: the question is created with an order one past the current maximum
func ExecuteCreateQuestion(ctx context.Context, input CreateQuestionInput, deps QuestionDeps) (questionnaire.Question, error) {
	in := input.Question.normalized()
	q := questionnaire.Question{
		QuestionnaireID: input.QuestionnaireID,
		Text:            in.Text,
		Type:            in.Type,
		Options:         in.Options,
		Required:        in.Required,
	}
	if err := q.Validate(); err != nil {
		return questionnaire.Question{}, err
	}

	siblings, err := deps.Lister.QuestionsOf(ctx, input.Session, input.QuestionnaireID)
	if err != nil {
		return questionnaire.Question{}, fmt.Errorf("load questions: %w", err)
	}
	q.Order = ordering.NextOrder(questionnaire.OrderItems(siblings))

	created, err := deps.Questions.Create(ctx, input.Session, q)
	if err != nil {
		return questionnaire.Question{}, fmt.Errorf("create question: %w", err)
	}
	slog.Info("question_created", "questionnaire_id", input.QuestionnaireID, "question_id", created.ID, "order", created.Order)
	recordAudit(ctx, deps.Audit, input.Actor.event(nowFunc(deps.Now)(), audit.CategoryQuestionnaire, audit.ActionCreate).
		WithResource("question", created.ID))
	return created, nil
}

// UpdateQuestionInput carries input for ExecuteUpdateQuestion.
type UpdateQuestionInput struct {
	Session    *api.Session
	Actor      Actor
	QuestionID string
	Version    int
	Question   QuestionInput
}

// ExecuteUpdateQuestion edits a question's content.
// POST: text, type, options and required are saved; order is untouched
// INVARIANT: Version is the one the editor loaded, so a stale edit is rejected
func ExecuteUpdateQuestion(ctx context.Context, input UpdateQuestionInput, deps QuestionDeps) (questionnaire.Question, error) {
	existing, err := deps.Questions.Get(ctx, input.Session, input.QuestionID)
	if err != nil {
		return questionnaire.Question{}, fmt.Errorf("load question: %w", err)
	}
	in := input.Question.normalized()
	existing.Text = in.Text
	existing.Type = in.Type
	existing.Options = in.Options
	existing.Required = in.Required
	if err := existing.Validate(); err != nil {
		return questionnaire.Question{}, err
	}

	saved, err := deps.Questions.Patch(ctx, input.Session, input.QuestionID, map[string]any{
		"text":     existing.Text,
		"type":     existing.Type,
		"options":  existing.Options,
		"required": existing.Required,
		"version":  input.Version,
	})
	if err != nil {
		return questionnaire.Question{}, fmt.Errorf("update question: %w", err)
	}
	recordAudit(ctx, deps.Audit, input.Actor.event(nowFunc(deps.Now)(), audit.CategoryQuestionnaire, audit.ActionUpdate).
		WithResource("question", input.QuestionID))
	return saved, nil
}

// DeleteQuestionInput carries input for ExecuteDeleteQuestion.
type DeleteQuestionInput struct {
	Session    *api.Session
	Actor      Actor
	QuestionID string
}

// ExecuteDeleteQuestion removes a question.
// POST: remaining siblings keep their order keys; gaps are fine
func ExecuteDeleteQuestion(ctx context.Context, input DeleteQuestionInput, deps QuestionDeps) error {
	if err := deps.Questions.Delete(ctx, input.Session, input.QuestionID); err != nil {
		return fmt.Errorf("delete question: %w", err)
	}
	slog.Info("question_deleted", "question_id", input.QuestionID)
	recordAudit(ctx, deps.Audit, input.Actor.event(nowFunc(deps.Now)(), audit.CategoryQuestionnaire, audit.ActionDelete).
		WithResource("question", input.QuestionID))
	return nil
}
