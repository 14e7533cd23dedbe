package projections

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"portal/internal/adapters/api"
	"portal/internal/domain/questionnaire"
)

// QuestionsOfLister lists a questionnaire's questions. *api.Services satisfies it.
type QuestionsOfLister interface {
	QuestionsOf(ctx context.Context, sess *api.Session, questionnaireID string) ([]questionnaire.Question, error)
}

// GetQuestionnaireDetailQuery carries input for the detail projection.
type GetQuestionnaireDetailQuery struct {
	Session         *api.Session
	QuestionnaireID string
}

// GetQuestionnaireDetailDeps holds dependencies for the detail projection.
type GetQuestionnaireDetailDeps struct {
	Questionnaires Getter[questionnaire.Questionnaire]
	Questions      QuestionsOfLister
}

// QuestionnaireDetail is a questionnaire with its questions in display order.
type QuestionnaireDetail struct {
	Questionnaire questionnaire.Questionnaire
	Questions     []questionnaire.Question
	Editable      bool
}

// QueryGetQuestionnaireDetail loads a questionnaire and its questions in parallel.
// PRE: QuestionnaireID is non-empty
// POST: Questions are ascending by order; ties keep server order
func QueryGetQuestionnaireDetail(ctx context.Context, query GetQuestionnaireDetailQuery, deps GetQuestionnaireDetailDeps) (QuestionnaireDetail, error) {
	var out QuestionnaireDetail
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		qn, err := deps.Questionnaires.Get(ctx, query.Session, query.QuestionnaireID)
		if err != nil {
			return fmt.Errorf("load questionnaire: %w", err)
		}
		out.Questionnaire = qn
		return nil
	})
	g.Go(func() error {
		qs, err := deps.Questions.QuestionsOf(ctx, query.Session, query.QuestionnaireID)
		if err != nil {
			return fmt.Errorf("load questions: %w", err)
		}
		out.Questions = qs
		return nil
	})
	if err := g.Wait(); err != nil {
		return QuestionnaireDetail{}, err
	}
	if out.Questions == nil {
		out.Questions = []questionnaire.Question{}
	}
	questionnaire.SortQuestions(out.Questions)
	out.Editable = out.Questionnaire.IsEditable()
	return out, nil
}
