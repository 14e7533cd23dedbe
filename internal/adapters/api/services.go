package api

import (
	"context"
	"net/url"

	"portal/internal/domain/admin"
	"portal/internal/domain/country"
	"portal/internal/domain/currency"
	"portal/internal/domain/language"
	"portal/internal/domain/questionnaire"
	"portal/internal/domain/specialization"
	"portal/internal/domain/therapist"
	"portal/internal/domain/therapysession"
)

// Services groups the typed collections the portal uses.
type Services struct {
	Client *Client

	Admins          *Resource[admin.Admin]
	Countries       *Resource[country.Country]
	Currencies      *Resource[currency.Currency]
	Languages       *Resource[language.Language]
	Specializations *Resource[specialization.Specialization]
	Questionnaires  *Resource[questionnaire.Questionnaire]
	Questions       *Resource[questionnaire.Question]
	Sessions        *Resource[therapysession.Session]
	Therapists      *Resource[therapist.Summary]
	Applications    *Resource[therapist.Submitted]
}

// NewServices binds every collection to c.
func NewServices(c *Client) *Services {
	return &Services{
		Client:          c,
		Admins:          NewResource[admin.Admin](c, "/admins"),
		Countries:       NewResource[country.Country](c, "/countries"),
		Currencies:      NewResource[currency.Currency](c, "/currencies"),
		Languages:       NewResource[language.Language](c, "/languages"),
		Specializations: NewResource[specialization.Specialization](c, "/specializations"),
		Questionnaires:  NewResource[questionnaire.Questionnaire](c, "/questionnaires"),
		Questions:       NewResource[questionnaire.Question](c, "/questions"),
		Sessions:        NewResource[therapysession.Session](c, "/sessions"),
		Therapists:      NewResource[therapist.Summary](c, "/therapists"),
		Applications:    NewResource[therapist.Submitted](c, "/therapists/applications"),
	}
}

// QuestionsOf lists every question in a questionnaire, in server order.
func (s *Services) QuestionsOf(ctx context.Context, sess *Session, questionnaireID string) ([]questionnaire.Question, error) {
	qs, err := s.Questions.All(ctx, sess, ListQuery{
		Sort:    "order",
		Filters: map[string]string{"questionnaire_id": questionnaireID},
	})
	if err != nil {
		return nil, err
	}
	questionnaire.SortQuestions(qs)
	return qs, nil
}

// Do is the raw escape hatch for endpoints without a typed wrapper. out
// receives the whole response body.
func (c *Client) Do(ctx context.Context, sess *Session, method, path string, query url.Values, body, out any) error {
	return c.do(ctx, sess, request{method: method, path: path, query: query, body: body}, out)
}
