package web

import (
	"net/http"

	"portal/internal/adapters/api"
	"portal/internal/application/forms"
	"portal/internal/application/orchestrators"
	"portal/internal/application/projections"
	"portal/internal/domain/audit"
	"portal/internal/domain/questionnaire"
)

// questionBody is the JSON shape of a question create or edit.
type questionBody struct {
	QuestionnaireID string   `json:"questionnaire_id"`
	Version         int      `json:"version"`
	Text            string   `json:"text"`
	Type            string   `json:"type"`
	Options         []string `json:"options"`
	Required        bool     `json:"required"`
}

func (b questionBody) input() orchestrators.QuestionInput {
	return orchestrators.QuestionInput{Text: b.Text, Type: b.Type, Options: b.Options, Required: b.Required}
}

func (s *Server) questionDeps() orchestrators.QuestionDeps {
	return orchestrators.QuestionDeps{
		Lister:    s.API.QuestionLister,
		Questions: s.API.Questions,
		Audit:     s.Audit,
		Now:       s.Now,
	}
}

// handleQuestionnaireDetail renders a questionnaire with its ordered
// questions (GET /admin/questionnaires/{id}).
func (s *Server) handleQuestionnaireDetail(w http.ResponseWriter, r *http.Request) {
	detail, err := projections.QueryGetQuestionnaireDetail(r.Context(), projections.GetQuestionnaireDetailQuery{
		Session:         s.apiSession(r),
		QuestionnaireID: r.PathValue("id"),
	}, projections.GetQuestionnaireDetailDeps{
		Questionnaires: s.API.Questionnaires,
		Questions:      s.API.QuestionLister,
	})
	if err != nil {
		s.pageError(w, r, err)
		return
	}
	s.render(w, r, http.StatusOK, "questionnaire.html", map[string]any{
		"Title":         detail.Questionnaire.Title,
		"Questionnaire": detail.Questionnaire,
		"Questions":     detail.Questions,
		"Editable":      detail.Editable,
		"Types":         questionnaire.QuestionTypes,
	})
}

// handleQuestionnaireTransition publishes or archives a questionnaire
// (POST /api/questionnaires/{id}/{transition}).
// POST: the API holds the new status; a stale version is a 409
func (s *Server) handleQuestionnaireTransition(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Version int `json:"version"`
	}
	if err := strictDecode(w, r, &body); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	id := r.PathValue("id")
	sess := s.apiSession(r)
	q, err := s.API.Questionnaires.Get(r.Context(), sess, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if q.Version != body.Version {
		s.writeError(w, r, api.ErrVersionConflict)
		return
	}
	switch r.PathValue("transition") {
	case "publish":
		err = q.Publish()
	case "archive":
		err = q.Archive()
	default:
		http.NotFound(w, r)
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	saved, err := s.API.Questionnaires.Patch(r.Context(), sess, id, map[string]any{
		"status":  q.Status,
		"version": body.Version,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.audit(r, audit.CategoryQuestionnaire, audit.ActionUpdate, "questionnaire", id)
	writeJSON(w, http.StatusOK, saved)
}

// handleListQuestions returns a questionnaire's questions in display order
// (GET /api/questionnaires/{id}/questions).
func (s *Server) handleListQuestions(w http.ResponseWriter, r *http.Request) {
	qs, err := s.API.QuestionLister.QuestionsOf(r.Context(), s.apiSession(r), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	questionnaire.SortQuestions(qs)
	if qs == nil {
		qs = []questionnaire.Question{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"questions": qs})
}

// handleCreateQuestion appends a question (POST /api/questions).
func (s *Server) handleCreateQuestion(w http.ResponseWriter, r *http.Request) {
	var body questionBody
	if err := strictDecode(w, r, &body); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	if body.QuestionnaireID == "" {
		s.writeError(w, r, forms.FieldErrors{"questionnaire_id": "questionnaire_id is required"})
		return
	}
	q, err := orchestrators.ExecuteCreateQuestion(r.Context(), orchestrators.CreateQuestionInput{
		Session:         s.apiSession(r),
		Actor:           s.actor(r),
		QuestionnaireID: body.QuestionnaireID,
		Question:        body.input(),
	}, s.questionDeps())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, q)
}

// handleUpdateQuestion edits a question's text, type or options
// (PUT /api/questions/{id}). Its order is left alone.
func (s *Server) handleUpdateQuestion(w http.ResponseWriter, r *http.Request) {
	var body questionBody
	if err := strictDecode(w, r, &body); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	q, err := orchestrators.ExecuteUpdateQuestion(r.Context(), orchestrators.UpdateQuestionInput{
		Session:    s.apiSession(r),
		Actor:      s.actor(r),
		QuestionID: r.PathValue("id"),
		Version:    body.Version,
		Question:   body.input(),
	}, s.questionDeps())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

// handleDeleteQuestion removes a question (DELETE /api/questions/{id}).
// The remaining questions keep their keys.
func (s *Server) handleDeleteQuestion(w http.ResponseWriter, r *http.Request) {
	err := orchestrators.ExecuteDeleteQuestion(r.Context(), orchestrators.DeleteQuestionInput{
		Session:    s.apiSession(r),
		Actor:      s.actor(r),
		QuestionID: r.PathValue("id"),
	}, s.questionDeps())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleReorderQuestion moves one question (POST /api/questions/reorder).
// POST: 200 with the server order after the move; on failure the error
// body carries the last known server order for the page to revert to
func (s *Server) handleReorderQuestion(w http.ResponseWriter, r *http.Request) {
	var f forms.Reorder
	if err := strictDecode(w, r, &f); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	if err := s.Validator.Struct(f); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := orchestrators.ExecuteReorderQuestion(r.Context(), orchestrators.ReorderQuestionInput{
		Session:         s.apiSession(r),
		Actor:           s.actor(r),
		QuestionnaireID: f.QuestionnaireID,
		QuestionID:      f.QuestionID,
		NewIndex:        f.NewIndex,
	}, orchestrators.ReorderQuestionDeps{
		Lister:    s.API.QuestionLister,
		Questions: s.API.Questions,
		Audit:     s.Audit,
		Now:       s.Now,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"questions":  res.Questions,
		"writes":     len(res.Updates),
		"renumbered": res.Renumbered,
	})
}
