package web

import (
	"io"
	"net/http"

	"portal/internal/adapters/http/middleware"
	"portal/internal/application/orchestrators"
	"portal/internal/application/refdata"
	"portal/internal/domain/therapist"
)

// sessionLengths are the session lengths a therapist may offer, in minutes.
var sessionLengths = []int{30, 45, 50, 60, 90}

// handleOnboardingStart sends the therapist to the first incomplete step.
func (s *Server) handleOnboardingStart(w http.ResponseWriter, r *http.Request) {
	sess, _ := middleware.GetSessionFromContext(r.Context())
	d, err := orchestrators.LoadDraft(r.Context(), s.Drafts, sess.UserID)
	if err != nil {
		s.pageError(w, r, err)
		return
	}
	http.Redirect(w, r, "/onboarding/"+d.CurrentStep(), http.StatusSeeOther)
}

// handleOnboardingStep renders one wizard step (GET /onboarding/{step}).
// A locked step redirects back to the current one.
func (s *Server) handleOnboardingStep(w http.ResponseWriter, r *http.Request) {
	step := r.PathValue("step")
	if !therapist.IsKnownStep(step) {
		s.notFound(w, r)
		return
	}
	sess, _ := middleware.GetSessionFromContext(r.Context())
	d, err := orchestrators.LoadDraft(r.Context(), s.Drafts, sess.UserID)
	if err != nil {
		s.pageError(w, r, err)
		return
	}
	if !d.CanEnter(step) {
		http.Redirect(w, r, "/onboarding/"+d.CurrentStep(), http.StatusSeeOther)
		return
	}

	var ref refdata.Snapshot
	if s.RefData != nil {
		ref = s.RefData.Get()
	}
	s.render(w, r, http.StatusOK, "onboarding.html", map[string]any{
		"Title":     "Therapist application",
		"Steps":     therapist.Steps,
		"Step":      step,
		"Draft":     &d,
		"Data":      d.Data,
		"RefData":   ref,
		"Next":      therapist.NextStep(step),
		"CanSubmit": d.ReadyToSubmit(),
		"Minutes":   sessionLengths,
	})
}

// handleOnboardingSave validates and stores one step (POST /onboarding/{step}).
// The body is the step's JSON object.
// POST: 200 with the URL of the next step, or 422 with field errors
func (s *Server) handleOnboardingSave(w http.ResponseWriter, r *http.Request) {
	sess, _ := middleware.GetSessionFromContext(r.Context())
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		badRequest(w, "request body is too large")
		return
	}
	step := r.PathValue("step")
	d, err := orchestrators.ExecuteSaveWizardStep(r.Context(), orchestrators.SaveWizardStepInput{
		OwnerID: sess.UserID,
		Step:    step,
		Payload: payload,
	}, orchestrators.SaveWizardStepDeps{
		Drafts:    s.Drafts,
		Validator: s.Validator,
		Now:       s.Now,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	next := "/onboarding/" + d.CurrentStep()
	if n := therapist.NextStep(step); n != "" {
		next = "/onboarding/" + n
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"completed": d.Completed,
		"next":      next,
	})
}

// handleOnboardingSubmit sends the finished application
// (POST /onboarding/submit).
// POST: 201 with the application reference; 409 while steps are missing
func (s *Server) handleOnboardingSubmit(w http.ResponseWriter, r *http.Request) {
	sess, _ := middleware.GetSessionFromContext(r.Context())
	sub, err := orchestrators.ExecuteSubmitApplication(r.Context(), orchestrators.SubmitApplicationInput{
		Session: s.apiSession(r),
		Actor:   s.actor(r),
		OwnerID: sess.UserID,
	}, orchestrators.SubmitApplicationDeps{
		Drafts:       s.Drafts,
		Validator:    s.Validator,
		Applications: s.API.Applications,
		Outbox:       s.Outbox,
		Audit:        s.Audit,
		Now:          s.Now,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.kickOutbox()
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":       sub.ID,
		"status":   sub.Status,
		"redirect": "/dashboard",
	})
}
