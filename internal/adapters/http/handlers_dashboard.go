package web

import (
	"log/slog"
	"net/http"

	"portal/internal/adapters/http/middleware"
	"portal/internal/application/orchestrators"
	"portal/internal/application/projections"
	"portal/internal/domain/admin"
)

// handleDashboard renders the role-specific landing page (GET /dashboard).
// PRE: user is signed in
// POST: tiles that failed to load are listed as unavailable; an expired API
// session signs the user out
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	sess, _ := middleware.GetSessionFromContext(r.Context())
	result, err := projections.QueryGetDashboard(r.Context(), projections.GetDashboardQuery{
		Session: s.apiSession(r),
		Role:    sess.Role,
		UserID:  sess.UserID,
		Now:     s.Now(),
	}, projections.GetDashboardDeps{
		Admins:         s.API.Admins,
		Therapists:     s.API.Therapists,
		Questionnaires: s.API.Questionnaires,
		Sessions:       s.API.Sessions,
	})
	if err != nil {
		s.pageError(w, r, err)
		return
	}

	data := map[string]any{
		"Title":     "Dashboard",
		"Dashboard": result,
	}
	if sess.Role == admin.RoleTherapist {
		draft, err := orchestrators.LoadDraft(r.Context(), s.Drafts, sess.UserID)
		if err != nil {
			slog.Warn("dashboard_draft_failed", "user_id", sess.UserID, "error", err)
		} else {
			data["Draft"] = draft
			data["NextStep"] = draft.CurrentStep()
		}
	}
	s.render(w, r, http.StatusOK, "dashboard.html", data)
}
