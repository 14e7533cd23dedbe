package web

import (
	"net/http"
	"strings"

	"portal/internal/application/forms"
	"portal/internal/application/listutil"
	"portal/internal/application/orchestrators"
	"portal/internal/domain/therapysession"
)

var (
	sessionSortColumns = []string{"scheduled_at", "therapist_name", "client_name", "status"}
	sessionFilters     = []string{"status", "therapist_id"}
	sessionStatuses    = []string{
		therapysession.StatusScheduled,
		therapysession.StatusCompleted,
		therapysession.StatusCancelled,
	}
)

// handleSessionsPage renders the therapy session table (GET /admin/sessions).
func (s *Server) handleSessionsPage(w http.ResponseWriter, r *http.Request) {
	lp := listutil.ParseListParams(r.URL.Query(), sessionSortColumns, sessionFilters)
	page, err := s.API.Sessions.List(r.Context(), s.apiSession(r), lp.Query())
	if err != nil {
		s.pageError(w, r, err)
		return
	}
	now := s.Now()
	cancellable := make(map[string]bool, len(page.Data))
	for _, sess := range page.Data {
		cancellable[sess.ID] = sess.Status == therapysession.StatusScheduled && sess.IsUpcoming(now)
	}
	s.render(w, r, http.StatusOK, "sessions.html", map[string]any{
		"Title":       "Therapy sessions",
		"Sessions":    page.Data,
		"Cancellable": cancellable,
		"Statuses":    sessionStatuses,
		"List":        lp,
		"PageInfo":    listutil.PageInfoFrom(page.Meta, lp.PerPage),
		"PerPage":     listutil.PerPageOptions,
	})
}

// handleListSessions returns one page of sessions as JSON (GET /api/sessions).
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	lp := listutil.ParseListParams(r.URL.Query(), sessionSortColumns, sessionFilters)
	page, err := s.API.Sessions.List(r.Context(), s.apiSession(r), lp.Query())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// handleCancelSession cancels a scheduled session (POST /api/sessions/cancel).
// PRE: body carries the version the admin was shown
// POST: 200 with the cancelled session; 409 if it changed or already started
func (s *Server) handleCancelSession(w http.ResponseWriter, r *http.Request) {
	var f forms.CancelSession
	if err := strictDecode(w, r, &f); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	f.Reason = strings.TrimSpace(f.Reason)
	if err := s.Validator.Struct(f); err != nil {
		s.writeError(w, r, err)
		return
	}
	saved, err := orchestrators.ExecuteCancelSession(r.Context(), orchestrators.CancelSessionInput{
		Session: s.apiSession(r),
		Actor:   s.actor(r),
		ID:      f.ID,
		Reason:  f.Reason,
		Version: f.Version,
	}, orchestrators.CancelSessionDeps{
		Sessions: s.API.Sessions,
		Audit:    s.Audit,
		Now:      s.Now,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}
