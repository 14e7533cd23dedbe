package web

import (
	"net/http"
	"net/url"
	"strconv"
	"time"

	auditStore "portal/internal/adapters/storage/audit"
	auditDomain "portal/internal/domain/audit"
)

const (
	auditPageSize = 100
	auditMaxPage  = 1000
)

// handleAdminAuditTrail renders the audit trail (GET /admin/audit).
// PRE: caller is a super admin
// POST: renders one page of events, newest first; Older links to the next
// page when this one is full
func (s *Server) handleAdminAuditTrail(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := auditStore.Filter{
		Category:   auditDomain.Category(q.Get("category")),
		Action:     auditDomain.Action(q.Get("action")),
		Severity:   auditDomain.Severity(q.Get("severity")),
		ActorID:    q.Get("actor_id"),
		ResourceID: q.Get("resource_id"),
	}
	if since := q.Get("since"); since != "" {
		if t, err := time.Parse(time.DateOnly, since); err == nil {
			filter.Since = t
		}
	}
	before, err := auditStore.ParseCursor(q.Get("before"))
	if err != nil {
		http.Error(w, "invalid cursor", http.StatusBadRequest)
		return
	}
	filter.Before = before

	limit := auditPageSize
	if n, err := strconv.Atoi(q.Get("limit")); err == nil && n > 0 && n <= auditMaxPage {
		limit = n
	}

	events, err := s.Audit.List(r.Context(), filter, limit)
	if err != nil {
		internalError(w, err)
		return
	}

	var older string
	if len(events) == limit {
		next := cloneQuery(q)
		next.Set("before", auditStore.CursorAfter(events[len(events)-1]).String())
		older = "?" + next.Encode()
	}
	var newest string
	if !before.IsZero() {
		first := cloneQuery(q)
		first.Del("before")
		newest = "?" + first.Encode()
	}

	s.render(w, r, http.StatusOK, "audit.html", map[string]any{
		"Title":      "Audit trail",
		"Events":     events,
		"Filter":     filter,
		"Categories": auditDomain.Categories,
		"Severities": []auditDomain.Severity{auditDomain.SeverityInfo, auditDomain.SeverityWarning, auditDomain.SeverityCritical},
		"Since":      q.Get("since"),
		"Limit":      limit,
		"Older":      older,
		"Newest":     newest,
	})
}

func cloneQuery(q url.Values) url.Values {
	out := make(url.Values, len(q))
	for k, v := range q {
		out[k] = append([]string(nil), v...)
	}
	return out
}
