package web

import (
	"net/http"
	"slices"
	"strconv"
	"time"

	"portal/internal/domain/audit"
	"portal/internal/domain/outbox"
)

// handleAdminOutboxList returns queued mail as JSON (GET /admin/outbox).
// ?status= picks one status, dead by default, since those need a human.
func (s *Server) handleAdminOutboxList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit := 50
	if n, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && n > 0 && n <= 100 {
		limit = n
	}
	status := r.URL.Query().Get("status")
	if status == "" {
		status = outbox.StatusDead
	}
	if !slices.Contains(outbox.Statuses, status) {
		badRequest(w, "unknown status "+strconv.Quote(status))
		return
	}

	entries, err := s.Outbox.List(ctx, status, limit)
	if err != nil {
		internalError(w, err)
		return
	}
	counts, err := s.Outbox.Counts(ctx)
	if err != nil {
		internalError(w, err)
		return
	}
	if entries == nil {
		entries = []outbox.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": status, "entries": entries, "counts": counts})
}

// handleAdminOutboxAction retries or cancels one entry
// (POST /admin/outbox/{id}/{action}).
func (s *Server) handleAdminOutboxAction(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var (
		err    error
		result string
	)
	switch r.PathValue("action") {
	case "retry":
		err, result = s.Worker.Retry(r.Context(), id), "queued"
	case "cancel":
		err, result = s.Worker.Cancel(r.Context(), id), "cancelled"
	default:
		http.NotFound(w, r)
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.audit(r, audit.CategorySystem, audit.ActionUpdate, "outbox", id)
	writeJSON(w, http.StatusOK, map[string]string{"status": result})
}

// kickOutbox starts delivery of mail a handler just queued.
func (s *Server) kickOutbox() {
	if s.Worker != nil {
		s.Worker.Kick()
	}
}

// handleAdminPerf summarises request, query and API call timings
// (GET /admin/perf?window=15m). The window is a Go duration between one
// minute and a day.
func (s *Server) handleAdminPerf(w http.ResponseWriter, r *http.Request) {
	if s.Perf == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "performance collection is disabled"})
		return
	}
	window := 15 * time.Minute
	if raw := r.URL.Query().Get("window"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d < time.Minute || d > 24*time.Hour {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "window must be a duration between 1m and 24h"})
			return
		}
		window = d
	}
	writeJSON(w, http.StatusOK, s.Perf.Snapshot(s.Now().Add(-window), 10))
}
