package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"portal/internal/adapters/content"
	"portal/internal/adapters/http/middleware"
	"portal/internal/application/forms"
	"portal/internal/application/orchestrators"
)

// handleHealthz reports liveness and, when a database is wired, readiness.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if s.Ping != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.Ping(ctx); err != nil {
			slog.Error("healthz_db_failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleHome renders the index marketing page.
func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	s.renderPage(w, r, content.IndexSlug)
}

// handlePage renders a marketing page by slug (GET /p/{slug}).
func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("slug")
	if slug == content.IndexSlug {
		http.Redirect(w, r, "/", http.StatusMovedPermanently)
		return
	}
	s.renderPage(w, r, slug)
}

func (s *Server) renderPage(w http.ResponseWriter, r *http.Request, slug string) {
	if s.Pages == nil {
		s.notFound(w, r)
		return
	}
	page, ok := s.Pages.Get(slug)
	if !ok {
		s.notFound(w, r)
		return
	}
	if !page.ModTime.IsZero() {
		w.Header().Set("Last-Modified", page.ModTime.UTC().Format(http.TimeFormat))
	}
	s.render(w, r, http.StatusOK, "page.html", map[string]any{
		"Title":       page.Title,
		"Description": page.Description,
		"Page":        page,
	})
}

func (s *Server) notFound(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusNotFound, "error.html", map[string]any{
		"Title":   "Not found",
		"Status":  http.StatusNotFound,
		"Message": "That page does not exist.",
	})
}

var contactTopics = []string{"general", "therapist", "billing", "press"}

// handleContactForm renders the contact form (GET /contact).
func (s *Server) handleContactForm(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, "contact.html", map[string]any{
		"Title":  "Contact us",
		"Topics": contactTopics,
		"Form":   forms.Contact{Topic: "general"},
		"Sent":   r.URL.Query().Get("sent") == "1",
	})
}

// handleContactSubmit queues the message for the team inbox (POST /contact).
// PRE: CSRF token checked by middleware
// POST: redirects to /contact?sent=1, or re-renders with field errors
func (s *Server) handleContactSubmit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		badRequest(w, "invalid form")
		return
	}
	f := forms.Contact{
		Name:    r.PostFormValue("name"),
		Email:   r.PostFormValue("email"),
		Topic:   r.PostFormValue("topic"),
		Message: r.PostFormValue("message"),
		Website: r.PostFormValue("website"),
	}

	// honeypot filled: look successful, queue nothing
	if strings.TrimSpace(f.Website) != "" {
		slog.Info("contact_honeypot", "ip", middleware.ClientIP(r))
		http.Redirect(w, r, "/contact?sent=1", http.StatusSeeOther)
		return
	}

	_, err := orchestrators.ExecuteSubmitContact(r.Context(), orchestrators.SubmitContactInput{
		Form:      f,
		IPAddress: middleware.ClientIP(r),
		UserAgent: r.UserAgent(),
	}, orchestrators.SubmitContactDeps{
		Validator: s.Validator,
		Outbox:    s.Outbox,
		Audit:     s.Audit,
		ContactTo: s.opts.ContactTo,
		Now:       s.Now,
	})
	var fe forms.FieldErrors
	switch {
	case errors.As(err, &fe):
		s.render(w, r, http.StatusUnprocessableEntity, "contact.html", map[string]any{
			"Title":  "Contact us",
			"Topics": contactTopics,
			"Form":   f,
			"Errors": fe,
		})
		return
	case err != nil:
		s.pageError(w, r, err)
		return
	}
	s.kickOutbox()
	http.Redirect(w, r, "/contact?sent=1", http.StatusSeeOther)
}
