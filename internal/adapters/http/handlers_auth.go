package web

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"portal/internal/adapters/http/middleware"
	"portal/internal/application/forms"
	"portal/internal/application/orchestrators"
)

// handleLoginForm renders the sign-in page (GET /login). Signed-in users go
// straight to their destination.
func (s *Server) handleLoginForm(w http.ResponseWriter, r *http.Request) {
	next := safeNext(r.URL.Query().Get("next"))
	if _, ok := middleware.GetSessionFromContext(r.Context()); ok {
		http.Redirect(w, r, next, http.StatusSeeOther)
		return
	}
	s.render(w, r, http.StatusOK, "login.html", map[string]any{
		"Title": "Sign in",
		"Next":  next,
	})
}

// handleLoginSubmit exchanges credentials for a portal session (POST /login).
// PRE: CSRF token checked by middleware
// POST: on success the session cookie is set and the user is redirected to
// a local next path; on failure the form is re-rendered without the password
func (s *Server) handleLoginSubmit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		badRequest(w, "invalid form")
		return
	}
	f := forms.Login{
		Email:    strings.TrimSpace(r.PostFormValue("email")),
		Password: r.PostFormValue("password"),
	}
	next := safeNext(r.PostFormValue("next"))

	rerender := func(status int, msg string, fe forms.FieldErrors) {
		s.render(w, r, status, "login.html", map[string]any{
			"Title":  "Sign in",
			"Next":   next,
			"Email":  f.Email,
			"Error":  msg,
			"Errors": fe,
		})
	}

	if err := s.Validator.Struct(f); err != nil {
		var fe forms.FieldErrors
		if errors.As(err, &fe) {
			rerender(http.StatusUnprocessableEntity, "", fe)
			return
		}
		internalError(w, err)
		return
	}

	sess, err := orchestrators.ExecuteLogin(r.Context(), orchestrators.LoginInput{
		Email:     f.Email,
		Password:  f.Password,
		IPAddress: middleware.ClientIP(r),
		UserAgent: r.UserAgent(),
	}, orchestrators.LoginDeps{
		Auth:       s.API.Auth,
		Sessions:   s.Sessions,
		Audit:      s.Audit,
		GenerateID: s.GenerateID,
		Now:        s.Now,
		TTL:        s.opts.SessionTTL,
	})
	if err != nil {
		status, msg := classify(err)
		if status == http.StatusInternalServerError {
			slog.Error("login_failed", "error", err)
		}
		rerender(status, msg, nil)
		return
	}

	middleware.SetSessionCookie(w, sess.ID, sess.ExpiresAt)
	http.Redirect(w, r, next, http.StatusSeeOther)
}

// handleLogout ends the session (POST /logout). Anonymous callers are
// simply redirected.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess, ok := middleware.GetSessionFromContext(r.Context())
	middleware.ClearSessionCookie(w)
	if ok {
		err := orchestrators.ExecuteLogout(r.Context(), orchestrators.LogoutInput{
			Session:   sess,
			IPAddress: middleware.ClientIP(r),
			UserAgent: r.UserAgent(),
		}, orchestrators.LogoutDeps{
			Auth:     s.API.Auth,
			Sessions: s.Sessions,
			Audit:    s.Audit,
			Now:      s.Now,
		})
		if err != nil {
			slog.Error("logout_failed", "session_id", sess.ID, "error", err)
		}
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// safeNext accepts only same-origin absolute paths, so the login redirect
// cannot be pointed off-site.
func safeNext(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.Contains(next, "\\") {
		return "/dashboard"
	}
	u, err := url.Parse(next)
	if err != nil || u.IsAbs() || u.Host != "" {
		return "/dashboard"
	}
	return u.RequestURI()
}
