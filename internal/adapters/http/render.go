package web

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/csrf"

	"portal/internal/adapters/api"
	"portal/internal/adapters/content"
	"portal/internal/adapters/http/middleware"
	"portal/internal/adapters/logging"
	outboxStore "portal/internal/adapters/storage/outbox"
	"portal/internal/application/forms"
	"portal/internal/application/listutil"
	"portal/internal/application/orchestrators"
	"portal/internal/domain/admin"
	"portal/internal/domain/outbox"
	"portal/internal/domain/portalsession"
	"portal/internal/domain/questionnaire"
	"portal/internal/domain/therapist"
	"portal/internal/domain/therapysession"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFiles embed.FS

const layoutTemplate = "templates/layout.html"

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

func staticFS() fs.FS {
	sub, err := fs.Sub(staticFiles, "static")
	if err != nil {
		panic(err) // the directory is embedded at build time
	}
	return sub
}

// generateID creates a new UUID string.
func generateID() string {
	return uuid.NewString()
}

// templates holds one parsed set (layout + page) per page file.
type templates struct {
	pages map[string]*template.Template
}

// baseFuncs declares every template function. The request-scoped ones are
// rebound per request in render.
var baseFuncs = template.FuncMap{
	"csrfToken":    func() string { return "" },
	"csrfField":    func() template.HTML { return "" },
	"currentUser":  func() portalsession.Session { return portalsession.Session{} },
	"isLoggedIn":   func() bool { return false },
	"isAdmin":      func() bool { return false },
	"isSuperAdmin": func() bool { return false },
	"nav":          func() []content.Page { return nil },

	"add":      func(a, b int) int { return a + b },
	"sub":      func(a, b int) int { return a - b },
	"join":     strings.Join,
	"contains": slices.Contains[[]string],
	"toJSON": func(v any) string {
		b, err := json.Marshal(v)
		if err != nil {
			return "null"
		}
		return string(b)
	},
	"formatTime": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.UTC().Format("2006-01-02 15:04 UTC")
	},
	"pageQuery": func(lp listutil.ListParams, page int) template.URL {
		return template.URL(lp.WithPage(page).Encode().Encode())
	},
	"sortQuery": func(lp listutil.ListParams, col string) template.URL {
		return template.URL(lp.SortBy(col).Encode().Encode())
	},
}

func parseTemplates() (*templates, error) {
	names, err := fs.Glob(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	t := &templates{pages: make(map[string]*template.Template, len(names))}
	for _, name := range names {
		if name == layoutTemplate {
			continue
		}
		tpl, err := template.New(path.Base(layoutTemplate)).Funcs(baseFuncs).ParseFS(templateFS, layoutTemplate, name)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		t.pages[path.Base(name)] = tpl
	}
	return t, nil
}

// render executes a page into a buffer first so a template failure still
// produces a clean 500.
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, page string, data map[string]any) {
	base, ok := s.tpl.pages[page]
	if !ok {
		internalError(w, fmt.Errorf("unknown template %q", page))
		return
	}
	tpl, err := base.Clone()
	if err != nil {
		internalError(w, err)
		return
	}
	sess, signedIn := middleware.GetSessionFromContext(r.Context())
	tpl.Funcs(template.FuncMap{
		"csrfToken":    func() string { return csrf.Token(r) },
		"csrfField":    func() template.HTML { return csrf.TemplateField(r) },
		"currentUser":  func() portalsession.Session { return sess },
		"isLoggedIn":   func() bool { return signedIn },
		"isAdmin":      func() bool { return signedIn && (sess.Role == admin.RoleAdmin || sess.Role == admin.RoleSuperAdmin) },
		"isSuperAdmin": func() bool { return signedIn && sess.Role == admin.RoleSuperAdmin },
		"nav": func() []content.Page {
			if s.Pages == nil {
				return nil
			}
			return s.Pages.Nav()
		},
	})

	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		internalError(w, fmt.Errorf("render %s: %w", page, err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// internalError logs the real error and returns a generic message to the client.
// This prevents leaking internal details per OWASP A05.
func internalError(w http.ResponseWriter, err error) {
	slog.Error("internal_error", "error", err.Error())
	http.Error(w, "internal server error", http.StatusInternalServerError)
}

// strictDecode decodes a JSON body, rejecting unknown fields and trailing data.
func strictDecode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errors.New("unexpected data after JSON body")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("json_write_failed", "error", err)
	}
}

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
	// Questions is the server's order after a failed reorder.
	Questions []questionnaire.Question `json:"questions,omitempty"`
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: msg})
}

// writeError maps an orchestrator or API error onto a JSON response.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var fe forms.FieldErrors
	var reorder *orchestrators.ReorderError
	switch {
	case errors.As(err, &fe):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: "Please fix the highlighted fields.", Fields: fe})
	case errors.As(err, &reorder):
		status, msg := classify(reorder.Err)
		switch status {
		case http.StatusUnauthorized:
			s.endSession(w, r)
		case http.StatusInternalServerError:
			slog.Error("internal_error", "error", err.Error())
		}
		writeJSON(w, status, errorBody{Error: msg, Questions: reorder.Questions})
	case errors.Is(err, api.ErrUnauthorized):
		s.endSession(w, r)
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: userMessage(err)})
	case errors.Is(err, api.ErrValidation):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: userMessage(err), Fields: api.FieldErrors(err)})
	default:
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			internalError(w, err)
			return
		}
		writeJSON(w, status, errorBody{Error: userMessage(err)})
	}
}

// pageError is writeError for HTML pages.
func (s *Server) pageError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, api.ErrUnauthorized) {
		s.endSession(w, r)
		http.Redirect(w, r, "/login?next="+url.QueryEscape(r.URL.RequestURI()), http.StatusSeeOther)
		return
	}
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		slog.Error("internal_error", "error", err.Error(), "path", r.URL.Path)
	}
	s.render(w, r, status, "error.html", map[string]any{
		"Status":  status,
		"Message": userMessage(err),
	})
}

// knownErrors maps sentinels whose message is safe to show onto a status.
// The first match wins.
var knownErrors = []struct {
	err    error
	status int
}{
	{orchestrators.ErrInvalidCredentials, http.StatusUnauthorized},
	{orchestrators.ErrLoginForbidden, http.StatusForbidden},
	{orchestrators.ErrQuestionNotFound, http.StatusNotFound},
	{orchestrators.ErrIndexOutOfRange, http.StatusBadRequest},
	{orchestrators.ErrBadStepPayload, http.StatusBadRequest},
	{orchestrators.ErrContactNotConfigured, http.StatusServiceUnavailable},
	{therapist.ErrUnknownStep, http.StatusNotFound},
	{therapist.ErrStepLocked, http.StatusConflict},
	{therapist.ErrIncomplete, http.StatusConflict},
	{therapysession.ErrNotCancellable, http.StatusConflict},
	{therapysession.ErrAlreadyStarted, http.StatusConflict},
	{questionnaire.ErrAlreadyPublished, http.StatusConflict},
	{questionnaire.ErrNotPublished, http.StatusConflict},
	{questionnaire.ErrArchived, http.StatusConflict},
	{admin.ErrLastSuperAdmin, http.StatusConflict},
	{outboxStore.ErrNotFound, http.StatusNotFound},
	{outbox.ErrFinished, http.StatusConflict},
	{outbox.ErrInFlight, http.StatusConflict},
	{api.ErrUnauthorized, http.StatusUnauthorized},
	{api.ErrForbidden, http.StatusForbidden},
	{api.ErrNotFound, http.StatusNotFound},
	{api.ErrVersionConflict, http.StatusConflict},
	{api.ErrValidation, http.StatusUnprocessableEntity},
	{api.ErrUnavailable, http.StatusServiceUnavailable},
}

// apiMessages replaces the API sentinels' terse text for users.
var apiMessages = map[error]string{
	api.ErrUnauthorized:    "Your session has ended. Please sign in again.",
	api.ErrForbidden:       "You do not have permission to do that.",
	api.ErrNotFound:        "That record no longer exists.",
	api.ErrVersionConflict: "This record was changed by someone else. The latest version has been loaded.",
	api.ErrValidation:      "The service rejected the data. Please check the form.",
	api.ErrUnavailable:     "The service is temporarily unavailable. Please try again shortly.",
}

// classify returns the response status and a message safe to show.
// Unrecognised errors are 500 with a generic message.
func classify(err error) (int, string) {
	var de domainError
	if errors.As(err, &de) {
		return http.StatusBadRequest, de.Error()
	}
	for _, k := range knownErrors {
		if errors.Is(err, k.err) {
			if msg, ok := apiMessages[k.err]; ok {
				return k.status, msg
			}
			return k.status, k.err.Error()
		}
	}
	return http.StatusInternalServerError, "Something went wrong. Please try again."
}

func statusFor(err error) int {
	status, _ := classify(err)
	return status
}

func userMessage(err error) string {
	_, msg := classify(err)
	return msg
}

// domainError marks a validation failure from a domain type's Validate, whose
// message is safe to show.
type domainError struct{ err error }

func (e domainError) Error() string { return e.err.Error() }
func (e domainError) Unwrap() error { return e.err }

func invalid(err error) error {
	if err == nil {
		return nil
	}
	return domainError{err: err}
}

// apiSession builds the API auth context for the signed-in user. Rotated
// tokens are written back to the session store.
// PRE: the route requires authentication
func (s *Server) apiSession(r *http.Request) *api.Session {
	sess, _ := middleware.GetSessionFromContext(r.Context())
	return api.NewSession(sess.ID, api.Tokens{AccessToken: sess.AccessToken, RefreshToken: sess.RefreshToken}, s.Sessions)
}

func (s *Server) actor(r *http.Request) orchestrators.Actor {
	sess, _ := middleware.GetSessionFromContext(r.Context())
	a := orchestrators.ActorFromSession(sess, middleware.ClientIP(r), r.UserAgent())
	a.RequestID = logging.RequestID(r.Context())
	return a
}

// endSession drops a session the API no longer honours.
func (s *Server) endSession(w http.ResponseWriter, r *http.Request) {
	middleware.ClearSessionCookie(w)
	sess, ok := middleware.GetSessionFromContext(r.Context())
	if !ok {
		return
	}
	if err := s.Sessions.Delete(r.Context(), sess.ID); err != nil {
		slog.Warn("session_delete_failed", "session_id", sess.ID, "error", err)
	}
}
