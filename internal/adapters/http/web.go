// Package web is the portal's HTTP adapter: server-rendered pages for the
// admin and professional portal, JSON endpoints for in-page edits, and the
// public marketing site.
package web

import (
	"context"
	"net/http"
	"time"

	"portal/internal/adapters/api"
	"portal/internal/adapters/content"
	"portal/internal/adapters/http/middleware"
	"portal/internal/adapters/http/perf"
	auditStore "portal/internal/adapters/storage/audit"
	outboxStore "portal/internal/adapters/storage/outbox"
	sessionStore "portal/internal/adapters/storage/session"
	"portal/internal/adapters/storage/wizard"
	"portal/internal/application/forms"
	"portal/internal/application/orchestrators"
	"portal/internal/application/refdata"
	"portal/internal/domain/admin"
	"portal/internal/domain/country"
	"portal/internal/domain/currency"
	"portal/internal/domain/language"
	"portal/internal/domain/questionnaire"
	"portal/internal/domain/specialization"
	"portal/internal/domain/therapist"
	"portal/internal/domain/therapysession"
)

// Collection is one REST collection of the external API.
// *api.Resource[T] satisfies it.
type Collection[T any] interface {
	List(ctx context.Context, sess *api.Session, q api.ListQuery) (api.Page[T], error)
	Get(ctx context.Context, sess *api.Session, id string) (T, error)
	Create(ctx context.Context, sess *api.Session, body any) (T, error)
	Update(ctx context.Context, sess *api.Session, id string, body any) (T, error)
	Patch(ctx context.Context, sess *api.Session, id string, fields map[string]any) (T, error)
	Delete(ctx context.Context, sess *api.Session, id string) error
}

// APIs holds the parts of the external API the handlers call.
type APIs struct {
	Auth            orchestrators.AuthAPI
	Admins          Collection[admin.Admin]
	Countries       Collection[country.Country]
	Currencies      Collection[currency.Currency]
	Languages       Collection[language.Language]
	Specializations Collection[specialization.Specialization]
	Questionnaires  Collection[questionnaire.Questionnaire]
	Questions       Collection[questionnaire.Question]
	QuestionLister  orchestrators.QuestionLister
	Sessions        Collection[therapysession.Session]
	Therapists      Collection[therapist.Summary]
	Applications    orchestrators.ApplicationCreator
}

// APIsFrom binds APIs to a live client.
func APIsFrom(s *api.Services) APIs {
	return APIs{
		Auth:            s.Client,
		Admins:          s.Admins,
		Countries:       s.Countries,
		Currencies:      s.Currencies,
		Languages:       s.Languages,
		Specializations: s.Specializations,
		Questionnaires:  s.Questionnaires,
		Questions:       s.Questions,
		QuestionLister:  s,
		Sessions:        s.Sessions,
		Therapists:      s.Therapists,
		Applications:    s.Applications,
	}
}

// RefData is the reference list cache.
type RefData interface {
	Get() refdata.Snapshot
}

// Pages is the marketing page store.
type Pages interface {
	Get(slug string) (content.Page, bool)
	Nav() []content.Page
}

// Options are the non-dependency settings of the server.
type Options struct {
	CSRFKey            []byte
	TrustedOrigins     []string
	Secure             bool // production: Secure cookies and HSTS
	RateLimitPerSecond float64
	SessionTTL         time.Duration
	ContactTo          string
}

// Deps holds everything the handlers reach.
type Deps struct {
	API       APIs
	Sessions  sessionStore.Store
	Drafts    wizard.Store
	Outbox    outboxStore.Store
	Audit     auditStore.Store
	Worker    *orchestrators.OutboxWorker
	Validator *forms.Validator
	RefData   RefData
	Pages     Pages
	Perf      *perf.Collector
	// Ping checks the local database for /healthz. May be nil.
	Ping func(ctx context.Context) error
	// Now and GenerateID are replaced in tests.
	Now        func() time.Time
	GenerateID func() string
}

// Server carries handler dependencies. Handlers are methods on it so no
// request state lives in package globals.
type Server struct {
	Deps
	opts    Options
	tpl     *templates
	limiter *middleware.RateLimiter
}

// NewServer validates deps and parses the embedded templates.
func NewServer(deps Deps, opts Options) (*Server, error) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.GenerateID == nil {
		deps.GenerateID = generateID
	}
	if deps.Validator == nil {
		deps.Validator = forms.New()
	}
	if opts.RateLimitPerSecond <= 0 {
		opts.RateLimitPerSecond = 10
	}
	tpl, err := parseTemplates()
	if err != nil {
		return nil, err
	}
	return &Server{Deps: deps, opts: opts, tpl: tpl}, nil
}

// Handler returns the routed mux wrapped in the middleware chain.
// Order, outermost first: Timing, RateLimit, Auth, CSRF, SecurityHeaders.
func (s *Server) Handler() http.Handler {
	middleware.SecureCookies = s.opts.Secure
	s.limiter = middleware.NewRateLimiter(s.opts.RateLimitPerSecond)
	return middleware.Chain(s.Routes(),
		middleware.SecurityHeaders,
		middleware.CSRF(s.opts.CSRFKey, s.opts.TrustedOrigins),
		middleware.Auth(s.Sessions),
		middleware.RateLimit(s.limiter),
		middleware.Timing(s.Perf),
	)
}

// Close releases background resources started by Handler.
func (s *Server) Close() {
	if s.limiter != nil {
		s.limiter.Close()
	}
}

// Routes registers every route on a fresh mux. Authentication and role checks
// are applied per route; the session itself is resolved by the Auth middleware.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	staff := middleware.RequireRole(admin.RoleAdmin, admin.RoleSuperAdmin)
	superOnly := middleware.RequireRole(admin.RoleSuperAdmin)
	signedIn := middleware.RequireAuth
	therapistOnly := middleware.RequireRole(admin.RoleTherapist)

	// public
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(staticFS())))
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /{$}", s.handleHome)
	mux.HandleFunc("GET /p/{slug}", s.handlePage)
	mux.HandleFunc("GET /contact", s.handleContactForm)
	mux.HandleFunc("POST /contact", s.handleContactSubmit)
	mux.HandleFunc("GET /login", s.handleLoginForm)
	mux.HandleFunc("POST /login", s.handleLoginSubmit)
	mux.HandleFunc("POST /logout", s.handleLogout)

	// signed in
	mux.Handle("GET /dashboard", signedIn(http.HandlerFunc(s.handleDashboard)))

	// therapist onboarding; POSTs take and return JSON
	mux.Handle("GET /onboarding", therapistOnly(http.HandlerFunc(s.handleOnboardingStart)))
	mux.Handle("GET /onboarding/{step}", therapistOnly(http.HandlerFunc(s.handleOnboardingStep)))
	mux.Handle("POST /onboarding/submit", therapistOnly(http.HandlerFunc(s.handleOnboardingSubmit)))
	mux.Handle("POST /onboarding/{step}", therapistOnly(http.HandlerFunc(s.handleOnboardingSave)))

	// reference and admin collections
	staffRoles := []string{admin.RoleAdmin, admin.RoleSuperAdmin}
	superRoles := []string{admin.RoleSuperAdmin}
	registerResource(mux, s, adminResource(s.API.Admins), staffRoles, superRoles)
	registerResource(mux, s, countryResource(s.API.Countries), staffRoles, staffRoles)
	registerResource(mux, s, currencyResource(s.API.Currencies), staffRoles, staffRoles)
	registerResource(mux, s, languageResource(s.API.Languages), staffRoles, staffRoles)
	registerResource(mux, s, specializationResource(s.API.Specializations), staffRoles, staffRoles)
	registerResource(mux, s, questionnaireResource(s.API.Questionnaires), staffRoles, staffRoles)
	registerResource(mux, s, therapistResource(s.API.Therapists), staffRoles, nil)

	// questionnaires and questions
	mux.Handle("GET /admin/questionnaires/{id}", staff(http.HandlerFunc(s.handleQuestionnaireDetail)))
	mux.Handle("POST /api/questionnaires/{id}/{transition}", staff(http.HandlerFunc(s.handleQuestionnaireTransition)))
	mux.Handle("GET /api/questionnaires/{id}/questions", staff(http.HandlerFunc(s.handleListQuestions)))
	mux.Handle("POST /api/questions", staff(http.HandlerFunc(s.handleCreateQuestion)))
	mux.Handle("POST /api/questions/reorder", staff(http.HandlerFunc(s.handleReorderQuestion)))
	mux.Handle("PUT /api/questions/{id}", staff(http.HandlerFunc(s.handleUpdateQuestion)))
	mux.Handle("DELETE /api/questions/{id}", staff(http.HandlerFunc(s.handleDeleteQuestion)))

	// therapy sessions
	mux.Handle("GET /admin/sessions", staff(http.HandlerFunc(s.handleSessionsPage)))
	mux.Handle("GET /api/sessions", staff(http.HandlerFunc(s.handleListSessions)))
	mux.Handle("POST /api/sessions/cancel", staff(http.HandlerFunc(s.handleCancelSession)))

	// operations
	mux.Handle("GET /admin/audit", superOnly(http.HandlerFunc(s.handleAdminAuditTrail)))
	mux.Handle("GET /admin/outbox", staff(http.HandlerFunc(s.handleAdminOutboxList)))
	mux.Handle("POST /admin/outbox/{id}/{action}", staff(http.HandlerFunc(s.handleAdminOutboxAction)))
	mux.Handle("GET /admin/perf", staff(http.HandlerFunc(s.handleAdminPerf)))

	return mux
}
