package orchestrators

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"portal/internal/adapters/api"
	"portal/internal/domain/audit"
	"portal/internal/domain/portalsession"
)

// AuthAPI is the slice of the API client used to sign users in and out.
type AuthAPI interface {
	Login(ctx context.Context, email, password string) (api.LoginResult, error)
	Logout(ctx context.Context, sess *api.Session) error
}

// SessionStoreForLogin persists portal sessions.
type SessionStoreForLogin interface {
	Create(ctx context.Context, s portalsession.Session) error
	Delete(ctx context.Context, id string) error
}

// LoginInput carries input for the login orchestrator.
type LoginInput struct {
	Email     string
	Password  string
	IPAddress string
	UserAgent string
}

// LoginDeps holds dependencies for Login.
type LoginDeps struct {
	Auth       AuthAPI
	Sessions   SessionStoreForLogin
	Audit      AuditRecorder
	GenerateID func() string
	Now        func() time.Time
	TTL        time.Duration
}

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrLoginForbidden     = errors.New("this account cannot sign in to the portal")
)

// ExecuteLogin exchanges credentials for API tokens and opens a portal session.
// PRE: Valid email and password provided
// POST: Returns the stored session on success; a denied attempt is audited
// INVARIANT: the password is never stored or logged
func ExecuteLogin(ctx context.Context, input LoginInput, deps LoginDeps) (portalsession.Session, error) {
	email := strings.TrimSpace(input.Email)
	if email == "" || input.Password == "" {
		return portalsession.Session{}, ErrInvalidCredentials
	}
	now := nowFunc(deps.Now)()
	actor := Actor{Email: email, IPAddress: input.IPAddress, UserAgent: input.UserAgent}

	res, err := deps.Auth.Login(ctx, email, input.Password)
	switch {
	case errors.Is(err, api.ErrUnauthorized), errors.Is(err, api.ErrValidation):
		slog.Info("auth_event", "event", "login_failed", "email", email, "reason", "rejected")
		recordAudit(ctx, deps.Audit, actor.event(now, audit.CategoryAuth, audit.ActionDenied).
			WithDescription("sign-in rejected"))
		return portalsession.Session{}, ErrInvalidCredentials
	case errors.Is(err, api.ErrForbidden):
		slog.Info("auth_event", "event", "login_blocked", "email", email, "reason", "forbidden")
		recordAudit(ctx, deps.Audit, actor.event(now, audit.CategoryAuth, audit.ActionDenied).
			WithDescription("sign-in forbidden"))
		return portalsession.Session{}, ErrLoginForbidden
	case err != nil:
		return portalsession.Session{}, err
	}

	ttl := deps.TTL
	if ttl <= 0 {
		ttl = portalsession.DefaultTTL
	}
	sess := portalsession.Session{
		ID:           deps.GenerateID(),
		UserID:       res.User.ID,
		Email:        res.User.Email,
		Name:         res.User.Name,
		Role:         res.User.Role,
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
		CreatedAt:    now,
		ExpiresAt:    now.Add(ttl),
	}
	if sess.Email == "" {
		sess.Email = email
	}
	if err := deps.Sessions.Create(ctx, sess); err != nil {
		return portalsession.Session{}, fmt.Errorf("store session: %w", err)
	}

	slog.Info("auth_event", "event", "login_success", "email", sess.Email, "role", sess.Role)
	recordAudit(ctx, deps.Audit, ActorFromSession(sess, input.IPAddress, input.UserAgent).
		event(now, audit.CategoryAuth, audit.ActionLogin).
		WithResource("session", sess.ID))
	return sess, nil
}

// LogoutInput carries input for the logout orchestrator.
type LogoutInput struct {
	Session   portalsession.Session
	IPAddress string
	UserAgent string
}

// LogoutDeps holds dependencies for Logout.
type LogoutDeps struct {
	Auth     AuthAPI
	Sessions SessionStoreForLogin
	Audit    AuditRecorder
	Now      func() time.Time
}

// ExecuteLogout revokes the API tokens and deletes the portal session.
// POST: the local session is gone even when the API call fails
func ExecuteLogout(ctx context.Context, input LogoutInput, deps LogoutDeps) error {
	s := input.Session
	apiSess := api.NewSession(s.ID, api.Tokens{AccessToken: s.AccessToken, RefreshToken: s.RefreshToken}, nil)
	if err := deps.Auth.Logout(ctx, apiSess); err != nil {
		slog.Warn("auth_event", "event", "logout_revoke_failed", "email", s.Email, "error", err)
	}
	if err := deps.Sessions.Delete(ctx, s.ID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	slog.Info("auth_event", "event", "logout", "email", s.Email)
	recordAudit(ctx, deps.Audit, ActorFromSession(s, input.IPAddress, input.UserAgent).
		event(nowFunc(deps.Now)(), audit.CategoryAuth, audit.ActionLogout).
		WithResource("session", s.ID))
	return nil
}
