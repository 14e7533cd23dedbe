package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"portal/internal/adapters/logging"
	"portal/internal/domain/portalsession"
)

type sessionKey struct{}

// SessionCookieName names the cookie holding the portal session id.
const SessionCookieName = "portal_session"

// SecureCookies marks cookies Secure and enables HSTS. Set in production
// before the chain is built.
var SecureCookies bool

// SessionGetter loads portal sessions by id.
type SessionGetter interface {
	Get(ctx context.Context, id string) (portalsession.Session, error)
}

// Auth resolves the session cookie into the request context. It never
// blocks; RequireAuth and RequireRole do. A cookie naming an expired or
// unknown session is cleared.
func Auth(sessions SessionGetter) func(http.Handler) http.Handler {
	return authAt(sessions, time.Now)
}

func authAt(sessions SessionGetter, now func() time.Time) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c, err := r.Cookie(SessionCookieName)
			if err != nil || c.Value == "" {
				next.ServeHTTP(w, r)
				return
			}
			sess, err := sessions.Get(r.Context(), c.Value)
			switch {
			case err == nil && !sess.IsExpired(now()):
				r = r.WithContext(ContextWithSession(r.Context(), sess))
			case err == nil, errors.Is(err, portalsession.ErrNotFound), errors.Is(err, portalsession.ErrExpired):
				ClearSessionCookie(w)
			default:
				// signed out for this request only; the cookie stays
				logging.FromContext(r.Context()).Error("session_lookup_failed", "error", err)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAuth blocks anonymous requests: page loads are redirected to the
// login form, everything else gets 401.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := GetSessionFromContext(r.Context()); !ok {
			denyAnonymous(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole is RequireAuth plus a 403 for roles not listed.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, ok := GetSessionFromContext(r.Context())
			if !ok {
				denyAnonymous(w, r)
				return
			}
			if !slices.Contains(roles, sess.Role) {
				logging.FromContext(r.Context()).Info("access_denied",
					"user_id", sess.UserID, "role", sess.Role, "path", r.URL.Path)
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func denyAnonymous(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet && !wantsJSON(r) {
		q := url.Values{"next": {r.URL.RequestURI()}}
		http.Redirect(w, r, "/login?"+q.Encode(), http.StatusSeeOther)
		return
	}
	http.Error(w, "not authenticated", http.StatusUnauthorized)
}

func wantsJSON(r *http.Request) bool {
	return strings.HasPrefix(r.URL.Path, "/api/") ||
		strings.Contains(r.Header.Get("Accept"), "application/json")
}

func GetSessionFromContext(ctx context.Context) (portalsession.Session, bool) {
	sess, ok := ctx.Value(sessionKey{}).(portalsession.Session)
	return sess, ok
}

func ContextWithSession(ctx context.Context, sess portalsession.Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, sess)
}

// SetSessionCookie issues the session cookie, expiring with the session.
func SetSessionCookie(w http.ResponseWriter, id string, expires time.Time) {
	c := sessionCookie(id)
	c.Expires = expires
	http.SetCookie(w, c)
}

func ClearSessionCookie(w http.ResponseWriter) {
	c := sessionCookie("")
	c.MaxAge = -1
	http.SetCookie(w, c)
}

func sessionCookie(value string) *http.Cookie {
	return &http.Cookie{
		Name:     SessionCookieName,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   SecureCookies,
		SameSite: http.SameSiteLaxMode,
	}
}
