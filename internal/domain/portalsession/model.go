package portalsession

import (
	"errors"
	"time"
)

// DefaultTTL is how long a portal session lives after sign-in.
const DefaultTTL = 24 * time.Hour

// Domain errors.
var (
	ErrNotFound   = errors.New("session not found")
	ErrExpired    = errors.New("session expired")
	ErrEmptyID    = errors.New("session id cannot be empty")
	ErrNoTokens   = errors.New("session has no access token")
	ErrNoIdentity = errors.New("session has no user")
)

// Session is a signed-in portal user. The tokens are the credentials issued
// by the REST API; the portal never sees the password again after login.
type Session struct {
	ID           string
	UserID       string
	Email        string
	Name         string
	Role         string
	AccessToken  string
	RefreshToken string
	CreatedAt    time.Time
	ExpiresAt    time.Time
}

// Validate checks that the Session can be stored.
// PRE: Session struct is populated
// POST: Returns nil if valid, error otherwise
func (s Session) Validate() error {
	if s.ID == "" {
		return ErrEmptyID
	}
	if s.UserID == "" {
		return ErrNoIdentity
	}
	if s.AccessToken == "" {
		return ErrNoTokens
	}
	return nil
}

// IsExpired reports whether the session is past its expiry at now.
func (s Session) IsExpired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}
