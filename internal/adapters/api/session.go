package api

import (
	"context"
	"sync"
)

// Tokens is the credential pair issued by the API's auth endpoints.
type Tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Principal is the authenticated user as reported by the API.
type Principal struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

// TokenSaver persists rotated tokens for a portal session.
type TokenSaver interface {
	SaveTokens(ctx context.Context, sessionID string, t Tokens) error
}

// TokenLoader is implemented by savers that can report the tokens last
// stored for a session. Refresh consults it so a request holding an old copy
// of the session does not spend a refresh token that was already rotated.
type TokenLoader interface {
	LoadTokens(ctx context.Context, sessionID string) (Tokens, error)
}

// Session is the explicit auth context for calls made on behalf of one
// signed-in user. It is created on login, carried through each request, and
// discarded on logout or when a refresh is rejected.
type Session struct {
	ID string

	mu     sync.RWMutex
	tokens Tokens
	saver  TokenSaver
}

// NewSession wraps tokens for the portal session id. saver may be nil.
func NewSession(id string, t Tokens, saver TokenSaver) *Session {
	return &Session{ID: id, tokens: t, saver: saver}
}

// Tokens returns the current credential pair.
func (s *Session) Tokens() Tokens {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tokens
}

func (s *Session) accessToken() string {
	return s.Tokens().AccessToken
}

// stored returns the saver's copy of the tokens, when it can load one.
func (s *Session) stored(ctx context.Context) (Tokens, bool) {
	l, ok := s.saver.(TokenLoader)
	if !ok {
		return Tokens{}, false
	}
	t, err := l.LoadTokens(ctx, s.ID)
	if err != nil || t.AccessToken == "" {
		return Tokens{}, false
	}
	return t, true
}

func (s *Session) setTokens(t Tokens) {
	s.mu.Lock()
	s.tokens = t
	s.mu.Unlock()
}
