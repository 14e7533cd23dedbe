package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// LoginResult is what a successful sign-in yields.
type LoginResult struct {
	Tokens
	User Principal `json:"user"`
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Login exchanges credentials for tokens.
// POST: a rejected password maps to ErrUnauthorized; validation problems to ErrValidation
func (c *Client) Login(ctx context.Context, email, password string) (LoginResult, error) {
	var out envelope[LoginResult]
	err := c.do(ctx, nil, request{
		method: http.MethodPost,
		path:   "/auth/login",
		body:   credentials{Email: strings.TrimSpace(email), Password: password},
	}, &out)
	if err != nil {
		return LoginResult{}, fmt.Errorf("login: %w", err)
	}
	if out.Data.AccessToken == "" {
		return LoginResult{}, fmt.Errorf("login: empty access token: %w", ErrUnauthorized)
	}
	return out.Data, nil
}

// Refresh exchanges a refresh token for a new pair. When the API does not
// rotate the refresh token, the old one is kept.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (Tokens, error) {
	if refreshToken == "" {
		return Tokens{}, fmt.Errorf("refresh: no refresh token: %w", ErrUnauthorized)
	}
	var out envelope[Tokens]
	err := c.do(ctx, nil, request{
		method: http.MethodPost,
		path:   "/auth/refresh",
		body:   refreshRequest{RefreshToken: refreshToken},
	}, &out)
	if err != nil {
		return Tokens{}, fmt.Errorf("refresh: %w", err)
	}
	if out.Data.AccessToken == "" {
		return Tokens{}, fmt.Errorf("refresh: empty access token: %w", ErrUnauthorized)
	}
	if out.Data.RefreshToken == "" {
		out.Data.RefreshToken = refreshToken
	}
	return out.Data, nil
}

// Logout revokes the session's refresh token. An already-invalid session is
// treated as logged out.
func (c *Client) Logout(ctx context.Context, sess *Session) error {
	err := c.do(ctx, nil, request{
		method: http.MethodPost,
		path:   "/auth/logout",
		body:   refreshRequest{RefreshToken: sess.Tokens().RefreshToken},
		headers: http.Header{
			"Authorization": []string{"Bearer " + sess.accessToken()},
		},
	}, nil)
	if err != nil && !errors.Is(err, ErrUnauthorized) {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

// Me returns the principal behind sess.
func (c *Client) Me(ctx context.Context, sess *Session) (Principal, error) {
	var out envelope[Principal]
	if err := c.do(ctx, sess, request{method: http.MethodGet, path: "/auth/me"}, &out); err != nil {
		return Principal{}, fmt.Errorf("me: %w", err)
	}
	return out.Data, nil
}
