// Package api is the client for the external tele-therapy REST API. All
// persistence and business rules live behind it; the portal only renders and
// forwards.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"portal/internal/adapters/http/perf"
	"portal/internal/adapters/logging"
)

// DefaultTimeout bounds a single API round trip.
const DefaultTimeout = 15 * time.Second

// refreshSkew is how close to expiry an access token is refreshed proactively.
const refreshSkew = 30 * time.Second

// maxErrorBody caps how much of an error response is read.
const maxErrorBody = 64 << 10

// Config configures a Client.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client    // optional; overrides Timeout
	Collector  *perf.Collector // optional; receives one entry per call
}

// Client talks to the external API.
// INVARIANT: at most one refresh per portal session is in flight.
type Client struct {
	base    *url.URL
	http    *http.Client
	refresh singleflight.Group
	perf    *perf.Collector
	now     func() time.Time
}

// New creates a Client.
// PRE: cfg.BaseURL is an absolute http(s) URL
// POST: returns a ready client or an error describing the bad URL
func New(cfg Config) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse api base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("api base url must be http or https, got %q", cfg.BaseURL)
	}
	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}
	return &Client{base: u, http: hc, perf: cfg.Collector, now: time.Now}, nil
}

// request describes one API call.
type request struct {
	method  string
	path    string
	query   url.Values
	body    any
	headers http.Header
}

type envelope[T any] struct {
	Data T `json:"data"`
}

type errorBody struct {
	Message string              `json:"message"`
	Errors  map[string][]string `json:"errors"`
}

// do performs req, authenticating with sess when non-nil, and decodes the
// "data" member of the response into out (when out is non-nil).
// A 401 triggers one refresh and one retry.
func (c *Client) do(ctx context.Context, sess *Session, req request, out any) error {
	if sess != nil {
		if err := c.refreshIfExpiring(ctx, sess); err != nil {
			return err
		}
	}

	resp, used, err := c.send(ctx, sess, req)
	if err != nil {
		return err
	}

	if resp.StatusCode == http.StatusUnauthorized && sess != nil {
		resp.Body.Close()
		if err := c.refreshSession(ctx, sess, used); err != nil {
			return err
		}
		resp, _, err = c.send(ctx, sess, req)
		if err != nil {
			return err
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", req.method, req.path, err)
	}
	return nil
}

// send builds and executes one HTTP request. It also returns the access
// token it authenticated with, empty for anonymous calls.
func (c *Client) send(ctx context.Context, sess *Session, req request) (*http.Response, string, error) {
	u := c.base.JoinPath(req.path)
	if len(req.query) > 0 {
		u.RawQuery = req.query.Encode()
	}

	var body io.Reader
	if req.body != nil {
		buf, err := json.Marshal(req.body)
		if err != nil {
			return nil, "", fmt.Errorf("encode %s %s body: %w", req.method, req.path, err)
		}
		body = bytes.NewReader(buf)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, u.String(), body)
	if err != nil {
		return nil, "", fmt.Errorf("build %s %s: %w", req.method, req.path, err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for k, vs := range req.headers {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if id := logging.RequestID(ctx); id != "" {
		httpReq.Header.Set("X-Request-ID", id)
	}
	var used string
	if sess != nil {
		used = sess.accessToken()
		httpReq.Header.Set("Authorization", "Bearer "+used)
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	durationMs := float64(time.Since(start).Microseconds()) / 1000.0
	status := 0
	if resp != nil {
		status = resp.StatusCode
	}
	c.perf.Record(perf.Entry{
		Kind:       perf.KindAPI,
		Path:       req.method + " " + collectionPath(req.path),
		StatusCode: status,
		Failed:     status == 0 || status >= http.StatusInternalServerError,
		DurationMs: durationMs,
		Timestamp:  start,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, used, fmt.Errorf("%s %s: %w", req.method, req.path, ctx.Err())
		}
		logging.FromContext(ctx).Warn("api_request_failed", "method", req.method, "path", req.path, "duration_ms", durationMs, "error", err.Error())
		return nil, used, fmt.Errorf("%s %s: %w", req.method, req.path, errors.Join(ErrUnavailable, err))
	}
	logging.FromContext(ctx).Debug("api_request", "method", req.method, "path", req.path, "status", resp.StatusCode, "duration_ms", durationMs)
	return resp, used, nil
}

// collectionPath drops a trailing id segment so timings group per endpoint.
func collectionPath(p string) string {
	p = strings.TrimRight(p, "/")
	if i := strings.LastIndexByte(p, '/'); i > 0 {
		if _, err := uuid.Parse(p[i+1:]); err == nil || isDigits(p[i+1:]) {
			return p[:i] + "/{id}"
		}
	}
	return p
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	var eb errorBody
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if len(raw) > 0 && json.Unmarshal(raw, &eb) == nil {
		apiErr.Message = eb.Message
		apiErr.Fields = eb.Errors
	}
	return apiErr
}

// refreshIfExpiring refreshes ahead of time when the access token is a JWT
// whose exp claim falls within refreshSkew. Opaque tokens are left alone.
func (c *Client) refreshIfExpiring(ctx context.Context, sess *Session) error {
	access := sess.accessToken()
	exp, ok := tokenExpiry(access)
	if !ok || c.now().Add(refreshSkew).Before(exp) {
		return nil
	}
	return c.refreshSession(ctx, sess, access)
}

// refreshSession rotates sess's tokens. Callers for the same session ID share
// one refresh call and all adopt its result, even when each holds its own
// *Session. A stale token that has already been replaced, in memory or in the
// store, is swapped for the newer pair without calling the API.
func (c *Client) refreshSession(ctx context.Context, sess *Session, stale string) error {
	v, err, shared := c.refresh.Do(sess.ID, func() (any, error) {
		current := sess.Tokens()
		if current.AccessToken != stale {
			return current, nil
		}
		// detached so one caller's cancellation does not fail the others
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), DefaultTimeout)
		defer cancel()

		if stored, ok := sess.stored(rctx); ok {
			if stored.AccessToken != stale {
				return stored, nil
			}
			current = stored
		}
		fresh, err := c.Refresh(rctx, current.RefreshToken)
		if err != nil {
			return nil, err
		}
		if sess.saver != nil {
			if err := sess.saver.SaveTokens(rctx, sess.ID, fresh); err != nil {
				slog.Error("token_save_failed", "session_id", sess.ID, "error", err.Error())
			}
		}
		slog.Info("auth_event", "event", "token_refreshed", "session_id", sess.ID)
		return fresh, nil
	})
	if err != nil {
		slog.Info("auth_event", "event", "refresh_failed", "session_id", sess.ID, "shared", shared, "error", err.Error())
		if errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrValidation) || errors.Is(err, ErrForbidden) {
			return fmt.Errorf("refresh session: %w", ErrUnauthorized)
		}
		return fmt.Errorf("refresh session: %w", err)
	}
	sess.setTokens(v.(Tokens))
	return nil
}

// tokenExpiry reads the exp claim without verifying the signature; the API
// remains the authority on validity.
func tokenExpiry(token string) (time.Time, bool) {
	if strings.Count(token, ".") != 2 {
		return time.Time{}, false
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// idempotencyHeader returns a fresh Idempotency-Key header for create calls.
func idempotencyHeader() http.Header {
	h := http.Header{}
	h.Set("Idempotency-Key", uuid.NewString())
	return h
}
