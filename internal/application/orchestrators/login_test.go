package orchestrators

import (
	"context"
	"errors"
	"testing"
	"time"

	"portal/internal/adapters/api"
	"portal/internal/adapters/logging"
	"portal/internal/domain/audit"
	"portal/internal/domain/portalsession"
)

func loginDeps(auth *mockAuth, store *mockSessionStore, a *mockAudit) LoginDeps {
	return LoginDeps{
		Auth:       auth,
		Sessions:   store,
		Audit:      a,
		GenerateID: func() string { return "ps-1" },
		Now:        testNow,
		TTL:        2 * time.Hour,
	}
}

// TestExecuteLogin_Success stores a session carrying the API tokens.
func TestExecuteLogin_Success(t *testing.T) {
	store := newMockSessionStore()
	a := &mockAudit{}
	sess, err := ExecuteLogin(context.Background(), LoginInput{
		Email:     "  ana@example.com ",
		Password:  "secret",
		IPAddress: "10.0.0.1",
	}, loginDeps(&mockAuth{password: "secret"}, store, a))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sess.ID != "ps-1" || sess.UserID != "u-1" || sess.Role != "admin" {
		t.Errorf("unexpected session: %+v", sess)
	}
	if sess.AccessToken != "acc" || sess.RefreshToken != "ref" {
		t.Errorf("tokens not carried: %+v", sess)
	}
	if !sess.ExpiresAt.Equal(testTime.Add(2 * time.Hour)) {
		t.Errorf("ExpiresAt = %v", sess.ExpiresAt)
	}
	if _, ok := store.sessions["ps-1"]; !ok {
		t.Error("session not stored")
	}
	if len(a.events) != 1 || a.events[0].Action != audit.ActionLogin || a.events[0].IPAddress != "10.0.0.1" {
		t.Errorf("unexpected audit: %+v", a.events)
	}
}

// TestExecuteLogin_Rejected maps API rejections to ErrInvalidCredentials.
func TestExecuteLogin_Rejected(t *testing.T) {
	tests := []struct {
		name    string
		input   LoginInput
		auth    *mockAuth
		wantErr error
		audited bool
	}{
		{"empty email", LoginInput{Password: "x"}, &mockAuth{}, ErrInvalidCredentials, false},
		{"empty password", LoginInput{Email: "a@b.co"}, &mockAuth{}, ErrInvalidCredentials, false},
		{"wrong password", LoginInput{Email: "a@b.co", Password: "nope"}, &mockAuth{password: "secret"}, ErrInvalidCredentials, true},
		{"validation", LoginInput{Email: "a@b.co", Password: "x"}, &mockAuth{loginErr: &api.APIError{Status: 422}}, ErrInvalidCredentials, true},
		{"forbidden", LoginInput{Email: "a@b.co", Password: "x"}, &mockAuth{forbidden: true}, ErrLoginForbidden, true},
		{"api down", LoginInput{Email: "a@b.co", Password: "x"}, &mockAuth{loginErr: api.ErrUnavailable}, api.ErrUnavailable, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMockSessionStore()
			a := &mockAudit{}
			ctx := logging.WithRequestID(context.Background(), "req-login-0001")
			_, err := ExecuteLogin(ctx, tt.input, loginDeps(tt.auth, store, a))
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if len(store.sessions) != 0 {
				t.Error("no session should be stored")
			}
			if got := len(a.events) == 1 && a.events[0].Action == audit.ActionDenied; got != tt.audited {
				t.Errorf("denied audited = %v, want %v", got, tt.audited)
			}
			if tt.audited {
				if e := a.events[0]; e.Severity != audit.SeverityWarning || e.RequestID != "req-login-0001" {
					t.Errorf("denied event severity=%s request_id=%q", e.Severity, e.RequestID)
				}
			}
		})
	}
}

// TestExecuteLogin_AuditFailureIgnored keeps the login when the audit write fails.
func TestExecuteLogin_AuditFailureIgnored(t *testing.T) {
	store := newMockSessionStore()
	_, err := ExecuteLogin(context.Background(), LoginInput{Email: "a@b.co", Password: "s"},
		loginDeps(&mockAuth{password: "s"}, store, &mockAudit{err: errors.New("disk full")}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// TestExecuteLogout_DeletesEvenWhenRevokeFails removes the local session.
func TestExecuteLogout_DeletesEvenWhenRevokeFails(t *testing.T) {
	store := newMockSessionStore()
	s := portalsession.Session{ID: "ps-1", UserID: "u-1", Email: "a@b.co", AccessToken: "acc",
		CreatedAt: testTime, ExpiresAt: testTime.Add(time.Hour)}
	store.sessions[s.ID] = s
	auth := &mockAuth{logoutErr: api.ErrUnavailable}
	a := &mockAudit{}

	err := ExecuteLogout(context.Background(), LogoutInput{Session: s},
		LogoutDeps{Auth: auth, Sessions: store, Audit: a, Now: testNow})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if auth.logouts != 1 {
		t.Errorf("logouts = %d, want 1", auth.logouts)
	}
	if len(store.sessions) != 0 {
		t.Error("session should be deleted")
	}
	if len(a.events) != 1 || a.events[0].Action != audit.ActionLogout {
		t.Errorf("unexpected audit: %+v", a.events)
	}
}
