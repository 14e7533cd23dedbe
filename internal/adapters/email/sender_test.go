package email

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSendRequest_Validate(t *testing.T) {
	ok := SendRequest{To: []string{"Support <support@example.com>"}, Subject: "hi", ReplyTo: "ana@example.com"}
	tests := []struct {
		name string
		mod  func(*SendRequest)
		want error
	}{
		{"valid", func(*SendRequest) {}, nil},
		{"no recipients", func(r *SendRequest) { r.To = nil }, ErrNoRecipients},
		{"no subject", func(r *SendRequest) { r.Subject = "" }, ErrNoSubject},
		{"bad to", func(r *SendRequest) { r.To = append(r.To, "not an address") }, ErrBadAddress},
		{"bad reply-to", func(r *SendRequest) { r.ReplyTo = "ana@" }, ErrBadAddress},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := ok
			req.To = append([]string(nil), ok.To...)
			tt.mod(&req)
			if err := req.Validate(); !errors.Is(err, tt.want) {
				t.Errorf("Validate = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestIsPermanent(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{ErrNoRecipients, true},
		{fmt.Errorf("wrap: %w", ErrBadAddress), true},
		{&ProviderError{Provider: "sendgrid", Status: http.StatusBadRequest, Err: errors.New("bad from")}, true},
		{&ProviderError{Provider: "sendgrid", Status: http.StatusTooManyRequests, Err: errors.New("slow down")}, false},
		{&ProviderError{Provider: "sendgrid", Status: http.StatusBadGateway, Err: errors.New("upstream")}, false},
		{&ProviderError{Provider: "resend", Err: errors.New("dial tcp: timeout")}, false},
		{context.DeadlineExceeded, false},
		{nil, false},
	}
	for _, tt := range tests {
		if got := IsPermanent(tt.err); got != tt.want {
			t.Errorf("IsPermanent(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestLogSender_KeepsRecent(t *testing.T) {
	s := NewLogSender(2)
	for _, subj := range []string{"one", "two", "three"} {
		res, err := s.Send(context.Background(), SendRequest{To: []string{"a@example.com"}, Subject: subj})
		if err != nil {
			t.Fatalf("Send: %v", err)
		}
		if !strings.HasPrefix(res.MessageID, "log-") || res.SentAt.IsZero() {
			t.Errorf("result = %+v", res)
		}
	}
	var subjects []string
	for _, r := range s.Recent() {
		subjects = append(subjects, r.Subject)
	}
	if diff := cmp.Diff([]string{"two", "three"}, subjects); diff != "" {
		t.Errorf("recent (-want +got):\n%s", diff)
	}
	if _, err := s.Send(context.Background(), SendRequest{Subject: "hi"}); !errors.Is(err, ErrNoRecipients) {
		t.Errorf("got %v, want ErrNoRecipients", err)
	}
}

func TestResendSender(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/emails" || r.Header.Get("Authorization") != "Bearer re_test" {
			t.Errorf("unexpected request %s %s auth=%q", r.Method, r.URL.Path, r.Header.Get("Authorization"))
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"re-msg-1"}`))
	}))
	defer srv.Close()

	s, err := NewResendSender("re_test", "Portal <noreply@example.com>").WithBaseURL(srv.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	res, err := s.Send(context.Background(), SendRequest{
		To: []string{"support@example.com"}, ReplyTo: "ana@example.com", Subject: "Contact", Text: "hello",
		Headers: map[string]string{RefHeader: "ob-1"},
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if res.MessageID != "re-msg-1" {
		t.Errorf("MessageID = %q", res.MessageID)
	}
	if got["from"] != "Portal <noreply@example.com>" || got["text"] != "hello" || got["reply_to"] != "ana@example.com" {
		t.Errorf("body = %v", got)
	}
	if h, _ := got["headers"].(map[string]any); h[RefHeader] != "ob-1" {
		t.Errorf("headers = %v", got["headers"])
	}
}

func TestResendSender_FailureIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"message":"boom"}`))
	}))
	defer srv.Close()

	s, err := NewResendSender("re_test", "noreply@example.com").WithBaseURL(srv.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	_, err = s.Send(context.Background(), SendRequest{To: []string{"a@example.com"}, Subject: "s"})
	var pe *ProviderError
	if !errors.As(err, &pe) || pe.Provider != "resend" || IsPermanent(err) {
		t.Errorf("err = %v, want transient resend ProviderError", err)
	}
}

func TestSendgridSender(t *testing.T) {
	var body map[string]any
	status := http.StatusAccepted
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v3/mail/send" || r.Header.Get("Authorization") != "Bearer SG.test" {
			t.Errorf("unexpected request %s auth=%q", r.URL.Path, r.Header.Get("Authorization"))
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("X-Message-Id", "sg-1")
		w.WriteHeader(status)
	}))
	defer srv.Close()

	s := NewSendgridSender("SG.test", "Portal <noreply@example.com>").WithHost(srv.URL)
	req := SendRequest{
		To: []string{"Support <support@example.com>"}, Subject: "Contact", Text: "hello",
		Headers: map[string]string{RefHeader: "ob-2"},
	}
	res, err := s.Send(context.Background(), req)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if res.MessageID != "sg-1" {
		t.Errorf("MessageID = %q", res.MessageID)
	}
	from, _ := body["from"].(map[string]any)
	if from["email"] != "noreply@example.com" || from["name"] != "Portal" {
		t.Errorf("from = %v", body["from"])
	}
	if h, _ := body["headers"].(map[string]any); h[RefHeader] != "ob-2" {
		t.Errorf("headers = %v", body["headers"])
	}

	for _, tt := range []struct {
		status    int
		permanent bool
	}{
		{http.StatusBadRequest, true},
		{http.StatusTooManyRequests, false},
		{http.StatusServiceUnavailable, false},
	} {
		status = tt.status
		_, err := s.Send(context.Background(), req)
		var pe *ProviderError
		if !errors.As(err, &pe) || pe.Status != tt.status {
			t.Errorf("status %d: err = %v", tt.status, err)
			continue
		}
		if IsPermanent(err) != tt.permanent {
			t.Errorf("status %d: permanent = %v, want %v", tt.status, !tt.permanent, tt.permanent)
		}
	}
}
