package orchestrators

import (
	"context"
	"errors"
	"testing"

	"portal/internal/application/forms"
	"portal/internal/domain/outbox"
)

func validContact() forms.Contact {
	return forms.Contact{
		Name:    " Sam Lee ",
		Email:   "sam@example.com",
		Topic:   "therapist",
		Message: "I'd like to know how the onboarding review works.",
	}
}

// TestExecuteSubmitContact_Queues writes one pending email with a reply-to.
func TestExecuteSubmitContact_Queues(t *testing.T) {
	box := newMockOutbox()
	a := &mockAudit{}
	entry, err := ExecuteSubmitContact(context.Background(), SubmitContactInput{Form: validContact(), IPAddress: "10.1.1.1"},
		SubmitContactDeps{Validator: forms.New(), Outbox: box, Audit: a, ContactTo: "hello@portal.test", Now: testNow})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entry.Status != outbox.StatusPending || entry.Kind != outbox.KindEmail {
		t.Errorf("unexpected entry: %+v", entry)
	}
	p, err := box.entries[entry.ID].Email()
	if err != nil {
		t.Fatal(err)
	}
	if p.ReplyTo != "sam@example.com" || p.To[0] != "hello@portal.test" {
		t.Errorf("unexpected payload: %+v", p)
	}
	if p.Subject != "[therapist] message from Sam Lee" {
		t.Errorf("subject = %q", p.Subject)
	}
	if len(a.events) != 1 || a.events[0].IPAddress != "10.1.1.1" {
		t.Errorf("unexpected audit: %+v", a.events)
	}
}

// TestExecuteSubmitContact_Rejects covers validation, the honeypot and missing config.
func TestExecuteSubmitContact_Rejects(t *testing.T) {
	bot := validContact()
	bot.Website = "http://spam.example"
	short := validContact()
	short.Message = "hi"

	tests := []struct {
		name      string
		form      forms.Contact
		contactTo string
		wantField string
		wantErr   error
	}{
		{"honeypot", bot, "hello@portal.test", "website", nil},
		{"short message", short, "hello@portal.test", "message", nil},
		{"no inbox", validContact(), "", "", ErrContactNotConfigured},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			box := newMockOutbox()
			_, err := ExecuteSubmitContact(context.Background(), SubmitContactInput{Form: tt.form},
				SubmitContactDeps{Validator: forms.New(), Outbox: box, ContactTo: tt.contactTo, Now: testNow})
			if err == nil {
				t.Fatal("expected an error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
			if tt.wantField != "" {
				var fe forms.FieldErrors
				if !errors.As(err, &fe) {
					t.Fatalf("expected FieldErrors, got %v", err)
				}
				if _, ok := fe[tt.wantField]; !ok {
					t.Errorf("expected %s error, got %v", tt.wantField, fe)
				}
			}
			if len(box.entries) != 0 {
				t.Error("nothing should be queued")
			}
		})
	}
}
