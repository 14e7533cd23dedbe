package forms

import (
	"errors"
	"strings"
	"testing"

	"portal/internal/domain/therapist"
)

func validPersonal() therapist.Personal {
	return therapist.Personal{
		FirstName:    "Maya",
		LastName:     "Okafor",
		Email:        "maya@example.com",
		ConfirmEmail: "maya@example.com",
		Phone:        "+447700900123",
		CountryCode:  "GB",
		Languages:    []string{"en", "fr"},
	}
}

// TestStruct_Valid tests that a valid step produces no errors.
func TestStruct_Valid(t *testing.T) {
	v := New()
	p := validPersonal()
	if err := v.Struct(p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// TestStruct_FieldErrors tests tag rules and JSON-keyed messages.
func TestStruct_FieldErrors(t *testing.T) {
	v := New()

	tests := []struct {
		name  string
		mut   func(*therapist.Personal)
		field string
	}{
		{name: "blank first name", mut: func(p *therapist.Personal) { p.FirstName = "   " }, field: "first_name"},
		{name: "email mismatch", mut: func(p *therapist.Personal) { p.ConfirmEmail = "other@example.com" }, field: "confirm_email"},
		{name: "bad phone", mut: func(p *therapist.Personal) { p.Phone = "0770 090" }, field: "phone"},
		{name: "bad country", mut: func(p *therapist.Personal) { p.CountryCode = "XX" }, field: "country_code"},
		{name: "no languages", mut: func(p *therapist.Personal) { p.Languages = nil }, field: "languages"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validPersonal()
			tt.mut(&p)
			err := v.Struct(p)
			var fe FieldErrors
			if !errors.As(err, &fe) {
				t.Fatalf("expected FieldErrors, got %v", err)
			}
			if _, ok := fe[tt.field]; !ok {
				t.Errorf("expected error for %q, got %v", tt.field, fe)
			}
		})
	}
}

// TestStruct_RequiredTranslation tests the custom required message.
func TestStruct_RequiredTranslation(t *testing.T) {
	v := New()
	err := v.Struct(Login{Password: "x"})
	var fe FieldErrors
	if !errors.As(err, &fe) {
		t.Fatalf("expected FieldErrors, got %v", err)
	}
	if fe["email"] != "email is required" {
		t.Errorf("message = %q, want %q", fe["email"], "email is required")
	}
}

// TestStruct_RatesRefinement tests the cross-field sliding scale rule.
func TestStruct_RatesRefinement(t *testing.T) {
	v := New()
	r := therapist.Rates{CurrencyCode: "GBP", SessionPrice: 80, SessionMinutes: 50, SlidingScale: true, MinPrice: 120}
	err := v.Struct(r)
	var fe FieldErrors
	if !errors.As(err, &fe) {
		t.Fatalf("expected FieldErrors, got %v", err)
	}
	if !strings.Contains(fe["min_price"], "cannot be higher") {
		t.Errorf("min_price message = %q", fe["min_price"])
	}

	r.MinPrice = 40
	if err := v.Struct(r); err != nil {
		t.Errorf("unexpected error for valid rates: %v", err)
	}

	r.MinPrice = 0
	if err := v.Struct(r); err == nil {
		t.Error("expected min_price to be required when sliding scale is on")
	}
}

// TestStruct_ContactHoneypot tests that the honeypot field rejects bots.
func TestStruct_ContactHoneypot(t *testing.T) {
	v := New()
	c := Contact{Name: "Sam", Email: "sam@example.com", Topic: "general", Message: strings.Repeat("hello ", 5), Website: "http://spam"}
	err := v.Struct(c)
	var fe FieldErrors
	if !errors.As(err, &fe) || fe["website"] == "" {
		t.Errorf("expected website error, got %v", err)
	}
}
