package currency_test

import (
	"testing"

	"portal/internal/domain/currency"
)

// TestCurrency_Validate tests validation of Currency.
func TestCurrency_Validate(t *testing.T) {
	tests := []struct {
		name    string
		c       currency.Currency
		wantErr error
	}{
		{name: "valid", c: currency.Currency{Code: "EUR", Name: "Euro", Symbol: "€", Decimals: 2}},
		{name: "lowercase code", c: currency.Currency{Code: "eur", Name: "Euro"}, wantErr: currency.ErrInvalidCode},
		{name: "empty name", c: currency.Currency{Code: "EUR"}, wantErr: currency.ErrEmptyName},
		{name: "too many decimals", c: currency.Currency{Code: "EUR", Name: "Euro", Decimals: 5}, wantErr: currency.ErrInvalidDecimals},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.c.Validate(); err != tt.wantErr {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

// TestCurrency_Format tests minor-unit formatting.
func TestCurrency_Format(t *testing.T) {
	usd := currency.Currency{Code: "USD", Symbol: "$", Decimals: 2}
	jpy := currency.Currency{Code: "JPY", Symbol: "¥", Decimals: 0}

	if got := usd.Format(1250); got != "$12.50" {
		t.Errorf("Format(1250) = %q, want $12.50", got)
	}
	if got := usd.Format(-5); got != "-$0.05" {
		t.Errorf("Format(-5) = %q, want -$0.05", got)
	}
	if got := jpy.Format(3000); got != "¥3000" {
		t.Errorf("Format(3000) = %q, want ¥3000", got)
	}
	if got := usd.MinorUnits(19.99); got != 1999 {
		t.Errorf("MinorUnits(19.99) = %d, want 1999", got)
	}
}
