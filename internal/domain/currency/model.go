package currency

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
)

// Domain errors.
var (
	ErrInvalidCode     = errors.New("currency code must be three uppercase letters")
	ErrEmptyName       = errors.New("currency name cannot be empty")
	ErrInvalidDecimals = errors.New("decimals must be between 0 and 4")
)

var codePattern = regexp.MustCompile(`^[A-Z]{3}$`)

// Currency is an ISO 4217 currency sessions can be priced in.
type Currency struct {
	ID       string `json:"id"`
	Code     string `json:"code"`
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals int    `json:"decimals"`
	Active   bool   `json:"active"`
	Version  int    `json:"version"`
}

// Validate checks the currency's invariants.
// PRE: none
// POST: returns nil if valid, error describing the first violation otherwise
func (c *Currency) Validate() error {
	if !codePattern.MatchString(c.Code) {
		return ErrInvalidCode
	}
	if strings.TrimSpace(c.Name) == "" {
		return ErrEmptyName
	}
	if c.Decimals < 0 || c.Decimals > 4 {
		return ErrInvalidDecimals
	}
	return nil
}

// MinorUnits converts a decimal amount into integer minor units (cents).
// PRE: Decimals is valid
// POST: returns amount * 10^Decimals rounded half away from zero
func (c *Currency) MinorUnits(amount float64) int64 {
	return int64(math.Round(amount * math.Pow10(c.Decimals)))
}

// Format renders minor units with the currency symbol, e.g. "$12.50".
func (c *Currency) Format(minor int64) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	if c.Decimals == 0 {
		return fmt.Sprintf("%s%s%d", sign, c.Symbol, minor)
	}
	div := int64(math.Pow10(c.Decimals))
	return fmt.Sprintf("%s%s%d.%0*d", sign, c.Symbol, minor/div, c.Decimals, minor%div)
}
