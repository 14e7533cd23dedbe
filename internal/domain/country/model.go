package country

import (
	"errors"
	"regexp"
	"strings"
)

// Domain errors.
var (
	ErrEmptyName       = errors.New("country name cannot be empty")
	ErrNameTooLong     = errors.New("country name cannot exceed 100 characters")
	ErrInvalidISO      = errors.New("ISO code must be two uppercase letters")
	ErrInvalidDialCode = errors.New("dial code must look like +44")
)

var (
	isoPattern  = regexp.MustCompile(`^[A-Z]{2}$`)
	dialPattern = regexp.MustCompile(`^\+[0-9]{1,4}$`)
)

// Country is a jurisdiction clients and therapists can reside in.
type Country struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	ISOCode      string `json:"iso_code"`
	DialCode     string `json:"dial_code"`
	CurrencyCode string `json:"currency_code"`
	Active       bool   `json:"active"`
	Version      int    `json:"version"`
}

// Normalize trims whitespace and upper-cases the ISO code.
func (c *Country) Normalize() {
	c.Name = strings.TrimSpace(c.Name)
	c.ISOCode = strings.ToUpper(strings.TrimSpace(c.ISOCode))
	c.DialCode = strings.TrimSpace(c.DialCode)
	c.CurrencyCode = strings.ToUpper(strings.TrimSpace(c.CurrencyCode))
}

// Validate checks the country's invariants.
// PRE: Normalize has been called
// POST: returns nil if valid, error describing the first violation otherwise
func (c *Country) Validate() error {
	if c.Name == "" {
		return ErrEmptyName
	}
	if len(c.Name) > 100 {
		return ErrNameTooLong
	}
	if !isoPattern.MatchString(c.ISOCode) {
		return ErrInvalidISO
	}
	if c.DialCode != "" && !dialPattern.MatchString(c.DialCode) {
		return ErrInvalidDialCode
	}
	return nil
}
