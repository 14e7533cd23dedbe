package language

import (
	"errors"
	"regexp"
	"strings"
)

// Domain errors.
var (
	ErrInvalidCode = errors.New("language code must be a two-letter ISO 639-1 code")
	ErrEmptyName   = errors.New("language name cannot be empty")
)

var codePattern = regexp.MustCompile(`^[a-z]{2}$`)

// Language is a language a therapist can hold sessions in.
type Language struct {
	ID         string `json:"id"`
	Code       string `json:"code"`
	Name       string `json:"name"`
	NativeName string `json:"native_name"`
	Active     bool   `json:"active"`
	Version    int    `json:"version"`
}

// Validate checks the language's invariants.
// PRE: none
// POST: returns nil if valid, error describing the first violation otherwise
func (l *Language) Validate() error {
	if !codePattern.MatchString(l.Code) {
		return ErrInvalidCode
	}
	if strings.TrimSpace(l.Name) == "" {
		return ErrEmptyName
	}
	return nil
}
