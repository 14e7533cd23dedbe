package specialization

import (
	"errors"
	"strings"
)

// Max length constants for user-editable fields.
const (
	MaxNameLength        = 100
	MaxDescriptionLength = 1000
)

// Domain errors.
var (
	ErrEmptyName          = errors.New("specialization name cannot be empty")
	ErrNameTooLong        = errors.New("specialization name cannot exceed 100 characters")
	ErrDescriptionTooLong = errors.New("specialization description cannot exceed 1000 characters")
)

// Specialization is a clinical focus area (e.g. CBT, trauma, couples).
type Specialization struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Active      bool   `json:"active"`
	Version     int    `json:"version"`
}

// Validate checks the specialization's invariants.
// PRE: none
// POST: returns nil if valid, error describing the first violation otherwise
func (s *Specialization) Validate() error {
	name := strings.TrimSpace(s.Name)
	if name == "" {
		return ErrEmptyName
	}
	if len(name) > MaxNameLength {
		return ErrNameTooLong
	}
	if len(s.Description) > MaxDescriptionLength {
		return ErrDescriptionTooLong
	}
	return nil
}
