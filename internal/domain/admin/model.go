package admin

import (
	"errors"
	"slices"
	"strings"
	"time"
)

// Max length constants for user-editable fields.
const (
	MaxEmailLength = 254
	MaxNameLength  = 100
	MinPassword    = 12
)

// Role constants
const (
	RoleSuperAdmin = "super_admin"
	RoleAdmin      = "admin"
	RoleTherapist  = "therapist"
)

// ValidRoles contains the roles an admin record may hold.
var ValidRoles = []string{RoleSuperAdmin, RoleAdmin}

// Domain errors
var (
	ErrEmptyEmail       = errors.New("email cannot be empty")
	ErrEmailTooLong     = errors.New("email cannot exceed 254 characters")
	ErrInvalidEmail     = errors.New("email must contain '@'")
	ErrEmptyName        = errors.New("name cannot be empty")
	ErrNameTooLong      = errors.New("name cannot exceed 100 characters")
	ErrInvalidRole      = errors.New("role must be one of: super_admin, admin")
	ErrPasswordTooShort = errors.New("password must be at least 12 characters")
	ErrLastSuperAdmin   = errors.New("cannot demote or deactivate the last super admin")
)

// Admin is a back-office operator of the platform.
type Admin struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
}

// Validate checks if the Admin has valid data.
// PRE: Admin struct is populated
// POST: Returns nil if valid, error otherwise
func (a *Admin) Validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return ErrEmptyName
	}
	if len(a.Name) > MaxNameLength {
		return ErrNameTooLong
	}
	if strings.TrimSpace(a.Email) == "" {
		return ErrEmptyEmail
	}
	if len(a.Email) > MaxEmailLength {
		return ErrEmailTooLong
	}
	if !strings.Contains(a.Email, "@") {
		return ErrInvalidEmail
	}
	if !slices.Contains(ValidRoles, a.Role) {
		return ErrInvalidRole
	}
	return nil
}

// IsSuperAdmin returns true if the admin can manage other admins.
// INVARIANT: Admin fields are not mutated
func (a *Admin) IsSuperAdmin() bool {
	return a.Role == RoleSuperAdmin
}

// CheckDemotion refuses to leave the platform without an active super admin.
// PRE: all is the full admin list, updated is the pending change to one of them
// POST: returns ErrLastSuperAdmin if no active super admin would remain
func CheckDemotion(all []Admin, updated Admin) error {
	for _, a := range all {
		if a.ID == updated.ID {
			continue
		}
		if a.IsSuperAdmin() && a.Active {
			return nil
		}
	}
	if updated.IsSuperAdmin() && updated.Active {
		return nil
	}
	return ErrLastSuperAdmin
}

// ValidatePassword enforces the minimum password length for new admins.
func ValidatePassword(p string) error {
	if len(p) < MinPassword {
		return ErrPasswordTooShort
	}
	return nil
}
