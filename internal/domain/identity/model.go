package identity

import (
	"errors"
	"strings"
)

// Max length constants for user-editable fields.
const (
	MaxEmailLength = 254
)

// Role constants
const (
	RoleSuperAdmin         = "super_admin"
	RoleProgramAdmin       = "program_admin"
	RoleProgramCoordinator = "program_coordinator"
	RoleInstructor         = "instructor"
	RoleStudent            = "student"
	RoleParent             = "parent"
)

// ValidRoles contains all valid role values.
var ValidRoles = []string{
	RoleSuperAdmin, RoleProgramAdmin, RoleProgramCoordinator,
	RoleInstructor, RoleStudent, RoleParent,
}

// Domain errors
var (
	ErrEmptyEmail   = errors.New("email cannot be empty")
	ErrInvalidEmail = errors.New("email must contain '@'")
	ErrInvalidRole  = errors.New("role must be one of: super_admin, program_admin, program_coordinator, instructor, student, parent")
)

// User is the authenticated identity returned by the auth backend.
// It is immutable for the life of a session except via an explicit refresh.
type User struct {
	ID    string
	Email string
	Name  string
	Role  string
}

// landingPaths maps each role to its default landing page, used when a
// role-denied navigation has somewhere sensible to fall back to.
var landingPaths = map[string]string{
	RoleSuperAdmin:         "/platform",
	RoleProgramAdmin:       "/dashboard",
	RoleProgramCoordinator: "/dashboard",
	RoleInstructor:         "/dashboard",
	RoleStudent:            "/home",
	RoleParent:             "/home",
}

// Validate checks if the User has valid data.
// PRE: User struct is populated
// POST: Returns nil if valid, error otherwise
func (u *User) Validate() error {
	if strings.TrimSpace(u.Email) == "" {
		return ErrEmptyEmail
	}
	if len(u.Email) > MaxEmailLength {
		return errors.New("email cannot exceed 254 characters")
	}
	if !strings.Contains(u.Email, "@") {
		return ErrInvalidEmail
	}
	if !IsValidRole(u.Role) {
		return ErrInvalidRole
	}
	return nil
}

// IsSuperAdmin returns true if the user has the super_admin role.
// INVARIANT: User fields are not mutated
func (u *User) IsSuperAdmin() bool {
	return u.Role == RoleSuperAdmin
}

// RequiresProgramScope returns true if the role operates inside a program
// context. super_admin works across programs and is exempt from program
// selection on program-agnostic routes.
// INVARIANT: User fields are not mutated
func (u *User) RequiresProgramScope() bool {
	return !u.IsSuperAdmin()
}

// LandingPath returns the default landing page for the user's role.
// Unknown roles land on the dashboard.
func (u *User) LandingPath() string {
	if p, ok := landingPaths[u.Role]; ok {
		return p
	}
	return "/dashboard"
}

// RoleSatisfies reports whether role meets the requirement of any role in
// required. An empty required list means any authenticated role qualifies.
func RoleSatisfies(role string, required []string) bool {
	if len(required) == 0 {
		return true
	}
	for _, r := range required {
		if role == r {
			return true
		}
	}
	return false
}

// IsValidRole returns true if role is one of the known role values.
func IsValidRole(role string) bool {
	for _, r := range ValidRoles {
		if r == role {
			return true
		}
	}
	return false
}
