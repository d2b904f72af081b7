package program

import (
	"errors"
	"strings"
	"time"
)

// Program status constants
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
	StatusDraft    = "draft"
	StatusArchived = "archived"
)

// ValidStatuses contains all valid program status values.
var ValidStatuses = []string{StatusActive, StatusInactive, StatusDraft, StatusArchived}

// Domain errors
var (
	ErrEmptyName     = errors.New("program name cannot be empty")
	ErrEmptyCode     = errors.New("program code cannot be empty")
	ErrInvalidStatus = errors.New("program status must be one of: active, inactive, draft, archived")
)

// Program is a tenant-like scope within the platform (e.g. one academic
// program). The list is read-only from the console's perspective.
type Program struct {
	ID           string
	Name         string
	Code         string
	Status       string // active, inactive, draft, archived
	DisplayOrder int
}

// Assignment grants a user access to one Program. At most one assignment per
// user is expected to carry the IsDefault flag; violated data falls back to
// list order.
type Assignment struct {
	UserID     string
	Program    Program
	IsDefault  bool
	AssignedAt time.Time
	AssignedBy string
}

// Validate checks if the Program has valid data.
// PRE: Program struct is populated
// POST: Returns nil if valid, error otherwise
func (p *Program) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return ErrEmptyName
	}
	if strings.TrimSpace(p.Code) == "" {
		return ErrEmptyCode
	}
	if !isValidStatus(p.Status) {
		return ErrInvalidStatus
	}
	return nil
}

// IsActive returns true if the program accepts new activity.
// INVARIANT: Program fields are not mutated
func (p *Program) IsActive() bool {
	return p.Status == StatusActive
}

func isValidStatus(s string) bool {
	for _, v := range ValidStatuses {
		if v == s {
			return true
		}
	}
	return false
}
