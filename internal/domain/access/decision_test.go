package access_test

import (
	"testing"

	"campus/internal/domain/access"
	"campus/internal/domain/identity"
	"campus/internal/domain/program"
)

func instructor() *identity.User {
	return &identity.User{ID: "u1", Email: "coach@academy.test", Role: identity.RoleInstructor}
}

func superAdmin() *identity.User {
	return &identity.User{ID: "u2", Email: "root@academy.test", Role: identity.RoleSuperAdmin}
}

func activeProgram(id string) program.Program {
	return program.Program{ID: id, Name: id, Code: id, Status: program.StatusActive}
}

func loadedSnapshot(user *identity.User, programs []program.Program, current *program.Program) access.Snapshot {
	return access.Snapshot{
		Authenticated:     user != nil,
		User:              user,
		ProgramsLoaded:    true,
		AvailablePrograms: programs,
		CurrentProgram:    current,
	}
}

// TestDecide_SessionLoading tests that an unresolved session yields Checking.
func TestDecide_SessionLoading(t *testing.T) {
	d := access.Decide(access.Snapshot{SessionLoading: true}, access.Requirement{}, "/dashboard")
	if d.Outcome != access.OutcomeChecking {
		t.Errorf("expected checking, got %s", d.Outcome)
	}
}

// TestDecide_Unauthenticated tests the login redirect with return target.
func TestDecide_Unauthenticated(t *testing.T) {
	d := access.Decide(access.Snapshot{}, access.Requirement{}, "/dashboard")
	if d.Outcome != access.OutcomeUnauthenticated {
		t.Fatalf("expected unauthenticated, got %s", d.Outcome)
	}
	if d.RedirectPath != "/login?return_to=%2Fdashboard" {
		t.Errorf("expected return target preserved, got %s", d.RedirectPath)
	}
}

// TestDecide_AuthenticatedFlagWithoutUser tests that a half-authenticated snapshot fails closed.
func TestDecide_AuthenticatedFlagWithoutUser(t *testing.T) {
	d := access.Decide(access.Snapshot{Authenticated: true, User: nil}, access.Requirement{}, "/dashboard")
	if d.Outcome != access.OutcomeUnauthenticated {
		t.Errorf("expected unauthenticated for nil user, got %s", d.Outcome)
	}
}

// TestDecide_RoleDeniedRedirectsToLanding tests the role-denied redirect.
func TestDecide_RoleDeniedRedirectsToLanding(t *testing.T) {
	snap := loadedSnapshot(instructor(), []program.Program{activeProgram("a")}, nil)
	d := access.Decide(snap, access.Requirement{Roles: []string{identity.RoleSuperAdmin}}, "/platform")
	if d.Outcome != access.OutcomeRoleDenied {
		t.Fatalf("expected role_denied, got %s", d.Outcome)
	}
	if d.RedirectPath != "/dashboard" {
		t.Errorf("expected redirect to landing page, got %q", d.RedirectPath)
	}
}

// TestDecide_RoleDeniedOnOwnLanding tests the denied view when no redirect makes sense.
func TestDecide_RoleDeniedOnOwnLanding(t *testing.T) {
	snap := loadedSnapshot(instructor(), nil, nil)
	d := access.Decide(snap, access.Requirement{Roles: []string{identity.RoleSuperAdmin}}, "/dashboard")
	if d.Outcome != access.OutcomeRoleDenied {
		t.Fatalf("expected role_denied, got %s", d.Outcome)
	}
	if d.RedirectPath != "" {
		t.Errorf("expected no redirect, got %q", d.RedirectPath)
	}
	if d.Reason == "" {
		t.Error("expected a non-empty reason")
	}
}

// TestDecide_ProgramsStillLoading tests Checking while the program list resolves.
func TestDecide_ProgramsStillLoading(t *testing.T) {
	snap := access.Snapshot{
		Authenticated:   true,
		User:            instructor(),
		ProgramsLoading: true,
	}
	d := access.Decide(snap, access.Requirement{ProgramScoped: true}, "/dashboard")
	if d.Outcome != access.OutcomeChecking {
		t.Errorf("expected checking, got %s", d.Outcome)
	}
}

// TestDecide_NoProgramAccess tests the empty-list outcome is distinct from selection-required.
func TestDecide_NoProgramAccess(t *testing.T) {
	snap := loadedSnapshot(instructor(), nil, nil)
	d := access.Decide(snap, access.Requirement{ProgramScoped: true}, "/dashboard")
	if d.Outcome != access.OutcomeNoProgramAccess {
		t.Errorf("expected no_program_access, got %s", d.Outcome)
	}
}

// TestDecide_ProgramSelectionRequired tests the loaded-but-unselected outcome.
func TestDecide_ProgramSelectionRequired(t *testing.T) {
	snap := loadedSnapshot(instructor(), []program.Program{activeProgram("a")}, nil)
	d := access.Decide(snap, access.Requirement{ProgramScoped: true}, "/dashboard")
	if d.Outcome != access.OutcomeProgramSelectionRequired {
		t.Errorf("expected program_selection_required, got %s", d.Outcome)
	}
}

// TestDecide_Allowed tests the happy path with a selected program.
func TestDecide_Allowed(t *testing.T) {
	current := activeProgram("a")
	snap := loadedSnapshot(instructor(), []program.Program{current}, &current)
	d := access.Decide(snap, access.Requirement{ProgramScoped: true}, "/dashboard")
	if !d.Allowed() {
		t.Errorf("expected allowed, got %s", d.Outcome)
	}
}

// TestDecide_SuperAdminSkipsProgramStates tests the program-scope exemption.
func TestDecide_SuperAdminSkipsProgramStates(t *testing.T) {
	snap := loadedSnapshot(superAdmin(), nil, nil)
	d := access.Decide(snap, access.Requirement{ProgramScoped: true}, "/platform/reports")
	if !d.Allowed() {
		t.Errorf("expected super_admin to skip program states, got %s", d.Outcome)
	}
}

// TestLoginPath tests return-target preservation edge cases.
func TestLoginPath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"", "/login"},
		{"/", "/login"},
		{"/login", "/login"},
		{"/admin/settings", "/login?return_to=%2Fadmin%2Fsettings"},
	}
	for _, tt := range tests {
		if got := access.LoginPath(tt.path); got != tt.want {
			t.Errorf("LoginPath(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}
