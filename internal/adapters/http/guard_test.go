package web

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"campus/internal/domain/access"
	"campus/internal/domain/identity"
	"campus/internal/domain/program"
)

func okHandler(called *bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		*called = true
		w.WriteHeader(http.StatusOK)
	}
}

func TestGuard_AnonymousRedirectsWithReturnTo(t *testing.T) {
	setupConsole(t)

	called := false
	handler := guarded(access.Requirement{ProgramScoped: true}, okHandler(&called))

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest("GET", "/dashboard", nil))

	if called {
		t.Fatal("protected handler must not run for anonymous requests")
	}
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/login?return_to=%2Fdashboard" {
		t.Errorf("expected login redirect carrying the requested path, got %q", loc)
	}
}

func TestGuard_AuthenticatedWithProgramAllowed(t *testing.T) {
	fake := setupConsole(t)
	seedAdmin(t, fake)
	cs := loginConsole(t, "admin@campus.test", "secret")

	called := false
	handler := guarded(access.Requirement{ProgramScoped: true}, okHandler(&called))

	rec := httptest.NewRecorder()
	handler(rec, sessionRequest("GET", "/dashboard", cs))

	if !called || rec.Code != http.StatusOK {
		t.Errorf("expected the page to render, got %d (called=%v)", rec.Code, called)
	}
}

func TestGuard_RoleDeniedRedirectsToLanding(t *testing.T) {
	fake := setupConsole(t)
	user := identity.User{ID: "u3", Email: "student@campus.test", Name: "Stella", Role: identity.RoleStudent}
	if err := fake.SeedAccount(user, "secret"); err != nil {
		t.Fatalf("seed account: %v", err)
	}
	fake.SetAssignments("u3", []program.Assignment{
		{UserID: "u3", Program: program.Program{ID: "a", Name: "Alpha", Code: "A", Status: program.StatusActive, DisplayOrder: 1}},
	})
	cs := loginConsole(t, "student@campus.test", "secret")

	called := false
	handler := guarded(access.Requirement{
		Roles:         []string{identity.RoleSuperAdmin, identity.RoleProgramAdmin},
		ProgramScoped: true,
	}, okHandler(&called))

	rec := httptest.NewRecorder()
	handler(rec, sessionRequest("GET", "/admin/settings", cs))

	if called {
		t.Fatal("protected handler must not run for a denied role")
	}
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/home" {
		t.Errorf("expected redirect to the student landing page, got %d %q", rec.Code, rec.Header().Get("Location"))
	}
}

func TestGuard_RoleDeniedAtOwnLandingRendersExplanation(t *testing.T) {
	fake := setupConsole(t)
	user := identity.User{ID: "u3", Email: "student@campus.test", Name: "Stella", Role: identity.RoleStudent}
	if err := fake.SeedAccount(user, "secret"); err != nil {
		t.Fatalf("seed account: %v", err)
	}
	fake.SetAssignments("u3", []program.Assignment{
		{UserID: "u3", Program: program.Program{ID: "a", Name: "Alpha", Code: "A", Status: program.StatusActive, DisplayOrder: 1}},
	})
	cs := loginConsole(t, "student@campus.test", "secret")

	// The student's landing page itself requires a role they lack: redirecting
	// there would loop, so an explanation renders instead.
	called := false
	handler := guarded(access.Requirement{Roles: []string{identity.RoleSuperAdmin}}, okHandler(&called))

	rec := httptest.NewRecorder()
	handler(rec, sessionRequest("GET", "/home", cs))

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "role does not grant access") {
		t.Error("expected the denial reason in the page")
	}
}

func TestGuard_NoAssignmentsRendersNoAccess(t *testing.T) {
	fake := setupConsole(t)
	user := identity.User{ID: "u4", Email: "lonely@campus.test", Name: "Lee", Role: identity.RoleInstructor}
	if err := fake.SeedAccount(user, "secret"); err != nil {
		t.Fatalf("seed account: %v", err)
	}
	cs := loginConsole(t, "lonely@campus.test", "secret")

	called := false
	handler := guarded(access.Requirement{ProgramScoped: true}, okHandler(&called))

	rec := httptest.NewRecorder()
	handler(rec, sessionRequest("GET", "/dashboard", cs))

	if called {
		t.Fatal("a user with no program access must not reach the page")
	}
	// Empty program list means no-access, never the program picker.
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "not been assigned") {
		t.Error("expected the no-access explanation")
	}
	if loc := rec.Header().Get("Location"); loc != "" {
		t.Errorf("expected no redirect to the picker, got %q", loc)
	}
}

func TestGuard_SuperAdminSkipsProgramScope(t *testing.T) {
	fake := setupConsole(t)
	user := identity.User{ID: "u5", Email: "super@campus.test", Name: "Sam", Role: identity.RoleSuperAdmin}
	if err := fake.SeedAccount(user, "secret"); err != nil {
		t.Fatalf("seed account: %v", err)
	}
	cs := loginConsole(t, "super@campus.test", "secret")

	called := false
	handler := guarded(access.Requirement{
		Roles:         []string{identity.RoleSuperAdmin},
		ProgramScoped: true,
	}, okHandler(&called))

	rec := httptest.NewRecorder()
	handler(rec, sessionRequest("GET", "/admin/settings", cs))

	if !called || rec.Code != http.StatusOK {
		t.Errorf("super admin must pass without any program assignment, got %d (called=%v)", rec.Code, called)
	}
}

func TestGuard_ResolvesUninitializedSessionSynchronously(t *testing.T) {
	fake := setupConsole(t)
	seedAdmin(t, fake)

	// A registered console session with a valid bearer token whose stores have
	// never run: the guard must initialize and load before deciding.
	cs, err := sessions.Create()
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	_, token, err := cs.Client.Login(context.Background(), "admin@campus.test", "secret")
	if err != nil {
		t.Fatalf("backend login: %v", err)
	}
	cs.Client.SetToken(token)

	called := false
	handler := guarded(access.Requirement{ProgramScoped: true}, okHandler(&called))

	rec := httptest.NewRecorder()
	handler(rec, sessionRequest("GET", "/dashboard", cs))

	if !called || rec.Code != http.StatusOK {
		t.Fatalf("expected the guard to resolve the session and allow, got %d (called=%v)", rec.Code, called)
	}

	auth := cs.Auth.Snapshot()
	prog := cs.Programs.Snapshot()
	if !auth.IsAuthenticated || !prog.Loaded || prog.CurrentProgram == nil {
		t.Errorf("expected a fully resolved session, got auth=%+v prog=%+v", auth, prog)
	}
}

func TestGuard_BackendDownRendersRetry(t *testing.T) {
	fake := setupConsole(t)
	seedAdmin(t, fake)
	cs := loginConsole(t, "admin@campus.test", "secret")

	// Force the next reload to fail, then wipe the loaded list by resetting
	// and re-driving the load through the guard.
	cs.Programs.Reset()
	fake.FailNext("/programs/assignments", 10)

	called := false
	handler := guarded(access.Requirement{ProgramScoped: true}, okHandler(&called))

	rec := httptest.NewRecorder()
	handler(rec, sessionRequest("GET", "/dashboard", cs))

	if called {
		t.Fatal("page must not render while programs are unresolved")
	}
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Try again") {
		t.Error("expected a retry affordance")
	}
}
