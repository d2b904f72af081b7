package access

import (
	"net/url"

	"campus/internal/domain/identity"
	"campus/internal/domain/program"
)

// Guard outcome constants. Every navigation resolves to exactly one of these.
const (
	OutcomeChecking                 = "checking"
	OutcomeUnauthenticated          = "unauthenticated"
	OutcomeRoleDenied               = "role_denied"
	OutcomeProgramSelectionRequired = "program_selection_required"
	OutcomeNoProgramAccess          = "no_program_access"
	OutcomeAllowed                  = "allowed"
)

// Requirement declares what a route demands before it may render.
type Requirement struct {
	// Roles lists the roles allowed on the route. Empty means any
	// authenticated user.
	Roles []string
	// ProgramScoped marks routes whose data is scoped to a program, so a
	// program must be selected before they render. super_admin is exempt.
	ProgramScoped bool
}

// Snapshot is a point-in-time view of session and program-context state. The
// guard never reads live stores directly; callers take a snapshot so a
// decision is computed from one consistent state.
type Snapshot struct {
	SessionLoading    bool
	Authenticated     bool
	User              *identity.User
	ProgramsLoading   bool
	ProgramsLoaded    bool
	AvailablePrograms []program.Program
	CurrentProgram    *program.Program
}

// Decision is the transient result of one navigation check. It is recomputed
// on every navigation and never cached.
type Decision struct {
	Outcome      string
	RedirectPath string // set for unauthenticated and role-denied redirects
	Reason       string // set for denied outcomes without a redirect
}

// Allowed reports whether the decision lets the route render.
func (d Decision) Allowed() bool {
	return d.Outcome == OutcomeAllowed
}

// Decide computes the guard outcome for one navigation from a state snapshot
// and the route's requirement. requestedPath is preserved as the return
// target on login redirects.
// PRE: snap is a consistent snapshot of both stores
// POST: Returns a terminal Decision; Checking only while stores are resolving
func Decide(snap Snapshot, req Requirement, requestedPath string) Decision {
	if snap.SessionLoading {
		return Decision{Outcome: OutcomeChecking}
	}
	if !snap.Authenticated || snap.User == nil {
		return Decision{
			Outcome:      OutcomeUnauthenticated,
			RedirectPath: LoginPath(requestedPath),
		}
	}
	if !identity.RoleSatisfies(snap.User.Role, req.Roles) {
		landing := snap.User.LandingPath()
		if landing != requestedPath {
			return Decision{Outcome: OutcomeRoleDenied, RedirectPath: landing}
		}
		return Decision{
			Outcome: OutcomeRoleDenied,
			Reason:  "your role does not grant access to this page",
		}
	}
	if req.ProgramScoped && snap.User.RequiresProgramScope() {
		if snap.ProgramsLoading || !snap.ProgramsLoaded {
			return Decision{Outcome: OutcomeChecking}
		}
		if len(snap.AvailablePrograms) == 0 {
			return Decision{
				Outcome: OutcomeNoProgramAccess,
				Reason:  "you have not been assigned to any program",
			}
		}
		if snap.CurrentProgram == nil {
			return Decision{
				Outcome: OutcomeProgramSelectionRequired,
				Reason:  "a program must be selected before this page can load",
			}
		}
	}
	return Decision{Outcome: OutcomeAllowed}
}

// LoginPath builds the login redirect, carrying the originally requested path
// as the return target.
func LoginPath(requestedPath string) string {
	if requestedPath == "" || requestedPath == "/" || requestedPath == "/login" {
		return "/login"
	}
	return "/login?return_to=" + url.QueryEscape(requestedPath)
}
