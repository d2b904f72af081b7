package web

import (
	"log/slog"
	"net/http"
	"net/url"

	"github.com/gorilla/csrf"

	"campus/internal/adapters/http/middleware"
	"campus/internal/domain/access"
)

// snapshotOf assembles the guard's state snapshot from one console session's
// stores. Decisions are computed from this copy, never from live store state.
func snapshotOf(cs *middleware.ConsoleSession) access.Snapshot {
	auth := cs.Auth.Snapshot()
	prog := cs.Programs.Snapshot()
	return access.Snapshot{
		SessionLoading:    auth.IsLoading || !auth.Initialized,
		Authenticated:     auth.IsAuthenticated,
		User:              auth.User,
		ProgramsLoading:   prog.IsLoading,
		ProgramsLoaded:    prog.Loaded,
		AvailablePrograms: prog.AvailablePrograms,
		CurrentProgram:    prog.CurrentProgram,
	}
}

// guarded wraps a handler with the route guard. The decision is recomputed on
// every request; a Checking outcome resolves synchronously by driving the
// stores before re-deciding, so a page never renders from a half-initialized
// session.
func guarded(req access.Requirement, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cs, ok := middleware.SessionFromContext(r.Context())
		if !ok {
			http.Redirect(w, r, access.LoginPath(r.URL.Path), http.StatusSeeOther)
			return
		}

		decision := access.Decide(snapshotOf(cs), req, r.URL.Path)
		if decision.Outcome == access.OutcomeChecking {
			decision = resolveChecking(cs, req, r)
		}

		switch decision.Outcome {
		case access.OutcomeAllowed:
			next(w, r)

		case access.OutcomeUnauthenticated:
			http.Redirect(w, r, decision.RedirectPath, http.StatusSeeOther)

		case access.OutcomeRoleDenied:
			logDenial(cs, r, decision)
			if decision.RedirectPath != "" {
				http.Redirect(w, r, decision.RedirectPath, http.StatusSeeOther)
				return
			}
			renderDenied(w, r, cs, decision)

		case access.OutcomeProgramSelectionRequired:
			logDenial(cs, r, decision)
			http.Redirect(w, r, "/select-program?return_to="+url.QueryEscape(r.URL.Path), http.StatusSeeOther)

		case access.OutcomeNoProgramAccess:
			logDenial(cs, r, decision)
			renderDenied(w, r, cs, decision)

		default:
			// Still checking: the program load failed and left nothing to
			// decide on. Offer a retry instead of blocking forever.
			prog := cs.Programs.Snapshot()
			auth := cs.Auth.Snapshot()
			renderPage(w, http.StatusServiceUnavailable, "error", pageData{
				Title:     "Temporarily unavailable",
				User:      auth.User,
				Error:     prog.Err,
				CSRFField: csrf.TemplateField(r),
			})
		}
	}
}

// resolveChecking drives the stores until the snapshot is decidable: it
// initializes an untouched session and loads programs for an authenticated
// user whose list has not resolved yet.
func resolveChecking(cs *middleware.ConsoleSession, req access.Requirement, r *http.Request) access.Decision {
	ctx := r.Context()

	auth := cs.Auth.Snapshot()
	if !auth.Initialized && !auth.IsLoading {
		cs.Auth.Initialize(ctx)
	}

	decision := access.Decide(snapshotOf(cs), req, r.URL.Path)
	if decision.Outcome != access.OutcomeChecking {
		return decision
	}

	auth = cs.Auth.Snapshot()
	prog := cs.Programs.Snapshot()
	if auth.User != nil && !prog.Loaded && !prog.IsLoading {
		_ = cs.Programs.LoadUserPrograms(ctx, auth.User.ID)
	}
	return access.Decide(snapshotOf(cs), req, r.URL.Path)
}

func renderDenied(w http.ResponseWriter, r *http.Request, cs *middleware.ConsoleSession, decision access.Decision) {
	auth := cs.Auth.Snapshot()
	prog := cs.Programs.Snapshot()
	renderPage(w, http.StatusForbidden, "denied", pageData{
		Title:          "Access denied",
		User:           auth.User,
		CurrentProgram: prog.CurrentProgram,
		Reason:         decision.Reason,
		Remediation:    renderMarkdown(remediationCopy[decision.Outcome]),
		CSRFField:      csrf.TemplateField(r),
	})
}

func logDenial(cs *middleware.ConsoleSession, r *http.Request, decision access.Decision) {
	email := ""
	if auth := cs.Auth.Snapshot(); auth.User != nil {
		email = auth.User.Email
	}
	slog.Info("guard_event",
		"event", "denied",
		"outcome", decision.Outcome,
		"path", r.URL.Path,
		"email", email)
}
