package web

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/csrf"

	"campus/internal/adapters/http/middleware"
	"campus/internal/application/programctx"
	"campus/internal/application/session"
	"campus/internal/domain/access"
	"campus/internal/domain/identity"
	"campus/internal/domain/program"
)

// internalError logs the real error and returns a generic message to the client.
// This prevents leaking internal details per OWASP A05.
func internalError(w http.ResponseWriter, err error) {
	slog.Error("internal_error", "error", err.Error())
	http.Error(w, "internal server error", http.StatusInternalServerError)
}

// safeReturnTo validates a post-login redirect target. Only local absolute
// paths are accepted; anything else falls back to the empty string so the
// caller picks the role landing page.
func safeReturnTo(path string) string {
	if path == "" || !strings.HasPrefix(path, "/") {
		return ""
	}
	if strings.HasPrefix(path, "//") || strings.ContainsAny(path, "\\\r\n") {
		return ""
	}
	if path == "/login" || path == "/select-program" {
		return ""
	}
	return path
}

// landingFor picks the post-login destination: an explicit validated return
// target wins, otherwise the role landing page.
func landingFor(user *identity.User, returnTo string) string {
	if target := safeReturnTo(returnTo); target != "" {
		return target
	}
	if user != nil {
		return user.LandingPath()
	}
	return "/login"
}

func registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/", handleIndex)
	mux.HandleFunc("/login", handleLogin)
	mux.HandleFunc("/logout", handleLogout)
	mux.HandleFunc("/select-program", handleSelectProgram)
	mux.HandleFunc("/session", handleSession)
	mux.HandleFunc("/session/refresh", handleSessionRefresh)
	mux.HandleFunc("/programs/refresh", handleProgramsRefresh)

	mux.HandleFunc("/dashboard", guarded(access.Requirement{
		ProgramScoped: true,
	}, handleDashboard))
	mux.HandleFunc("/home", guarded(access.Requirement{
		ProgramScoped: true,
	}, handleHome))
	mux.HandleFunc("/admin/settings", guarded(access.Requirement{
		Roles:         []string{identity.RoleSuperAdmin, identity.RoleProgramAdmin},
		ProgramScoped: true,
	}, handleAdminSettings))
	mux.HandleFunc("/platform", guarded(access.Requirement{
		Roles: []string{identity.RoleSuperAdmin},
	}, handlePlatform))
}

// handleIndex routes the console root: logged-in users land on their role
// page, everyone else goes to the login form.
func handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	cs, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	cs.Auth.Initialize(r.Context())
	auth := cs.Auth.Snapshot()
	if auth.User == nil {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, auth.User.LandingPath(), http.StatusSeeOther)
}

// handleLogin handles GET (form) and POST (authenticate) for /login
func handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method == "GET" {
		if cs, ok := middleware.SessionFromContext(r.Context()); ok {
			cs.Auth.Initialize(r.Context())
			if auth := cs.Auth.Snapshot(); auth.User != nil {
				http.Redirect(w, r, auth.User.LandingPath(), http.StatusSeeOther)
				return
			}
		}
		renderPage(w, http.StatusOK, "login", pageData{
			Title:     "Sign in",
			ReturnTo:  safeReturnTo(r.URL.Query().Get("return_to")),
			CSRFField: csrf.TemplateField(r),
		})
		return
	}

	if r.Method == "POST" {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid form submission", http.StatusBadRequest)
			return
		}
		email := r.FormValue("Email")
		password := r.FormValue("Password")
		returnTo := r.FormValue("ReturnTo")

		cs, existing := middleware.SessionFromContext(r.Context())
		if existing {
			if auth := cs.Auth.Snapshot(); auth.User != nil {
				http.Redirect(w, r, auth.User.LandingPath(), http.StatusSeeOther)
				return
			}
		} else {
			created, err := sessions.Create()
			if err != nil {
				internalError(w, err)
				return
			}
			cs = created
		}

		if err := cs.Auth.Login(r.Context(), email, password); err != nil {
			if !existing {
				sessions.Delete(cs.Token)
			}
			status := http.StatusUnauthorized
			if errors.Is(err, session.ErrEmptyCredentials) {
				status = http.StatusBadRequest
			}
			renderPage(w, status, "login", pageData{
				Title:     "Sign in",
				Error:     err.Error(),
				ReturnTo:  safeReturnTo(returnTo),
				CSRFField: csrf.TemplateField(r),
			})
			return
		}

		middleware.SetSessionCookie(w, cs.Token)
		auth := cs.Auth.Snapshot()
		http.Redirect(w, r, landingFor(auth.User, returnTo), http.StatusSeeOther)
		return
	}

	w.WriteHeader(http.StatusMethodNotAllowed)
}

// handleLogout handles POST /logout
func handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if cs, ok := middleware.SessionFromContext(r.Context()); ok {
		cs.Auth.Logout(r.Context())
		sessions.Delete(cs.Token)
	}

	middleware.ClearSessionCookie(w)
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// handleSelectProgram handles GET (picker) and POST (switch) for
// /select-program. The picker is itself guarded: an unauthenticated visitor
// is bounced to login, and a user with no assignments sees the no-access page
// rather than an empty picker.
func handleSelectProgram(w http.ResponseWriter, r *http.Request) {
	cs, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		http.Redirect(w, r, access.LoginPath(r.URL.Path), http.StatusSeeOther)
		return
	}

	cs.Auth.Initialize(r.Context())
	auth := cs.Auth.Snapshot()
	if auth.User == nil {
		http.Redirect(w, r, access.LoginPath(r.URL.Path), http.StatusSeeOther)
		return
	}

	if r.Method == "GET" {
		prog := ensureProgramsLoaded(cs, r)
		if !prog.Loaded {
			renderPage(w, http.StatusServiceUnavailable, "error", pageData{
				Title:     "Temporarily unavailable",
				User:      auth.User,
				Error:     prog.Err,
				CSRFField: csrf.TemplateField(r),
			})
			return
		}
		if len(prog.AvailablePrograms) == 0 {
			renderPage(w, http.StatusForbidden, "denied", pageData{
				Title:       "Access denied",
				User:        auth.User,
				Reason:      "you have not been assigned to any program",
				Remediation: renderMarkdown(remediationCopy[access.OutcomeNoProgramAccess]),
				CSRFField:   csrf.TemplateField(r),
			})
			return
		}
		renderPage(w, http.StatusOK, "select_program", pageData{
			Title:          "Select a program",
			User:           auth.User,
			CurrentProgram: prog.CurrentProgram,
			Programs:       prog.AvailablePrograms,
			Error:          prog.Err,
			Remediation:    renderMarkdown(remediationCopy[access.OutcomeProgramSelectionRequired]),
			ReturnTo:       safeReturnTo(r.URL.Query().Get("return_to")),
			CSRFField:      csrf.TemplateField(r),
		})
		return
	}

	if r.Method == "POST" {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid form submission", http.StatusBadRequest)
			return
		}
		programID := r.FormValue("ProgramID")
		returnTo := r.FormValue("ReturnTo")

		if err := cs.Programs.SwitchProgram(r.Context(), programID); err != nil {
			slog.Info("program_event",
				"event", "switch_rejected",
				"email", auth.User.Email,
				"program_id", programID,
				"error", err.Error())
			prog := cs.Programs.Snapshot()
			renderPage(w, http.StatusUnprocessableEntity, "select_program", pageData{
				Title:          "Select a program",
				User:           auth.User,
				CurrentProgram: prog.CurrentProgram,
				Programs:       prog.AvailablePrograms,
				Error:          err.Error(),
				ReturnTo:       safeReturnTo(returnTo),
				CSRFField:      csrf.TemplateField(r),
			})
			return
		}

		slog.Info("program_event",
			"event", "switched",
			"email", auth.User.Email,
			"program_id", programID)
		http.Redirect(w, r, landingFor(auth.User, returnTo), http.StatusSeeOther)
		return
	}

	w.WriteHeader(http.StatusMethodNotAllowed)
}

// ensureProgramsLoaded triggers a load when the list has never resolved and
// returns the resulting snapshot.
func ensureProgramsLoaded(cs *middleware.ConsoleSession, r *http.Request) programctx.State {
	prog := cs.Programs.Snapshot()
	auth := cs.Auth.Snapshot()
	if !prog.Loaded && !prog.IsLoading && auth.User != nil {
		_ = cs.Programs.LoadUserPrograms(r.Context(), auth.User.ID)
		prog = cs.Programs.Snapshot()
	}
	return prog
}

// sessionView is the JSON shape of GET /session.
type sessionView struct {
	Authenticated bool          `json:"authenticated"`
	Initialized   bool          `json:"initialized"`
	Loading       bool          `json:"loading"`
	User          *userView     `json:"user,omitempty"`
	Error         string        `json:"error,omitempty"`
	Programs      *programsView `json:"programs,omitempty"`
}

type userView struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

type programsView struct {
	Loaded    bool              `json:"loaded"`
	Loading   bool              `json:"loading"`
	Available []program.Program `json:"available"`
	Current   *program.Program  `json:"current,omitempty"`
	Error     string            `json:"error,omitempty"`
}

func sessionViewOf(cs *middleware.ConsoleSession) sessionView {
	auth := cs.Auth.Snapshot()
	view := sessionView{
		Authenticated: auth.IsAuthenticated,
		Initialized:   auth.Initialized,
		Loading:       auth.IsLoading,
		Error:         auth.Err,
	}
	if auth.User != nil {
		view.User = &userView{
			ID:    auth.User.ID,
			Email: auth.User.Email,
			Name:  auth.User.Name,
			Role:  auth.User.Role,
		}
		prog := cs.Programs.Snapshot()
		available := prog.AvailablePrograms
		if available == nil {
			available = []program.Program{}
		}
		view.Programs = &programsView{
			Loaded:    prog.Loaded,
			Loading:   prog.IsLoading,
			Available: available,
			Current:   prog.CurrentProgram,
			Error:     prog.Err,
		}
	}
	return view
}

// handleSession handles GET /session: a JSON snapshot of the console session,
// used by page scripts to decide what to render without a full reload.
func handleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != "GET" {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	cs, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(sessionView{})
		return
	}

	cs.Auth.Initialize(r.Context())
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sessionViewOf(cs))
}

// handleSessionRefresh handles POST /session/refresh: revalidates the user
// against the platform. A failed revalidation tears the session down.
func handleSessionRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	cs, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		http.Error(w, "no active session", http.StatusUnauthorized)
		return
	}

	if err := cs.Auth.RefreshUser(r.Context()); err != nil {
		sessions.Delete(cs.Token)
		middleware.ClearSessionCookie(w)
		http.Error(w, "session expired", http.StatusUnauthorized)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sessionViewOf(cs))
}

// handleProgramsRefresh handles POST /programs/refresh: refetches assignments
// so a newly granted program shows up without signing out.
func handleProgramsRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	cs, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	if err := cs.Programs.RefreshPrograms(r.Context()); err != nil && !errors.Is(err, programctx.ErrBusy) {
		slog.Warn("program_event", "event", "refresh_failed", "error", err.Error())
	}
	http.Redirect(w, r, "/select-program", http.StatusSeeOther)
}

// --- Guarded pages ---

func handleDashboard(w http.ResponseWriter, r *http.Request) {
	renderGuardedPage(w, r, "Dashboard")
}

func handleHome(w http.ResponseWriter, r *http.Request) {
	renderGuardedPage(w, r, "Home")
}

func handleAdminSettings(w http.ResponseWriter, r *http.Request) {
	renderGuardedPage(w, r, "Program settings")
}

func handlePlatform(w http.ResponseWriter, r *http.Request) {
	renderGuardedPage(w, r, "Platform administration")
}

func renderGuardedPage(w http.ResponseWriter, r *http.Request, title string) {
	cs, _ := middleware.SessionFromContext(r.Context())
	auth := cs.Auth.Snapshot()
	prog := cs.Programs.Snapshot()
	renderPage(w, http.StatusOK, "page", pageData{
		Title:          title,
		User:           auth.User,
		CurrentProgram: prog.CurrentProgram,
		CSRFField:      csrf.TemplateField(r),
	})
}
