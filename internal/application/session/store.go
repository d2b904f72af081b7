// Package session is the single source of truth for "who is logged in" on
// one console session. It owns the login/logout/initialize/refresh lifecycle
// and drives the program-context store as a continuation of authentication.
package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"campus/internal/adapters/backend"
	"campus/internal/domain/identity"
)

// Store errors
var (
	ErrBusy             = errors.New("a login is already in progress")
	ErrAlreadyLoggedIn  = errors.New("already logged in")
	ErrEmptyCredentials = errors.New("email and password are required")
)

// AuthAPI is the slice of the platform client the session store drives.
type AuthAPI interface {
	Login(ctx context.Context, email, password string) (identity.User, string, error)
	Me(ctx context.Context) (identity.User, error)
	Logout(ctx context.Context) error
	SetToken(token string)
	Reset()
}

// ProgramContext is the program store surface the session lifecycle drives.
type ProgramContext interface {
	LoadUserPrograms(ctx context.Context, accountID string) error
	ForgetSelection(ctx context.Context)
	Reset()
}

// State is a snapshot of the session store.
// IsAuthenticated true always implies a non-nil User; the reverse transitional
// states may exist only while IsLoading is true.
type State struct {
	User            *identity.User
	IsAuthenticated bool
	IsLoading       bool
	Initialized     bool
	Err             string
}

// Store is the session state machine for one console session. A logout bumps
// the epoch counter so a login or initialization still in flight commits
// nothing when it eventually returns.
type Store struct {
	api      AuthAPI
	programs ProgramContext

	mu          sync.Mutex
	epoch       int
	inFlight    bool
	user        *identity.User
	initialized bool
	err         string
}

// NewStore creates a session store over the given client and program store.
func NewStore(api AuthAPI, programs ProgramContext) *Store {
	return &Store{api: api, programs: programs}
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := State{
		IsAuthenticated: s.user != nil,
		IsLoading:       s.inFlight,
		Initialized:     s.initialized,
		Err:             s.err,
	}
	if s.user != nil {
		user := *s.user
		state.User = &user
	}
	return state
}

// Initialize revalidates any ambient session with the platform API. A failure
// of any kind (expired token, network outage) leaves the store in the
// logged-out state rather than blocking the app: initialization fails closed
// and is never surfaced as a fatal error. Idempotent; a second call while
// already initialized is a no-op.
// POST: Initialized is true; authenticated only if the API confirmed the user
func (s *Store) Initialize(ctx context.Context) {
	s.mu.Lock()
	if s.initialized || s.inFlight {
		s.mu.Unlock()
		return
	}
	s.inFlight = true
	epoch := s.epoch
	s.mu.Unlock()

	user, err := s.api.Me(ctx)

	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		slog.Info("auth_event", "event", "initialize_discarded_stale")
		return
	}
	s.inFlight = false
	s.initialized = true
	if err != nil {
		s.user = nil
		s.err = ""
		s.mu.Unlock()
		s.programs.Reset()
		s.api.Reset()
		if !errors.Is(err, backend.ErrUnauthorized) {
			slog.Warn("auth_event", "event", "initialize_failed", "error", err.Error())
		}
		return
	}
	s.user = &user
	s.err = ""
	s.mu.Unlock()

	slog.Info("auth_event", "event", "initialized", "email", user.Email, "role", user.Role)
	if err := s.programs.LoadUserPrograms(ctx, user.ID); err != nil {
		slog.Warn("auth_event", "event", "initialize_program_load_failed", "error", err.Error())
	}
}

// Login authenticates against the platform API. On success the user and
// token are stored and the program-loading continuation runs before Login
// returns: login is not complete until programs have loaded or failed. On
// failure the error is recorded and the store stays unauthenticated. There is
// never a state with an authenticated flag and no user.
// PRE: No other login is in flight (a concurrent call returns ErrBusy)
// POST: Authenticated with programs resolved, or unauthenticated with Err set
func (s *Store) Login(ctx context.Context, email, password string) error {
	if strings.TrimSpace(email) == "" || password == "" {
		s.mu.Lock()
		s.err = ErrEmptyCredentials.Error()
		s.mu.Unlock()
		return ErrEmptyCredentials
	}

	s.mu.Lock()
	if s.inFlight {
		s.mu.Unlock()
		return ErrBusy
	}
	if s.user != nil {
		s.mu.Unlock()
		return ErrAlreadyLoggedIn
	}
	s.inFlight = true
	epoch := s.epoch
	s.mu.Unlock()

	user, token, err := s.api.Login(ctx, email, password)
	if err != nil {
		s.mu.Lock()
		if s.epoch == epoch {
			s.inFlight = false
			s.user = nil
			s.err = err.Error()
		}
		s.mu.Unlock()
		slog.Info("auth_event", "event", "login_failed", "email", email)
		return err
	}

	s.mu.Lock()
	if s.epoch != epoch {
		// A logout raced the login. The response is stale; committing it
		// would resurrect a session the user already ended.
		s.mu.Unlock()
		slog.Info("auth_event", "event", "login_discarded_stale", "email", email)
		return nil
	}
	s.user = &user
	s.err = ""
	s.initialized = true
	s.mu.Unlock()
	s.api.SetToken(token)

	slog.Info("auth_event", "event", "login_success", "email", user.Email, "role", user.Role)

	// Continuation: the session is not usable until the program context has
	// resolved one way or the other. A program load failure is recorded on
	// the program store, not here; the login itself stands.
	if err := s.programs.LoadUserPrograms(ctx, user.ID); err != nil {
		slog.Warn("auth_event", "event", "login_program_load_failed", "email", user.Email, "error", err.Error())
	}

	s.mu.Lock()
	if s.epoch == epoch {
		s.inFlight = false
	}
	s.mu.Unlock()
	return nil
}

// Logout invalidates the session server-side on a best-effort basis (a
// failed call is swallowed, logout always succeeds locally), then
// unconditionally clears the persisted program selection and resets this
// store, the program-context store, and the client's ambient headers.
// POST: Every field of both stores equals its initial value; any login or
// initialization still in flight commits nothing when it returns
func (s *Store) Logout(ctx context.Context) {
	if err := s.api.Logout(ctx); err != nil {
		slog.Warn("auth_event", "event", "logout_remote_failed", "error", err.Error())
	}

	s.programs.ForgetSelection(ctx)
	s.programs.Reset()
	s.api.Reset()

	s.mu.Lock()
	s.epoch++
	s.inFlight = false
	s.user = nil
	s.initialized = false
	s.err = ""
	s.mu.Unlock()
	slog.Info("auth_event", "event", "logout")
}

// RefreshUser re-fetches the current user. On any failure the session is
// logged out rather than left holding stale or invalid identity state.
// POST: User reflects the API, or the store is fully reset
func (s *Store) RefreshUser(ctx context.Context) error {
	s.mu.Lock()
	if s.user == nil {
		s.mu.Unlock()
		return backend.ErrUnauthorized
	}
	s.mu.Unlock()

	user, err := s.api.Me(ctx)
	if err != nil {
		slog.Info("auth_event", "event", "refresh_failed", "error", err.Error())
		s.Logout(ctx)
		return err
	}

	s.mu.Lock()
	s.user = &user
	s.mu.Unlock()
	return nil
}

// ClearError clears the recorded error.
func (s *Store) ClearError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = ""
}
