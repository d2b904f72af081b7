// Package programctx maintains the tenant-scoping program selection for one
// console session: the programs the user may choose from, the current
// selection, and the propagation of that selection to the platform client's
// ambient Program-Context header. The store is the single owner of that
// header; the session store drives it only through LoadUserPrograms,
// ForgetSelection, and Reset.
package programctx

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"campus/internal/adapters/storage/appstate"
	"campus/internal/domain/program"
)

// Store errors
var (
	ErrBusy             = errors.New("another program operation is in progress")
	ErrNoAccess         = errors.New("you do not have access to this program")
	ErrProgramNotActive = errors.New("this program is not active and cannot be selected")
	ErrNotLoaded        = errors.New("programs have not been loaded")
)

// API is the slice of the platform client the store drives.
type API interface {
	ListAssignments(ctx context.Context) ([]program.Assignment, error)
	UseProgram(programID string)
}

// State is a snapshot of the store, safe to read without holding the store's
// lock. Derived facts (guard snapshots, template data) are computed from a
// State, never from the live store.
type State struct {
	AccountID         string
	Assignments       []program.Assignment
	AvailablePrograms []program.Program
	CurrentProgram    *program.Program
	Loaded            bool
	IsLoading         bool
	Err               string
}

// Store is the program-context state machine for one console session.
// All mutations go through its lock; stale async results are discarded via an
// epoch counter bumped on every Reset.
type Store struct {
	api         API
	persistence appstate.Store // may be nil; selections then live only in memory
	now         func() time.Time

	mu       sync.Mutex
	epoch    int
	inFlight bool

	accountID         string
	assignments       []program.Assignment
	availablePrograms []program.Program
	currentProgram    *program.Program
	loaded            bool
	err               string
}

// NewStore creates a program-context store backed by the given client slice
// and optional persistence.
func NewStore(api API, persistence appstate.Store) *Store {
	return &Store{api: api, persistence: persistence, now: time.Now}
}

// SetNow overrides the clock, for tests.
func (s *Store) SetNow(now func() time.Time) {
	s.now = now
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() State {
	state := State{
		AccountID:         s.accountID,
		Assignments:       append([]program.Assignment(nil), s.assignments...),
		AvailablePrograms: append([]program.Program(nil), s.availablePrograms...),
		Loaded:            s.loaded,
		IsLoading:         s.inFlight,
		Err:               s.err,
	}
	if s.currentProgram != nil {
		current := *s.currentProgram
		state.CurrentProgram = &current
	}
	return state
}

// LoadUserPrograms fetches the user's assignments, derives the program list,
// and establishes the current selection: an existing in-memory selection
// survives a reload unless its program is gone; otherwise the persisted
// selection is restored if still accessible; otherwise the default rule
// applies (IsDefault flag first, then display order). A persisted id the user
// can no longer access is silently discarded and re-defaulted.
// PRE: accountID identifies the authenticated user
// POST: Store state and the client's program header reflect the fetched list,
// or the error is recorded and the list cleared
func (s *Store) LoadUserPrograms(ctx context.Context, accountID string) error {
	s.mu.Lock()
	if s.inFlight {
		s.mu.Unlock()
		return ErrBusy
	}
	s.inFlight = true
	s.accountID = accountID
	epoch := s.epoch
	s.mu.Unlock()

	assignments, err := s.api.ListAssignments(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch {
		// The session ended (or restarted) while the fetch was in flight.
		// Applying the response now would resurrect state for a user that is
		// no longer current.
		slog.Info("program_event", "event", "load_discarded", "account_id", accountID)
		return nil
	}
	s.inFlight = false

	if err != nil {
		s.assignments = nil
		s.availablePrograms = nil
		s.currentProgram = nil
		s.loaded = false
		s.err = err.Error()
		slog.Warn("program_event", "event", "load_failed", "account_id", accountID, "error", err.Error())
		return err
	}

	s.assignments = assignments
	s.availablePrograms = program.Programs(assignments)
	s.loaded = true
	s.err = ""

	selectedID := ""
	if s.currentProgram != nil {
		selectedID = s.currentProgram.ID
	} else if persisted, ok := s.readPersisted(ctx, accountID); ok {
		selectedID = persisted
	}

	if current, ok := program.Reconcile(selectedID, assignments); ok {
		s.setCurrentLocked(ctx, &current)
	} else {
		s.setCurrentLocked(ctx, nil)
	}

	slog.Info("program_event", "event", "loaded",
		"account_id", accountID,
		"programs", len(s.availablePrograms),
		"current", s.currentProgramID())
	return nil
}

// SwitchProgram changes the current selection. It rejects, without mutating
// any state, a program the user holds no assignment for, and, distinctly, a
// program whose status is not active. On success the selection, its
// persistence, and the client header update atomically under the lock.
// PRE: LoadUserPrograms has completed for this session
// POST: Current program is the requested one, or prior state is untouched
func (s *Store) SwitchProgram(ctx context.Context, programID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.inFlight {
		return ErrBusy
	}
	if !s.loaded {
		return ErrNotLoaded
	}

	var target *program.Program
	for i := range s.assignments {
		if s.assignments[i].Program.ID == programID {
			target = &s.assignments[i].Program
			break
		}
	}
	if target == nil {
		s.err = ErrNoAccess.Error()
		return ErrNoAccess
	}
	if !target.IsActive() {
		s.err = ErrProgramNotActive.Error()
		return ErrProgramNotActive
	}

	selected := *target
	s.setCurrentLocked(ctx, &selected)
	s.err = ""
	slog.Info("program_event", "event", "switched", "account_id", s.accountID, "program_id", programID)
	return nil
}

// RefreshPrograms re-fetches assignments for the already-known account and
// reconciles the current selection against the updated data.
// PRE: LoadUserPrograms has completed for this session
// POST: Same as LoadUserPrograms
func (s *Store) RefreshPrograms(ctx context.Context) error {
	s.mu.Lock()
	accountID := s.accountID
	loaded := s.loaded
	s.mu.Unlock()
	if !loaded && accountID == "" {
		return ErrNotLoaded
	}
	return s.LoadUserPrograms(ctx, accountID)
}

// ClearError clears the recorded error.
func (s *Store) ClearError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = ""
}

// ForgetSelection deletes the persisted selection for the current account.
// The session store calls it on logout, before Reset, so a selection never
// outlives the session that made it. In-memory state is untouched.
func (s *Store) ForgetSelection(ctx context.Context) {
	s.mu.Lock()
	accountID := s.accountID
	s.mu.Unlock()
	if s.persistence == nil || accountID == "" {
		return
	}
	if err := s.persistence.Delete(ctx, accountID); err != nil {
		slog.Warn("program_event", "event", "persist_clear_failed", "account_id", accountID, "error", err.Error())
	}
}

// Reset returns the store to its initial state and clears the client's
// program header. Reset alone does not touch the persisted selection; that
// allows a stale-load discard or a failed initialization to reset in-memory
// state without losing a selection the user never revoked. Logout pairs it
// with ForgetSelection.
// POST: Every field equals its initial value; in-flight results will be
// discarded
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.epoch++
	s.inFlight = false
	s.accountID = ""
	s.assignments = nil
	s.availablePrograms = nil
	s.currentProgram = nil
	s.loaded = false
	s.err = ""
	s.api.UseProgram("")
}

// setCurrentLocked updates the selection, the persisted copy, and the ambient
// client header together. current may be nil.
func (s *Store) setCurrentLocked(ctx context.Context, current *program.Program) {
	s.currentProgram = current
	if current == nil {
		s.api.UseProgram("")
		if s.persistence != nil && s.accountID != "" {
			if err := s.persistence.Delete(ctx, s.accountID); err != nil {
				slog.Warn("program_event", "event", "persist_failed", "error", err.Error())
			}
		}
		return
	}
	s.api.UseProgram(current.ID)
	if s.persistence != nil && s.accountID != "" {
		err := s.persistence.Save(ctx, appstate.Selection{
			AccountID:        s.accountID,
			CurrentProgramID: current.ID,
			UpdatedAt:        s.now(),
		})
		if err != nil {
			// Persistence is a convenience; the in-memory selection stands.
			slog.Warn("program_event", "event", "persist_failed", "error", err.Error())
		}
	}
}

func (s *Store) readPersisted(ctx context.Context, accountID string) (string, bool) {
	if s.persistence == nil {
		return "", false
	}
	sel, ok, err := s.persistence.Get(ctx, accountID)
	if err != nil {
		slog.Warn("program_event", "event", "persist_read_failed", "error", err.Error())
		return "", false
	}
	if !ok || sel.CurrentProgramID == "" {
		return "", false
	}
	return sel.CurrentProgramID, true
}

func (s *Store) currentProgramID() string {
	if s.currentProgram == nil {
		return ""
	}
	return s.currentProgram.ID
}
