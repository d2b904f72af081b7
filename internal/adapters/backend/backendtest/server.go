// Package backendtest provides an in-process double of the platform REST API
// for tests and for running the console standalone in dev mode. It implements
// the same contract the real backend exposes: /auth/login, /auth/me,
// /auth/logout, /programs and /programs/assignments.
package backendtest

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"campus/internal/domain/identity"
	"campus/internal/domain/program"
)

// Account is a seeded identity the fake backend can authenticate.
type Account struct {
	User         identity.User
	PasswordHash string
}

// Server holds the fake backend's state. Safe for concurrent use.
type Server struct {
	mu          sync.Mutex
	accounts    map[string]Account              // keyed by email
	assignments map[string][]program.Assignment // keyed by user id
	tokens      map[string]string               // token -> user id

	failures       map[string]int // path -> remaining forced 500s
	logoutCalls    int
	lastProgramCtx string
}

// New creates an empty fake backend.
func New() *Server {
	return &Server{
		accounts:    make(map[string]Account),
		assignments: make(map[string][]program.Assignment),
		tokens:      make(map[string]string),
		failures:    make(map[string]int),
	}
}

// SeedAccount registers an account that can log in with the given password.
// PRE: user has a valid role and unique email
// POST: Account is stored with a bcrypt password hash
func (s *Server) SeedAccount(user identity.User, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[user.Email] = Account{User: user, PasswordHash: string(hash)}
	return nil
}

// SetAssignments replaces a user's program assignments.
// POST: Subsequent /programs and /programs/assignments reflect the new list
func (s *Server) SetAssignments(userID string, assignments []program.Assignment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assignments[userID] = assignments
}

// RevokeAllTokens invalidates every issued token, simulating expired sessions.
func (s *Server) RevokeAllTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = make(map[string]string)
}

// FailNext forces the next n requests to path to return 500, simulating a
// transient outage.
func (s *Server) FailNext(path string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[path] = n
}

// LogoutCalls returns how many times /auth/logout has been hit.
func (s *Server) LogoutCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logoutCalls
}

// LastProgramContext returns the Program-Context header seen on the most
// recent request, for asserting header propagation.
func (s *Server) LastProgramContext() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastProgramCtx
}

// Handler returns the fake backend as an http.Handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", s.handleLogin)
	mux.HandleFunc("/auth/me", s.handleMe)
	mux.HandleFunc("/auth/logout", s.handleLogout)
	mux.HandleFunc("/programs/assignments", s.handleAssignments)
	mux.HandleFunc("/programs", s.handlePrograms)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.lastProgramCtx = r.Header.Get("Program-Context")
		remaining := s.failures[r.URL.Path]
		if remaining > 0 {
			s.failures[r.URL.Path] = remaining - 1
			s.mu.Unlock()
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "temporarily unavailable"})
			return
		}
		s.mu.Unlock()
		mux.ServeHTTP(w, r)
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed request"})
		return
	}

	s.mu.Lock()
	acct, ok := s.accounts[in.Email]
	s.mu.Unlock()
	if !ok || bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(in.Password)) != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid email or password"})
		return
	}

	token := uuid.New().String()
	s.mu.Lock()
	s.tokens[token] = acct.User.ID
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"user":  userJSON(acct.User),
		"token": token,
	})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	user, ok := s.authenticate(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "session expired"})
		return
	}
	writeJSON(w, http.StatusOK, userJSON(user))
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	s.mu.Lock()
	s.logoutCalls++
	s.mu.Unlock()
	if token, ok := bearerToken(r); ok {
		s.mu.Lock()
		delete(s.tokens, token)
		s.mu.Unlock()
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAssignments(w http.ResponseWriter, r *http.Request) {
	user, ok := s.authenticate(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "session expired"})
		return
	}
	s.mu.Lock()
	assignments := s.assignments[user.ID]
	s.mu.Unlock()

	items := make([]map[string]any, 0, len(assignments))
	for _, a := range assignments {
		items = append(items, map[string]any{
			"userId":     a.UserID,
			"program":    programJSON(a.Program),
			"isDefault":  a.IsDefault,
			"assignedAt": a.AssignedAt.Format(time.RFC3339),
			"assignedBy": a.AssignedBy,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": items, "page": 1, "perPage": len(items), "total": len(items),
	})
}

func (s *Server) handlePrograms(w http.ResponseWriter, r *http.Request) {
	user, ok := s.authenticate(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "session expired"})
		return
	}
	s.mu.Lock()
	assignments := s.assignments[user.ID]
	s.mu.Unlock()

	items := make([]map[string]any, 0, len(assignments))
	for _, p := range program.Programs(assignments) {
		items = append(items, programJSON(p))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": items, "page": 1, "perPage": len(items), "total": len(items),
	})
}

func (s *Server) authenticate(r *http.Request) (identity.User, bool) {
	token, ok := bearerToken(r)
	if !ok {
		return identity.User{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	userID, ok := s.tokens[token]
	if !ok {
		return identity.User{}, false
	}
	for _, acct := range s.accounts {
		if acct.User.ID == userID {
			return acct.User, true
		}
	}
	return identity.User{}, false
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return "", false
	}
	token := strings.TrimPrefix(header, "Bearer ")
	return token, token != ""
}

func userJSON(u identity.User) map[string]any {
	return map[string]any{"id": u.ID, "email": u.Email, "name": u.Name, "role": u.Role}
}

func programJSON(p program.Program) map[string]any {
	return map[string]any{
		"id": p.ID, "name": p.Name, "code": p.Code,
		"status": p.Status, "displayOrder": p.DisplayOrder,
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
