package middleware

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"sync"
	"time"

	"campus/internal/adapters/backend"
	"campus/internal/application/programctx"
	"campus/internal/application/session"
)

// contextKey is an unexported type for context keys in this package.
type contextKey string

const consoleSessionContextKey contextKey = "console_session"

// ConsoleSession bundles the state machines owned by one browser session:
// the platform client carrying its token and program header, the session
// store, and the program-context store.
type ConsoleSession struct {
	Token     string
	Client    *backend.Client
	Auth      *session.Store
	Programs  *programctx.Store
	CreatedAt time.Time
}

// SessionFactory builds a fresh ConsoleSession state bundle.
type SessionFactory func() (*backend.Client, *session.Store, *programctx.Store)

// SessionRegistry is an in-memory registry of console sessions keyed by
// cookie token.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*ConsoleSession
	factory  SessionFactory
}

// NewSessionRegistry creates a registry that builds session state with the
// given factory.
func NewSessionRegistry(factory SessionFactory) *SessionRegistry {
	return &SessionRegistry{
		sessions: make(map[string]*ConsoleSession),
		factory:  factory,
	}
}

// Create builds a new console session and returns it with its token.
// POST: Session is stored and retrievable by token
func (sr *SessionRegistry) Create() (*ConsoleSession, error) {
	token, err := generateToken()
	if err != nil {
		return nil, err
	}
	client, auth, programs := sr.factory()
	cs := &ConsoleSession{
		Token:     token,
		Client:    client,
		Auth:      auth,
		Programs:  programs,
		CreatedAt: time.Now(),
	}
	sr.mu.Lock()
	defer sr.mu.Unlock()
	sr.sessions[token] = cs
	return cs, nil
}

// Get retrieves a console session by token.
// PRE: token is non-empty
// POST: Returns the session if present and not expired
func (sr *SessionRegistry) Get(token string) (*ConsoleSession, bool) {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	cs, ok := sr.sessions[token]
	if !ok {
		return nil, false
	}
	// Console sessions expire after 24 hours
	if time.Since(cs.CreatedAt) > 24*time.Hour {
		delete(sr.sessions, token)
		return nil, false
	}
	return cs, true
}

// Delete removes a console session by token.
// PRE: token is non-empty
// POST: Session with given token is removed
func (sr *SessionRegistry) Delete(token string) {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	delete(sr.sessions, token)
}

const sessionCookieName = "campus_session"

// SecureCookies controls the Secure flag on session cookies. Set true in
// production.
var SecureCookies = false

// Attach returns middleware that resolves the console session from the
// cookie and sets it in the request context. It does NOT block requests;
// the route guard decides what an absent session means per route.
func Attach(sessions *SessionRegistry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(sessionCookieName)
			if err == nil && cookie.Value != "" {
				if cs, ok := sessions.Get(cookie.Value); ok {
					ctx := context.WithValue(r.Context(), consoleSessionContextKey, cs)
					r = r.WithContext(ctx)
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// SessionFromContext extracts the console session from the request context.
func SessionFromContext(ctx context.Context) (*ConsoleSession, bool) {
	cs, ok := ctx.Value(consoleSessionContextKey).(*ConsoleSession)
	return cs, ok
}

// SetSessionCookie sets the console session cookie on the response.
func SetSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		HttpOnly: true,
		Secure:   SecureCookies,
		SameSite: http.SameSiteStrictMode,
		Path:     "/",
		MaxAge:   86400, // 24 hours
	})
}

// ClearSessionCookie removes the console session cookie.
func ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		HttpOnly: true,
		Secure:   SecureCookies,
		SameSite: http.SameSiteStrictMode,
		Path:     "/",
		MaxAge:   -1,
	})
}

// ContextWithSession returns a context with the given console session set.
// Intended for use in tests.
func ContextWithSession(ctx context.Context, cs *ConsoleSession) context.Context {
	return context.WithValue(ctx, consoleSessionContextKey, cs)
}

func generateToken() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
