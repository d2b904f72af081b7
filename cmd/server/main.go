package main

import (
	"database/sql"
	"log"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"time"

	_ "modernc.org/sqlite"

	"campus/internal/adapters/backend"
	"campus/internal/adapters/backend/backendtest"
	web "campus/internal/adapters/http"
	"campus/internal/adapters/http/middleware"
	"campus/internal/adapters/storage"
	"campus/internal/adapters/storage/appstate"
	"campus/internal/application/programctx"
	"campus/internal/application/session"
	"campus/internal/domain/identity"
	"campus/internal/domain/program"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

func main() {
	// Initialize database with WAL mode, foreign keys, and busy timeout
	dbPath := envOrDefault("CAMPUS_DB_PATH", "campus.db")
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	// Connection pool settings for WAL mode
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)

	if err := db.Ping(); err != nil {
		log.Fatalf("database unreachable: %v", err)
	}
	if err := storage.InitDB(db); err != nil {
		log.Fatalf("failed to initialize database: %v", err)
	}

	selections := appstate.NewSQLiteStore(db)

	// Platform API: real backend from env, or an embedded fake for local
	// development when CAMPUS_BACKEND_URL is unset.
	backendURL := os.Getenv("CAMPUS_BACKEND_URL")
	if backendURL == "" {
		if os.Getenv("CAMPUS_ENV") == "production" {
			log.Fatal("CAMPUS_BACKEND_URL is required in production")
		}
		fake := seedDevBackend()
		srv := httptest.NewServer(fake.Handler())
		defer srv.Close()
		backendURL = srv.URL
		log.Println("WARNING: using embedded fake backend. Set CAMPUS_BACKEND_URL to talk to a real platform.")
	}

	timeout := 10 * time.Second
	if v := os.Getenv("CAMPUS_BACKEND_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			log.Fatalf("invalid CAMPUS_BACKEND_TIMEOUT: %v", err)
		}
		timeout = d
	}

	registry := middleware.NewSessionRegistry(func() (*backend.Client, *session.Store, *programctx.Store) {
		client := backend.NewClient(backend.Config{BaseURL: backendURL, Timeout: timeout})
		programs := programctx.NewStore(client, selections)
		auth := session.NewStore(client, programs)
		return client, auth, programs
	})

	mux := web.NewMux(registry)

	addr := envOrDefault("CAMPUS_ADDR", ":8080")
	slog.Info("server_start",
		"version", version,
		"addr", addr,
		"env", envOrDefault("CAMPUS_ENV", "development"),
		"backend", backendURL)

	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

// seedDevBackend builds the fake platform with one account per role and a
// small program catalog, so every guard path is reachable out of the box.
func seedDevBackend() *backendtest.Server {
	fake := backendtest.New()

	alpha := program.Program{ID: "prog-alpha", Name: "Alpha Academy", Code: "ALPHA", Status: program.StatusActive, DisplayOrder: 1}
	beta := program.Program{ID: "prog-beta", Name: "Beta Campus", Code: "BETA", Status: program.StatusActive, DisplayOrder: 2}
	legacy := program.Program{ID: "prog-legacy", Name: "Legacy Cohort", Code: "LEGACY", Status: program.StatusArchived, DisplayOrder: 3}

	seed := []struct {
		user        identity.User
		assignments []program.Assignment
	}{
		{
			user: identity.User{ID: "u-super", Email: "super@campus.test", Name: "Sam Super", Role: identity.RoleSuperAdmin},
		},
		{
			user: identity.User{ID: "u-admin", Email: "admin@campus.test", Name: "Ana Admin", Role: identity.RoleProgramAdmin},
			assignments: []program.Assignment{
				{UserID: "u-admin", Program: alpha, IsDefault: true},
				{UserID: "u-admin", Program: beta},
				{UserID: "u-admin", Program: legacy},
			},
		},
		{
			user: identity.User{ID: "u-coord", Email: "coordinator@campus.test", Name: "Cory Coordinator", Role: identity.RoleProgramCoordinator},
			assignments: []program.Assignment{
				{UserID: "u-coord", Program: beta},
			},
		},
		{
			user: identity.User{ID: "u-instructor", Email: "instructor@campus.test", Name: "Ira Instructor", Role: identity.RoleInstructor},
			assignments: []program.Assignment{
				{UserID: "u-instructor", Program: alpha},
				{UserID: "u-instructor", Program: beta},
			},
		},
		{
			user: identity.User{ID: "u-student", Email: "student@campus.test", Name: "Stella Student", Role: identity.RoleStudent},
			assignments: []program.Assignment{
				{UserID: "u-student", Program: alpha},
			},
		},
		{
			// No assignments: exercises the no-program-access path.
			user: identity.User{ID: "u-parent", Email: "parent@campus.test", Name: "Pat Parent", Role: identity.RoleParent},
		},
	}

	for _, s := range seed {
		if err := fake.SeedAccount(s.user, "password"); err != nil {
			log.Fatalf("failed to seed dev account: %v", err)
		}
		if len(s.assignments) > 0 {
			fake.SetAssignments(s.user.ID, s.assignments)
		}
	}
	return fake
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
