package web

import (
	"crypto/rand"
	"encoding/hex"
	"log"
	"net/http"
	"os"
	"time"

	"campus/internal/adapters/http/middleware"
)

// Global session registry (set by NewMux)
var sessions *middleware.SessionRegistry

// RateLimitPerSecond controls the per-IP rate limit. Tests can increase this.
var RateLimitPerSecond = 10

// loadCSRFKey reads the CSRF secret from CAMPUS_CSRF_KEY (hex-encoded, 32 bytes).
// In production, the key MUST be set. In development, a random key is generated per startup.
func loadCSRFKey() []byte {
	if keyHex := os.Getenv("CAMPUS_CSRF_KEY"); keyHex != "" {
		key, err := hex.DecodeString(keyHex)
		if err != nil || len(key) != 32 {
			log.Fatal("CAMPUS_CSRF_KEY must be 64 hex characters (32 bytes)")
		}
		return key
	}
	if os.Getenv("CAMPUS_ENV") == "production" {
		log.Fatal("CAMPUS_CSRF_KEY is required in production")
	}
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		log.Fatalf("failed to generate CSRF key: %v", err)
	}
	log.Println("WARNING: using random CSRF key (sessions won't survive restart). Set CAMPUS_CSRF_KEY for production.")
	return key
}

// NewMux wires HTTP handlers for the console.
func NewMux(registry *middleware.SessionRegistry) http.Handler {
	sessions = registry
	middleware.SecureCookies = os.Getenv("CAMPUS_ENV") == "production"

	mux := http.NewServeMux()
	registerRoutes(mux)

	// CSRF key: 32-byte hex-encoded secret from env var
	csrfKey := loadCSRFKey()
	trustedOrigins := []string{"localhost:8080", "127.0.0.1:8080"}
	if origin := os.Getenv("CAMPUS_TRUSTED_ORIGIN"); origin != "" {
		trustedOrigins = append(trustedOrigins, origin)
	}

	// Rate limiter: configurable requests per second per IP
	limiter := middleware.NewRateLimiter(RateLimitPerSecond, time.Second)

	// Apply middleware: Logging -> RateLimit -> Attach -> CSRF -> SecurityHeaders -> Mux
	return middleware.Chain(mux,
		middleware.SecurityHeaders,
		middleware.CSRF(csrfKey, trustedOrigins),
		middleware.Attach(registry),
		middleware.RateLimit(limiter),
		middleware.Logging,
	)
}
