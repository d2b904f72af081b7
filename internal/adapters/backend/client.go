package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"campus/internal/domain/identity"
	"campus/internal/domain/program"
)

// ProgramContextHeader scopes every outgoing request to the selected program.
// The program context store is the only writer of this header.
const ProgramContextHeader = "Program-Context"

// Client errors
var (
	ErrUnauthorized = errors.New("session is not valid")
	ErrUnavailable  = errors.New("platform API is unreachable")
)

// apiError is the backend's error envelope.
type apiError struct {
	Message string `json:"error"`
}

// Config carries connection settings for the platform API.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client is one console session's handle on the platform REST API. It carries
// the session's bearer token and the ambient program-context header, so it is
// per user, never shared across console sessions.
type Client struct {
	http *resty.Client

	mu        sync.RWMutex
	token     string
	programID string
}

// NewClient builds a Client for the platform API with JSON defaults and
// retry for transient failures.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetRetryCount(2).
		SetRetryWaitTime(100 * time.Millisecond).
		SetRetryMaxWaitTime(1 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		})
	return &Client{http: httpClient}
}

// SetToken installs the bearer token for all subsequent requests.
// PRE: token came from a successful login
// POST: Authorization header is set
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// UseProgram sets the ambient program-context header. An empty id omits the
// header, which is how super_admin requests bypass program scoping.
// POST: Subsequent requests carry (or omit) the Program-Context header
func (c *Client) UseProgram(programID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.programID = programID
}

// ProgramID returns the program id currently applied to outgoing requests.
func (c *Client) ProgramID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.programID
}

// Reset drops the token and program header. Called on logout so no request
// can leave with a stale identity or tenant id.
// POST: Client carries no ambient state
func (c *Client) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
	c.programID = ""
}

// request builds a request with the ambient headers applied under the lock,
// so a concurrent Reset cannot produce a half-updated header pair.
func (c *Client) request(ctx context.Context) *resty.Request {
	c.mu.RLock()
	token, programID := c.token, c.programID
	c.mu.RUnlock()

	req := c.http.R().SetContext(ctx)
	if token != "" {
		req.SetHeader("Authorization", "Bearer "+token)
	}
	if programID != "" {
		req.SetHeader(ProgramContextHeader, programID)
	}
	return req
}

type userPayload struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

func (p userPayload) toDomain() identity.User {
	return identity.User{ID: p.ID, Email: p.Email, Name: p.Name, Role: p.Role}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	User  userPayload `json:"user"`
	Token string      `json:"token"`
}

// Login authenticates against POST /auth/login and returns the user plus
// bearer token. The token is NOT installed on the client; the session store
// decides when that happens.
// PRE: email and password are non-empty
// POST: Returns user and token on success
func (c *Client) Login(ctx context.Context, email, password string) (identity.User, string, error) {
	var out loginResponse
	var apiErr apiError
	resp, err := c.request(ctx).
		SetBody(loginRequest{Email: email, Password: password}).
		SetResult(&out).
		SetError(&apiErr).
		Post("/auth/login")
	if err != nil {
		return identity.User{}, "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if resp.IsError() {
		if resp.StatusCode() == http.StatusUnauthorized {
			return identity.User{}, "", errorOrDefault(apiErr, "invalid email or password")
		}
		return identity.User{}, "", errorOrDefault(apiErr, fmt.Sprintf("login failed with status %d", resp.StatusCode()))
	}
	return out.User.toDomain(), out.Token, nil
}

// Me revalidates the current session against GET /auth/me.
// POST: Returns the current user, or ErrUnauthorized if the session is gone
func (c *Client) Me(ctx context.Context) (identity.User, error) {
	var out userPayload
	resp, err := c.request(ctx).
		SetResult(&out).
		Get("/auth/me")
	if err != nil {
		return identity.User{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if resp.StatusCode() == http.StatusUnauthorized {
		return identity.User{}, ErrUnauthorized
	}
	if resp.IsError() {
		return identity.User{}, fmt.Errorf("me failed with status %d", resp.StatusCode())
	}
	return out.toDomain(), nil
}

// Logout invalidates the session server-side via POST /auth/logout.
// Best-effort: callers swallow the error by design.
func (c *Client) Logout(ctx context.Context) error {
	resp, err := c.request(ctx).Post("/auth/logout")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if resp.IsError() {
		return fmt.Errorf("logout failed with status %d", resp.StatusCode())
	}
	return nil
}

type assignmentPayload struct {
	UserID     string         `json:"userId"`
	Program    programPayload `json:"program"`
	IsDefault  bool           `json:"isDefault"`
	AssignedAt time.Time      `json:"assignedAt"`
	AssignedBy string         `json:"assignedBy"`
}

type programPayload struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Code         string `json:"code"`
	Status       string `json:"status"`
	DisplayOrder int    `json:"displayOrder"`
}

func (p programPayload) toDomain() program.Program {
	return program.Program{
		ID:           p.ID,
		Name:         p.Name,
		Code:         p.Code,
		Status:       p.Status,
		DisplayOrder: p.DisplayOrder,
	}
}

type assignmentsPage struct {
	Items   []assignmentPayload `json:"items"`
	Page    int                 `json:"page"`
	PerPage int                 `json:"perPage"`
	Total   int                 `json:"total"`
}

// ListAssignments fetches the caller's program assignments from GET
// /programs/assignments, following pagination until the list is complete.
// PRE: A valid token is installed
// POST: Returns every assignment for the authenticated user
func (c *Client) ListAssignments(ctx context.Context) ([]program.Assignment, error) {
	var all []program.Assignment
	for page := 1; ; page++ {
		var out assignmentsPage
		resp, err := c.request(ctx).
			SetQueryParam("page", fmt.Sprintf("%d", page)).
			SetResult(&out).
			Get("/programs/assignments")
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		if resp.StatusCode() == http.StatusUnauthorized {
			return nil, ErrUnauthorized
		}
		if resp.IsError() {
			return nil, fmt.Errorf("assignments failed with status %d", resp.StatusCode())
		}
		for _, item := range out.Items {
			all = append(all, program.Assignment{
				UserID:     item.UserID,
				Program:    item.Program.toDomain(),
				IsDefault:  item.IsDefault,
				AssignedAt: item.AssignedAt,
				AssignedBy: item.AssignedBy,
			})
		}
		if out.Total == 0 || len(all) >= out.Total || len(out.Items) == 0 {
			return all, nil
		}
	}
}

type programsPage struct {
	Items   []programPayload `json:"items"`
	Page    int              `json:"page"`
	PerPage int              `json:"perPage"`
	Total   int              `json:"total"`
}

// ListPrograms fetches the programs visible to the caller from GET /programs,
// implicitly scoped by the backend, following pagination.
// POST: Returns every visible program
func (c *Client) ListPrograms(ctx context.Context) ([]program.Program, error) {
	var all []program.Program
	for page := 1; ; page++ {
		var out programsPage
		resp, err := c.request(ctx).
			SetQueryParam("page", fmt.Sprintf("%d", page)).
			SetResult(&out).
			Get("/programs")
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		if resp.StatusCode() == http.StatusUnauthorized {
			return nil, ErrUnauthorized
		}
		if resp.IsError() {
			return nil, fmt.Errorf("programs failed with status %d", resp.StatusCode())
		}
		for _, item := range out.Items {
			all = append(all, item.toDomain())
		}
		if out.Total == 0 || len(all) >= out.Total || len(out.Items) == 0 {
			return all, nil
		}
	}
}

func errorOrDefault(apiErr apiError, fallback string) error {
	if apiErr.Message != "" {
		return errors.New(apiErr.Message)
	}
	return errors.New(fallback)
}
