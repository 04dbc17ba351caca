package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/opsdash/internal/api"
	"github.com/charlesng35/opsdash/internal/app"
	iauth "github.com/charlesng35/opsdash/internal/auth"
	sharedtestutil "github.com/charlesng35/opsdash/internal/database/testutil"
	"github.com/charlesng35/opsdash/internal/identity"
	"github.com/charlesng35/opsdash/internal/models"
	"github.com/charlesng35/opsdash/internal/realtime"
	"github.com/charlesng35/opsdash/pkg/crypto"
	"github.com/charlesng35/opsdash/pkg/response"
)

// DefaultPassword is the password of accounts created through CreateUser.
const DefaultPassword = "correct-horse-battery"

// Env encapsulates a fully-wired API instance backed by an in-memory database for handler tests.
type Env struct {
	T        *testing.T
	DB       *gorm.DB
	Router   *gin.Engine
	Hub      *realtime.Hub
	Sessions *iauth.SessionService
	Config   *app.Config
}

// NewEnv provisions a fresh handler test environment with migrations applied.
func NewEnv(t *testing.T) *Env {
	t.Helper()

	gin.SetMode(gin.TestMode)

	db := sharedtestutil.MustOpenTestDB(t, sharedtestutil.WithAutoMigrate())

	cfg := &app.Config{
		Auth: app.AuthConfig{
			JWT: app.JWTSettings{
				Secret: "test-suite-super-secret-key-32-bytes!!",
				Issuer: "test-suite",
				TTL:    time.Hour,
			},
			Session: app.SessionSettings{
				RefreshTTL:    24 * time.Hour,
				RefreshLength: 48,
			},
			Cookie: app.CookieSettings{Name: app.DefaultAccessCookie},
		},
		Guard: app.GuardConfig{SignInPath: "/signin", ForbiddenPath: "/not-found"},
		Notifications: app.NotificationsConfig{
			DisplayCap:  5,
			FlashWindow: 2500 * time.Millisecond,
		},
		Monitoring: app.MonitoringConfig{
			Prometheus: app.PrometheusConfig{Enabled: true, Endpoint: "/metrics"},
			Health:     app.HealthConfig{Enabled: true},
		},
	}

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	require.NoError(t, err)
	sessionSvc, err := iauth.NewSessionService(db, jwtSvc, cfg.Auth.SessionServiceConfig())
	require.NoError(t, err)

	hub := realtime.NewHub()
	router, err := api.NewRouter(db, cfg, sessionSvc, hub)
	require.NoError(t, err)

	return &Env{
		T:        t,
		DB:       db,
		Router:   router,
		Hub:      hub,
		Sessions: sessionSvc,
		Config:   cfg,
	}
}

// CreateUser inserts an active account with DefaultPassword. A Guest role
// leaves the account unprovisioned.
func (e *Env) CreateUser(role identity.Role) *models.User {
	e.T.Helper()

	hashed, err := crypto.HashPassword(DefaultPassword)
	require.NoError(e.T, err)

	name := "user-" + uuid.NewString()
	user := &models.User{
		Email:    name + "@example.com",
		FullName: name,
		Password: hashed,
		IsActive: true,
	}
	if !role.IsGuest() {
		value := role.String()
		user.Role = &value
	}
	require.NoError(e.T, e.DB.Create(user).Error)
	return user
}

// UserPayload captures the subset of user fields returned from auth endpoints.
type UserPayload struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Role     string `json:"role"`
	IsActive bool   `json:"is_active"`
}

// LoginResult bundles the JSON response from POST /api/auth/login.
type LoginResult struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	ExpiresIn    int         `json:"expires_in"`
	User         UserPayload `json:"user"`
	Role         string      `json:"role"`
}

// Login authenticates with email and password and returns the issued token pair.
func (e *Env) Login(email, password string) LoginResult {
	e.T.Helper()

	w := e.Request(http.MethodPost, "/api/auth/login", map[string]string{
		"identifier": email,
		"password":   password,
	}, "")
	require.Equal(e.T, http.StatusOK, w.Code, w.Body.String())

	resp := DecodeResponse(e.T, w)
	require.True(e.T, resp.Success, w.Body.String())

	var result LoginResult
	DecodeInto(e.T, resp.Data, &result)
	require.NotEmpty(e.T, result.AccessToken)
	require.NotEmpty(e.T, result.RefreshToken)
	require.Greater(e.T, result.ExpiresIn, 0)

	return result
}

// LoginAs creates a user with role and signs in, returning the user and its access token.
func (e *Env) LoginAs(role identity.Role) (*models.User, string) {
	e.T.Helper()
	user := e.CreateUser(role)
	return user, e.Login(user.Email, DefaultPassword).AccessToken
}

// APIResponse represents the canonical API envelope returned by handlers.
type APIResponse struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Error   *response.ErrorInfo `json:"error"`
	Meta    *response.Meta      `json:"meta"`
}

// DecodeResponse parses the standard API response object from a recorder.
func DecodeResponse(t *testing.T, w *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

// DecodeInto unmarshals the data payload into the provided destination.
func DecodeInto[T any](t *testing.T, raw json.RawMessage, dest *T) {
	t.Helper()
	if dest == nil {
		t.Fatal("destination must not be nil")
	}
	require.NoError(t, json.Unmarshal(raw, dest))
}

// Request executes an HTTP request against the test router, applying JSON encoding and auth headers automatically.
func (e *Env) Request(method, path string, body any, token string) *httptest.ResponseRecorder {
	e.T.Helper()

	var buf *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(e.T, err)
		buf = bytes.NewBuffer(data)
	} else {
		buf = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, path, buf)
	require.NoError(e.T, err)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)
	return w
}

// RequestWithCookie is Request with the access token sent as the session
// cookie instead of a bearer header.
func (e *Env) RequestWithCookie(method, path string, token string) *httptest.ResponseRecorder {
	e.T.Helper()

	req, err := http.NewRequest(method, path, nil)
	require.NoError(e.T, err)
	req.AddCookie(&http.Cookie{Name: e.Config.Auth.CookieName(), Value: token})

	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)
	return w
}
