package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	iauth "github.com/charlesng35/opsdash/internal/auth"
	"github.com/charlesng35/opsdash/internal/guard"
	"github.com/charlesng35/opsdash/internal/identity"
	"github.com/charlesng35/opsdash/pkg/response"
)

type mapRoleStore map[string]string

func (m mapRoleStore) QueryRole(_ context.Context, userID string) (string, error) {
	role, ok := m[userID]
	if !ok {
		return "", identity.ErrRoleNotFound
	}
	return role, nil
}

type guardFixture struct {
	router *gin.Engine
	jwt    *iauth.JWTService
}

func newGuardFixture(t *testing.T) guardFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	jwtSvc, err := iauth.NewJWTService(iauth.JWTConfig{
		Secret:         "secret",
		Issuer:         "test-suite",
		AccessTokenTTL: time.Minute,
	})
	require.NoError(t, err)

	resolver := identity.NewRoleResolver(mapRoleStore{"lead-1": "leader", "member-1": "member", "ghost-1": ""})
	g := guard.New(guard.Config{})

	r := gin.New()
	r.Use(Authenticate(iauth.NewTokenSession(jwtSvc, nil), resolver, "opsdash_access"))
	r.GET("/leader/dashboard", GuardView(g, identity.Leader), func(c *gin.Context) {
		principal, ok := PrincipalFrom(c)
		require.True(t, ok)
		c.String(http.StatusOK, principal.Role.String())
	})
	r.GET("/api/secure", RequireRoles(g, identity.Leader), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"user_id":    c.GetString(CtxUserIDKey),
			"session_id": c.GetString(CtxSessionIDKey),
		})
	})
	r.GET("/api/any", RequireRoles(g), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	return guardFixture{router: r, jwt: jwtSvc}
}

func (f guardFixture) token(t *testing.T, userID string) string {
	t.Helper()
	token, err := f.jwt.GenerateAccessToken(iauth.AccessTokenInput{UserID: userID, SessionID: "session-" + userID})
	require.NoError(t, err)
	return token
}

func (f guardFixture) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestGuardViewRedirects(t *testing.T) {
	f := newGuardFixture(t)

	w := f.do(httptest.NewRequest(http.MethodGet, "/leader/dashboard", nil))
	require.Equal(t, http.StatusFound, w.Code)
	require.Equal(t, guard.DefaultSignInPath, w.Header().Get("Location"))

	req := httptest.NewRequest(http.MethodGet, "/leader/dashboard", nil)
	req.Header.Set("Authorization", "Bearer "+f.token(t, "member-1"))
	w = f.do(req)
	require.Equal(t, http.StatusFound, w.Code)
	require.Equal(t, guard.DefaultForbiddenPath, w.Header().Get("Location"))

	req = httptest.NewRequest(http.MethodGet, "/leader/dashboard", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	w = f.do(req)
	require.Equal(t, http.StatusFound, w.Code)
	require.Equal(t, guard.DefaultSignInPath, w.Header().Get("Location"))
}

func TestGuardViewRendersFromCookie(t *testing.T) {
	f := newGuardFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/leader/dashboard", nil)
	req.AddCookie(&http.Cookie{Name: "opsdash_access", Value: f.token(t, "lead-1")})
	w := f.do(req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "leader", w.Body.String())
}

func TestRequireRoles(t *testing.T) {
	f := newGuardFixture(t)

	w := f.do(httptest.NewRequest(http.MethodGet, "/api/secure", nil))
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, "Bearer", w.Header().Get("WWW-Authenticate"))

	req := httptest.NewRequest(http.MethodGet, "/api/secure", nil)
	req.Header.Set("Authorization", "Bearer "+f.token(t, "member-1"))
	w = f.do(req)
	require.Equal(t, http.StatusForbidden, w.Code)
	var envelope response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.False(t, envelope.Success)

	req = httptest.NewRequest(http.MethodGet, "/api/secure", nil)
	req.Header.Set("Authorization", "Bearer "+f.token(t, "lead-1"))
	w = f.do(req)
	require.Equal(t, http.StatusOK, w.Code)
	var payload map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	require.Equal(t, "lead-1", payload["user_id"])
	require.Equal(t, "session-lead-1", payload["session_id"])
}

func TestRequireRolesFailsClosedOnRoleLookup(t *testing.T) {
	f := newGuardFixture(t)

	for _, user := range []string{"ghost-1", "unknown-user"} {
		req := httptest.NewRequest(http.MethodGet, "/api/any", nil)
		req.Header.Set("Authorization", "Bearer "+f.token(t, user))
		w := f.do(req)
		require.Equal(t, http.StatusUnauthorized, w.Code, user)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/any", nil)
	req.Header.Set("Authorization", "Bearer "+f.token(t, "member-1"))
	require.Equal(t, http.StatusNoContent, f.do(req).Code)
}

func TestRequireRolesWithoutAuthenticate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/api/any", RequireRoles(guard.New(guard.Config{})), func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/any", nil))
	require.Equal(t, http.StatusUnauthorized, w.Code)
}
