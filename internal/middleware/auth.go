package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	iauth "github.com/charlesng35/opsdash/internal/auth"
	"github.com/charlesng35/opsdash/internal/identity"
	"github.com/charlesng35/opsdash/pkg/errors"
	"github.com/charlesng35/opsdash/pkg/response"
)

const (
	CtxScopeKey     = "identityScope"
	CtxPrincipalKey = "principal"
	CtxUserIDKey    = "userID"
	CtxSessionIDKey = "sessionID"
	CtxRoleKey      = "role"
)

// Authenticate attaches the caller's access token to the request context and
// opens a per-request identity scope. It never rejects a request; the guard
// middlewares decide what an anonymous caller may reach.
func Authenticate(sessions identity.SessionProvider, resolver *identity.RoleResolver, cookieName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token := RequestToken(c, cookieName); token != "" {
			c.Request = c.Request.WithContext(iauth.WithAccessToken(c.Request.Context(), token))
		}
		c.Set(CtxScopeKey, identity.NewScope(sessions, resolver))
		c.Next()
	}
}

// RequestToken reads the access token from the Authorization header, falling
// back to the named cookie.
func RequestToken(c *gin.Context, cookieName string) string {
	authz := c.GetHeader("Authorization")
	if len(authz) > 7 && strings.EqualFold(authz[:7], "Bearer ") {
		return strings.TrimSpace(authz[7:])
	}
	if cookieName == "" {
		return ""
	}
	if cookie, err := c.Cookie(cookieName); err == nil {
		return strings.TrimSpace(cookie)
	}
	return ""
}

// ScopeFrom returns the request scope installed by Authenticate.
func ScopeFrom(c *gin.Context) *identity.Scope {
	v, ok := c.Get(CtxScopeKey)
	if !ok {
		return nil
	}
	scope, _ := v.(*identity.Scope)
	return scope
}

// PrincipalFrom returns the principal stored by an authorizing guard.
func PrincipalFrom(c *gin.Context) (identity.Principal, bool) {
	v, ok := c.Get(CtxPrincipalKey)
	if !ok {
		return identity.Principal{}, false
	}
	principal, ok := v.(identity.Principal)
	return principal, ok && principal.Session != nil
}

func setPrincipal(c *gin.Context, principal identity.Principal) {
	c.Set(CtxPrincipalKey, principal)
	c.Set(CtxUserIDKey, principal.UserID())
	c.Set(CtxRoleKey, principal.Role)
	if principal.Session != nil && principal.Session.SessionID != "" {
		c.Set(CtxSessionIDKey, principal.Session.SessionID)
	}
}

// RequireSession admits any signed-in caller regardless of role and answers
// 401 otherwise. Account endpoints such as logout use it so unprovisioned
// users can still end their session.
func RequireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		session, err := ScopeFrom(c).Session(c.Request.Context())
		if err != nil {
			response.Abort(c, errors.ErrInternalServer.WithInternal(err))
			return
		}
		if session == nil {
			c.Header("WWW-Authenticate", "Bearer")
			response.Abort(c, errors.ErrUnauthorized)
			return
		}
		c.Set(CtxUserIDKey, session.UserID)
		if session.SessionID != "" {
			c.Set(CtxSessionIDKey, session.SessionID)
		}
		c.Next()
	}
}
