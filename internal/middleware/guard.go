package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/opsdash/internal/guard"
	"github.com/charlesng35/opsdash/internal/identity"
	"github.com/charlesng35/opsdash/pkg/errors"
	"github.com/charlesng35/opsdash/pkg/response"
)

// GuardView protects a page route. Unauthorized callers are redirected to the
// decision's target; on success the principal is stored in the context.
func GuardView(g *guard.Guard, allow ...identity.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		decision, ok := evaluate(c, g, allow)
		if !ok {
			c.Redirect(http.StatusFound, g.Config().SignInPath)
			c.Abort()
			return
		}
		if !decision.Render() {
			c.Redirect(http.StatusFound, decision.Redirect)
			c.Abort()
			return
		}
		setPrincipal(c, decision.Principal)
		c.Next()
	}
}

// RequireRoles protects an API route: a Guest decision answers 401 and a
// Forbidden one 403. With no roles any resolved role is admitted.
func RequireRoles(g *guard.Guard, allow ...identity.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		decision, ok := evaluate(c, g, allow)
		if !ok || decision.State == guard.GuestState {
			c.Header("WWW-Authenticate", "Bearer")
			response.Abort(c, errors.ErrUnauthorized)
			return
		}
		if !decision.Render() {
			response.Abort(c, errors.ErrForbidden)
			return
		}
		setPrincipal(c, decision.Principal)
		c.Next()
	}
}

func evaluate(c *gin.Context, g *guard.Guard, allow []identity.Role) (guard.Decision, bool) {
	scope := ScopeFrom(c)
	if scope == nil {
		return guard.Decision{}, false
	}
	return g.Evaluate(c.Request.Context(), scope, allow...), true
}
