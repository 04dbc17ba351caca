package dataclient

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/charlesng35/opsdash/internal/identity"
)

var (
	_ identity.SessionProvider = (*Client)(nil)
	_ identity.RoleStore       = (*Client)(nil)
)

// CurrentSession implements identity.SessionProvider. The server decides
// whether the session is live; a rejected token (after one refresh attempt)
// is reported as anonymous rather than as an error.
func (c *Client) CurrentSession(ctx context.Context) (*identity.Session, error) {
	if c.Tokens().AccessToken == "" && c.Tokens().RefreshToken == "" {
		return nil, nil
	}

	user, err := c.Me(ctx)
	if err != nil {
		if isUnauthorized(err) {
			return nil, nil
		}
		return nil, err
	}

	session := &identity.Session{UserID: user.ID, Email: user.Email}
	// The token was just accepted by the server, so its claims can be read
	// without verifying the signature here.
	claims := &accessClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(c.Tokens().AccessToken, claims); err == nil {
		session.SessionID = claims.SessionID
		if claims.ExpiresAt != nil {
			session.ExpiresAt = claims.ExpiresAt.Time
		}
	}
	return session, nil
}

// accessClaims is the subset of the server's token claims the client reads.
type accessClaims struct {
	SessionID string `json:"sid,omitempty"`
	jwt.RegisteredClaims
}

type roleResponse struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// QueryRole implements identity.RoleStore. The server only answers for the
// signed-in user.
func (c *Client) QueryRole(ctx context.Context, userID string) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", identity.ErrRoleNotFound
	}

	var resp roleResponse
	err := c.do(ctx, http.MethodGet, "/api/users/"+url.PathEscape(userID)+"/role", nil, &resp, nil)
	if IsStatus(err, http.StatusNotFound) {
		return "", identity.ErrRoleNotFound
	}
	if err != nil {
		return "", err
	}
	return resp.Role, nil
}
