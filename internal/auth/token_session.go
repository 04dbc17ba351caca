package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/charlesng35/opsdash/internal/identity"
)

type tokenKey struct{}

// WithAccessToken attaches a raw bearer token to ctx for TokenSession.
func WithAccessToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, strings.TrimSpace(token))
}

// AccessTokenFrom returns the token attached by WithAccessToken.
func AccessTokenFrom(ctx context.Context) string {
	token, _ := ctx.Value(tokenKey{}).(string)
	return token
}

// TokenSession resolves the session from the access token carried by the
// request context. Invalid tokens and revoked or expired sessions are
// reported as "no session"; only storage failures are errors.
type TokenSession struct {
	jwt      *JWTService
	sessions *SessionService
}

// NewTokenSession builds a SessionProvider over the given services.
func NewTokenSession(jwtService *JWTService, sessions *SessionService) *TokenSession {
	return &TokenSession{jwt: jwtService, sessions: sessions}
}

var _ identity.SessionProvider = (*TokenSession)(nil)

// CurrentSession implements identity.SessionProvider.
func (t *TokenSession) CurrentSession(ctx context.Context) (*identity.Session, error) {
	token := AccessTokenFrom(ctx)
	if token == "" {
		return nil, nil
	}

	claims, err := t.jwt.ValidateAccessToken(token)
	if err != nil {
		return nil, nil
	}

	session := &identity.Session{UserID: claims.UserID, SessionID: claims.SessionID, Email: claims.Email}
	if claims.ExpiresAt != nil {
		session.ExpiresAt = claims.ExpiresAt.Time
	}
	if t.sessions == nil || claims.SessionID == "" {
		return session, nil
	}

	if _, err := t.sessions.ActiveSession(ctx, claims.SessionID); err != nil {
		switch {
		case errors.Is(err, ErrSessionNotFound), errors.Is(err, ErrSessionRevoked), errors.Is(err, ErrSessionExpired):
			return nil, nil
		default:
			return nil, err
		}
	}
	return session, nil
}
