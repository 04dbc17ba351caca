package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestJWT(t *testing.T, clock func() time.Time) *JWTService {
	t.Helper()
	svc, err := NewJWTService(JWTConfig{
		Secret:         "opsdash-test-secret",
		Issuer:         "opsdash",
		AccessTokenTTL: time.Hour,
		Clock:          clock,
	})
	require.NoError(t, err)
	return svc
}

func TestNewJWTServiceRequiresSecret(t *testing.T) {
	_, err := NewJWTService(JWTConfig{})
	require.EqualError(t, err, "jwt: secret must be provided")
}

func TestGenerateAndValidateAccessToken(t *testing.T) {
	current := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestJWT(t, func() time.Time { return current })

	token, err := svc.GenerateAccessToken(AccessTokenInput{UserID: "user-123", SessionID: "session-456", Email: "lead@example.com"})
	require.NoError(t, err)

	claims, err := svc.ValidateAccessToken(token)
	require.NoError(t, err)
	require.Equal(t, "user-123", claims.UserID)
	require.Equal(t, "session-456", claims.SessionID)
	require.Equal(t, "lead@example.com", claims.Email)
	require.Equal(t, "opsdash", claims.Issuer)
	require.WithinDuration(t, current.Add(time.Hour), claims.ExpiresAt.Time, time.Second)
}

func TestValidateAccessTokenRejectsExpiredAndForeign(t *testing.T) {
	current := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestJWT(t, func() time.Time { return current })

	token, err := svc.GenerateAccessToken(AccessTokenInput{UserID: "user-123"})
	require.NoError(t, err)

	current = current.Add(2 * time.Hour)
	_, err = svc.ValidateAccessToken(token)
	require.ErrorIs(t, err, ErrTokenInvalid)

	other, err := NewJWTService(JWTConfig{Secret: "different", Issuer: "opsdash"})
	require.NoError(t, err)
	foreign, err := other.GenerateAccessToken(AccessTokenInput{UserID: "user-123"})
	require.NoError(t, err)
	_, err = newTestJWT(t, nil).ValidateAccessToken(foreign)
	require.ErrorIs(t, err, ErrTokenInvalid)

	_, err = svc.ValidateAccessToken("")
	require.ErrorIs(t, err, ErrTokenInvalid)
}

func TestGenerateAccessTokenRequiresUser(t *testing.T) {
	_, err := newTestJWT(t, nil).GenerateAccessToken(AccessTokenInput{})
	require.Error(t, err)
}
