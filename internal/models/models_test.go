package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBaseModelBeforeCreateGeneratesID(t *testing.T) {
	var base BaseModel
	require.NoError(t, base.BeforeCreate(nil))
	require.NotEmpty(t, base.ID)

	base.ID = "fixed"
	require.NoError(t, base.BeforeCreate(nil))
	require.Equal(t, "fixed", base.ID)
}

func TestEmbeddedModelsUseBaseBeforeCreate(t *testing.T) {
	cases := []struct {
		name  string
		model func() *BaseModel
	}{
		{"user", func() *BaseModel { return &(&User{}).BaseModel }},
		{"session", func() *BaseModel { return &(&Session{}).BaseModel }},
		{"notification", func() *BaseModel { return &(&Notification{}).BaseModel }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			base := tc.model()
			require.NoError(t, base.BeforeCreate(nil))
			require.NotEmpty(t, base.ID)
		})
	}
}

func TestUserRoleName(t *testing.T) {
	var nilUser *User
	require.Empty(t, nilUser.RoleName())
	require.Empty(t, (&User{}).RoleName())

	role := "leader"
	require.Equal(t, "leader", (&User{Role: &role}).RoleName())
}

func TestSessionActive(t *testing.T) {
	now := time.Now()
	session := &Session{ExpiresAt: now.Add(time.Hour)}
	require.True(t, session.Active(now))
	require.False(t, session.Active(now.Add(2*time.Hour)))

	revoked := now
	session.RevokedAt = &revoked
	require.False(t, session.Active(now))
}
