package app

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/opsdash/internal/guard"
	"github.com/charlesng35/opsdash/internal/notifications"
)

func TestApplyRuntimeDefaultsGeneratesMissingSettings(t *testing.T) {
	cfg := &Config{}

	generated, err := ApplyRuntimeDefaults(cfg)
	require.NoError(t, err)

	require.NotEmpty(t, cfg.Auth.JWT.Secret)
	require.True(t, generated["auth.jwt.secret"])
	require.Equal(t, DefaultAccessCookie, cfg.Auth.Cookie.Name)
	require.Equal(t, notifications.CompactCap, cfg.Notifications.DisplayCap)
	require.Equal(t, notifications.DefaultFlashWindow, cfg.Notifications.FlashWindow)
	require.Equal(t, guard.DefaultSignInPath, cfg.Guard.SignInPath)
	require.Equal(t, guard.DefaultForbiddenPath, cfg.Guard.ForbiddenPath)
}

func TestApplyRuntimeDefaultsPreservesExistingSettings(t *testing.T) {
	cfg := &Config{}
	cfg.Auth.JWT.Secret = strings.Repeat("a", 10)
	cfg.Auth.Cookie.Name = "session"
	cfg.Notifications.DisplayCap = 3
	cfg.Notifications.FlashWindow = 1
	cfg.Guard = GuardConfig{SignInPath: "/login", ForbiddenPath: "/404"}

	generated, err := ApplyRuntimeDefaults(cfg)
	require.NoError(t, err)
	require.Empty(t, generated)
	require.Equal(t, 3, cfg.Notifications.DisplayCap)
	require.Equal(t, "/login", cfg.Guard.SignInPath)
}

func TestApplyRuntimeDefaultsNilConfig(t *testing.T) {
	_, err := ApplyRuntimeDefaults(nil)
	require.ErrorContains(t, err, "config is nil")
}
