package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/charlesng35/opsdash/internal/app"
	"github.com/charlesng35/opsdash/internal/models"
)

func testConfig(t *testing.T) *app.Config {
	t.Helper()
	cfg := &app.Config{
		Database: app.DatabaseConfig{
			Driver: "sqlite",
			DSN:    "file:" + uuid.NewString() + "?mode=memory&cache=shared&_foreign_keys=1",
		},
		Auth: app.AuthConfig{
			JWT:     app.JWTSettings{Issuer: "bootstrap-test", TTL: time.Minute},
			Session: app.SessionSettings{RefreshTTL: time.Hour, RefreshLength: 32},
		},
		Monitoring: app.MonitoringConfig{
			Health: app.HealthConfig{Enabled: true},
		},
		Maintenance: app.MaintenanceConfig{
			SessionSchedule:           "@hourly",
			NotificationSchedule:      "@daily",
			NotificationRetentionDays: 30,
		},
		Bootstrap: app.BootstrapConfig{
			Users: []app.BootstrapUser{
				{Email: "Lead@Example.com", FullName: "Lead", Password: "lead-password", Role: "leader"},
				{Email: "", Password: "ignored"},
			},
		},
	}
	_, err := app.ApplyRuntimeDefaults(cfg)
	require.NoError(t, err)
	return cfg
}

func TestBootstrapRuntime(t *testing.T) {
	cfg := testConfig(t)

	stack, err := bootstrapRuntime(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { stack.Shutdown(context.Background(), zap.NewNop()) })

	require.NotNil(t, stack.Hub)
	require.NotNil(t, stack.Cleaner)

	var user models.User
	require.NoError(t, stack.DB.Where("email = ?", "lead@example.com").Take(&user).Error)
	require.Equal(t, "leader", user.RoleName())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	stack.Router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestBootstrapRuntimeRejectsUnknownDriver(t *testing.T) {
	cfg := testConfig(t)
	cfg.Database.Driver = "oracle"

	_, err := bootstrapRuntime(context.Background(), cfg, zap.NewNop())
	require.Error(t, err)
	require.Contains(t, err.Error(), "unsupported database driver")
}

func TestShutdownIsIdempotent(t *testing.T) {
	stack, err := bootstrapRuntime(context.Background(), testConfig(t), zap.NewNop())
	require.NoError(t, err)

	stack.Shutdown(context.Background(), zap.NewNop())
	stack.Shutdown(context.Background(), zap.NewNop())
	require.Nil(t, stack.DB)
}

func TestLoadApplicationConfigMissingPath(t *testing.T) {
	_, err := loadApplicationConfig(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "does not exist")
}

func TestLoadApplicationConfigDefaults(t *testing.T) {
	cfg, err := loadApplicationConfig(t.TempDir())
	require.NoError(t, err)
	require.Equal(t, 8000, cfg.Server.Port)
	require.Equal(t, "sqlite", cfg.Database.Driver)
}
